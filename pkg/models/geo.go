package models

// ProviderAPayload is the ipstack-style response shape. It is identified
// structurally by the presence of both "country_name" and "latitude".
type ProviderAPayload struct {
	IP            string  `json:"ip"`
	ContinentCode string  `json:"continent_code"`
	ContinentName string  `json:"continent_name"`
	CountryCode   string  `json:"country_code"`
	CountryName   string  `json:"country_name"`
	RegionCode    string  `json:"region_code"`
	RegionName    string  `json:"region_name"`
	City          string  `json:"city"`
	Zip           string  `json:"zip"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	TimeZone      struct {
		ID string `json:"id"`
	} `json:"time_zone"`
	Security struct {
		IsProxy bool `json:"is_proxy"`
		IsTor   bool `json:"is_tor"`
	} `json:"security"`
}

// ProviderBPayload is the ip-api.com-style response shape. A "status" of
// "fail" means the provider could not resolve the queried address.
type ProviderBPayload struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Continent   string  `json:"continent"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Region      string  `json:"region"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Zip         string  `json:"zip"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
	AS          string  `json:"as"`
	Query       string  `json:"query"`
	Proxy       bool    `json:"proxy"`
	Mobile      bool    `json:"mobile"`
	Hosting     bool    `json:"hosting"`
}
