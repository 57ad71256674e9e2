package recorder

import (
	"encoding/json"
	"fmt"

	"geovisit/pkg/geoip"
	"geovisit/pkg/models"
)

const notAvailable = "N/A"

// detectProviderA reports whether the payload is the nested provider-A shape.
// Detection is structural: both "country_name" and "latitude" must be present.
func detectProviderA(fields map[string]json.RawMessage) bool {
	_, hasCountryName := fields["country_name"]
	_, hasLatitude := fields["latitude"]
	return hasCountryName && hasLatitude
}

// Normalize maps either provider payload shape into a canonical visit. A
// payload that does not parse is an input error; a provider-B "fail" status
// wraps ErrUpstreamRejected.
func Normalize(payload json.RawMessage) (*models.Visit, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("unclassifiable geolocation payload: %w", err)
	}

	if detectProviderA(fields) {
		var data models.ProviderAPayload
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("malformed provider payload: %w", err)
		}
		return normalizeProviderA(data), nil
	}

	var data models.ProviderBPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("malformed provider payload: %w", err)
	}
	if data.Status == "fail" {
		if data.Message != "" {
			return nil, fmt.Errorf("%w: %s", geoip.ErrUpstreamRejected, data.Message)
		}
		return nil, geoip.ErrUpstreamRejected
	}
	return normalizeProviderB(data), nil
}

func normalizeProviderA(data models.ProviderAPayload) *models.Visit {
	return &models.Visit{
		Continent:  firstNonEmpty(data.ContinentName, data.ContinentCode, data.CountryCode),
		Country:    data.CountryName,
		City:       data.City,
		Region:     orNA(firstNonEmpty(data.RegionName, data.RegionCode)),
		District:   orNA(data.RegionCode),
		PostalCode: orNA(data.Zip),
		Timezone:   orNA(data.TimeZone.ID),
		Latitude:   data.Latitude,
		Longitude:  data.Longitude,
		IsProxy:    data.Security.IsProxy,
		// the nested shape carries no mobile-connection signal
		IsMobile:  false,
		IsHosting: data.Security.IsTor,
	}
}

func normalizeProviderB(data models.ProviderBPayload) *models.Visit {
	return &models.Visit{
		Continent:  firstNonEmpty(data.Continent, data.CountryCode),
		Country:    data.Country,
		City:       data.City,
		Region:     orNA(data.RegionName),
		District:   orNA(data.Region),
		PostalCode: orNA(data.Zip),
		Timezone:   orNA(data.Timezone),
		Latitude:   data.Lat,
		Longitude:  data.Lon,
		IsProxy:    data.Proxy,
		IsMobile:   data.Mobile,
		IsHosting:  data.Hosting,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
