package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Visit is one recorded lookup from a client address. Rows are append-only:
// they are never updated after insert, and only the prune command deletes them.
type Visit struct {
	bun.BaseModel `bun:"table:visits,alias:v"`

	ID           int64     `bun:",pk,autoincrement" json:"id"`
	SourceIP     string    `bun:"source_ip,notnull" json:"sourceIp"`
	Continent    string    `json:"continent"`
	Country      string    `json:"country"`
	City         string    `json:"city"`
	Region       string    `json:"region"`
	District     string    `json:"district"`
	PostalCode   string    `json:"postalCode"`
	Timezone     string    `json:"timezone"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	IsProxy      bool      `json:"isProxy"`
	IsMobile     bool      `json:"isMobile"`
	IsHosting    bool      `json:"isHosting"`
	WindowBucket int64     `json:"-"`
	CreatedAt    time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// VisitStats holds the aggregate counters derived from the visits table.
type VisitStats struct {
	TotalVisits       int       `json:"totalVisits"`
	DistinctCountries int       `json:"distinctCountries"`
	ActiveLast24h     int       `json:"activeLast24h"`
	ComputedAt        time.Time `json:"computedAt"`
}
