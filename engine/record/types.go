// Package record defines the canonical vehicle record that every source
// adapter produces and every sink consumes, together with its enums, the
// validity gate applied before a record is written, and its CSV layout.
package record

import "strings"

// Record is one normalized advert.
type Record struct {
	ID         string   `json:"id"`
	Source     string   `json:"source"`
	Make       string   `json:"make"`
	Model      string   `json:"model"`
	Title      string   `json:"title"`
	Currency   Currency `json:"currency"`
	Price      uint64   `json:"price"`
	Mileage    uint64   `json:"mileage"`
	Year       uint16   `json:"year"`
	Month      uint8    `json:"month,omitempty"`
	Engine     Engine   `json:"engine"`
	Gearbox    Gearbox  `json:"gearbox"`
	Power      uint32   `json:"power,omitempty"`
	CC         uint32   `json:"cc,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Location   string   `json:"location,omitempty"`
	SellerName string   `json:"seller_name,omitempty"`
	ViewCount  uint64   `json:"view_count,omitempty"`
	Equipment  uint64   `json:"equipment"`
	Top        bool     `json:"top"`
	VIP        bool     `json:"vip"`
	Sold       bool     `json:"sold"`
	Dealer     bool     `json:"dealer"`
	CreatedOn  string   `json:"created_on,omitempty"`
	UpdatedOn  string   `json:"updated_on,omitempty"`

	// Not part of the CSV layout; published on the bus only.
	URL                 string  `json:"url,omitempty"`
	PowerKW             uint32  `json:"power_kw,omitempty"`
	ConsumptionCombined float64 `json:"consumption_combined,omitempty"`
	CO2                 uint32  `json:"co2,omitempty"`
}

// CanonicalID prefixes a native advert id with its source tag. Ids that
// already carry the prefix are returned unchanged.
func CanonicalID(source, native string) string {
	native = strings.TrimSpace(native)
	if native == "" || source == "" {
		return native
	}
	prefix := source + "-"
	if strings.HasPrefix(native, prefix) {
		return native
	}
	return prefix + native
}
