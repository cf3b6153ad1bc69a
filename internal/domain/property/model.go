// Package property defines the canonical, display-ready property entity.
package property

import (
	"fmt"
	"strings"

	"github.com/mmcloughlin/geohash"
)

// GeohashPrecision is the geohash length used for stored and served
// locations, roughly a 5m cell.
const GeohashPrecision = 9

// Status is the listing state of a property.
type Status string

const (
	StatusLive       Status = "live"
	StatusComingSoon Status = "coming-soon"
	StatusSoldOut    Status = "sold-out"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusLive, StatusComingSoon, StatusSoldOut:
		return true
	}
	return false
}

// ParseStatus maps a status name to a Status. Unknown or empty names are live.
func ParseStatus(s string) Status {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st.Valid() {
		return st
	}
	return StatusLive
}

// LatLng is a [latitude, longitude] pair in decimal degrees.
type LatLng [2]float64

// Lat returns the latitude.
func (l LatLng) Lat() float64 { return l[0] }

// Lng returns the longitude.
func (l LatLng) Lng() float64 { return l[1] }

// Property is a tokenized real-estate listing as the application presents it.
type Property struct {
	Slug       string `json:"slug" yaml:"slug"`
	Title      string `json:"title" yaml:"title"`
	City       string `json:"city" yaml:"city"`
	Status     Status `json:"status" yaml:"status"`
	Available  int64  `json:"available" yaml:"available"`
	Total      int64  `json:"total" yaml:"total"`
	APY        string `json:"apy" yaml:"apy"`
	TokenPrice string `json:"tokenPrice" yaml:"tokenPrice"`
	Blueprint  string `json:"blueprint" yaml:"blueprint"`
	Render     string `json:"render" yaml:"render"`
	Tokenized  string `json:"tokenized" yaml:"tokenized"`
	LatLng     LatLng `json:"latLng" yaml:"latLng"`
}

// Key returns the slug, deriving it from the title when unset.
func (p Property) Key() string {
	if p.Slug != "" {
		return p.Slug
	}
	return Slugify(p.Title)
}

// Geohash encodes the property location at GeohashPrecision.
func (p Property) Geohash() string {
	return geohash.EncodeWithPrecision(p.LatLng.Lat(), p.LatLng.Lng(), GeohashPrecision)
}

// Validate checks the invariants shared by every write path.
func (p Property) Validate() error {
	if strings.TrimSpace(p.Title) == "" && strings.TrimSpace(p.Slug) == "" {
		return fmt.Errorf("property: title or slug required")
	}
	if p.Available < 0 || p.Total < 0 {
		return fmt.Errorf("property %s: available and total must be non-negative", p.Key())
	}
	if p.Total > 0 && p.Available > p.Total {
		return fmt.Errorf("property %s: available %d exceeds total %d", p.Key(), p.Available, p.Total)
	}
	if p.LatLng.Lat() < -90 || p.LatLng.Lat() > 90 || p.LatLng.Lng() < -180 || p.LatLng.Lng() > 180 {
		return fmt.Errorf("property %s: coordinates out of range", p.Key())
	}
	return nil
}

// Slugify lowercases input, collapses every run of characters outside
// [a-z0-9] into one hyphen and trims hyphens at both ends. An empty result
// becomes "property".
func Slugify(input string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(input) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	if b.Len() == 0 {
		return "property"
	}
	return b.String()
}

// Filter selects properties by status and city. Empty criteria match everything.
type Filter struct {
	Status Status
	City   string
}

// Apply returns the matching properties in their original order.
func (f Filter) Apply(items []Property) []Property {
	out := make([]Property, 0, len(items))
	for _, p := range items {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.City != "" && !strings.EqualFold(p.City, f.City) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// FindBySlug returns the property with the given slug.
func FindBySlug(items []Property, slug string) (Property, bool) {
	for _, p := range items {
		if p.Key() == slug {
			return p, true
		}
	}
	return Property{}, false
}
