package registry

import (
	"fmt"
	"math"
	"math/big"

	"github.com/R3E-Network/property_registry/internal/chain"
	"github.com/R3E-Network/property_registry/internal/codec"
	"github.com/R3E-Network/property_registry/internal/domain/property"
)

// Record is the on-chain PropertyMeta tuple. Field order and types mirror the
// deployed contract and must not change.
type Record struct {
	Slug               string   `abi:"slug" json:"slug"`
	Title              string   `abi:"title" json:"title"`
	City               string   `abi:"city" json:"city"`
	Status             uint8    `abi:"status" json:"status"`
	Available          *big.Int `abi:"available" json:"available"`
	Total              *big.Int `abi:"total" json:"total"`
	Blueprint          string   `abi:"blueprint" json:"blueprint"`
	Render             string   `abi:"render" json:"render"`
	Tokenized          string   `abi:"tokenized" json:"tokenized"`
	LatE6              int32    `abi:"latE6" json:"latE6"`
	LngE6              int32    `abi:"lngE6" json:"lngE6"`
	ApyBps             uint16   `abi:"apyBps" json:"apyBps"`
	TokenPriceUsdCents uint64   `abi:"tokenPriceUsdCents" json:"tokenPriceUsdCents"`
}

// On-chain status codes.
const (
	StatusCodeLive       uint8 = 0
	StatusCodeComingSoon uint8 = 1
	StatusCodeSoldOut    uint8 = 2
)

var statusByCode = map[uint8]property.Status{
	StatusCodeLive:       property.StatusLive,
	StatusCodeComingSoon: property.StatusComingSoon,
	StatusCodeSoldOut:    property.StatusSoldOut,
}

var codeByStatus = map[property.Status]uint8{
	property.StatusLive:       StatusCodeLive,
	property.StatusComingSoon: StatusCodeComingSoon,
	property.StatusSoldOut:    StatusCodeSoldOut,
}

// StatusFromCode maps an on-chain status code. Unknown codes are live.
func StatusFromCode(code uint8) property.Status {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return property.StatusLive
}

// StatusCode maps a status to its on-chain code. Unknown statuses are live.
func StatusCode(s property.Status) uint8 {
	if c, ok := codeByStatus[s]; ok {
		return c
	}
	return StatusCodeLive
}

// ToProperty decodes an on-chain record, applying the display fallbacks:
// title falls back to the slug, render and tokenized stand in for each
// other, blueprint falls back to render and a zero total becomes 1.
func ToProperty(r Record) (property.Property, error) {
	available, err := toInt64("available", r.Available)
	if err != nil {
		return property.Property{}, decodeFailure(r.Slug, err)
	}
	total, err := toInt64("total", r.Total)
	if err != nil {
		return property.Property{}, decodeFailure(r.Slug, err)
	}
	if total == 0 {
		total = 1
	}

	lat := codec.MicroDegreesToDecimal(int64(r.LatE6))
	lng := codec.MicroDegreesToDecimal(int64(r.LngE6))
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return property.Property{}, decodeFailure(r.Slug, fmt.Errorf("coordinates (%d, %d) out of range", r.LatE6, r.LngE6))
	}

	render := firstNonEmpty(r.Render, r.Tokenized)
	slug := r.Slug
	title := firstNonEmpty(r.Title, r.Slug, "Untitled")
	if slug == "" {
		slug = property.Slugify(title)
	}

	return property.Property{
		Slug:       slug,
		Title:      title,
		City:       firstNonEmpty(r.City, "Unknown"),
		Status:     StatusFromCode(r.Status),
		Available:  available,
		Total:      total,
		APY:        codec.BpsToPercentString(uint64(r.ApyBps)),
		TokenPrice: codec.UsdCentsToString(r.TokenPriceUsdCents),
		Blueprint:  firstNonEmpty(r.Blueprint, r.Render),
		Render:     render,
		Tokenized:  firstNonEmpty(r.Tokenized, r.Render),
		LatLng:     property.LatLng{lat, lng},
	}, nil
}

// ToRecord encodes a property for a write. The slug is slugified from, in
// order, the slug argument, the property's slug and its title.
func ToRecord(p property.Property, slug string) (Record, error) {
	source := firstNonEmpty(slug, p.Slug, p.Title)
	key := property.Slugify(source)

	if p.Available < 0 || p.Total < 0 {
		return Record{}, chain.InvalidError("encode", "property %s: available and total must be non-negative", key)
	}
	if p.Total > 0 && p.Available > p.Total {
		return Record{}, chain.InvalidError("encode", "property %s: available %d exceeds total %d", key, p.Available, p.Total)
	}
	if p.LatLng.Lat() < -90 || p.LatLng.Lat() > 90 || p.LatLng.Lng() < -180 || p.LatLng.Lng() > 180 {
		return Record{}, chain.InvalidError("encode", "property %s: coordinates out of range", key)
	}
	bps := codec.PercentStringToBps(p.APY)
	if bps > math.MaxUint16 {
		return Record{}, chain.InvalidError("encode", "property %s: apy %q exceeds %d bps", key, p.APY, math.MaxUint16)
	}

	return Record{
		Slug:               key,
		Title:              p.Title,
		City:               p.City,
		Status:             StatusCode(p.Status),
		Available:          big.NewInt(p.Available),
		Total:              big.NewInt(p.Total),
		Blueprint:          p.Blueprint,
		Render:             p.Render,
		Tokenized:          p.Tokenized,
		LatE6:              int32(codec.DecimalToMicroDegrees(p.LatLng.Lat())),
		LngE6:              int32(codec.DecimalToMicroDegrees(p.LatLng.Lng())),
		ApyBps:             uint16(bps),
		TokenPriceUsdCents: codec.UsdStringToCents(p.TokenPrice),
	}, nil
}

// ToRecords encodes a catalog, keeping its order.
func ToRecords(items []property.Property) ([]Record, error) {
	out := make([]Record, 0, len(items))
	for _, p := range items {
		r, err := ToRecord(p, "")
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func toInt64(field string, v *big.Int) (int64, error) {
	if v == nil {
		return 0, nil
	}
	if v.Sign() < 0 || !v.IsInt64() {
		return 0, fmt.Errorf("%s %s out of range", field, v)
	}
	return v.Int64(), nil
}

func decodeFailure(slug string, err error) error {
	if slug == "" {
		slug = "<unnamed>"
	}
	return chain.DecodeError("decode "+slug, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
