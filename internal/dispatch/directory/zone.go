package directory

import (
	"strings"

	"service-dispatch/internal/common/textnorm"
)

// ZoneMatch grades how well a provider's coverage fits a request location.
type ZoneMatch int

const (
	ZoneNone ZoneMatch = iota
	ZoneCity
	ZoneExact
)

func (z ZoneMatch) String() string {
	switch z {
	case ZoneExact:
		return "exact"
	case ZoneCity:
		return "city"
	default:
		return "none"
	}
}

// Proximity is the scorer's proximity component for the match.
func (z ZoneMatch) Proximity() float64 {
	switch z {
	case ZoneExact:
		return 1.0
	case ZoneCity:
		return 0.6
	default:
		return 0.0
	}
}

// ZoneMatcher resolves free-text "Neighborhood[, City]" locations against
// coverage areas, which may name neighborhoods or whole cities.
type ZoneMatcher struct {
	cityOf map[string]string
	cities map[string]bool
}

// NewZoneMatcher takes a neighborhood -> city table.
func NewZoneMatcher(zones map[string]string) *ZoneMatcher {
	m := &ZoneMatcher{
		cityOf: make(map[string]string, len(zones)),
		cities: make(map[string]bool),
	}
	for hood, city := range zones {
		c := NormalizeZone(city)
		m.cityOf[NormalizeZone(hood)] = c
		m.cities[c] = true
	}
	return m
}

// Parse splits a location into normalized neighborhood and city. Either may be empty.
func (m *ZoneMatcher) Parse(location string) (neighborhood, city string) {
	parts := strings.Split(location, ",")
	first := NormalizeZone(parts[0])
	if len(parts) > 1 {
		city = NormalizeZone(parts[len(parts)-1])
	}

	if m.cities[first] && city == "" {
		return "", first
	}
	neighborhood = first
	if city == "" {
		city = m.cityOf[neighborhood]
	}
	return neighborhood, city
}

// Match returns the best grade over all coverage areas.
func (m *ZoneMatcher) Match(location string, coverage []string) ZoneMatch {
	hood, city := m.Parse(location)
	if hood == "" && city == "" {
		return ZoneNone
	}

	best := ZoneNone
	for _, raw := range coverage {
		area := NormalizeZone(raw)
		if area == "" {
			continue
		}
		if hood != "" && area == hood {
			return ZoneExact
		}
		if city != "" && (area == city || m.cityOf[area] == city) {
			best = ZoneCity
		}
	}
	return best
}

// NormalizeZone folds case, accents, hyphens and whitespace.
func NormalizeZone(s string) string {
	return textnorm.Fold(s)
}
