package geo

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	const R = 6371000 // Earth radius in meters
	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}

// qidPattern matches a Wikidata entity id embedded anywhere in a tag
// value, e.g. "Q95" inside "q95;Q42" or "wd:Q95".
var qidPattern = regexp.MustCompile(`(?i)\bQ[1-9]\d*\b`)

// NormalizeWikidata extracts the first Q-id from a raw tag value and
// returns it uppercased, or nil when the value carries none.
func NormalizeWikidata(raw string) *string {
	m := qidPattern.FindString(raw)
	if m == "" {
		return nil
	}
	qid := strings.ToUpper(m)
	return &qid
}

// SanitizeText trims a raw tag value, caps its length, and strips
// control characters. Returns nil for values that are empty after
// trimming.
func SanitizeText(raw string, maxLen int) *string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, raw)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return nil
	}
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
			if cleaned == "" {
				return nil
			}
		}
	}
	return &cleaned
}

// ParseBoundedInt parses s as an integer and clamps it to [min, max].
// Returns (fallback, false) when s is not an integer.
func ParseBoundedInt(s string, min, max, fallback int) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback, false
	}
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v, true
}
