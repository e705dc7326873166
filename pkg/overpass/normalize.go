package overpass

import (
	"encoding/json"

	"officeradar/pkg/geo"
	"officeradar/pkg/model"
)

// evidenceScore ranks how well-attributed an office is; dedupe keeps the
// variant with the most evidence.
func evidenceScore(o *model.Office) int {
	score := 0
	if o.Website != nil {
		score += 4
	}
	if o.Wikidata != nil {
		score += 3
	}
	if o.Brand != nil {
		score += 2
	}
	if o.Operator != nil {
		score += 1
	}
	return score
}

// NormalizeElements converts raw elements into offices, dropping anything
// without a usable type, coordinate or name, and collapsing near-duplicates
// (same normalized name at the same 6-decimal coordinate).
func NormalizeElements(elements []Element) []model.Office {
	var offices []model.Office
	byKey := make(map[model.DedupeKey]int)

	for i := range elements {
		office, ok := normalizeElement(&elements[i])
		if !ok {
			continue
		}
		key := model.OfficeDedupeKey(office.Name, office.Lat, office.Lon)
		if j, dup := byKey[key]; dup {
			if evidenceScore(&office) > evidenceScore(&offices[j]) {
				offices[j] = office
			}
			continue
		}
		byKey[key] = len(offices)
		offices = append(offices, office)
	}
	return offices
}

func normalizeElement(el *Element) (model.Office, bool) {
	typ, ok := model.ParseOSMType(el.Type)
	if !ok {
		return model.Office{}, false
	}
	lat, lon, ok := el.Coordinates()
	if !ok {
		return model.Office{}, false
	}
	name := geo.SanitizeText(el.Tags["name"], 250)
	if name == nil {
		return model.Office{}, false
	}

	office := model.Office{
		OSMType:  typ,
		OSMID:    el.ID,
		Name:     *name,
		Brand:    geo.SanitizeText(el.Tags["brand"], 250),
		Operator: geo.SanitizeText(el.Tags["operator"], 250),
		Website:  geo.SanitizeText(el.Tags["website"], 500),
		Wikidata: geo.SanitizeText(el.Tags["wikidata"], 250),
		Lat:      lat,
		Lon:      lon,
	}
	if office.Wikidata != nil {
		office.WikidataEntityID = geo.NormalizeWikidata(*office.Wikidata)
	}
	office.LowConfidence = office.Website == nil && office.Wikidata == nil &&
		office.Brand == nil && office.Operator == nil

	if len(el.Tags) > 0 {
		if raw, err := json.Marshal(el.Tags); err == nil {
			s := string(raw)
			office.TagsJSON = &s
		}
	}
	return office, true
}
