package wikidata

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"officeradar/pkg/geo"
	"officeradar/pkg/model"
)

const (
	propEmployees   = "P1128"
	propMarketCap   = "P2226"
	propPointInTime = "P585"
)

// evaluateEntity derives facts from an entity's claims. A zero-value
// entity (missing from the API response) yields all-null facts.
func evaluateEntity(ent entity) model.WikidataFacts {
	var facts model.WikidataFacts

	if best := bestQuantity(ent.Claims[propEmployees]); best != nil {
		if n := int64(math.Round(best.amount)); n >= 0 {
			facts.EmployeeCount = &n
			facts.EmployeeCountAsOf = best.asOf
		}
	}

	if best := bestQuantity(ent.Claims[propMarketCap]); best != nil {
		amount := best.amount
		facts.MarketCap = &amount
		facts.MarketCapCurrencyQID = geo.NormalizeWikidata(best.unit)
		facts.MarketCapAsOf = best.asOf
	}

	return facts
}

// candidate is one usable quantity claim.
type candidate struct {
	amount float64
	unit   string
	asOf   *string
	rank   int
}

func rankOrder(rank string) int {
	switch rank {
	case "preferred":
		return 2
	case "normal":
		return 1
	default:
		return 0
	}
}

// bestQuantity picks the winning claim for one property: deprecated
// claims are dropped, higher rank wins, equal rank prefers the most
// recent point-in-time qualifier.
func bestQuantity(claims []claim) *candidate {
	var best *candidate
	for i := range claims {
		cl := &claims[i]
		if cl.Rank == "deprecated" {
			continue
		}
		qty, ok := parseQuantity(cl.Mainsnak.Datavalue)
		if !ok {
			continue
		}
		amount, err := strconv.ParseFloat(qty.Amount, 64)
		if err != nil {
			continue
		}
		cand := &candidate{
			amount: amount,
			unit:   qty.Unit,
			asOf:   mostRecentAsOf(cl.Qualifiers[propPointInTime]),
			rank:   rankOrder(cl.Rank),
		}
		if best == nil || cand.rank > best.rank ||
			(cand.rank == best.rank && laterAsOf(cand.asOf, best.asOf)) {
			best = cand
		}
	}
	return best
}

func parseQuantity(dv *datavalue) (quantityValue, bool) {
	var qty quantityValue
	if dv == nil || dv.Type != "quantity" {
		return qty, false
	}
	if err := json.Unmarshal(dv.Value, &qty); err != nil {
		return qty, false
	}
	return qty, true
}

// mostRecentAsOf resolves the latest point-in-time qualifier.
func mostRecentAsOf(snaks []snak) *string {
	var latest *string
	for i := range snaks {
		dv := snaks[i].Datavalue
		if dv == nil || dv.Type != "time" {
			continue
		}
		var tv timeValue
		if err := json.Unmarshal(dv.Value, &tv); err != nil {
			continue
		}
		if iso := canonicalizeTime(tv.Time); iso != nil && laterAsOf(iso, latest) {
			latest = iso
		}
	}
	return latest
}

// laterAsOf compares ISO dates; an absent date sorts lowest.
func laterAsOf(a, b *string) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return *a > *b
}

// canonicalizeTime turns Wikidata's "+YYYY-MM-DDT00:00:00Z" into an ISO
// date. Year-precision values carry zeroed month/day, rewritten to 01.
func canonicalizeTime(raw string) *string {
	s := strings.TrimPrefix(raw, "+")
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return nil
	}
	if parts[1] == "00" {
		parts[1] = "01"
	}
	if parts[2] == "00" {
		parts[2] = "01"
	}
	iso := strings.Join(parts, "-")
	return &iso
}
