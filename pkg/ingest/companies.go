package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"officeradar/pkg/geo"
	"officeradar/pkg/match"
	"officeradar/pkg/model"
)

var companyHeaders = []string{"company_name"}

// CompaniesResult is the outcome of parsing one companies CSV.
type CompaniesResult struct {
	Rows   []model.Company
	Issues []RowIssue
}

// ParseCompaniesCSV reads and validates a companies CSV. Rows whose
// normalized name duplicates an earlier row collapse silently.
func ParseCompaniesCSV(r io.Reader) (*CompaniesResult, error) {
	reader := csv.NewReader(r)
	idxMap, err := readHeader(reader, companyHeaders)
	if err != nil {
		return nil, err
	}
	get := fieldGetter(idxMap)

	res := &CompaniesResult{}
	seen := make(map[string]bool)
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				res.Issues = append(res.Issues, RowIssue{RowNumber: rowNum, Reason: "wrong number of fields"})
				continue
			}
			return nil, fmt.Errorf("csv read error: %w", err)
		}

		name := geo.SanitizeText(get(record, "company_name"), 250)
		if name == nil {
			res.Issues = append(res.Issues, RowIssue{RowNumber: rowNum, Reason: "missing company_name"})
			continue
		}
		normalized := match.Normalize(*name)
		if normalized == "" {
			res.Issues = append(res.Issues, RowIssue{RowNumber: rowNum, Reason: "company name normalizes to empty"})
			continue
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true

		res.Rows = append(res.Rows, model.Company{
			CompanyName:           *name,
			CompanyNameNormalized: normalized,
			KnownAliases:          cleanAliases(get(record, "known_aliases"), normalized),
			HQCountry:             geo.SanitizeText(get(record, "hq_country"), 120),
			Description:           geo.SanitizeText(get(record, "desc"), 1000),
			Type:                  geo.SanitizeText(get(record, "type"), 120),
			Geography:             geo.SanitizeText(get(record, "geography"), 120),
			Industry:              geo.SanitizeText(get(record, "industry"), 120),
			SuitabilityTier:       geo.SanitizeText(get(record, "suitability_tier"), 120),
		})
	}
	return res, nil
}

// cleanAliases splits the raw alias list on |, sanitizes each alias, and
// drops the ones that normalize to the company name itself.
func cleanAliases(raw, companyNormalized string) *string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var kept []string
	for _, part := range strings.Split(raw, "|") {
		alias := geo.SanitizeText(part, 250)
		if alias == nil {
			continue
		}
		if match.Normalize(*alias) == companyNormalized {
			continue
		}
		kept = append(kept, *alias)
	}
	if len(kept) == 0 {
		return nil
	}
	joined := strings.Join(kept, "|")
	return &joined
}
