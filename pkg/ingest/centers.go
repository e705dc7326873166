package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"officeradar/pkg/geo"
	"officeradar/pkg/model"
)

var centerCodeRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var centerHeaders = []string{"center_code", "name", "lat", "lon", "country", "region", "tier", "source_url"}

// CentersResult is the outcome of parsing one centers CSV.
type CentersResult struct {
	Rows   []model.CenterUpsert
	Issues []RowIssue
}

// ParseCentersCSV reads and validates a centers CSV. Later rows with the
// same center_code overwrite earlier ones. Invalid rows become issues; a
// broken quote aborts the whole parse.
func ParseCentersCSV(r io.Reader) (*CentersResult, error) {
	reader := csv.NewReader(r)
	idxMap, err := readHeader(reader, centerHeaders)
	if err != nil {
		return nil, err
	}
	get := fieldGetter(idxMap)

	res := &CentersResult{}
	byCode := make(map[string]int)
	rowNum := 1 // the header row
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

		code := strings.TrimSpace(get(record, "center_code"))
		if !centerCodeRe.MatchString(code) {
			res.Issues = append(res.Issues, RowIssue{RowNumber: rowNum, Reason: "invalid center_code"})
			continue
		}

		name := geo.SanitizeText(get(record, "name"), 250)
		if name == nil {
			res.Issues = append(res.Issues, RowIssue{RowNumber: rowNum, Reason: "missing name"})
			continue
		}

		lat, latErr := strconv.ParseFloat(strings.TrimSpace(get(record, "lat")), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(get(record, "lon")), 64)
		if latErr != nil || lonErr != nil ||
			math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 ||
			math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
			res.Issues = append(res.Issues, RowIssue{RowNumber: rowNum, Reason: "invalid coordinates"})
			continue
		}

		sourceURL := strings.TrimSpace(get(record, "source_url"))
		if sourceURL != "" && !strings.HasPrefix(sourceURL, "http://") && !strings.HasPrefix(sourceURL, "https://") {
			res.Issues = append(res.Issues, RowIssue{RowNumber: rowNum, Reason: "source_url must start with http:// or https://"})
			continue
		}

		row := model.CenterUpsert{
			CenterCode: code,
			Name:       *name,
			Tier:       geo.SanitizeText(get(record, "tier"), 120),
			Lat:        lat,
			Lon:        lon,
			Country:    geo.SanitizeText(get(record, "country"), 120),
			Region:     geo.SanitizeText(get(record, "region"), 120),
			SourceURL:  geo.SanitizeText(sourceURL, 500),
		}

		if i, ok := byCode[code]; ok {
			res.Rows[i] = row // later rows win within one file
			continue
		}
		byCode[code] = len(res.Rows)
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}
