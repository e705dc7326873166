// Package ingest parses and applies the curated centers and companies
// CSVs, both for admin uploads and for the optional startup seed files.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
)

// RowIssue records one rejected CSV row.
type RowIssue struct {
	RowNumber int    `json:"row_number"`
	Reason    string `json:"reason"`
}

// ErrMissingHeaders marks a CSV whose header row lacks required columns.
var ErrMissingHeaders = errors.New("missing required headers")

// readHeader reads the header row, strips a UTF-8 BOM, lowercases and
// trims the names, and verifies the required columns are present.
func readHeader(reader *csv.Reader, required []string) (map[string]int, error) {
	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\xef\xbb\xbf")
	}

	idxMap := make(map[string]int)
	for i, h := range headers {
		idxMap[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var missing []string
	for _, col := range required {
		if _, ok := idxMap[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingHeaders, strings.Join(missing, ", "))
	}
	return idxMap, nil
}

func fieldGetter(idxMap map[string]int) func(row []string, col string) string {
	return func(row []string, col string) string {
		if i, ok := idxMap[col]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}
}
