package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCentersCSV(t *testing.T) {
	csvBody := "center_code,name,lat,lon,country,region,tier,source_url\r\n" +
		"us-nyc-msk,\"Memorial, Sloan Kettering\",40.7641,-73.9568,US,NY,1,https://example.org/msk\r\n" +
		"de-hd-nct,NCT Heidelberg,49.4178,8.6706,DE,,,\r\n"

	res, err := ParseCentersCSV(strings.NewReader(csvBody))
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Empty(t, res.Issues)

	msk := res.Rows[0]
	assert.Equal(t, "us-nyc-msk", msk.CenterCode)
	assert.Equal(t, "Memorial, Sloan Kettering", msk.Name)
	require.NotNil(t, msk.Tier)
	assert.Equal(t, "1", *msk.Tier)
	require.NotNil(t, msk.SourceURL)
	assert.Equal(t, "https://example.org/msk", *msk.SourceURL)

	nct := res.Rows[1]
	assert.Nil(t, nct.Region)
	assert.Nil(t, nct.Tier)
	assert.Nil(t, nct.SourceURL)
	assert.Equal(t, 49.4178, nct.Lat)
}

func TestParseCentersCSVRowIssues(t *testing.T) {
	csvBody := "center_code,name,lat,lon,country,region,tier,source_url\n" +
		"bad code!,Name,1,1,,,,\n" + // row 2: invalid code
		"ok-1,,1,1,,,,\n" + // row 3: empty name
		"ok-2,Name,91,1,,,,\n" + // row 4: lat out of range
		"ok-3,Name,nope,1,,,,\n" + // row 5: unparseable lat
		"ok-4,Name,1,1,,,,ftp://example.org\n" + // row 6: bad scheme
		"ok-5,Name,1,1\n" + // row 7: wrong field count
		"ok-6,Name,1.5,2.5,,,,\n" // row 8: fine

	res, err := ParseCentersCSV(strings.NewReader(csvBody))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "ok-6", res.Rows[0].CenterCode)

	require.Len(t, res.Issues, 6)
	wantRows := []int{2, 3, 4, 5, 6, 7}
	for i, issue := range res.Issues {
		assert.Equal(t, wantRows[i], issue.RowNumber, "issue %d: %s", i, issue.Reason)
	}
	assert.Equal(t, "invalid center_code", res.Issues[0].Reason)
	assert.Equal(t, "missing name", res.Issues[1].Reason)
	assert.Equal(t, "wrong number of fields", res.Issues[5].Reason)
}

func TestParseCentersCSVLastRowWins(t *testing.T) {
	csvBody := "center_code,name,lat,lon,country,region,tier,source_url\n" +
		"dup,First Name,1,1,,,,\n" +
		"other,Other,2,2,,,,\n" +
		"dup,Second Name,3,3,,,,\n"

	res, err := ParseCentersCSV(strings.NewReader(csvBody))
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Second Name", res.Rows[0].Name)
	assert.Equal(t, 3.0, res.Rows[0].Lat)
	assert.Equal(t, "other", res.Rows[1].CenterCode)
}

func TestParseCentersCSVMissingHeaders(t *testing.T) {
	csvBody := "center_code,name,lat,lon\nx,Name,1,1\n"

	_, err := ParseCentersCSV(strings.NewReader(csvBody))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingHeaders)
	assert.Contains(t, err.Error(), "country")
}

func TestParseCentersCSVHeaderBOM(t *testing.T) {
	csvBody := "\xef\xbb\xbfCENTER_CODE,Name,lat,lon,country,region,tier,source_url\n" +
		"x-1,Somewhere,1,1,,,,\n"

	res, err := ParseCentersCSV(strings.NewReader(csvBody))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "x-1", res.Rows[0].CenterCode)
}

func TestParseCentersCSVUnterminatedQuote(t *testing.T) {
	csvBody := "center_code,name,lat,lon,country,region,tier,source_url\n" +
		"x-1,\"broken,1,1,,,,\n"

	_, err := ParseCentersCSV(strings.NewReader(csvBody))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingHeaders)
}
