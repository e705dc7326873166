package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"officeradar/pkg/ingest"
)

const centersCSVHeader = "center_code,name,lat,lon,country,region,tier,source_url\n"

func csvUploadRequest(t *testing.T, target, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "upload.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write csv part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := adminRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCentersUpload(t *testing.T) {
	srv, _ := newTestServer(t, "")

	t.Run("FirstUploadInserts", func(t *testing.T) {
		csv := centersCSVHeader +
			"PM,Princess Margaret,43.6582,-79.3907,Canada,Ontario,A,https://example.org/pm\n" +
			"DF,Dana-Farber,42.3371,-71.1071,USA,Massachusetts,A,\n"
		w := serve(srv, csvUploadRequest(t, "/api/admin/centers/upload-csv", csv))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp centersUploadResponse
		decodeBody(t, w, &resp)
		if !resp.OK || resp.Inserted != 2 || resp.Updated != 0 || resp.Disabled != 0 {
			t.Errorf("unexpected apply result: %+v", resp)
		}
		if len(resp.Issues) != 0 {
			t.Errorf("expected no issues, got %+v", resp.Issues)
		}
	})

	t.Run("SecondUploadDisablesMissing", func(t *testing.T) {
		csv := centersCSVHeader +
			"PM,Princess Margaret Cancer Centre,43.6582,-79.3907,Canada,Ontario,A,\n"
		w := serve(srv, csvUploadRequest(t, "/api/admin/centers/upload-csv", csv))
		var resp centersUploadResponse
		decodeBody(t, w, &resp)
		if resp.Inserted != 0 || resp.Updated != 1 || resp.Disabled != 1 {
			t.Errorf("expected 0 inserted, 1 updated, 1 disabled, got %+v", resp)
		}

		listing := serve(srv, httptest.NewRequest(http.MethodGet, "/api/centers?activeOnly=true", nil))
		var centers []centerSummary
		decodeBody(t, listing, &centers)
		if len(centers) != 1 || centers[0].CenterCode != "PM" {
			t.Errorf("expected only PM to stay active, got %+v", centers)
		}
	})
}

func TestCentersUploadValidation(t *testing.T) {
	srv, _ := newTestServer(t, "")

	t.Run("MissingHeaders", func(t *testing.T) {
		w := serve(srv, csvUploadRequest(t, "/api/admin/centers/upload-csv", "code,name\nPM,X\n"))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "missing required headers") {
			t.Errorf("expected a missing-headers error, got %s", w.Body.String())
		}
	})

	t.Run("NoAcceptableRows", func(t *testing.T) {
		csv := centersCSVHeader + "PM,Princess Margaret,notanumber,-79.39,,,,\n"
		w := serve(srv, csvUploadRequest(t, "/api/admin/centers/upload-csv", csv))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		var resp struct {
			Error  string            `json:"error"`
			Issues []ingest.RowIssue `json:"issues"`
		}
		decodeBody(t, w, &resp)
		if resp.Error != "no acceptable rows" {
			t.Errorf("unexpected error %q", resp.Error)
		}
		if len(resp.Issues) != 1 || resp.Issues[0].Reason != "invalid coordinates" {
			t.Errorf("expected one invalid-coordinates issue, got %+v", resp.Issues)
		}
	})

	t.Run("MissingFileField", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		if err := mw.WriteField("other", "value"); err != nil {
			t.Fatalf("write field: %v", err)
		}
		mw.Close()
		req := adminRequest(http.MethodPost, "/api/admin/centers/upload-csv", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := serve(srv, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("NotMultipart", func(t *testing.T) {
		w := serve(srv, adminRequest(http.MethodPost, "/api/admin/centers/upload-csv",
			strings.NewReader("center_code,name\n")))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("RequiresAuth", func(t *testing.T) {
		req := csvUploadRequest(t, "/api/admin/centers/upload-csv", centersCSVHeader)
		req.Header.Del("Authorization")
		w := serve(srv, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})
}

func TestCompaniesUpload(t *testing.T) {
	srv, _ := newTestServer(t, "")
	csv := "company_name\nAcme\nZeta Holdings\n"

	t.Run("FirstUploadInserts", func(t *testing.T) {
		w := serve(srv, csvUploadRequest(t, "/api/admin/companies/upload-csv", csv))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp companiesUploadResponse
		decodeBody(t, w, &resp)
		if !resp.OK || resp.Inserted != 2 || resp.Skipped != 0 {
			t.Errorf("unexpected apply result: %+v", resp)
		}
	})

	t.Run("ReuploadSkipsKnownNames", func(t *testing.T) {
		w := serve(srv, csvUploadRequest(t, "/api/admin/companies/upload-csv", csv))
		var resp companiesUploadResponse
		decodeBody(t, w, &resp)
		if resp.Inserted != 0 || resp.Skipped != 2 {
			t.Errorf("expected everything skipped, got %+v", resp)
		}
	})

	t.Run("MissingHeaders", func(t *testing.T) {
		w := serve(srv, csvUploadRequest(t, "/api/admin/companies/upload-csv", "name\nAcme\n"))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestUploadSizeCap(t *testing.T) {
	srv, _ := newTestServer(t, "")
	srv.cfg.Server.UploadMaxBytes = 64

	csv := centersCSVHeader + "PM,Princess Margaret,43.6582,-79.3907,Canada,Ontario,A,\n"
	w := serve(srv, csvUploadRequest(t, "/api/admin/centers/upload-csv", csv))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", w.Code, w.Body.String())
	}
}
