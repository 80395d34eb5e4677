package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apierrors "petakeu/internal/errors"
	"petakeu/internal/exporter"
	"petakeu/internal/geo"
	"petakeu/internal/operations"
	"petakeu/internal/regions"
	"petakeu/internal/reports"
	"petakeu/internal/shared/testutil"
	"petakeu/internal/uploads"
	"petakeu/pkg/contracts/domain"
)

type apiFixture struct {
	router  chi.Router
	uploads *uploads.Service
	queue   *operations.JobQueue
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	errorHandler := apierrors.NewErrorHandler(logger, false).WithClassifier(ClassifyError)
	dir := t.TempDir()

	queue := operations.NewJobQueue(operations.QueueConfig{Workers: 2}, nil, logger)
	queue.Start(context.Background())
	t.Cleanup(func() { queue.Stop(5 * time.Second) })

	catalog := regions.DefaultCatalog()
	source := regions.NewMemorySource()
	uploadService := uploads.NewService(uploads.Config{MaxSize: 64 * 1024}, uploads.Dependencies{
		Store:    uploads.NewMemoryStore(),
		Blobs:    uploads.NewDiskBlobStore(dir),
		Queue:    queue,
		Reports:  exporter.NewCSVWriter(dir),
		Ingestor: regions.NewIngestor(catalog, source, logger),
		Logger:   logger,
	})
	reportService := reports.NewService(reports.Config{}, reports.Dependencies{
		Catalog: catalog,
		Logger:  logger,
	})

	r := chi.NewRouter()
	r.NotFound(errorHandler.NotFound)
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/regions", NewRegionHandler(regions.NewAggregator(catalog, source, logger), logger, errorHandler).Routes())
		r.Mount("/geo", NewGeoHandler(geo.NewBuilder(catalog, source, logger), logger, errorHandler).Routes())
		r.Mount("/uploads", NewUploadHandler(uploadService, logger, errorHandler).Routes())
		r.Mount("/reports", NewReportHandler(reportService, logger, errorHandler).Routes())
		r.Mount("/jobs", NewJobsHandler(queue, logger, errorHandler).Routes())
		r.Post("/logs", NewClientLogHandler(logger, errorHandler).Handle)
	})
	return &apiFixture{router: r, uploads: uploadService, queue: queue}
}

func (f *apiFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	return f.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func assertProblem(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
	body := decodeBody(t, rec)
	assert.Equal(t, float64(status), body["status"])
	assert.Equal(t, code, body["error_code"])
}

func TestListRegions(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLevel  string
	}{
		{name: "all regions", query: "", wantStatus: http.StatusOK},
		{name: "provinces", query: "?level=province", wantStatus: http.StatusOK, wantLevel: "province"},
		{name: "regencies paged", query: "?level=regency&page=1&pageSize=2", wantStatus: http.StatusOK, wantLevel: "regency"},
		{name: "unknown level", query: "?level=village", wantStatus: http.StatusBadRequest},
		{name: "page size too large", query: "?pageSize=501", wantStatus: http.StatusBadRequest},
		{name: "page not a number", query: "?page=first", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, "/api/v1/regions"+tt.query)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}

			var page domain.RegionPage
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
			assert.NotEmpty(t, page.Data)
			for _, region := range page.Data {
				if tt.wantLevel != "" {
					assert.Equal(t, domain.RegionLevel(tt.wantLevel), region.Level)
				}
			}
		})
	}

	t.Run("page size honoured", func(t *testing.T) {
		rec := f.get(t, "/api/v1/regions?level=regency&pageSize=2")
		var page domain.RegionPage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Len(t, page.Data, 2)
		assert.Equal(t, 2, page.Meta.PageSize)
	})
}

func TestRegionSummary(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("private", func(t *testing.T) {
		rec := f.get(t, "/api/v1/regions/city-jakarta/summary?from=2025-06&to=2025-08")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.Equal(t, 292_000_000.0, body["totalAmount"])
		assert.Len(t, body["monthlyBreakdown"], 3)
	})

	t.Run("public omits amounts", func(t *testing.T) {
		rec := f.get(t, "/api/v1/regions/city-jakarta/summary?public=1")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.NotContains(t, body, "totalAmount")
		assert.NotContains(t, body, "monthlyBreakdown")
		assert.Equal(t, true, body["public"])
	})

	t.Run("unknown region", func(t *testing.T) {
		rec := f.get(t, "/api/v1/regions/city-atlantis/summary")
		assertProblem(t, rec, http.StatusNotFound, "REGION_NOT_FOUND")
	})

	t.Run("malformed period", func(t *testing.T) {
		rec := f.get(t, "/api/v1/regions/city-jakarta/summary?from=2025-13")
		assertProblem(t, rec, http.StatusBadRequest, "INVALID_PERIOD")
	})
}

func TestChoropleth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.get(t, "/api/v1/geo/choropleth")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result struct {
		Type     string `json:"type"`
		Features []struct {
			ID         string                 `json:"id"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
		Metadata struct {
			Period   string `json:"period"`
			Scenario string `json:"scenario"`
			Public   bool   `json:"public"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "FeatureCollection", result.Type)
	assert.Equal(t, "2025-08", result.Metadata.Period)
	assert.Len(t, result.Features, 5)

	t.Run("public view", func(t *testing.T) {
		rec := f.get(t, "/api/v1/geo/choropleth?public=true")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), `"value"`)
		assert.NotContains(t, rec.Body.String(), `"sparkline"`)
	})

	t.Run("scenario header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/geo/choropleth", nil)
		req.Header.Set(ScenarioHeader, regions.ScenarioSpike)
		rec := f.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"scenario":"`+regions.ScenarioSpike+`"`)
	})

	t.Run("bad period", func(t *testing.T) {
		rec := f.get(t, "/api/v1/geo/choropleth?period=August")
		assertProblem(t, rec, http.StatusBadRequest, "INVALID_PERIOD")
	})
}

var sheetHeader = []interface{}{"Kode BPS", "Nama Wilayah", "Periode", "Nominal", "Sumber"}

func buildWorkbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func multipartUpload(t *testing.T, filename, mimeType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadField, filename))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (f *apiFixture) uploadAndWait(t *testing.T, data []byte) domain.UploadRecord {
	t.Helper()
	rec := f.do(t, multipartUpload(t, "setoran.xlsx", uploads.MimeXLSX, data))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var result domain.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEmpty(t, result.UploadID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	record, err := f.uploads.Wait(ctx, result.UploadID)
	require.NoError(t, err)
	return record
}

func TestUploadParsed(t *testing.T) {
	f := newAPIFixture(t)
	record := f.uploadAndWait(t, buildWorkbook(t, sheetHeader,
		[]interface{}{"3171", "DKI Jakarta", "2025-09", 120000000, "BPKAD"},
	))
	assert.Equal(t, domain.UploadStatusParsed, record.Status)

	rec := f.get(t, "/api/v1/uploads/"+record.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, record.ID, data["uploadId"])
	assert.Equal(t, "parsed", data["status"])

	rec = f.get(t, "/api/v1/uploads")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 1)

	rec = f.get(t, "/api/v1/uploads/"+record.ID+"/errors.csv")
	assertProblem(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = f.get(t, "/api/v1/jobs?kind=upload_validation&subjectId="+record.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decodeBody(t, rec)["data"].([]interface{})
	require.Len(t, jobs, 1)
	job := jobs[0].(map[string]interface{})
	assert.Equal(t, "completed", job["status"])
	assert.Equal(t, true, job["isComplete"])
}

func TestUploadRowErrors(t *testing.T) {
	f := newAPIFixture(t)
	record := f.uploadAndWait(t, buildWorkbook(t, sheetHeader,
		[]interface{}{"3171", "DKI Jakarta", "2025-9", 120000000, "BPKAD"},
		[]interface{}{"3273", "Kota Bandung", "2025-09", -5, "BPKAD"},
	))
	assert.Equal(t, domain.UploadStatusFailed, record.Status)
	require.Equal(t, 2, record.ErrorCount)

	rec := f.get(t, "/api/v1/uploads/"+record.ID+"/errors.csv")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), record.ID+"-errors.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, rec.Body.String(), "Format periode tidak valid (YYYY-MM)")
	assert.Contains(t, rec.Body.String(), "Nilai negatif tidak diperbolehkan")
}

func TestUploadRejected(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("unsupported format", func(t *testing.T) {
		rec := f.do(t, multipartUpload(t, "setoran.csv", "text/csv", []byte("a,b\n")))
		assertProblem(t, rec, http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT")
	})

	t.Run("too large", func(t *testing.T) {
		rec := f.do(t, multipartUpload(t, "besar.xlsx", uploads.MimeXLSX, bytes.Repeat([]byte{'x'}, 64*1024+1)))
		assertProblem(t, rec, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE")
	})

	t.Run("missing file", func(t *testing.T) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		require.NoError(t, w.WriteField("note", "kosong"))
		require.NoError(t, w.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &body)
		req.Header.Set("Content-Type", w.FormDataContentType())
		assertProblem(t, f.do(t, req), http.StatusBadRequest, "VALIDATION_FAILED")
	})

	t.Run("unknown upload", func(t *testing.T) {
		assertProblem(t, f.get(t, "/api/v1/uploads/nope"), http.StatusNotFound, "UPLOAD_NOT_FOUND")
	})
}

func TestReportExport(t *testing.T) {
	f := newAPIFixture(t)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/export", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return f.do(t, req)
	}

	rec := post(`{"period":"2025-08","regionIds":["city-jakarta","city-bandung"],"format":"pdf"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "completed", job["status"])
	id := job["jobId"].(string)
	assert.Equal(t, "https://storage.petakeu.local/reports/"+id+".pdf", job["downloadUrl"])

	rec = f.get(t, "/api/v1/reports/"+id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeBody(t, rec)["data"].(map[string]interface{})["jobId"])

	rec = f.get(t, "/api/v1/reports")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 1)

	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "malformed json", body: `{"period":`, code: "INVALID_REQUEST"},
		{name: "bad period", body: `{"period":"2025-8","regionIds":["city-jakarta"],"format":"pdf"}`, code: "VALIDATION_FAILED"},
		{name: "no regions", body: `{"period":"2025-08","regionIds":[],"format":"pdf"}`, code: "VALIDATION_FAILED"},
		{name: "unknown format", body: `{"period":"2025-08","regionIds":["city-jakarta"],"format":"docx"}`, code: "VALIDATION_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertProblem(t, post(tt.body), http.StatusBadRequest, tt.code)
		})
	}

	t.Run("unknown job", func(t *testing.T) {
		assertProblem(t, f.get(t, "/api/v1/reports/missing"), http.StatusNotFound, "REPORT_NOT_FOUND")
	})
}

func TestJobs(t *testing.T) {
	f := newAPIFixture(t)

	completion, err := f.queue.Submit(operations.Task{
		Kind:      "report_render",
		SubjectID: "subject-1",
		Run:       func(context.Context) error { return nil },
	})
	require.NoError(t, err)
	require.NoError(t, completion.Wait(context.Background()))

	rec := f.get(t, "/api/v1/jobs/"+completion.JobID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	job := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "report_render", job["kind"])
	assert.Equal(t, "completed", job["status"])
	assert.NotEmpty(t, job["duration"])

	rec = f.get(t, "/api/v1/jobs?status=completed")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["workers"])
	assert.Equal(t, true, stats["accepting"])

	assertProblem(t, f.get(t, "/api/v1/jobs?status=lost"), http.StatusBadRequest, "VALIDATION_FAILED")
	assertProblem(t, f.get(t, "/api/v1/jobs/unknown"), http.StatusNotFound, "NOT_FOUND")
}

func TestClientLog(t *testing.T) {
	logger, records := testutil.NewTestLogger(t)
	errorHandler := apierrors.NewErrorHandler(logger, false)
	handler := NewClientLogHandler(logger, errorHandler)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{name: "info entry", body: `{"level":"info","message":"peta dimuat","data":{"component":"map"}}`, wantStatus: http.StatusAccepted, wantMsg: "peta dimuat"},
		{name: "error entry", body: `{"level":"error","message":"gagal memuat","source":"dashboard"}`, wantStatus: http.StatusAccepted, wantMsg: "gagal memuat"},
		{name: "unknown level", body: `{"level":"verbose","message":"lainnya"}`, wantStatus: http.StatusAccepted, wantMsg: "lainnya"},
		{name: "empty message", body: `{"level":"info","message":"  "}`, wantStatus: http.StatusBadRequest},
		{name: "invalid json", body: `not json`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/logs", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.Handle(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantMsg != "" {
				assert.JSONEq(t, `{"success":true}`, rec.Body.String())
				assert.True(t, records.ContainsMessage(tt.wantMsg))
			}
		})
	}

	t.Run("levels are mapped", func(t *testing.T) {
		record, ok := records.FindRecord("gagal memuat")
		require.True(t, ok)
		assert.Equal(t, "error", strings.ToLower(record.Level.String()))
		assert.Equal(t, "dashboard", record.Attrs["client_source"])

		record, ok = records.FindRecord("lainnya")
		require.True(t, ok)
		assert.Equal(t, "INFO", record.Level.String())
	})
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *apierrors.APIError
	}{
		{"region", fmt.Errorf("lookup: %w", regions.ErrRegionNotFound), apierrors.ErrRegionNotFound},
		{"upload", uploads.ErrUploadNotFound, apierrors.ErrUploadNotFound},
		{"queue full", operations.ErrQueueFull, apierrors.ErrServiceUnavailable},
		{"storage", apierrors.NewStorageError("failed to query uploads", fmt.Errorf("connection refused")), apierrors.ErrServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}
