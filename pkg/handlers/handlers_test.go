package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file-drop/pkg/catalog"
	"file-drop/pkg/cleanup"
	"file-drop/pkg/database"
	"file-drop/pkg/ledger"
	"file-drop/pkg/models"
	"file-drop/pkg/scheduler"
	"file-drop/pkg/storage"
	"file-drop/pkg/upload"
)

type fakeScheduler struct {
	outcome scheduler.RunOutcome
	err     error
	calls   int
}

func (f *fakeScheduler) TriggerManualCleanup(context.Context) (scheduler.RunOutcome, error) {
	f.calls++
	return f.outcome, f.err
}

func (f *fakeScheduler) GetManagerStats() models.ManagerStats {
	return models.ManagerStats{RunStatistics: models.RunStatistics{TotalRuns: 3, SuccessfulRuns: 3}, SuccessRate: "100.00%"}
}

type fakeHosted struct {
	deleted []string
}

func (f *fakeHosted) Delete(ctx context.Context, fileID, adminCode string) error {
	if adminCode != "secret" {
		return errors.New("wrong admin code")
	}
	f.deleted = append(f.deleted, fileID)
	return nil
}

type fakeCache struct{}

func (fakeCache) GetData() gin.H { return gin.H{"system_info": gin.H{"cpu_usage": "1.0%"}} }

type testEnv struct {
	router    *gin.Engine
	handler   *Handler
	scheduler *fakeScheduler
	hosted    *fakeHosted
	catalog   *catalog.Catalog
	ledger    *ledger.Ledger
	blobs     *storage.LocalStore
}

func setup(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	db, err := database.InitDB(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := storage.NewLocalStore(filepath.Join(dir, "blobs"), "")
	require.NoError(t, err)

	env := &testEnv{
		scheduler: &fakeScheduler{},
		hosted:    &fakeHosted{},
		catalog:   catalog.New(db),
		ledger:    ledger.New(db),
		blobs:     blobs,
	}
	engine := cleanup.NewEngine(env.ledger, blobs, env.hosted, cleanup.WithCallTimeout(time.Second))
	uploads := upload.New(upload.Options{
		Blobs:        blobs,
		Bucket:       "uploads",
		Ledger:       env.ledger,
		Catalog:      env.catalog,
		TemporaryTTL: time.Hour,
	})

	env.handler = &Handler{
		Scheduler:     env.scheduler,
		Cleanup:       engine,
		Uploads:       uploads,
		Catalog:       env.catalog,
		Blobs:         blobs,
		Stats:         fakeCache{},
		RetentionDays: 30,
	}

	r := gin.New()
	r.GET("/health", HandleHealth)
	r.GET("/api/system-stats", env.handler.HandleSystemStats)
	r.POST("/api/files", env.handler.HandleUpload)
	r.GET("/api/files", env.handler.HandleListFiles)
	r.GET("/api/files/:id/download", env.handler.HandleDownload)
	r.DELETE("/api/files/:id", env.handler.HandleDelete)
	r.POST("/api/admin/cleanup", env.handler.HandleManualCleanup)
	r.GET("/api/admin/cleanup/stats", env.handler.HandleCleanupStats)
	r.POST("/api/admin/cleanup/files", env.handler.HandleCleanupFiles)
	r.POST("/api/admin/cleanup/purge", env.handler.HandlePurge)
	env.router = r
	return env
}

type part struct {
	name        string
	contentType string
	body        string
}

func multipartBody(t *testing.T, fields map[string]string, parts ...part) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+p.name+`"`)
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = io.WriteString(w, p.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	env := setup(t)
	w := env.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSystemStats(t *testing.T) {
	env := setup(t)
	w := env.do(http.MethodGet, "/api/system-stats", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cpu_usage")
}

func TestUploadListDownload(t *testing.T) {
	env := setup(t)

	body, ct := multipartBody(t, nil,
		part{name: "photo.png", contentType: "image/png", body: "not really a png"},
		part{name: "readme.txt", contentType: "application/octet-stream", body: "hello world"},
	)
	w := env.do(http.MethodPost, "/api/files", body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, true, resp["success"])
	files := resp["data"].(map[string]any)["files"].([]any)
	require.Len(t, files, 2)
	sniffed := files[1].(map[string]any)
	assert.Equal(t, "text/plain", sniffed["type"])

	w = env.do(http.MethodGet, "/api/files", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode(t, w)["data"].([]any)
	require.Len(t, listed, 2)

	var id string
	for _, f := range listed {
		m := f.(map[string]any)
		if m["name"] == "readme.txt" {
			id = m["id"].(string)
		}
	}
	require.NotEmpty(t, id)

	w = env.do(http.MethodGet, "/api/files/"+id+"/download", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello world", w.Body.String())
	assert.Equal(t, `attachment; filename=readme.txt`, w.Header().Get("Content-Disposition"))
}

func TestUploadRejections(t *testing.T) {
	env := setup(t)

	body, ct := multipartBody(t, nil)
	w := env.do(http.MethodPost, "/api/files", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No files selected for upload.", decode(t, w)["error"])

	body, ct = multipartBody(t, nil, part{name: "setup.exe", contentType: "application/x-msdownload", body: "MZ"})
	w = env.do(http.MethodPost, "/api/files", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = multipartBody(t, map[string]string{"backend": "ftp"}, part{name: "a.png", contentType: "image/png", body: "x"})
	w = env.do(http.MethodPost, "/api/files", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = multipartBody(t, map[string]string{"temporary": "maybe"}, part{name: "a.png", contentType: "image/png", body: "x"})
	w = env.do(http.MethodPost, "/api/files", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteTemporaryUpload(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	body, ct := multipartBody(t, map[string]string{"temporary": "true"},
		part{name: "draft.pdf", contentType: "application/pdf", body: "%PDF-1.7"})
	w := env.do(http.MethodPost, "/api/files", body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	listed, err := env.catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	stored := listed[0]
	assert.True(t, stored.Temporary)

	w = env.do(http.MethodDelete, "/api/files/"+stored.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, err = env.blobs.Get(ctx, stored.Bucket, stored.StorageKey)
	assert.Error(t, err)
	gone, err := env.catalog.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	deleted, err := env.ledger.CountDeleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	w = env.do(http.MethodDelete, "/api/files/"+stored.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHostedFileDownloadAndDelete(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	f := &models.StoredFile{
		Service:   models.ServiceHostedFile,
		Name:      "movie.mp4",
		MimeType:  "video/mp4",
		URL:       "https://host.example/d/abc",
		HostedID:  "abc",
		AdminCode: "secret",
	}
	require.NoError(t, env.catalog.Add(ctx, f))

	w := env.do(http.MethodGet, "/api/files/"+f.ID+"/download", nil, "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://host.example/d/abc", w.Header().Get("Location"))

	w = env.do(http.MethodDelete, "/api/files/"+f.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"abc"}, env.hosted.deleted)

	bad := &models.StoredFile{Service: models.ServiceHostedFile, Name: "x", HostedID: "def", AdminCode: "wrong"}
	require.NoError(t, env.catalog.Add(ctx, bad))
	w = env.do(http.MethodDelete, "/api/files/"+bad.ID, nil, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	still, err := env.catalog.Get(ctx, bad.ID)
	require.NoError(t, err)
	assert.NotNil(t, still, "catalog entry kept when the backend delete failed")
}

func TestManualCleanup(t *testing.T) {
	env := setup(t)

	env.scheduler.outcome = scheduler.RunOutcome{Report: models.SweepReport{Total: 2, Succeeded: 2}}
	w := env.do(http.MethodPost, "/api/admin/cleanup", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":"Cleanup completed","data":{"total":2,"succeeded":2,"failed":0}}`, w.Body.String())

	env.scheduler.outcome = scheduler.RunOutcome{Skipped: true}
	w = env.do(http.MethodPost, "/api/admin/cleanup", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	env.scheduler.outcome = scheduler.RunOutcome{}
	env.scheduler.err = errors.New("ledger unreadable")
	w = env.do(http.MethodPost, "/api/admin/cleanup", nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestCleanupStats(t *testing.T) {
	env := setup(t)
	_, err := env.ledger.Schedule(context.Background(), "uploads", "1_0.png", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	w := env.do(http.MethodGet, "/api/admin/cleanup/stats", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(3), data["manager"].(map[string]any)["totalRuns"])
	files := data["files"].(map[string]any)
	assert.Equal(t, float64(1), files["expired"])
	assert.Equal(t, float64(1), files["total"])
}

func TestCleanupFiles(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	require.NoError(t, env.blobs.Put(ctx, "uploads", "1_0.txt", strings.NewReader("x"), 1, "text/plain"))

	for _, body := range []string{`{}`, `{"files":"nope"}`, `not json`} {
		w := env.do(http.MethodPost, "/api/admin/cleanup/files", strings.NewReader(body), "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "Files array is required", decode(t, w)["error"], body)
	}

	w := env.do(http.MethodPost, "/api/admin/cleanup/files",
		strings.NewReader(`{"files":[{"service":"dropbox"}]}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/admin/cleanup/files", strings.NewReader(`{"files":[
		{"service":"objectStore","bucket":"uploads","filePath":"1_0.txt","isTemporary":false},
		{"service":"hostedFile","fileId":"abc","adminCode":"wrong"}
	]}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(2), data["total"])
	assert.Equal(t, float64(1), data["objectStore"].(map[string]any)["success"])
	assert.Equal(t, float64(1), data["hostedFile"].(map[string]any)["failed"])
}

func TestPurge(t *testing.T) {
	env := setup(t)

	w := env.do(http.MethodPost, "/api/admin/cleanup/purge?days=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/admin/cleanup/purge?days=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/admin/cleanup/purge", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(30), data["days"])
	assert.Equal(t, float64(0), data["purged"])
}
