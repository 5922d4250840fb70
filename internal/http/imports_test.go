package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwhitley/stacks/internal/entities"
	"github.com/jwhitley/stacks/internal/jobstore"
	"github.com/jwhitley/stacks/internal/tasks"
)

func newTestRouter(t *testing.T, store jobstore.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := tasks.DefaultConfig()
	cfg.Workers = 1
	taskClient, err := tasks.NewClient(filepath.Join(t.TempDir(), "stacks.db"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { taskClient.Close() })

	return NewRouter(RouterConfig{
		JobStore:   store,
		TaskClient: taskClient,
		UploadsDir: t.TempDir(),
		Version:    "test",
	})
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

const goodreadsExport = `Title,Author,ISBN13,My Rating,Bookshelves,Exclusive Shelf
Dune,Frank Herbert,"=""9780306406157""",5,"sci-fi, classics",read
`

func TestCreateImport_GoodreadsUpload(t *testing.T) {
	store := jobstore.NewMemoryStore()
	router := newTestRouter(t, store)

	body, contentType := multipartUpload(t, "goodreads_library_export.csv", goodreadsExport)
	req := httptest.NewRequest(http.MethodPost, "/api/imports", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var job entities.ImportJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, entities.ImportKindBooks, job.Kind)
	assert.Equal(t, entities.JobStatusPending, job.Status)
	assert.Equal(t, "goodreads", job.Format)
	assert.NotEmpty(t, job.Mapping)

	stored, err := store.Get(1, job.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasHeader)
	assert.Equal(t, ",", stored.Delimiter)
}

func TestCreateImport_ReadingHistoryUpload(t *testing.T) {
	store := jobstore.NewMemoryStore()
	router := newTestRouter(t, store)

	content := "Date,Book,Pages Read,Minutes Read\n2024-01-01,Dune,50,\n"
	body, contentType := multipartUpload(t, "history.csv", content)
	req := httptest.NewRequest(http.MethodPost, "/api/imports", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var job entities.ImportJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, entities.ImportKindReadingHistory, job.Kind)
}

const unknownExport = `Book Title,Writer,Identifier,Stars
Dune,Frank Herbert,9780441013593,5
Hyperion,Dan Simmons,9780553283686,4
`

func TestCreateImport_UnknownWithHeaderHeldForMapping(t *testing.T) {
	store := jobstore.NewMemoryStore()
	router := newTestRouter(t, store)

	body, contentType := multipartUpload(t, "shelf.csv", unknownExport)
	req := httptest.NewRequest(http.MethodPost, "/api/imports", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var job entities.ImportJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, entities.JobStatusNeedsMapping, job.Status)
	assert.Equal(t, "unknown", job.Format)

	fields := map[string]entities.CanonicalField{}
	for _, a := range job.Mapping {
		fields[a.Column] = a.Field
	}
	assert.Equal(t, entities.FieldTitle, fields["Book Title"], "keyword heuristic must propose a mapping")

	stored, err := store.Get(1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusNeedsMapping, stored.Status)
}

func TestUpdateMappingAndStart(t *testing.T) {
	store := jobstore.NewMemoryStore()
	router := newTestRouter(t, store)

	body, contentType := multipartUpload(t, "shelf.csv", unknownExport)
	req := httptest.NewRequest(http.MethodPost, "/api/imports", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var job entities.ImportJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))

	override := MappingRequest{Mapping: []entities.FieldAssignment{
		{Column: "Book Title", Field: entities.FieldTitle},
		{Column: "Writer", Field: entities.FieldAuthor},
		{Column: "Identifier", Field: entities.FieldISBN},
		{Column: "Stars", Field: entities.FieldRating},
	}}
	payload, err := json.Marshal(override)
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodPut, "/api/imports/"+job.ID+"/mapping", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := store.Get(1, job.ID)
	require.NoError(t, err)
	require.Len(t, stored.Mapping, 4)
	assert.Equal(t, entities.FieldAuthor, stored.Mapping[1].Field)

	req = httptest.NewRequest(http.MethodPost, "/api/imports/"+job.ID+"/start", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	stored, err = store.Get(1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusPending, stored.Status)

	// A started job no longer accepts overrides
	req = httptest.NewRequest(http.MethodPut, "/api/imports/"+job.ID+"/mapping", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateMapping_RejectsUnknownField(t *testing.T) {
	store := jobstore.NewMemoryStore()
	router := newTestRouter(t, store)

	job := &entities.ImportJob{ID: "job-map", Kind: entities.ImportKindBooks, Status: entities.JobStatusNeedsMapping}
	require.NoError(t, store.Create(1, job))

	payload := `{"mapping":[{"column":"Book Title","field":"nonsense"}]}`
	req := httptest.NewRequest(http.MethodPut, "/api/imports/job-map/mapping", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	stored, err := store.Get(1, "job-map")
	require.NoError(t, err)
	assert.Empty(t, stored.Mapping, "a rejected override must not change the mapping")
}

func TestCreateImport_UnknownFormatRejected(t *testing.T) {
	store := jobstore.NewMemoryStore()
	router := newTestRouter(t, store)

	body, contentType := multipartUpload(t, "notes.csv", "alpha,beta,gamma\n1,2,3\n")
	req := httptest.NewRequest(http.MethodPost, "/api/imports", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	jobs, err := store.ListForOwner(1)
	require.NoError(t, err)
	assert.Empty(t, jobs, "no job should be created for an unclassifiable file")
}

func TestCreateImport_NoFile(t *testing.T) {
	router := newTestRouter(t, jobstore.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(""))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetImport_OwnerIsolation(t *testing.T) {
	store := jobstore.NewMemoryStore()
	router := newTestRouter(t, store)

	job := &entities.ImportJob{ID: "job-1", Kind: entities.ImportKindBooks, Status: entities.JobStatusRunning}
	require.NoError(t, store.Create(2, job))

	// Default owner is 1, owner 2's job must be invisible
	req := httptest.NewRequest(http.MethodGet, "/api/imports/job-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/imports/job-1", nil)
	req.Header.Set("X-Owner-ID", "2")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCancelImport(t *testing.T) {
	store := jobstore.NewMemoryStore()
	router := newTestRouter(t, store)

	running := &entities.ImportJob{ID: "job-run", Kind: entities.ImportKindBooks, Status: entities.JobStatusRunning}
	require.NoError(t, store.Create(1, running))

	req := httptest.NewRequest(http.MethodPost, "/api/imports/job-run/cancel", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)

	stored, err := store.Get(1, "job-run")
	require.NoError(t, err)
	assert.True(t, stored.CancelRequested)

	done := &entities.ImportJob{ID: "job-done", Kind: entities.ImportKindBooks, Status: entities.JobStatusCompleted}
	require.NoError(t, store.Create(1, done))

	req = httptest.NewRequest(http.MethodPost, "/api/imports/job-done/cancel", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	// A job held for mapping review has no worker to observe the flag and
	// cancels immediately
	held := &entities.ImportJob{ID: "job-held", Kind: entities.ImportKindBooks, Status: entities.JobStatusNeedsMapping}
	require.NoError(t, store.Create(1, held))

	req = httptest.NewRequest(http.MethodPost, "/api/imports/job-held/cancel", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)

	stored, err = store.Get(1, "job-held")
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusCancelled, stored.Status)
	require.NotNil(t, stored.CompletedAt)
}

func TestImportErrorReport(t *testing.T) {
	store := jobstore.NewMemoryStore()
	router := newTestRouter(t, store)

	job := &entities.ImportJob{
		ID:         "job-err",
		Kind:       entities.ImportKindBooks,
		Status:     entities.JobStatusCompletedWithErrors,
		SourceName: "export.csv",
		Errors: []entities.ImportError{
			{Row: 2, Type: entities.ErrorTypeLookup, Message: "no metadata found", ISBN: "9780140328721"},
		},
	}
	require.NoError(t, store.Create(1, job))

	req := httptest.NewRequest(http.MethodGet, "/api/imports/job-err/errors.csv", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "row,type,message")
	assert.Contains(t, lines[1], "lookup_failed")
	assert.Contains(t, lines[1], "9780140328721")
}

func TestListImports(t *testing.T) {
	store := jobstore.NewMemoryStore()
	router := newTestRouter(t, store)

	require.NoError(t, store.Create(1, &entities.ImportJob{ID: "a", Status: entities.JobStatusCompleted}))
	require.NoError(t, store.Create(1, &entities.ImportJob{ID: "b", Status: entities.JobStatusRunning}))
	require.NoError(t, store.Create(2, &entities.ImportJob{ID: "c", Status: entities.JobStatusRunning}))

	req := httptest.NewRequest(http.MethodGet, "/api/imports", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}
