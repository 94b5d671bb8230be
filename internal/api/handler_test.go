package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tabletalk/tabletalk/internal/auth"
	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/conversation"
	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/engine"
	"github.com/tabletalk/tabletalk/internal/ingest"
	"github.com/tabletalk/tabletalk/internal/sqlexec"
)

type fakeChat struct {
	lastRequest engine.Request
	response    engine.Response
	err         error
}

func (f *fakeChat) SendMessage(_ context.Context, req engine.Request) (engine.Response, error) {
	f.lastRequest = req
	if f.err != nil {
		return engine.Response{}, f.err
	}
	return f.response, nil
}

type fakeDatasets struct {
	lastUpload ingest.UploadInput
	entry      catalog.Entry
	uploadErr  error
	deleteErr  error
	deleted    []string
}

func (f *fakeDatasets) Upload(_ context.Context, in ingest.UploadInput) (catalog.Entry, error) {
	f.lastUpload = in
	if f.uploadErr != nil {
		return catalog.Entry{}, f.uploadErr
	}
	return f.entry, nil
}

func (f *fakeDatasets) Delete(_ context.Context, userID, datasetID string) error {
	f.deleted = append(f.deleted, userID+"/"+datasetID)
	return f.deleteErr
}

type fakeCatalogReader struct {
	entries  map[string]catalog.Entry
	sessions map[string]conversation.Session
	turns    map[string][]conversation.Turn
}

func newFakeCatalogReader() *fakeCatalogReader {
	return &fakeCatalogReader{
		entries:  map[string]catalog.Entry{},
		sessions: map[string]conversation.Session{},
		turns:    map[string][]conversation.Turn{},
	}
}

func (f *fakeCatalogReader) GetEntry(_ context.Context, datasetID string) (catalog.Entry, error) {
	entry, ok := f.entries[datasetID]
	if !ok {
		return catalog.Entry{}, catalog.ErrNotFound
	}
	return entry, nil
}

func (f *fakeCatalogReader) ListEntries(_ context.Context, userID string) ([]catalog.Entry, error) {
	entries := make([]catalog.Entry, 0)
	for _, entry := range f.entries {
		if entry.UserID == userID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (f *fakeCatalogReader) GetSession(_ context.Context, sessionID string) (conversation.Session, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return conversation.Session{}, catalog.ErrNotFound
	}
	return session, nil
}

func (f *fakeCatalogReader) ListSessions(_ context.Context, userID string) ([]conversation.Session, error) {
	sessions := make([]conversation.Session, 0)
	for _, session := range f.sessions {
		if session.UserID == userID {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func (f *fakeCatalogReader) SessionTurns(_ context.Context, sessionID string) ([]conversation.Turn, error) {
	return f.turns[sessionID], nil
}

type fakeSQLRunner struct {
	lastTable string
	lastSQL   string
	result    dataset.Result
	err       error
}

func (f *fakeSQLRunner) Query(_ context.Context, table, sqlText string) (dataset.Result, error) {
	f.lastTable = table
	f.lastSQL = sqlText
	if f.err != nil {
		return dataset.Result{}, f.err
	}
	return f.result, nil
}

func testConfig(t *testing.T, extra map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("tabletalk-api", mapLookup(extra))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{
		Readiness: func(_ context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := testConfig(t, map[string]string{"TABLETALK_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:alice:chat_user")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		CatalogRepo:    newFakeCatalogReader(),
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodGet, "/v1/datasets", nil))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodGet, "/v1/datasets", nil)
	authReq.Header.Set("X-API-Key", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d, body=%s", authResp.Code, authResp.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(authResp.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["user_id"] != "alice" {
		t.Fatalf("user_id = %v", body["user_id"])
	}
}

func TestChatMessageEndpoint(t *testing.T) {
	chat := &fakeChat{response: engine.Response{
		SessionID: "s-1",
		Message:   "I found 2 result(s) for your query.",
	}}
	h := NewHandler(testConfig(t, nil), Dependencies{Chat: chat})

	payload := `{"session_id":"s-1","message":"show me all deals"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/message", strings.NewReader(payload))
	req.Header.Set("X-User-ID", "alice")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if chat.lastRequest.UserID != "alice" {
		t.Fatalf("UserID = %q", chat.lastRequest.UserID)
	}
	if chat.lastRequest.SessionID != "s-1" {
		t.Fatalf("SessionID = %q", chat.lastRequest.SessionID)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["session_id"] != "s-1" {
		t.Fatalf("session_id = %v", body["session_id"])
	}
}

func TestChatMessageRequiresMessage(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Chat: &fakeChat{}})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/message", strings.NewReader(`{"message":"  "}`))
	req.Header.Set("X-User-ID", "alice")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestChatMessageUnknownSessionReturns404(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Chat: &fakeChat{err: catalog.ErrNotFound}})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/message", strings.NewReader(`{"session_id":"missing","message":"hello"}`))
	req.Header.Set("X-User-ID", "alice")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSessionTurnsHiddenFromOtherUsers(t *testing.T) {
	repo := newFakeCatalogReader()
	repo.sessions["s-1"] = conversation.Session{ID: "s-1", UserID: "bob"}
	repo.turns["s-1"] = []conversation.Turn{{SessionID: "s-1", Role: conversation.RoleUser, Content: "hi"}}

	h := NewHandler(testConfig(t, nil), Dependencies{CatalogRepo: repo})

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/sessions/s-1", nil)
	req.Header.Set("X-User-ID", "alice")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("foreign session status = %d", rr.Code)
	}

	ownerReq := httptest.NewRequest(http.MethodGet, "/v1/chat/sessions/s-1", nil)
	ownerReq.Header.Set("X-User-ID", "bob")
	ownerResp := httptest.NewRecorder()
	h.ServeHTTP(ownerResp, ownerReq)
	if ownerResp.Code != http.StatusOK {
		t.Fatalf("owner status = %d, body=%s", ownerResp.Code, ownerResp.Body.String())
	}

	var body struct {
		Turns []conversation.Turn `json:"turns"`
	}
	if err := json.Unmarshal(ownerResp.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(body.Turns) != 1 || body.Turns[0].Content != "hi" {
		t.Fatalf("turns = %#v", body.Turns)
	}
}

func TestUploadDataset(t *testing.T) {
	datasets := &fakeDatasets{entry: catalog.Entry{
		DatasetID:   "alice_a1b2c3d4_deals_csv",
		UserID:      "alice",
		DisplayName: "deals.csv",
		RowCount:    2,
	}}
	h := NewHandler(testConfig(t, nil), Dependencies{Datasets: datasets})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "deals.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("Deal Stage,Amount\nClosed Won,1200\nOn Hold,800\n")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/datasets", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("X-User-ID", "alice")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if datasets.lastUpload.UserID != "alice" {
		t.Fatalf("upload UserID = %q", datasets.lastUpload.UserID)
	}
	if datasets.lastUpload.Filename != "deals.csv" {
		t.Fatalf("upload Filename = %q", datasets.lastUpload.Filename)
	}
	if !bytes.Contains(datasets.lastUpload.Content, []byte("Closed Won")) {
		t.Fatal("upload content was not forwarded")
	}

	var entry catalog.Entry
	if err := json.Unmarshal(rr.Body.Bytes(), &entry); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if entry.DatasetID != "alice_a1b2c3d4_deals_csv" {
		t.Fatalf("DatasetID = %q", entry.DatasetID)
	}
}

func TestUploadDatasetRequiresFileField(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Datasets: &fakeDatasets{}})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("note", "no file here"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/datasets", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("X-User-ID", "alice")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestDeleteDatasetNotFound(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Datasets: &fakeDatasets{deleteErr: catalog.ErrNotFound}})

	req := httptest.NewRequest(http.MethodDelete, "/v1/datasets/missing", nil)
	req.Header.Set("X-User-ID", "alice")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestExecuteSQLEndpoint(t *testing.T) {
	repo := newFakeCatalogReader()
	repo.entries["alice_a1b2c3d4_deals_csv"] = catalog.Entry{
		DatasetID: "alice_a1b2c3d4_deals_csv",
		UserID:    "alice",
	}
	runner := &fakeSQLRunner{result: dataset.Result{
		Columns: []string{"total"},
		Rows:    []map[string]any{{"total": int64(2400)}},
	}}
	h := NewHandler(testConfig(t, nil), Dependencies{CatalogRepo: repo, SQLRunner: runner})

	payload := `{"dataset_id":"alice_a1b2c3d4_deals_csv","sql":"SELECT SUM(\"Amount\") AS total FROM alice_a1b2c3d4_deals_csv"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/sql/execute", strings.NewReader(payload))
	req.Header.Set("X-User-ID", "alice")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if runner.lastTable != "alice_a1b2c3d4_deals_csv" {
		t.Fatalf("table = %q", runner.lastTable)
	}

	var body executeSQLResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body.RowCount != 1 {
		t.Fatalf("RowCount = %d", body.RowCount)
	}
}

func TestExecuteSQLRejectsUnsafeStatement(t *testing.T) {
	repo := newFakeCatalogReader()
	repo.entries["ds-1"] = catalog.Entry{DatasetID: "ds-1", UserID: "alice"}
	runner := &fakeSQLRunner{err: sqlexec.ErrUnsafeQuery}
	h := NewHandler(testConfig(t, nil), Dependencies{CatalogRepo: repo, SQLRunner: runner})

	payload := `{"dataset_id":"ds-1","sql":"DROP TABLE ds_1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/sql/execute", strings.NewReader(payload))
	req.Header.Set("X-User-ID", "alice")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["error_code"] != "SQL_NOT_ALLOWED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestExecuteSQLHidesForeignDataset(t *testing.T) {
	repo := newFakeCatalogReader()
	repo.entries["ds-1"] = catalog.Entry{DatasetID: "ds-1", UserID: "bob"}
	h := NewHandler(testConfig(t, nil), Dependencies{CatalogRepo: repo, SQLRunner: &fakeSQLRunner{}})

	payload := `{"dataset_id":"ds-1","sql":"SELECT * FROM ds_1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/sql/execute", strings.NewReader(payload))
	req.Header.Set("X-User-ID", "alice")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestExecuteSQLRequiresRoleWhenAuthenticated(t *testing.T) {
	cfg := testConfig(t, map[string]string{"TABLETALK_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:alice:chat_user")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	repo := newFakeCatalogReader()
	repo.entries["ds-1"] = catalog.Entry{DatasetID: "ds-1", UserID: "alice"}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		CatalogRepo:    repo,
		SQLRunner:      &fakeSQLRunner{},
	})

	payload := `{"dataset_id":"ds-1","sql":"SELECT * FROM ds_1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/sql/execute", strings.NewReader(payload))
	req.Header.Set("X-API-Key", "k1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}
