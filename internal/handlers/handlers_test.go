package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackboard-protocol/blackboard/internal/api/middleware"
	"github.com/blackboard-protocol/blackboard/internal/bus"
	"github.com/blackboard-protocol/blackboard/internal/models"
	"github.com/blackboard-protocol/blackboard/internal/presence"
	"github.com/blackboard-protocol/blackboard/internal/store"
)

type testServer struct {
	handler  *Handler
	router   *chi.Mux
	registry *presence.Registry
	channels *bus.Bus
	auth     *middleware.AuthMiddleware
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()
	records, err := store.NewVersionedStore(filepath.Join(dir, "records"))
	require.NoError(t, err)

	projects, err := store.NewSQLiteStore(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(projects.Close)

	registry := presence.NewRegistry(zerolog.Nop(), nil)
	channels := bus.New(zerolog.Nop(), dir)
	auth := middleware.NewAuthMiddleware("test-secret")

	h := NewHandler(records, projects, registry, channels, auth)

	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Post("/login", h.Login)
	r.Post("/register", h.Register)
	r.Get("/agents", h.ListAgents)
	r.Get("/channels/{channelID}/history", h.ChannelHistory)
	r.Get("/records/{id}", h.GetRecord)
	r.Put("/records/{id}", h.UpdateRecord)
	r.Post("/projects", h.CreateProject)
	r.Get("/projects", h.ListProjects)
	r.Delete("/projects/{id}", h.DeleteProject)

	return &testServer{handler: h, router: r, registry: registry, channels: channels, auth: auth}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestGetRecordAbsentReadsAsVersionZero(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/records/fresh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var record models.Record
	decode(t, rec, &record)
	assert.Equal(t, "fresh", record.ID)
	assert.Equal(t, int64(0), record.Version)
	assert.JSONEq(t, `{}`, string(record.Data))
}

func TestGetRecordRejectsBadID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/records/.hidden", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateRecordHappyPath(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/records/doc-1", `{"version":0,"data":{"x":1}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var record models.Record
	decode(t, rec, &record)
	assert.Equal(t, int64(1), record.Version)
	assert.JSONEq(t, `{"x":1}`, string(record.Data))

	rec = s.do(t, http.MethodGet, "/records/doc-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &record)
	assert.Equal(t, int64(1), record.Version)
}

func TestUpdateRecordStaleVersionConflicts(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/records/doc-1", `{"version":0,"data":{"x":1}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPut, "/records/doc-1", `{"version":0,"data":{"x":2}}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var conflict ConflictResponse
	decode(t, rec, &conflict)
	assert.Equal(t, "Conflict detected", conflict.Error)
	assert.Equal(t, int64(1), conflict.CurrentVersion)
}

func TestUpdateRecordRequiresVersionAndData(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{
		`{}`,
		`{"data":{"x":1}}`,
		`{"version":0}`,
		`{"version":0,"data":null}`,
		`not json`,
	} {
		rec := s.do(t, http.MethodPut, "/records/doc-1", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
	}
}

func TestLoginDefaultsToAnon(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/login", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LoginResponse
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Token)

	identity, err := s.auth.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "anon", identity.ID)
}

func TestLoginWithUsername(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/login", `{"username":"alice","name":"Alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LoginResponse
	decode(t, rec, &resp)
	identity, err := s.auth.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.ID)
	assert.Equal(t, "Alice", identity.Name)
}

func TestRegisterIssuesToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/register", `{"id":"agent-1","name":"Agent One","metadata":{"role":"worker"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RegisterResponse
	decode(t, rec, &resp)
	assert.Equal(t, "agent-1", resp.Agent.ID)
	assert.Equal(t, "Agent One", resp.Agent.Name)

	identity, err := s.auth.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", identity.ID)
	assert.Equal(t, "worker", identity.Metadata["role"])
}

func TestRegisterRequiresIDAndName(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{
		`{"name":"no id"}`,
		`{"id":"no-name"}`,
		`{"id":"a","name":"   "}`,
	} {
		rec := s.do(t, http.MethodPost, "/register", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
	}
}

func TestListAgents(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var agents []models.Agent
	decode(t, rec, &agents)
	assert.Empty(t, agents)

	s.registry.Register("alice", nil, map[string]any{"name": "Alice"})
	s.registry.Register("bob", nil, nil)
	s.registry.Unregister("bob")

	rec = s.do(t, http.MethodGet, "/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &agents)
	require.Len(t, agents, 2)

	byID := map[string]models.Agent{}
	for _, a := range agents {
		byID[a.ID] = a
	}
	assert.Equal(t, models.StatusOnline, byID["alice"].Status)
	assert.Equal(t, models.StatusOffline, byID["bob"].Status)
}

func TestChannelHistory(t *testing.T) {
	s := newTestServer(t)

	msg := s.channels.Publish("c1", "alice", json.RawMessage(`"hello"`))
	require.Eventually(t, func() bool {
		history, err := s.channels.History("c1", 0)
		return err == nil && len(history) == 1
	}, 2*time.Second, 5*time.Millisecond)

	rec := s.do(t, http.MethodGet, "/channels/c1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var messages []models.ChannelMessage
	decode(t, rec, &messages)
	require.Len(t, messages, 1)
	assert.Equal(t, msg.ID, messages[0].ID)
	assert.Equal(t, "alice", messages[0].SenderID)
}

func TestChannelHistoryCapsLimit(t *testing.T) {
	s := newTestServer(t)

	// Invalid and oversized limits fall back to sane values rather than erroring
	rec := s.do(t, http.MethodGet, "/channels/c1/history?limit=99999", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/channels/c1/history?limit=bogus", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateProjectInitializesRecord(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/projects", `{"projectName":"apollo"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CreateProjectResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.ProjectID)
	assert.NotEmpty(t, resp.ChannelID)
	assert.True(t, strings.HasPrefix(resp.ChannelEndpoint, "ws://"))
	assert.True(t, strings.HasSuffix(resp.ChannelEndpoint, "/ws"))

	// Creation seeds the project's blackboard record at version 1
	recGet := s.do(t, http.MethodGet, "/records/"+resp.ProjectID, "")
	require.Equal(t, http.StatusOK, recGet.Code)
	var record models.Record
	decode(t, recGet, &record)
	assert.Equal(t, int64(1), record.Version)

	var data map[string]any
	require.NoError(t, json.Unmarshal(record.Data, &data))
	assert.Equal(t, true, data["initialized"])
	assert.Equal(t, "apollo", data["projectName"])
	assert.Equal(t, resp.ChannelID, data["channelId"])
}

func TestCreateProjectDuplicateName(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/projects", `{"projectName":"apollo"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/projects", `{"projectName":"apollo"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateProjectValidation(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{
		`{}`,
		`{"projectName":"   "}`,
		`{"projectName":"` + strings.Repeat("x", 101) + `"}`,
	} {
		rec := s.do(t, http.MethodPost, "/projects", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
	}
}

func TestListAndDeleteProjects(t *testing.T) {
	s := newTestServer(t)

	created := s.do(t, http.MethodPost, "/projects", `{"projectName":"apollo"}`)
	require.Equal(t, http.StatusOK, created.Code)
	var resp CreateProjectResponse
	decode(t, created, &resp)

	rec := s.do(t, http.MethodGet, "/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var projects []models.Project
	decode(t, rec, &projects)
	require.Len(t, projects, 1)
	assert.Equal(t, "apollo", projects[0].Name)

	rec = s.do(t, http.MethodDelete, "/projects/"+resp.ProjectID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/projects/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/projects/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthHealthy(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	decode(t, rec, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "pass", resp.Checks["projects"].Status)
}
