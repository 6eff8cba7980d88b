package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kanolab/fawnbot/internal/models"
	"github.com/kanolab/fawnbot/internal/session"
	"github.com/kanolab/fawnbot/internal/store"
)

func newTestServer(t *testing.T) (*Server, *session.Store, *store.InMemoryStore) {
	t.Helper()
	sessions := session.NewStore()
	archive := store.NewInMemoryStore()
	return NewServer("127.0.0.1:0", sessions, archive), sessions, archive
}

func doGet(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
	}
	return rec, resp
}

func TestHealthReportsSessionCount(t *testing.T) {
	s, sessions, _ := newTestServer(t)
	if _, err := sessions.TryCreate("quiz:group:1", "quiz", 100, models.GroupDestination(1), "awaiting_answer"); err != nil {
		t.Fatal(err)
	}

	rec, resp := doGet(t, s, "/health")
	if rec.Code != http.StatusOK || resp.Status != models.APIStatusOK {
		t.Fatalf("health = %d %+v", rec.Code, resp)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok || result["live_sessions"] != float64(1) {
		t.Errorf("result = %+v", resp.Result)
	}
}

func TestSessionsListsLiveSessions(t *testing.T) {
	s, sessions, _ := newTestServer(t)
	if _, err := sessions.TryCreate("submission:100", "submission", 100, models.GroupDestination(10), "awaiting_image"); err != nil {
		t.Fatal(err)
	}

	rec, resp := doGet(t, s, "/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list, ok := resp.Result.([]interface{})
	if !ok || len(list) != 1 {
		t.Fatalf("result = %+v", resp.Result)
	}
	first := list[0].(map[string]interface{})
	if first["key"] != "submission:100" || first["state"] != "awaiting_image" {
		t.Errorf("session = %+v", first)
	}
}

func TestQuizResultsGroupFilter(t *testing.T) {
	s, _, archive := newTestServer(t)
	archive.AddQuizResult(store.QuizResult{GroupID: 1, Song: "Stella", StarterID: 9})
	archive.AddQuizResult(store.QuizResult{GroupID: 2, Song: "Stella", StarterID: 9})

	_, resp := doGet(t, s, "/quiz/results?group_id=2")
	list, ok := resp.Result.([]interface{})
	if !ok || len(list) != 1 {
		t.Fatalf("result = %+v", resp.Result)
	}

	rec, _ := doGet(t, s, "/quiz/results?group_id=notanumber")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad group_id status = %d", rec.Code)
	}
}

func TestJobLookup(t *testing.T) {
	s, _, archive := newTestServer(t)
	archive.AddMediaJob(store.MediaJob{ID: "j1", URL: "u", Kind: "audio", RequestedBy: 1, Status: store.JobStatusRunning})

	rec, resp := doGet(t, s, "/jobs/j1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	job := resp.Result.(map[string]interface{})
	if job["status"] != string(store.JobStatusRunning) {
		t.Errorf("job = %+v", job)
	}

	rec, resp = doGet(t, s, "/jobs/missing")
	if rec.Code != http.StatusNotFound || resp.Status != models.APIStatusError {
		t.Errorf("missing job = %d %+v", rec.Code, resp)
	}
}
