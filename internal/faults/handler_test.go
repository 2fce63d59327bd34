package faults

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bissquit/fieldservice-sla/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router chi.Router
	repo   *memoryRepository
	clock  *testClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc, repo, clock := newTestService(t, at(5, 9, 0))
	r := chi.NewRouter()
	NewHandler(svc).RegisterRoutes(r)
	return &testServer{router: r, repo: repo, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", body)
	return d
}

func (s *testServer) createFault(t *testing.T, body string) string {
	t.Helper()
	rec, resp := s.do(t, http.MethodPost, "/faults", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id, ok := data(t, resp)["id"].(string)
	require.True(t, ok)
	return id
}

func TestHandler_CreateFault(t *testing.T) {
	t.Run("created with deadlines", func(t *testing.T) {
		s := newTestServer(t)

		rec, resp := s.do(t, http.MethodPost, "/faults",
			`{"reference":"FLT-100","severity":"major","raised_at":"2026-01-05 09:00"}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		d := data(t, resp)
		assert.Equal(t, "FLT-100", d["reference"])
		assert.Equal(t, "open", d["status"])
		deadlines, ok := d["deadlines"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "2026-01-05T09:30:00+02:00", deadlines["respond_deadline"])
		assert.Equal(t, "2026-01-05T13:00:00+02:00", deadlines["onsite_deadline"])
		assert.Equal(t, "2026-01-05T17:00:00+02:00", deadlines["temp_restore_deadline"])
	})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown severity", `{"severity":"urgent"}`, http.StatusBadRequest},
		{"missing severity", `{"reference":"x"}`, http.StatusBadRequest},
		{"malformed json", `{"severity":`, http.StatusBadRequest},
		{"unknown field", `{"severity":"minor","priority":1}`, http.StatusBadRequest},
		{"bad raise time", `{"severity":"minor","raised_at":"yesterday"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec, _ := s.do(t, http.MethodPost, "/faults", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_GetFault(t *testing.T) {
	s := newTestServer(t)
	id := s.createFault(t, `{"severity":"critical"}`)

	rec, resp := s.do(t, http.MethodGet, "/faults/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, data(t, resp)["id"])

	rec, _ = s.do(t, http.MethodGet, "/faults/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/faults/7c9e6679-7425-40de-944b-e07fc1f90ae7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ListActiveFaults(t *testing.T) {
	s := newTestServer(t)
	s.createFault(t, `{"severity":"critical"}`)
	resolved := s.createFault(t, `{"severity":"minor"}`)

	rec, _ := s.do(t, http.MethodPost, "/faults/"+resolved+"/resolve", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, resp := s.do(t, http.MethodGet, "/faults", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list, ok := resp["data"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)
}

func TestHandler_RecordMilestone(t *testing.T) {
	s := newTestServer(t)
	id := s.createFault(t, `{"severity":"major"}`)
	s.clock.now = at(5, 9, 20)

	t.Run("empty body records now", func(t *testing.T) {
		rec, resp := s.do(t, http.MethodPost, "/faults/"+id+"/milestones/respond", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		d := data(t, resp)
		assert.Equal(t, "2026-01-05T09:20:00+02:00", d["responded_at"])
		assert.Equal(t, "in_progress", d["status"])
	})

	t.Run("explicit time", func(t *testing.T) {
		rec, resp := s.do(t, http.MethodPost, "/faults/"+id+"/milestones/onsite", `{"at":"2026-01-05T10:15:00+02:00"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "2026-01-05T10:15:00+02:00", data(t, resp)["arrived_onsite_at"])
	})

	t.Run("different time conflicts", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodPost, "/faults/"+id+"/milestones/onsite", `{"at":"2026-01-05 11:00"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("before raise", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodPost, "/faults/"+id+"/milestones/temp_restore", `{"at":"2026-01-05 08:00"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown milestone", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodPost, "/faults/"+id+"/milestones/closed", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("resolved fault", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodPost, "/faults/"+id+"/resolve", "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec, _ = s.do(t, http.MethodPost, "/faults/"+id+"/milestones/temp_restore", "")
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec, _ = s.do(t, http.MethodPost, "/faults/"+id+"/resolve", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHandler_SLAStatusAndPenalty(t *testing.T) {
	s := newTestServer(t)
	id := s.createFault(t, `{"severity":"critical"}`)
	s.clock.now = at(5, 15, 30)

	rec, resp := s.do(t, http.MethodGet, "/faults/"+id+"/sla-status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, resp)
	assert.Equal(t, string(domain.OverallBreached), d["overall"])
	onsite, ok := d["onsite"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "breached", onsite["status"])

	rec, resp = s.do(t, http.MethodGet, "/faults/"+id+"/penalty", "")
	require.Equal(t, http.StatusOK, rec.Code)
	// On-site is 4.5h late at 10%; temp restore 2.5h late costs nothing.
	assert.InDelta(t, 10.0, data(t, resp)["total_penalty_pct"], 0.001)
}

func TestHandler_Updates(t *testing.T) {
	s := newTestServer(t)
	id := s.createFault(t, `{"severity":"critical"}`)
	s.clock.now = at(5, 10, 30)

	rec, resp := s.do(t, http.MethodPost, "/faults/"+id+"/updates",
		`{"update_type":"phone_call","message":"engineer en route","sent_by":"noc"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, data(t, resp)["is_overdue"])

	rec, _ = s.do(t, http.MethodPost, "/faults/"+id+"/updates", `{"update_type":"sms","message":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = s.do(t, http.MethodGet, "/faults/"+id+"/updates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list, ok := resp["data"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	rec, resp = s.do(t, http.MethodGet, "/faults/"+id+"/updates/due-status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, resp)
	assert.Equal(t, false, d["is_overdue"])
	assert.Equal(t, "2026-01-05T11:30:00+02:00", d["next_due_at"])

	rec, _ = s.do(t, http.MethodGet, "/faults/7c9e6679-7425-40de-944b-e07fc1f90ae7/updates", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_PenaltySummary(t *testing.T) {
	s := newTestServer(t)
	s.createFault(t, `{"severity":"major","raised_at":"2026-01-05 09:00"}`)
	s.clock.now = at(6, 9, 0)

	rec, resp := s.do(t, http.MethodGet, "/penalty-summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, resp)
	assert.Equal(t, "2026-01-01T00:00:00+02:00", d["quarter_start"])
	assert.Equal(t, "2026-04-01T00:00:00+02:00", d["quarter_end"])
	assert.Len(t, d["incidents"], 1)

	rec, resp = s.do(t, http.MethodGet, "/penalty-summary?at=2025-11-01", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, data(t, resp)["incidents"])

	rec, _ = s.do(t, http.MethodGet, "/penalty-summary?at=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_CheckSLA(t *testing.T) {
	s := newTestServer(t)
	s.createFault(t, `{"severity":"critical"}`)
	s.clock.now = at(5, 10, 40)

	rec, resp := s.do(t, http.MethodPost, "/sla/check", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, resp)
	assert.InDelta(t, 1, d["active_faults"], 0)

	breaches, ok := d["breaches"].([]any)
	require.True(t, ok)
	require.Len(t, breaches, 1)
	breach, ok := breaches[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sla_breach", breach["event_type"])
	assert.Equal(t, "respond", breach["milestone"])
	assert.Equal(t, "1h 39m", breach["time_overdue"])

	warnings, ok := d["warnings"].([]any)
	require.True(t, ok)
	require.Len(t, warnings, 1)
}
