package crm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dealership_portal/internal/crm/transport"
	"dealership_portal/internal/pipeline/domain"
	"dealership_portal/platform/apperr"
	"dealership_portal/platform/logger"
)

type testConfig struct {
	baseURL string
	token   string
}

func (c testConfig) GetCRMBaseURL() string            { return c.baseURL }
func (c testConfig) GetCRMAPIToken() string           { return c.token }
func (c testConfig) GetCRMTimeout() time.Duration     { return 2 * time.Second }
func (c testConfig) GetCRMRequestsPerSecond() float64 { return 0 }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(testConfig{baseURL: srv.URL + "/", token: "tok"}, logger.Discard())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	if _, err := New(testConfig{baseURL: "not a url"}, logger.Discard()); err == nil {
		t.Fatalf("expected error for invalid base url")
	}
}

func TestListLeadsSendsQueryAndMapsLeads(t *testing.T) {
	inactive := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/leads" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		q := r.URL.Query()
		want := map[string]string{
			"page": "2", "page_size": "20", "search": "golf", "stage_id": "new",
			"pool": "mine", "fresh_only": "true", "is_active": "false", "stage": "converted",
		}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("expected %s=%q, got %q", k, v, q.Get(k))
			}
		}
		if q.Has("source") {
			t.Errorf("expected empty source omitted")
		}
		writeJSON(w, http.StatusOK, transport.LeadPage{
			Items: []transport.Lead{{
				ID: "l-1", StageID: "new", FirstName: "Ada", LastName: "Byron",
				Email: " ada@example.com ", Phone: "650-253-0000", VehicleInterest: "Golf GTI", IsActive: true,
			}},
			Page: 2, Pages: 3, Total: 45,
		})
	})

	page, err := c.ListLeads(context.Background(), domain.ListLeadsQuery{
		Page: 2, PageSize: 20, Search: "golf", StageID: "new", Pool: "mine",
		FreshOnly: true, IsActive: &inactive, Stage: "converted",
	})
	if err != nil {
		t.Fatalf("list leads: %v", err)
	}
	if !page.HasMore() || page.Total != 45 || len(page.Items) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	l := page.Items[0]
	if l.Name != "Ada Byron" || l.Email != "ada@example.com" || l.Vehicle != "Golf GTI" {
		t.Fatalf("unexpected lead mapping: %+v", l)
	}
	if l.Phone != "+16502530000" {
		t.Fatalf("expected E.164 phone, got %q", l.Phone)
	}
}

func TestListStagesSortsByPosition(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, transport.StageList{Stages: []transport.Stage{
			{ID: "won", Name: "won", Position: 3},
			{ID: "new", Name: "new", DisplayName: "New", Position: 1},
			{ID: "contacted", Name: "contacted", Position: 2},
		}})
	})

	stages, err := c.ListStages(context.Background())
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	if len(stages) != 3 || stages[0].ID != "new" || stages[1].ID != "contacted" || stages[2].ID != "won" {
		t.Fatalf("unexpected order: %+v", stages)
	}
	if stages[0].Label() != "New" || stages[2].Label() != "won" {
		t.Fatalf("unexpected labels: %q %q", stages[0].Label(), stages[2].Label())
	}
}

func TestUpdateLeadStageCommitted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/leads/l-1/stage" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		var body transport.UpdateStageRequest
		if err := json.Unmarshal(raw, &body); err != nil || body.StageID != "won" || !body.Override {
			t.Errorf("unexpected body %s", raw)
		}
		writeJSON(w, http.StatusOK, transport.Lead{ID: "l-1", StageID: "won", FirstName: "Ada"})
	})

	res, err := c.UpdateLeadStage(context.Background(), domain.StageTransition{LeadID: "l-1", TargetStageID: "won", Override: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	committed, ok := res.(domain.Committed)
	if !ok || committed.Lead.StageID != "won" {
		t.Fatalf("expected committed lead in won, got %#v", res)
	}
}

func TestUpdateLeadStageSkateWarning(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, transport.SkateWarning{
			SkateWarning: true, LeadName: "Ada Byron", AssignedToID: "u-2",
			AssignedToName: "Sam", Action: "move", Message: "Sam is working this lead",
		})
	})

	res, err := c.UpdateLeadStage(context.Background(), domain.StageTransition{LeadID: "l-1", TargetStageID: "won"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	conflict, ok := res.(domain.Conflict)
	if !ok {
		t.Fatalf("expected conflict, got %#v", res)
	}
	if conflict.Warning.AssignedToName != "Sam" || conflict.Warning.Message != "Sam is working this lead" {
		t.Fatalf("unexpected warning: %+v", conflict.Warning)
	}
}

func TestUpdateLeadStageBlocked(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, transport.ErrorResponse{Code: transport.CodeSkateBlocked, Message: "Deal is in finance"})
	})

	res, err := c.UpdateLeadStage(context.Background(), domain.StageTransition{LeadID: "l-1", TargetStageID: "won"})
	if err != nil {
		t.Fatalf("expected blocked result, not error: %v", err)
	}
	blocked, ok := res.(domain.Blocked)
	if !ok || blocked.Reason != "Deal is in finance" {
		t.Fatalf("expected blocked with reason, got %#v", res)
	}
}

func TestUpdateLeadStageErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		kind   apperr.Kind
	}{
		{"plain conflict", http.StatusConflict, transport.ErrorResponse{Error: "version mismatch"}, apperr.KindConflict},
		{"not found", http.StatusNotFound, transport.ErrorResponse{Error: "lead not found"}, apperr.KindNotFound},
		{"unauthorized", http.StatusUnauthorized, nil, apperr.KindUnauthorized},
		{"server error", http.StatusBadGateway, nil, apperr.KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			_, err := c.UpdateLeadStage(context.Background(), domain.StageTransition{LeadID: "l-1", TargetStageID: "won"})
			if !apperr.Is(err, tt.kind) {
				t.Fatalf("expected kind %v, got %v", tt.kind, err)
			}
		})
	}
}

func TestUnreachableCRMIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(testConfig{baseURL: url}, logger.Discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = c.Ping(context.Background())
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestCancelledContextIsReturnedAsIs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.ListStages(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
