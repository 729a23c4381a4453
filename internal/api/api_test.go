package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-crm/leadhawk/internal/alerts"
	"github.com/opensource-crm/leadhawk/internal/analyzer"
	"github.com/opensource-crm/leadhawk/internal/bus"
	"github.com/opensource-crm/leadhawk/internal/cache"
	"github.com/opensource-crm/leadhawk/internal/domain"
	"github.com/opensource-crm/leadhawk/internal/repository"
	"github.com/opensource-crm/leadhawk/internal/scoring"
	"github.com/opensource-crm/leadhawk/internal/stats"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api.db"),
	})
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	custom, err := alerts.NewCustomEngine()
	if err != nil {
		t.Fatal(err)
	}
	pipeline := analyzer.New(
		scoring.NewEngine(scoring.DefaultConfig()),
		alerts.NewEngine(alerts.DefaultConfig(), custom),
		stats.NewCalculator(stats.DefaultConfig()),
	)

	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	return NewServer(domain.ServerConfig{}, repo, cache.NewLRUCache(100), b, pipeline, custom, "test")
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func analyzeBatch(t *testing.T, srv *Server) AnalyzeResponse {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/runs", AnalyzeRequest{
		Leads: []domain.RawLead{
			{domain.ColLeadID: "L001", domain.ColName: "张三", domain.ColChannel: "抖音短视频平台",
				domain.ColGrade: "A", domain.ColFollowUps: "0"},
			{domain.ColLeadID: "L002", domain.ColName: "李四", domain.ColChannel: "直播平台",
				domain.ColGrade: "C", domain.ColFollowUps: "3"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /runs = %d: %s", rec.Code, rec.Body.String())
	}
	return decode[AnalyzeResponse](t, rec)
}

func TestAnalyzeJSON(t *testing.T) {
	srv := newTestServer(t)

	resp := analyzeBatch(t, srv)
	if resp.RunID == "" {
		t.Error("run ID missing")
	}
	if resp.LeadCount != 2 {
		t.Errorf("LeadCount = %d, want 2", resp.LeadCount)
	}
	if resp.Alerts.Red != 1 {
		t.Errorf("red alerts = %d, want 1", resp.Alerts.Red)
	}
	if resp.Metadata.EngineVersion == "" {
		t.Error("metadata missing engine version")
	}
}

func TestAnalyzeCSV(t *testing.T) {
	srv := newTestServer(t)

	csv := "学员id,学员姓名,客户分级,回访次数\nL001,张三,A,0\n"
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[AnalyzeResponse](t, rec)
	if resp.LeadCount != 1 {
		t.Errorf("LeadCount = %d, want 1", resp.LeadCount)
	}
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	srv := newTestServer(t)

	// Empty batch.
	rec := doJSON(t, srv, http.MethodPost, "/runs", AnalyzeRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty batch: status = %d, want 400", rec.Code)
	}

	// Malformed JSON.
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: status = %d, want 400", rec.Code)
	}

	// Unreadable CSV.
	req = httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(""))
	req.Header.Set("Content-Type", "text/csv")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty CSV: status = %d, want 400", rec.Code)
	}
}

func TestGetRun(t *testing.T) {
	srv := newTestServer(t)
	created := analyzeBatch(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/runs/"+created.RunID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	run := decode[domain.AnalysisRun](t, rec)
	if run.ID != created.RunID || len(run.Leads) != 2 {
		t.Errorf("run = %s with %d leads", run.ID, len(run.Leads))
	}

	rec = doJSON(t, srv, http.MethodGet, "/runs/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing run: status = %d, want 404", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	srv := newTestServer(t)
	analyzeBatch(t, srv)
	analyzeBatch(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/runs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[struct {
		Runs  []domain.RunSummary `json:"runs"`
		Count int                 `json:"count"`
	}](t, rec)
	if resp.Count != 2 || len(resp.Runs) != 2 {
		t.Errorf("count = %d, runs = %d", resp.Count, len(resp.Runs))
	}

	rec = doJSON(t, srv, http.MethodGet, "/runs?limit=1", nil)
	resp = decode[struct {
		Runs  []domain.RunSummary `json:"runs"`
		Count int                 `json:"count"`
	}](t, rec)
	if resp.Count != 1 {
		t.Errorf("limited count = %d, want 1", resp.Count)
	}

	rec = doJSON(t, srv, http.MethodGet, "/runs?limit=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", rec.Code)
	}
}

func TestGetLeadsFilter(t *testing.T) {
	srv := newTestServer(t)
	created := analyzeBatch(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/runs/"+created.RunID+"/leads", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[struct {
		Leads []domain.ScoredLead `json:"leads"`
		Count int                 `json:"count"`
	}](t, rec)
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	// Highest score first.
	if resp.Leads[0].Score < resp.Leads[1].Score {
		t.Errorf("leads not sorted by score: %d, %d", resp.Leads[0].Score, resp.Leads[1].Score)
	}

	rec = doJSON(t, srv, http.MethodGet, "/runs/"+created.RunID+"/leads?level=priority", nil)
	filtered := decode[struct {
		Leads []domain.ScoredLead `json:"leads"`
	}](t, rec)
	for _, lead := range filtered.Leads {
		if lead.Level != domain.LevelPriority {
			t.Errorf("filter leaked level %s", lead.Level)
		}
	}

	rec = doJSON(t, srv, http.MethodGet, "/runs/"+created.RunID+"/leads?level=extreme", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad level: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/runs/nope/leads", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing run: status = %d, want 404", rec.Code)
	}
}

func TestGetAlerts(t *testing.T) {
	srv := newTestServer(t)
	created := analyzeBatch(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/runs/"+created.RunID+"/alerts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	set := decode[domain.AlertSet](t, rec)
	if len(set.Red) != 1 {
		t.Errorf("red = %d, want 1", len(set.Red))
	}

	rec = doJSON(t, srv, http.MethodGet, "/runs/"+created.RunID+"/alerts?severity=red", nil)
	tier := decode[struct {
		Severity domain.Severity `json:"severity"`
		Alerts   []domain.Alert  `json:"alerts"`
	}](t, rec)
	if tier.Severity != domain.SeverityRed || len(tier.Alerts) != 1 {
		t.Errorf("tier = %+v", tier)
	}

	rec = doJSON(t, srv, http.MethodGet, "/runs/"+created.RunID+"/alerts?severity=purple", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad severity: status = %d, want 400", rec.Code)
	}
}

func TestGetStats(t *testing.T) {
	srv := newTestServer(t)
	created := analyzeBatch(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/runs/"+created.RunID+"/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	s := decode[domain.RunStats](t, rec)
	if s.TotalLeads != 2 {
		t.Errorf("TotalLeads = %d, want 2", s.TotalLeads)
	}
	if len(s.Channels) != 2 {
		t.Errorf("channels = %d, want 2", len(s.Channels))
	}
}

func TestRuleLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/rules", CreateRuleRequest{
		ID:         "score-floor",
		Name:       "very low scores",
		Expression: "score < 20",
		Enabled:    true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", rec.Code, rec.Body.String())
	}

	// Creation persists the rule but does not touch the live engine.
	rec = doJSON(t, srv, http.MethodGet, "/rules", nil)
	list := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	if list.Count != 0 {
		t.Errorf("rules loaded before reload = %d, want 0", list.Count)
	}

	rec = doJSON(t, srv, http.MethodPost, "/rules/reload", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("reload: status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/rules", nil)
	list = decode[struct {
		Count int `json:"count"`
	}](t, rec)
	if list.Count != 1 {
		t.Errorf("loaded rules after reload = %d, want 1", list.Count)
	}

	rec = doJSON(t, srv, http.MethodGet, "/rules/score-floor", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get rule: status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/rules/absent", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing rule: status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/rules/score-floor", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete: status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, srv, http.MethodGet, "/rules", nil)
	list = decode[struct {
		Count int `json:"count"`
	}](t, rec)
	if list.Count != 0 {
		t.Errorf("rules after delete = %d, want 0", list.Count)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/rules/absent", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing: status = %d, want 404", rec.Code)
	}
}

func TestCreateDisabledRuleNeverLoads(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/rules", CreateRuleRequest{
		ID:         "dormant",
		Name:       "disabled rule",
		Expression: "score > 0",
		Enabled:    false,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/rules/reload", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reload: status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/rules", nil)
	list := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	if list.Count != 0 {
		t.Errorf("disabled rule loaded into the engine: count = %d", list.Count)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/rules", CreateRuleRequest{
		ID: "r1", Name: "bad", Expression: "score >", Enabled: true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad CEL: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/rules", CreateRuleRequest{
		Name: "missing id", Expression: "score > 0",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing id: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/rules", CreateRuleRequest{
		ID: "r2", Name: "bad band", Expression: "score",
		Bands: []domain.AlertBand{{Severity: "purple"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad band severity: status = %d, want 400", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status = %d", rec.Code)
	}
	health := decode[map[string]string](t, rec)
	if health["status"] != "healthy" || health["version"] != "test" {
		t.Errorf("health = %v", health)
	}

	rec = doJSON(t, srv, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ready: status = %d", rec.Code)
	}
}
