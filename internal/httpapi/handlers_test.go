package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"campaign-callsync/internal/audit"
	"campaign-callsync/internal/auth"
	"campaign-callsync/internal/calls"
	"campaign-callsync/internal/config"
	"campaign-callsync/internal/poller"
	"campaign-callsync/internal/reporting"
	"campaign-callsync/internal/scheduler"
	"campaign-callsync/internal/sentiment"
)

var testNow = time.Unix(1700000000, 0).UTC()

type fakeScheduler struct {
	status      scheduler.Status
	triggerErr  error
	intervalErr error
	triggers    int
	gotInterval time.Duration
	cleared     bool
}

func (f *fakeScheduler) Status() scheduler.Status { return f.status }

func (f *fakeScheduler) TriggerPoll(ctx context.Context) error {
	if f.triggerErr != nil {
		return f.triggerErr
	}
	f.triggers++
	return nil
}

func (f *fakeScheduler) SetInterval(d time.Duration) error {
	if f.intervalErr != nil {
		return f.intervalErr
	}
	f.gotInterval = d
	f.status.PollingIntervalSeconds = int(d / time.Second)
	return nil
}

func (f *fakeScheduler) ClearProcessedCache() {
	f.cleared = true
	f.status.ProcessedCallsCount = 0
}

// newTestRouter registers the handler routes behind a middleware that plants
// a verified subject, standing in for the real token check.
func newTestRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithSubject(c.Request.Context(), "operator-1"))
	})
	r.GET("/v1/polling/status", h.GetPollingStatus)
	r.POST("/v1/polling/trigger", h.TriggerPoll)
	r.PUT("/v1/polling/interval", h.SetPollingInterval)
	r.POST("/v1/polling/cache/clear", h.ClearProcessedCache)
	r.GET("/v1/reports/summary", h.GetSummary)
	r.GET("/v1/reports/calls/export", h.ExportCalls)
	return r
}

func doRequest(r *gin.Engine, method, path string, body string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetPollingStatus(t *testing.T) {
	fs := &fakeScheduler{status: scheduler.Status{
		Running:                true,
		LastPollTime:           testNow,
		PollingIntervalSeconds: 120,
		ProcessedCallsCount:    7,
	}}
	r := newTestRouter(Handlers{Scheduler: fs})

	w := doRequest(r, http.MethodGet, "/v1/polling/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got["is_running"] != true {
		t.Fatalf("expected is_running true: %v", got)
	}
	if got["polling_interval_seconds"] != float64(120) {
		t.Fatalf("expected interval 120: %v", got)
	}
	if got["processed_calls_count"] != float64(7) {
		t.Fatalf("expected processed count 7: %v", got)
	}
	if got["last_poll_time"] != "2023-11-14T22:13:20Z" {
		t.Fatalf("unexpected last_poll_time: %v", got["last_poll_time"])
	}
}

func TestGetPollingStatus_NullBeforeFirstPoll(t *testing.T) {
	r := newTestRouter(Handlers{Scheduler: &fakeScheduler{}})

	w := doRequest(r, http.MethodGet, "/v1/polling/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"last_poll_time":null`) {
		t.Fatalf("expected null last_poll_time: %s", w.Body.String())
	}
}

func TestTriggerPoll(t *testing.T) {
	fs := &fakeScheduler{}
	auditRepo := audit.NewMemoryRepo()
	r := newTestRouter(Handlers{Scheduler: fs, Audit: audit.NewService(auditRepo)})

	w := doRequest(r, http.MethodPost, "/v1/polling/trigger", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if fs.triggers != 1 {
		t.Fatalf("expected 1 trigger, got %d", fs.triggers)
	}

	evs := auditRepo.Events()
	if len(evs) != 1 || evs[0].Action != audit.ActionPollTriggered {
		t.Fatalf("expected poll_triggered audit event, got %+v", evs)
	}
	if evs[0].Actor != "operator-1" {
		t.Fatalf("expected actor from token subject, got %q", evs[0].Actor)
	}
}

func TestTriggerPoll_BusyAnswersConflict(t *testing.T) {
	for _, busy := range []error{poller.ErrCycleInProgress, poller.ErrLeaseHeld} {
		fs := &fakeScheduler{triggerErr: busy}
		r := newTestRouter(Handlers{Scheduler: fs})

		w := doRequest(r, http.MethodPost, "/v1/polling/trigger", "")
		if w.Code != http.StatusConflict {
			t.Fatalf("%v: expected 409, got %d", busy, w.Code)
		}
	}
}

func TestSetPollingInterval(t *testing.T) {
	fs := &fakeScheduler{}
	auditRepo := audit.NewMemoryRepo()
	r := newTestRouter(Handlers{Scheduler: fs, Audit: audit.NewService(auditRepo)})

	w := doRequest(r, http.MethodPut, "/v1/polling/interval", `{"interval_seconds": 90}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if fs.gotInterval != 90*time.Second {
		t.Fatalf("expected 90s interval, got %v", fs.gotInterval)
	}

	evs := auditRepo.Events()
	if len(evs) != 1 || evs[0].Action != audit.ActionIntervalChanged {
		t.Fatalf("expected interval_changed audit event, got %+v", evs)
	}
	if evs[0].Detail != "interval set to 1m30s" {
		t.Fatalf("unexpected audit detail: %q", evs[0].Detail)
	}
}

func TestSetPollingInterval_BelowFloor(t *testing.T) {
	fs := &fakeScheduler{intervalErr: scheduler.ErrIntervalTooShort}
	auditRepo := audit.NewMemoryRepo()
	r := newTestRouter(Handlers{Scheduler: fs, Audit: audit.NewService(auditRepo)})

	w := doRequest(r, http.MethodPut, "/v1/polling/interval", `{"interval_seconds": 5}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(auditRepo.Events()) != 0 {
		t.Fatalf("expected no audit event for rejected interval")
	}
}

func TestSetPollingInterval_BadBody(t *testing.T) {
	r := newTestRouter(Handlers{Scheduler: &fakeScheduler{}})

	if w := doRequest(r, http.MethodPut, "/v1/polling/interval", "not json"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPut, "/v1/polling/interval", `{"interval_seconds": 0}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero interval, got %d", w.Code)
	}
}

func TestClearProcessedCache(t *testing.T) {
	fs := &fakeScheduler{status: scheduler.Status{ProcessedCallsCount: 5}}
	auditRepo := audit.NewMemoryRepo()
	r := newTestRouter(Handlers{Scheduler: fs, Audit: audit.NewService(auditRepo)})

	w := doRequest(r, http.MethodPost, "/v1/polling/cache/clear", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !fs.cleared {
		t.Fatalf("expected cache cleared")
	}

	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got["removed"] != float64(5) {
		t.Fatalf("expected removed 5: %v", got)
	}

	evs := auditRepo.Events()
	if len(evs) != 1 || evs[0].Detail != "5 cached call ids dropped" {
		t.Fatalf("unexpected audit events: %+v", evs)
	}
}

func seededReports(t *testing.T) *reporting.Service {
	t.Helper()
	callStore := calls.NewMemoryStore()
	analysisStore := sentiment.NewMemoryStore()

	seed := []calls.Call{
		{CallID: "c1", OrgID: "org-1", Status: calls.CallStatusCompleted, DurationSeconds: 30, StartedAt: testNow, Transcript: "agent: hi"},
		{CallID: "c2", OrgID: "org-1", Status: calls.CallStatusNoAnswer, StartedAt: testNow.Add(time.Minute)},
	}
	for _, c := range seed {
		if _, _, err := callStore.Create(context.Background(), c); err != nil {
			t.Fatalf("seed call: %v", err)
		}
	}
	a := sentiment.Analysis{ID: "a1", CallID: "c1", Label: sentiment.LabelPositive, Score: 0.9, CreatedAt: testNow}
	if err := analysisStore.Create(context.Background(), a); err != nil {
		t.Fatalf("seed analysis: %v", err)
	}
	return reporting.NewService(callStore, analysisStore)
}

func reportWindowPath(base string) string {
	from := testNow.Add(-time.Hour).Format(time.RFC3339)
	to := testNow.Add(time.Hour).Format(time.RFC3339)
	return fmt.Sprintf("%s?from=%s&to=%s", base, from, to)
}

func TestGetSummary(t *testing.T) {
	r := newTestRouter(Handlers{Reports: seededReports(t)})

	w := doRequest(r, http.MethodGet, reportWindowPath("/v1/reports/summary"), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got reporting.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.TotalCalls != 2 || got.CompletedCalls != 1 || got.NoAnswerCalls != 1 {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if got.AnalyzedCalls != 1 || got.PositiveCalls != 1 {
		t.Fatalf("unexpected sentiment section: %+v", got)
	}
}

func TestGetSummary_RejectsBadWindow(t *testing.T) {
	r := newTestRouter(Handlers{Reports: seededReports(t)})

	w := doRequest(r, http.MethodGet, "/v1/reports/summary?from=yesterday", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestExportCalls(t *testing.T) {
	r := newTestRouter(Handlers{Reports: seededReports(t)})

	w := doRequest(r, http.MethodGet, reportWindowPath("/v1/reports/calls/export"), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type: %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, ".xlsx") {
		t.Fatalf("unexpected content disposition: %q", cd)
	}

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	rows, err := f.GetRows("Calls")
	if err != nil {
		t.Fatalf("read calls sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
}

func TestOpsTokenGuard(t *testing.T) {
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", TokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := Handlers{Scheduler: &fakeScheduler{}}
	r.GET("/v1/polling/status", auth.RequireOpsToken(m), h.GetPollingStatus)

	w := doRequest(r, http.MethodGet, "/v1/polling/status", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	tok, err := m.Issue(time.Now(), "operator-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/polling/status", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}
}
