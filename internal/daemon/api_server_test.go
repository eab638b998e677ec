package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"hashsync/internal/alerts"
	"hashsync/internal/api"
	"hashsync/internal/app"
	"hashsync/internal/logging"
	"hashsync/internal/resolver"
	"hashsync/internal/services"
	"hashsync/internal/store"
	"hashsync/internal/testsupport"
)

type apiFixture struct {
	app     *app.App
	handler http.Handler
	token   string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret"))
	cfg.Metrics.Enabled = true
	a, err := app.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("app.Open: %v", err)
	}
	d, err := New(a)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return &apiFixture{app: a, handler: d.server.server.Handler, token: "secret"}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+f.token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) unmatchedAlert(t *testing.T, tags ...string) (*store.Alert, *store.Source) {
	t.Helper()
	src := testsupport.MustCreateSource(t, f.app.Store, "Rumson Calendar", store.SourceConfig{})
	alert := &store.Alert{
		SourceID: src.ID,
		Type:     store.AlertUnmatchedTags,
		Severity: store.SeverityWarning,
		Title:    "unmatched tags",
		Context:  store.UnmatchedTagsContext{Tags: tags},
	}
	if err := f.app.Store.InsertAlert(context.Background(), alert); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}
	return alert, src
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestAPIRequiresBearerToken(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/status", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", w.Code, w.Body.String())
	}
	status := decodeBody[api.DaemonStatus](t, w)
	if status.DatabasePath == "" || len(status.Adapters) == 0 {
		t.Fatalf("unexpected status %+v", status)
	}
	if w.Header().Get(headerRequestID) == "" {
		t.Fatal("expected a generated request id header")
	}
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	f := newAPIFixture(t)
	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestAPIAlertLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	alert, _ := f.unmatchedAlert(t, "Rumson")
	base := fmt.Sprintf("/api/alerts/%d", alert.ID)

	w := f.do(t, http.MethodPost, base+"/ack", nil, map[string]string{headerActor: "ops"})
	if w.Code != http.StatusOK {
		t.Fatalf("ack: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	acked := decodeBody[api.AlertResponse](t, w)
	if acked.Alert.Status != string(store.AlertAcknowledged) || acked.Alert.AcknowledgedBy != "ops" {
		t.Fatalf("unexpected ack response %+v", acked.Alert)
	}

	w = f.do(t, http.MethodPost, base+"/ack", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("second ack: expected 400, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, base+"/snooze", api.SnoozeRequest{Hours: 2}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("snooze: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeBody[api.AlertResponse](t, w); got.Alert.Status != string(store.AlertSnoozed) || got.Alert.SnoozedUntil == "" {
		t.Fatalf("unexpected snooze response %+v", got.Alert)
	}

	w = f.do(t, http.MethodPost, base+"/snooze", api.SnoozeRequest{Until: "tomorrow"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad until: expected 400, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, base+"/resolve", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/alerts?status=resolved", nil, nil)
	list := decodeBody[api.AlertListResponse](t, w)
	if len(list.Alerts) != 1 || list.Alerts[0].ID != alert.ID {
		t.Fatalf("expected resolved alert in listing, got %+v", list.Alerts)
	}

	w = f.do(t, http.MethodGet, "/api/alerts?status=bogus", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bogus status: expected 400, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/alerts/999", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing alert: expected 404, got %d", w.Code)
	}
	if body := decodeBody[api.ErrorResponse](t, w); body.Kind != "not_found" {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestAPIAliasRepairIsIdempotentPerRequestID(t *testing.T) {
	f := newAPIFixture(t)
	kennel := testsupport.MustCreateKennel(t, f.app.Store, "RH3")
	alert, _ := f.unmatchedAlert(t, "Rumson")
	path := fmt.Sprintf("/api/alerts/%d/repairs/alias", alert.ID)
	req := api.AliasRequest{Tag: "Rumson", KennelID: kennel.ID}
	headers := map[string]string{headerRequestID: "req-42"}

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodPost, path, req, headers)
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
		res := decodeBody[alerts.ActionResult](t, w)
		if !res.Success {
			t.Fatalf("attempt %d: unexpected result %+v", i, res)
		}
		if i == 0 && !res.Resolved {
			t.Fatal("expected first attempt to auto-resolve the alert")
		}
	}

	w := f.do(t, http.MethodGet, fmt.Sprintf("/api/alerts/%d", alert.ID), nil, nil)
	detail := decodeBody[api.AlertDetail](t, w)
	if detail.Alert.Status != string(store.AlertResolved) {
		t.Fatalf("expected resolved alert, got %s", detail.Alert.Status)
	}
	if len(detail.Repairs) != 1 || detail.Repairs[0].EntryID != fmt.Sprintf("req-42:%d:create_alias", alert.ID) {
		t.Fatalf("expected one repair entry keyed by request id, got %+v", detail.Repairs)
	}
}

func TestAPIRepairFailureMapsStatus(t *testing.T) {
	f := newAPIFixture(t)
	alert, _ := f.unmatchedAlert(t, "Rumson")

	w := f.do(t, http.MethodPost, fmt.Sprintf("/api/alerts/%d/repairs/alias", alert.ID), api.AliasRequest{Tag: "Rumson", KennelID: 404}, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown kennel, got %d: %s", w.Code, w.Body.String())
	}
	res := decodeBody[alerts.ActionResult](t, w)
	if res.Success || res.Error == "" {
		t.Fatalf("expected failed result, got %+v", res)
	}

	w = f.do(t, http.MethodPost, fmt.Sprintf("/api/alerts/%d/repairs/issue", alert.ID), nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when tracker unconfigured, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, fmt.Sprintf("/api/alerts/%d/repairs/link", alert.ID), map[string]any{"unexpected": true}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown body field, got %d", w.Code)
	}
}

func TestAPIResolveAndMerge(t *testing.T) {
	f := newAPIFixture(t)
	source := testsupport.MustCreateKennel(t, f.app.Store, "OLDH3", "Old Town")
	target := testsupport.MustCreateKennel(t, f.app.Store, "NEWH3")

	w := f.do(t, http.MethodPost, "/api/resolve", api.ResolveRequest{Tag: "old town"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d", w.Code)
	}
	res := decodeBody[resolver.Result](t, w)
	if !res.Matched || res.KennelID != source.ID {
		t.Fatalf("unexpected resolution %+v", res)
	}

	w = f.do(t, http.MethodPost, "/api/merge", api.MergeRequest{SourceID: source.ID, TargetID: source.ID}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("self merge: expected 400, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/api/merge", api.MergeRequest{SourceID: source.ID, TargetID: target.ID}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("merge: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/resolve", api.ResolveRequest{Tag: "old town"}, nil)
	res = decodeBody[resolver.Result](t, w)
	if res.Matched {
		t.Fatalf("expected merged kennel alias to be gone, got %+v", res)
	}

	w = f.do(t, http.MethodPost, "/api/resolve", api.ResolveRequest{}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty tag: expected 400, got %d", w.Code)
	}
}

func TestStatusForMarkers(t *testing.T) {
	tests := []struct {
		marker error
		want   int
	}{
		{services.ErrValidation, http.StatusBadRequest},
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrConflict, http.StatusConflict},
		{services.ErrUnauthorized, http.StatusUnauthorized},
		{services.ErrExternal, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.marker.Error(), func(t *testing.T) {
			err := services.Wrap(tt.marker, "test", "op", "detail", nil)
			if got := statusFor(err); got != tt.want {
				t.Fatalf("statusFor(%v) = %d, want %d", err, got, tt.want)
			}
		})
	}
	if got := statusFor(fmt.Errorf("boom")); got != http.StatusInternalServerError {
		t.Fatalf("unclassified error: got %d", got)
	}
}
