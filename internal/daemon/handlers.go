package daemon

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"hashsync/internal/alerts"
	"hashsync/internal/api"
	"hashsync/internal/csvimport"
	"hashsync/internal/scrape"
	"hashsync/internal/services"
	"hashsync/internal/store"
)

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleKennels(w http.ResponseWriter, r *http.Request) {
	kennels, err := api.NewCatalogService(s.daemon.app.Store).Kennels(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.KennelListResponse{Kennels: kennels})
}

func (s *apiServer) handleSources(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled") == "1" || strings.EqualFold(r.URL.Query().Get("enabled"), "true")
	sources, err := api.NewCatalogService(s.daemon.app.Store).Sources(r.Context(), enabledOnly)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SourceListResponse{Sources: sources})
}

func (s *apiServer) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req api.ScrapeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	opts := scrape.Options{Force: req.Force, Actor: services.ActorFromContext(ctx)}
	if req.SourceID != 0 {
		res, err := s.daemon.app.Scraper.Scrape(ctx, req.SourceID, opts)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, api.ScrapeResponse{Runs: []scrape.RunResult{res}})
		return
	}
	runs, err := s.daemon.app.Scraper.ScrapeAll(ctx, opts)
	resp := api.ScrapeResponse{Runs: runs}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req api.ResolveRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Tag) == "" {
		s.fail(w, r, services.Wrap(services.ErrValidation, "api", "resolve", "tag is required", nil))
		return
	}
	res, err := s.daemon.app.Resolve(r.Context(), req.Tag, req.SourceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.daemon.app.Resolver.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := alertFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.daemon.app.Alerts.List(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.AlertListResponse{Alerts: api.FromAlerts(list)})
}

func alertFilter(r *http.Request) (store.AlertFilter, error) {
	query := r.URL.Query()
	var filter store.AlertFilter
	if value := strings.TrimSpace(query.Get("source_id")); value != "" {
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return filter, services.Wrap(services.ErrValidation, "api", "alerts", "invalid source_id", nil)
		}
		filter.SourceID = id
	}
	for _, value := range query["status"] {
		status, ok := store.ParseAlertStatus(value)
		if !ok {
			return filter, services.Wrap(services.ErrValidation, "api", "alerts", "unknown status "+value, nil)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, value := range query["type"] {
		if value = strings.ToUpper(strings.TrimSpace(value)); value != "" {
			filter.Types = append(filter.Types, store.AlertType(value))
		}
	}
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 0 {
			return filter, services.Wrap(services.ErrValidation, "api", "alerts", "invalid limit", nil)
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (s *apiServer) handleAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	detail, err := s.daemon.app.Alerts.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromAlertDetail(detail))
}

func (s *apiServer) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, func(id int64, actor string) (*store.Alert, error) {
		return s.daemon.app.Alerts.Acknowledge(r.Context(), id, actor)
	})
}

func (s *apiServer) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, func(id int64, actor string) (*store.Alert, error) {
		return s.daemon.app.Alerts.Resolve(r.Context(), id, actor)
	})
}

func (s *apiServer) handleSnooze(w http.ResponseWriter, r *http.Request) {
	var req api.SnoozeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	var until time.Time
	switch {
	case strings.TrimSpace(req.Until) != "":
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(req.Until))
		if err != nil {
			s.fail(w, r, services.Wrap(services.ErrValidation, "api", "snooze", "until must be RFC3339", nil))
			return
		}
		until = parsed
	case req.Hours > 0:
		until = time.Now().Add(time.Duration(req.Hours) * time.Hour)
	}
	s.lifecycle(w, r, func(id int64, actor string) (*store.Alert, error) {
		return s.daemon.app.Alerts.Snooze(r.Context(), id, until, actor)
	})
}

func (s *apiServer) lifecycle(w http.ResponseWriter, r *http.Request, fn func(id int64, actor string) (*store.Alert, error)) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	alert, err := fn(id, services.ActorFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.AlertResponse{Alert: api.FromAlert(alert)})
}

func (s *apiServer) handleResolveSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	count, err := s.daemon.app.Alerts.ResolveAllForSource(r.Context(), id, services.ActorFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.CountResponse{Count: count})
}

func (s *apiServer) handleRepairRescrape(w http.ResponseWriter, r *http.Request) {
	var req api.RescrapeRequest
	s.repair(w, r, &req, func(id int64) alerts.ActionResult {
		return s.daemon.app.Alerts.Rescrape(r.Context(), id, req.Force)
	})
}

func (s *apiServer) handleRepairAlias(w http.ResponseWriter, r *http.Request) {
	var req api.AliasRequest
	s.repair(w, r, &req, func(id int64) alerts.ActionResult {
		return s.daemon.app.Alerts.CreateAlias(r.Context(), id, req.Tag, req.KennelID)
	})
}

func (s *apiServer) handleRepairKennel(w http.ResponseWriter, r *http.Request) {
	var req api.CreateKennelRequest
	s.repair(w, r, &req, func(id int64) alerts.ActionResult {
		return s.daemon.app.Alerts.CreateKennel(r.Context(), id, req.Tag, req.Kennel)
	})
}

func (s *apiServer) handleRepairLink(w http.ResponseWriter, r *http.Request) {
	var req api.LinkRequest
	s.repair(w, r, &req, func(id int64) alerts.ActionResult {
		return s.daemon.app.Alerts.LinkKennelToSource(r.Context(), id, req.Tag)
	})
}

func (s *apiServer) handleRepairIssue(w http.ResponseWriter, r *http.Request) {
	s.repair(w, r, nil, func(id int64) alerts.ActionResult {
		return s.daemon.app.Alerts.FileExternalIssue(r.Context(), id)
	})
}

// repair decodes req (when non-nil), runs fn and replies with the action
// result. Failed actions keep the result body under the mapped status.
func (s *apiServer) repair(w http.ResponseWriter, r *http.Request, req any, fn func(id int64) alerts.ActionResult) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if req != nil {
		if err := decode(w, r, req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	res := fn(id)
	status := http.StatusOK
	if !res.Success {
		status = statusFor(res.Err())
	}
	writeJSON(w, status, res)
}

func (s *apiServer) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req api.MergeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res := s.daemon.app.Merger.Merge(r.Context(), req.SourceID, req.TargetID, req.Preview)
	status := http.StatusOK
	if !res.Success {
		status = statusFor(res.Err())
	}
	writeJSON(w, status, res)
}

func (s *apiServer) handleImport(w http.ResponseWriter, r *http.Request) {
	var req api.ImportRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := s.daemon.app.Importer.Import(r.Context(), req.CSV, csvimport.Options{
		KennelID:   req.KennelID,
		Threshold:  req.Threshold,
		RecordedBy: services.ActorFromContext(r.Context()),
		DryRun:     req.DryRun,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.fail(w, r, services.Wrap(services.ErrExternal, "notifications", "test", message, err))
		return
	}
	writeJSON(w, http.StatusOK, api.NotificationResponse{Sent: sent, Message: message})
}
