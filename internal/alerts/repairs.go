package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"hashsync/internal/logging"
	"hashsync/internal/resolver"
	"hashsync/internal/services"
	"hashsync/internal/store"
	"hashsync/internal/textutil"
	"hashsync/internal/tracker"
)

// ActionResult is the outcome of one repair action.
type ActionResult struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	Resolved bool     `json:"resolved"`
	Warnings []string `json:"warnings,omitempty"`
	IssueURL string   `json:"issue_url,omitempty"`
	KennelID int64    `json:"kennel_id,omitempty"`

	err error
}

// Err returns the classified error behind a failed result.
func (r ActionResult) Err() error {
	return r.err
}

func failed(err error) ActionResult {
	return ActionResult{Error: services.Message(err), err: err}
}

// KennelInput describes a kennel created by the create_kennel repair.
type KennelInput struct {
	ShortName   string `json:"short_name"`
	FullName    string `json:"full_name"`
	Region      string `json:"region"`
	Country     string `json:"country"`
	Website     string `json:"website,omitempty"`
	Description string `json:"description,omitempty"`
	FoundedYear *int   `json:"founded_year,omitempty"`
	// Alias seeds an alias for the new kennel. Empty means the tag itself.
	Alias   string `json:"alias,omitempty"`
	NoAlias bool   `json:"no_alias,omitempty"`
}

// repair is the state shared by one repair action.
type repair struct {
	alert    *store.Alert
	source   *store.Source
	action   store.RepairAction
	actor    string
	entryID  string
	resolver *resolver.Resolver
	logger   *slog.Logger
}

func (m *Manager) begin(ctx context.Context, alertID int64, action store.RepairAction) (*repair, error) {
	a, err := m.mustAlert(ctx, alertID, string(action))
	if err != nil {
		return nil, err
	}
	src, err := m.store.GetSource(ctx, a.SourceID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, services.Wrap(services.ErrNotFound, "alerts", string(action), fmt.Sprintf("source %d not found", a.SourceID), nil)
	}
	logger := logging.WithContext(ctx, m.logger).With(
		logging.AlertID(a.ID),
		logging.SourceID(src.ID),
		logging.String("action", string(action)),
	)
	return &repair{
		alert:    a,
		source:   src,
		action:   action,
		actor:    services.ActorFromContext(ctx),
		entryID:  entryID(ctx, a.ID, action),
		resolver: resolver.New(m.store, m.logger),
		logger:   logger,
	}, nil
}

// entryID derives the repair-log key. A retried request carrying the same
// request id maps onto the same entry, so its append is a no-op. Failures
// are logged under failedEntryID so a later successful retry still records
// its own entry.
func entryID(ctx context.Context, alertID int64, action store.RepairAction) string {
	if reqID, ok := services.RequestIDFromContext(ctx); ok {
		return fmt.Sprintf("%s:%d:%s", reqID, alertID, action)
	}
	return uuid.NewString()
}

// mutate runs fn and the repair-log append in one transaction. When fn fails
// the transaction rolls back and a failure entry is appended on its own.
func (m *Manager) mutate(ctx context.Context, r *repair, details store.RepairDetails, fn func(tx *store.Tx, details *store.RepairDetails) (store.RepairResult, error)) error {
	entry := &store.RepairEntry{
		AlertID: r.alert.ID,
		EntryID: r.entryID,
		Action:  r.action,
		Actor:   r.actor,
		Details: details,
	}
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		result := store.RepairSucceeded
		if fn != nil {
			var err error
			if result, err = fn(tx, &entry.Details); err != nil {
				return err
			}
		}
		entry.Result = result
		appended, err := tx.AppendRepair(ctx, entry)
		if err != nil {
			return err
		}
		if !appended {
			r.logger.Debug("repair entry already recorded", logging.String("entry_id", entry.EntryID))
		}
		return nil
	})
	if err != nil {
		m.recordFailure(ctx, r, entry, err)
		return err
	}
	m.metrics.RepairAction(string(r.action), string(entry.Result))
	r.logger.Info("repair applied",
		logging.String("result", string(entry.Result)),
		logging.String(logging.FieldActor, r.actor),
	)
	return nil
}

func failedEntryID(entryID string) string {
	return entryID + ":failed"
}

func (m *Manager) recordFailure(ctx context.Context, r *repair, entry *store.RepairEntry, cause error) {
	entry.EntryID = failedEntryID(r.entryID)
	entry.Result = store.RepairFailed
	entry.Details.Message = services.Message(cause)
	if _, err := m.store.AppendRepair(ctx, entry); err != nil {
		logging.ErrorWithContext(r.logger, "failed to record repair failure", "repair_log_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "repair failure missing from the audit log"),
		)
	}
	m.metrics.RepairAction(string(r.action), string(store.RepairFailed))
	logging.WarnWithContext(r.logger, "repair failed", "repair_failed",
		logging.Error(cause),
		logging.String(logging.FieldActor, r.actor),
	)
}

// finish clears resolver caches and attempts the auto-resolve after a
// successful mutating repair.
func (m *Manager) finish(ctx context.Context, r *repair, res ActionResult) ActionResult {
	m.clearCaches()
	resolved, err := m.tryAutoResolve(ctx, r)
	if err != nil {
		logging.WarnWithContext(r.logger, "auto-resolve check failed", "alert_autoresolve_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "alert stays open until resolved manually"),
		)
		res.Warnings = append(res.Warnings, "auto-resolve check failed: "+err.Error())
	}
	res.Resolved = resolved
	return res
}

// tryAutoResolve re-resolves every tag of a tag-bearing alert and resolves
// the alert when all of them match. Mismatch alerts also need each kennel
// linked to the source.
func (m *Manager) tryAutoResolve(ctx context.Context, r *repair) (bool, error) {
	a, err := m.store.GetAlert(ctx, r.alert.ID)
	if err != nil || !a.IsActive() {
		return false, err
	}
	if a.Type != store.AlertUnmatchedTags && a.Type != store.AlertSourceKennelMismatch {
		return false, nil
	}
	tags := a.Context.ContextTags()
	if len(tags) == 0 {
		return false, nil
	}
	r.resolver.ClearCache()
	for _, tag := range tags {
		res, err := r.resolver.ResolveForSource(ctx, tag, r.source)
		if err != nil {
			return false, err
		}
		if !res.Matched {
			return false, nil
		}
		if a.Type == store.AlertSourceKennelMismatch {
			linked, err := m.store.IsLinked(ctx, r.source.ID, res.KennelID)
			if err != nil {
				return false, err
			}
			if !linked {
				return false, nil
			}
		}
	}
	changed, err := m.store.TransitionAlert(ctx, store.Transition{
		AlertID: a.ID,
		From:    store.ActiveAlertStatuses,
		To:      store.AlertResolved,
		Actor:   r.actor,
	})
	if err != nil {
		return false, err
	}
	if changed {
		r.logger.Info("alert auto-resolved", logging.Int("tags", len(tags)))
	}
	return changed, nil
}

// Rescrape re-runs the alert's source. It succeeds when the run completes;
// the run itself is recorded by the scrape engine, not this transaction.
func (m *Manager) Rescrape(ctx context.Context, alertID int64, force bool) ActionResult {
	r, err := m.begin(ctx, alertID, store.RepairRescrape)
	if err != nil {
		return failed(err)
	}
	var runErr error
	var run *store.ScrapeLog
	if m.rescraper == nil {
		runErr = services.Wrap(services.ErrValidation, "alerts", "rescrape", "rescrape is not available", nil)
	} else {
		run, runErr = m.rescraper.Rescrape(ctx, r.source.ID, force)
		if runErr == nil && !run.Succeeded() {
			runErr = services.Wrap(services.ErrExternal, "alerts", "rescrape", "scrape run failed: "+strings.Join(run.Errors, "; "), nil)
		}
	}
	details := store.RepairDetails{Force: force}
	if run != nil {
		details.Message = "run " + run.RunID
	}
	err = m.mutate(ctx, r, details, func(*store.Tx, *store.RepairDetails) (store.RepairResult, error) {
		return store.RepairSucceeded, runErr
	})
	if err != nil {
		return failed(err)
	}
	return m.finish(ctx, r, ActionResult{Success: true})
}

// CreateAlias maps tag onto kennelID. An alias already pointing at the same
// kennel is an idempotent success; one pointing elsewhere is rejected.
func (m *Manager) CreateAlias(ctx context.Context, alertID int64, tag string, kennelID int64) ActionResult {
	r, err := m.begin(ctx, alertID, store.RepairCreateAlias)
	if err != nil {
		return failed(err)
	}
	tag = textutil.Normalize(tag)
	details := store.RepairDetails{Tag: tag, KennelID: kennelID}
	err = m.mutate(ctx, r, details, func(tx *store.Tx, d *store.RepairDetails) (store.RepairResult, error) {
		if tag == "" {
			return "", services.Wrap(services.ErrValidation, "alerts", "create alias", "tag is required", nil)
		}
		kennel, err := tx.GetKennel(ctx, kennelID)
		if err != nil {
			return "", err
		}
		if kennel == nil {
			return "", services.Wrap(services.ErrNotFound, "alerts", "create alias", fmt.Sprintf("kennel %d not found", kennelID), nil)
		}
		d.Kennel = kennel.ShortName
		existing, err := tx.AliasByText(ctx, tag)
		if err != nil {
			return "", err
		}
		if existing != nil {
			if existing.KennelID == kennelID {
				return store.RepairNoop, nil
			}
			return "", services.Wrap(services.ErrValidation, "alerts", "create alias",
				fmt.Sprintf("alias %q already belongs to kennel %d", existing.Alias, existing.KennelID), nil)
		}
		if _, err := tx.CreateAlias(ctx, kennelID, tag); err != nil {
			return "", err
		}
		return store.RepairSucceeded, nil
	})
	if err != nil {
		return failed(err)
	}
	return m.finish(ctx, r, ActionResult{Success: true, KennelID: kennelID})
}

// CreateKennel creates a kennel for tag together with its seed alias and the
// link to the alert's source. Similar existing kennels produce warnings only.
func (m *Manager) CreateKennel(ctx context.Context, alertID int64, tag string, in KennelInput) ActionResult {
	r, err := m.begin(ctx, alertID, store.RepairCreateKennel)
	if err != nil {
		return failed(err)
	}
	tag = textutil.Normalize(tag)
	kennel := &store.Kennel{
		ShortName:   textutil.Normalize(in.ShortName),
		FullName:    textutil.Normalize(in.FullName),
		Region:      textutil.Normalize(in.Region),
		Country:     textutil.Normalize(in.Country),
		Website:     strings.TrimSpace(in.Website),
		Description: strings.TrimSpace(in.Description),
		FoundedYear: in.FoundedYear,
	}
	if kennel.ShortName == "" {
		kennel.ShortName = tag
	}
	if kennel.FullName == "" {
		kennel.FullName = kennel.ShortName
	}
	kennel.Slug = textutil.Slugify(kennel.ShortName)
	alias := ""
	if !in.NoAlias {
		alias = textutil.Normalize(in.Alias)
		if alias == "" {
			alias = tag
		}
		if textutil.FoldKey(alias) == textutil.FoldKey(kennel.ShortName) {
			alias = ""
		}
	}

	warnings, err := m.similarKennels(ctx, kennel)
	if err != nil {
		return failed(err)
	}

	details := store.RepairDetails{Tag: tag, Kennel: kennel.ShortName}
	err = m.mutate(ctx, r, details, func(tx *store.Tx, d *store.RepairDetails) (store.RepairResult, error) {
		if err := checkKennelCollisions(ctx, tx, kennel); err != nil {
			return "", err
		}
		if alias != "" {
			existing, err := tx.AliasByText(ctx, alias)
			if err != nil {
				return "", err
			}
			if existing != nil {
				return "", services.Wrap(services.ErrValidation, "alerts", "create kennel",
					fmt.Sprintf("alias %q already belongs to kennel %d", existing.Alias, existing.KennelID), nil)
			}
		}
		if err := tx.CreateKennel(ctx, kennel); err != nil {
			return "", err
		}
		d.KennelID = kennel.ID
		if alias != "" {
			if _, err := tx.CreateAlias(ctx, kennel.ID, alias); err != nil {
				return "", err
			}
		}
		if _, err := tx.LinkSourceKennel(ctx, r.source.ID, kennel.ID); err != nil {
			return "", err
		}
		return store.RepairSucceeded, nil
	})
	if err != nil {
		res := failed(err)
		res.Warnings = warnings
		return res
	}
	return m.finish(ctx, r, ActionResult{Success: true, KennelID: kennel.ID, Warnings: warnings})
}

func checkKennelCollisions(ctx context.Context, tx *store.Tx, k *store.Kennel) error {
	if k.Slug == "" {
		return services.Wrap(services.ErrValidation, "alerts", "create kennel", "short name must contain letters or digits", nil)
	}
	reject := func(msg string) error {
		return services.Wrap(services.ErrValidation, "alerts", "create kennel", msg, nil)
	}
	if existing, err := tx.KennelByShortName(ctx, k.ShortName); err != nil {
		return err
	} else if existing != nil {
		return reject(fmt.Sprintf("short name %q is taken by kennel %d", k.ShortName, existing.ID))
	}
	if existing, err := tx.KennelBySlug(ctx, k.Slug); err != nil {
		return err
	} else if existing != nil {
		return reject(fmt.Sprintf("slug %q is taken by kennel %s", k.Slug, existing.ShortName))
	}
	if existing, err := tx.KennelByNameRegion(ctx, k.FullName, k.Region); err != nil {
		return err
	} else if existing != nil {
		return reject(fmt.Sprintf("kennel %q already exists in region %q as %s", k.FullName, k.Region, existing.ShortName))
	}
	return nil
}

func (m *Manager) similarKennels(ctx context.Context, k *store.Kennel) ([]string, error) {
	kennels, err := m.store.ListKennels(ctx)
	if err != nil {
		return nil, err
	}
	if len(kennels) == 0 {
		return nil, nil
	}
	fullNames := make([]string, len(kennels))
	shortNames := make([]string, len(kennels))
	for i, existing := range kennels {
		fullNames[i] = existing.FullName
		shortNames[i] = existing.ShortName
	}
	best := make(map[int]float64)
	var order []int
	collect := func(query string, candidates []string) {
		for _, match := range textutil.TopMatches(query, candidates, 3) {
			if match.Score < m.cfg.SimilarKennelScore {
				continue
			}
			prev, seen := best[match.Index]
			if !seen {
				order = append(order, match.Index)
			}
			if match.Score > prev {
				best[match.Index] = match.Score
			}
		}
	}
	collect(k.FullName, fullNames)
	collect(k.ShortName, shortNames)

	warnings := make([]string, 0, len(order))
	for _, idx := range order {
		existing := kennels[idx]
		warnings = append(warnings, fmt.Sprintf("similar kennel exists: %s (%s, score %.2f)",
			existing.ShortName, existing.FullName, best[idx]))
	}
	return warnings, nil
}

// LinkKennelToSource links the kennel tag resolves to with the alert's source.
func (m *Manager) LinkKennelToSource(ctx context.Context, alertID int64, tag string) ActionResult {
	r, err := m.begin(ctx, alertID, store.RepairLinkKennel)
	if err != nil {
		return failed(err)
	}
	tag = textutil.Normalize(tag)
	var kennelID int64
	details := store.RepairDetails{Tag: tag}
	err = m.mutate(ctx, r, details, func(tx *store.Tx, d *store.RepairDetails) (store.RepairResult, error) {
		res, err := resolver.New(tx, m.logger).ResolveForSource(ctx, tag, r.source)
		if err != nil {
			return "", err
		}
		if !res.Matched {
			return "", services.Wrap(services.ErrValidation, "alerts", "link kennel",
				fmt.Sprintf("tag %q does not resolve to a kennel", tag), nil)
		}
		d.KennelID, d.Kennel = res.KennelID, res.ShortName
		linked, err := tx.IsLinked(ctx, r.source.ID, res.KennelID)
		if err != nil {
			return "", err
		}
		if linked {
			return "", services.Wrap(services.ErrValidation, "alerts", "link kennel",
				fmt.Sprintf("kennel %s is already linked to %s", res.ShortName, r.source.Name), nil)
		}
		if _, err := tx.LinkSourceKennel(ctx, r.source.ID, res.KennelID); err != nil {
			return "", err
		}
		kennelID = res.KennelID
		return store.RepairSucceeded, nil
	})
	if err != nil {
		return failed(err)
	}
	return m.finish(ctx, r, ActionResult{Success: true, KennelID: kennelID})
}

// FileExternalIssue exports the alert to the issue tracker. The alert's
// status never changes, whatever the outcome.
func (m *Manager) FileExternalIssue(ctx context.Context, alertID int64) ActionResult {
	r, err := m.begin(ctx, alertID, store.RepairExternalIssue)
	if err != nil {
		return failed(err)
	}
	var (
		url     string
		fileErr error
	)
	if m.issues == nil {
		fileErr = tracker.ErrNotConfigured
	} else {
		url, fileErr = m.issues.CreateIssue(ctx, buildIssue(r.alert, r.source))
	}
	if errors.Is(fileErr, tracker.ErrNotConfigured) {
		fileErr = services.Wrap(services.ErrValidation, "alerts", "file issue", "issue tracker not configured", nil)
	}
	err = m.mutate(ctx, r, store.RepairDetails{IssueURL: url}, func(*store.Tx, *store.RepairDetails) (store.RepairResult, error) {
		return store.RepairSucceeded, fileErr
	})
	if err != nil {
		return failed(err)
	}
	return ActionResult{Success: true, IssueURL: url}
}

func buildIssue(a *store.Alert, src *store.Source) tracker.Issue {
	var b strings.Builder
	fmt.Fprintf(&b, "**Source:** %s (%s)\n", src.Name, src.URL)
	fmt.Fprintf(&b, "**Type:** %s\n**Severity:** %s\n**Status:** %s\n", a.Type, a.Severity, a.Status)
	fmt.Fprintf(&b, "**Opened:** %s\n", a.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	if a.Context != nil {
		if raw, err := json.MarshalIndent(a.Context, "", "  "); err == nil {
			fmt.Fprintf(&b, "\n```json\n%s\n```\n", raw)
		}
	}
	fmt.Fprintf(&b, "\nhashsync alert #%d", a.ID)
	return tracker.Issue{
		Title:  fmt.Sprintf("[%s] %s", a.Type, a.Title),
		Body:   b.String(),
		Labels: []string{strings.ToLower(string(a.Type))},
	}
}
