package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ContextKind discriminates the alert context union.
type ContextKind string

const (
	ContextUnmatchedTags   ContextKind = "unmatched_tags"
	ContextEventCount      ContextKind = "event_count"
	ContextFieldFill       ContextKind = "field_fill"
	ContextStructureChange ContextKind = "structure_change"
	ContextScrapeFailure   ContextKind = "scrape_failure"
	ContextKennelMismatch  ContextKind = "kennel_mismatch"
)

// AlertContext is the typed payload attached to an alert. Each alert type
// carries exactly one variant.
type AlertContext interface {
	Kind() ContextKind
	// ContextTags lists tags a repair can re-resolve; nil for tagless variants.
	ContextTags() []string
}

// UnmatchedTagsContext lists tags that failed resolution in a run.
type UnmatchedTagsContext struct {
	Tags  []string `json:"tags"`
	RunID string   `json:"run_id,omitempty"`
}

func (UnmatchedTagsContext) Kind() ContextKind       { return ContextUnmatchedTags }
func (c UnmatchedTagsContext) ContextTags() []string { return c.Tags }

// EventCountContext compares a run's event count to the baseline.
type EventCountContext struct {
	Current         int     `json:"current"`
	BaselineAverage float64 `json:"baseline_average"`
	BaselineRuns    int     `json:"baseline_runs"`
	DropPercent     float64 `json:"drop_percent"`
}

func (EventCountContext) Kind() ContextKind     { return ContextEventCount }
func (EventCountContext) ContextTags() []string { return nil }

// FieldDrop is one field whose fill rate fell below its baseline.
type FieldDrop struct {
	Field      string  `json:"field"`
	Baseline   float64 `json:"baseline"`
	Current    float64 `json:"current"`
	DropPoints float64 `json:"drop_points"`
}

// FieldFillContext lists the fields whose fill rate dropped.
type FieldFillContext struct {
	Drops []FieldDrop `json:"drops"`
}

func (FieldFillContext) Kind() ContextKind     { return ContextFieldFill }
func (FieldFillContext) ContextTags() []string { return nil }

// StructureChangeContext records the previous and current structure hash.
type StructureChangeContext struct {
	PreviousHash string `json:"previous_hash"`
	CurrentHash  string `json:"current_hash"`
}

func (StructureChangeContext) Kind() ContextKind     { return ContextStructureChange }
func (StructureChangeContext) ContextTags() []string { return nil }

// ScrapeFailureContext records fetch failures.
type ScrapeFailureContext struct {
	Errors              []string `json:"errors"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
}

func (ScrapeFailureContext) Kind() ContextKind     { return ContextScrapeFailure }
func (ScrapeFailureContext) ContextTags() []string { return nil }

// MismatchedKennel is a kennel a tag resolved to without a source link.
type MismatchedKennel struct {
	Tag       string `json:"tag"`
	KennelID  int64  `json:"kennel_id"`
	ShortName string `json:"short_name"`
}

// KennelMismatchContext lists tags resolving to kennels not linked to the source.
type KennelMismatchContext struct {
	Tags    []string           `json:"tags"`
	Kennels []MismatchedKennel `json:"kennels"`
}

func (KennelMismatchContext) Kind() ContextKind       { return ContextKennelMismatch }
func (c KennelMismatchContext) ContextTags() []string { return c.Tags }

// ContextKindFor returns the context variant an alert type carries.
func ContextKindFor(t AlertType) ContextKind {
	switch t {
	case AlertUnmatchedTags:
		return ContextUnmatchedTags
	case AlertEventCountAnomaly:
		return ContextEventCount
	case AlertFieldFillDrop:
		return ContextFieldFill
	case AlertStructureChange:
		return ContextStructureChange
	case AlertScrapeFailure, AlertConsecutiveFailures:
		return ContextScrapeFailure
	case AlertSourceKennelMismatch:
		return ContextKennelMismatch
	default:
		return ""
	}
}

type contextEnvelope struct {
	Type ContextKind     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalAlertContext encodes a context as {"type": ..., "data": ...}.
func MarshalAlertContext(c AlertContext) (string, error) {
	if c == nil {
		return "", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode alert context: %w", err)
	}
	out, err := json.Marshal(contextEnvelope{Type: c.Kind(), Data: data})
	if err != nil {
		return "", fmt.Errorf("encode alert context: %w", err)
	}
	return string(out), nil
}

// UnmarshalAlertContext decodes a persisted context envelope.
func UnmarshalAlertContext(raw string) (AlertContext, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var env contextEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decode alert context: %w", err)
	}
	var target AlertContext
	var err error
	switch env.Type {
	case ContextUnmatchedTags:
		var c UnmatchedTagsContext
		err = json.Unmarshal(env.Data, &c)
		target = c
	case ContextEventCount:
		var c EventCountContext
		err = json.Unmarshal(env.Data, &c)
		target = c
	case ContextFieldFill:
		var c FieldFillContext
		err = json.Unmarshal(env.Data, &c)
		target = c
	case ContextStructureChange:
		var c StructureChangeContext
		err = json.Unmarshal(env.Data, &c)
		target = c
	case ContextScrapeFailure:
		var c ScrapeFailureContext
		err = json.Unmarshal(env.Data, &c)
		target = c
	case ContextKennelMismatch:
		var c KennelMismatchContext
		err = json.Unmarshal(env.Data, &c)
		target = c
	default:
		return nil, fmt.Errorf("decode alert context: unknown type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode alert context %s: %w", env.Type, err)
	}
	return target, nil
}

// MergeContexts folds a fresh detection into an existing context. Tag-bearing
// variants union their tags; every other variant takes the newer payload.
func MergeContexts(existing, fresh AlertContext) AlertContext {
	if existing == nil || fresh == nil || existing.Kind() != fresh.Kind() {
		return fresh
	}
	switch prev := existing.(type) {
	case UnmatchedTagsContext:
		next := fresh.(UnmatchedTagsContext)
		next.Tags = UnionTags(prev.Tags, next.Tags)
		return next
	case KennelMismatchContext:
		next := fresh.(KennelMismatchContext)
		next.Tags = UnionTags(prev.Tags, next.Tags)
		seen := make(map[string]struct{}, len(next.Kennels))
		for _, k := range next.Kennels {
			seen[strings.ToLower(k.Tag)] = struct{}{}
		}
		for _, k := range prev.Kennels {
			if _, ok := seen[strings.ToLower(k.Tag)]; !ok {
				next.Kennels = append(next.Kennels, k)
			}
		}
		return next
	}
	return fresh
}

// UnionTags merges tag lists case-insensitively, keeping first spellings, sorted.
func UnionTags(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, list := range lists {
		for _, tag := range list {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, tag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}
