// Package resolver maps free-text source tags onto canonical kennels.
//
// Resolution order, first hit wins: exact short name, case-insensitive alias,
// the source's ordered patterns, the source's default tag. A Resolver caches
// results for one logical operation; callers that mutate kennels, aliases, or
// source patterns call ClearCache before resolving again.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"hashsync/internal/logging"
	"hashsync/internal/store"
)

// Step records which rule produced a resolution.
type Step string

const (
	StepShortName Step = "short_name"
	StepAlias     Step = "alias"
	StepPattern   Step = "pattern"
	// StepDefault marks a fallback to the source's default tag. It counts as
	// matched, so callers that want to audit fallbacks must check Step.
	StepDefault Step = "default"
	StepNone    Step = "none"
)

// Result is the outcome of resolving one tag.
type Result struct {
	Tag       string `json:"tag"`
	Matched   bool   `json:"matched"`
	KennelID  int64  `json:"kennel_id,omitempty"`
	ShortName string `json:"short_name,omitempty"`
	Step      Step   `json:"step"`
}

// Lookup is the store surface the resolver reads. Both *store.Store and
// *store.Tx satisfy it.
type Lookup interface {
	KennelByShortName(ctx context.Context, shortName string) (*store.Kennel, error)
	KennelByAlias(ctx context.Context, alias string) (*store.Kennel, error)
}

type cacheKey struct {
	sourceID int64
	tag      string
}

// Resolver resolves tags with a per-operation cache.
type Resolver struct {
	lookup Lookup
	logger *slog.Logger

	mu       sync.Mutex
	cache    map[cacheKey]Result
	patterns map[string]*regexp.Regexp
	hits     int
}

// New constructs a resolver over lookup.
func New(lookup Lookup, logger *slog.Logger) *Resolver {
	return &Resolver{
		lookup:   lookup,
		logger:   logging.NewComponentLogger(logger, "resolver"),
		cache:    make(map[cacheKey]Result),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// ClearCache drops every cached resolution.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey]Result)
	r.hits = 0
}

// CacheHits returns how many resolutions were served from cache since the last clear.
func (r *Resolver) CacheHits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits
}

// Resolve resolves a tag without source-specific rules.
func (r *Resolver) Resolve(ctx context.Context, tag string) (Result, error) {
	return r.ResolveForSource(ctx, tag, nil)
}

// ResolveForSource resolves a tag, applying src's patterns and default tag
// when the global rules miss. src may be nil.
func (r *Resolver) ResolveForSource(ctx context.Context, tag string, src *store.Source) (Result, error) {
	tag = strings.TrimSpace(tag)
	key := cacheKey{tag: tag}
	if src != nil {
		key.sourceID = src.ID
	}

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.hits++
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	result, err := r.resolve(ctx, tag, src)
	if err != nil {
		return Result{Tag: tag, Step: StepNone}, err
	}

	r.mu.Lock()
	r.cache[key] = result
	r.mu.Unlock()
	return result, nil
}

func (r *Resolver) resolve(ctx context.Context, tag string, src *store.Source) (Result, error) {
	if tag != "" {
		if res, ok, err := r.resolveGlobal(ctx, tag); err != nil || ok {
			return res, err
		}
		if src != nil {
			if res, ok, err := r.resolvePatterns(ctx, tag, src); err != nil || ok {
				return res, err
			}
		}
	}

	if src != nil && strings.TrimSpace(src.Config.DefaultTag) != "" {
		res, ok, err := r.resolveGlobal(ctx, strings.TrimSpace(src.Config.DefaultTag))
		if err != nil {
			return Result{}, err
		}
		if ok {
			res.Tag = tag
			res.Step = StepDefault
			return res, nil
		}
		r.logger.Warn("source default tag does not resolve",
			logging.SourceID(src.ID),
			logging.String("default_tag", src.Config.DefaultTag),
			logging.String(logging.FieldEventType, "default_tag_unresolved"),
			logging.String(logging.FieldErrorHint, "fix the source default_tag or create the kennel"),
		)
	}
	return Result{Tag: tag, Step: StepNone}, nil
}

func (r *Resolver) resolveGlobal(ctx context.Context, tag string) (Result, bool, error) {
	k, err := r.lookup.KennelByShortName(ctx, tag)
	if err != nil {
		return Result{}, false, fmt.Errorf("resolve %q by short name: %w", tag, err)
	}
	if k != nil {
		return matched(tag, k, StepShortName), true, nil
	}
	k, err = r.lookup.KennelByAlias(ctx, tag)
	if err != nil {
		return Result{}, false, fmt.Errorf("resolve %q by alias: %w", tag, err)
	}
	if k != nil {
		return matched(tag, k, StepAlias), true, nil
	}
	return Result{}, false, nil
}

func (r *Resolver) resolvePatterns(ctx context.Context, tag string, src *store.Source) (Result, bool, error) {
	for _, p := range src.Config.Patterns {
		re := r.compile(src, p.Pattern)
		if re == nil || !re.MatchString(tag) {
			continue
		}
		k, err := r.lookup.KennelByShortName(ctx, p.Kennel)
		if err != nil {
			return Result{}, false, fmt.Errorf("resolve pattern target %q: %w", p.Kennel, err)
		}
		if k == nil {
			r.logger.Warn("source pattern targets unknown kennel",
				logging.SourceID(src.ID),
				logging.String("pattern", p.Pattern),
				logging.String("kennel", p.Kennel),
				logging.String(logging.FieldEventType, "pattern_target_missing"),
				logging.String(logging.FieldErrorHint, "create the kennel or fix the pattern"),
			)
			continue
		}
		return matched(tag, k, StepPattern), true, nil
	}
	return Result{}, false, nil
}

func (r *Resolver) compile(src *store.Source, pattern string) *regexp.Regexp {
	r.mu.Lock()
	defer r.mu.Unlock()
	if re, ok := r.patterns[pattern]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		r.logger.Warn("invalid source pattern skipped",
			logging.SourceID(src.ID),
			logging.String("pattern", pattern),
			logging.Error(err),
			logging.String(logging.FieldEventType, "pattern_invalid"),
			logging.String(logging.FieldErrorHint, "fix the regular expression in the source config"),
		)
		re = nil
	}
	r.patterns[pattern] = re
	return re
}

func matched(tag string, k *store.Kennel, step Step) Result {
	return Result{Tag: tag, Matched: true, KennelID: k.ID, ShortName: k.ShortName, Step: step}
}
