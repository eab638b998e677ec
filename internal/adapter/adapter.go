package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"hashsync/internal/store"
)

// RawEvent is one candidate as emitted by a source, before tag resolution.
type RawEvent struct {
	Tag       string `json:"tag"`
	Date      string `json:"date"`
	Title     string `json:"title,omitempty"`
	Location  string `json:"location,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	Hares     string `json:"hares,omitempty"`
	SourceURL string `json:"url,omitempty"`
	RunNumber *int   `json:"run_number,omitempty"`
}

// FetchResult is the output of one fetch.
type FetchResult struct {
	Events []RawEvent
	// Structure is the source's structural signature, such as its tag
	// hierarchy or column headers. Empty when the adapter has none.
	Structure []string
	// Errors lists per-record problems that did not stop the fetch.
	Errors []string
}

// Adapter fetches raw events from one kind of source.
type Adapter interface {
	Type() string
	Fetch(ctx context.Context, src *store.Source) (FetchResult, error)
}

// Registry maps source types to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry builds a registry holding adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Type().
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Type()] = a
}

// Lookup returns the adapter for a source type.
func (r *Registry) Lookup(sourceType string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[sourceType]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source type %q", sourceType)
	}
	return a, nil
}

// Types lists registered source types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
