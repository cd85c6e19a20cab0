// Package memory keeps run history in process memory. Runs are lost on
// restart. With a size limit the least recently used run is evicted.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/rhuss/finquery/pkg/history"
)

type entry struct {
	run  *history.Run
	elem *list.Element
}

// Store is an in-memory history.Store.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

var _ history.Store = (*Store)(nil)

// New returns a store holding at most maxSize runs, or unlimited when
// maxSize is 0.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

// Save stores a copy of run under the context tenant.
func (s *Store) Save(ctx context.Context, run *history.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[run.ID]; exists {
		return history.ErrConflict
	}
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	r := *run
	r.Tenant = history.TenantFrom(ctx)
	s.entries[r.ID] = &entry{run: &r, elem: s.lru.PushFront(r.ID)}
	return nil
}

// Get returns a copy of the run and marks it recently used.
func (s *Store) Get(ctx context.Context, id string) (*history.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || !visible(ctx, e.run) {
		return nil, history.ErrNotFound
	}
	s.lru.MoveToFront(e.elem)
	r := *e.run
	return &r, nil
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, opts history.ListOptions) (*history.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []*history.Run
	for _, e := range s.entries {
		if !visible(ctx, e.run) {
			continue
		}
		if opts.Tool != "" && e.run.ToolUsed != opts.Tool {
			continue
		}
		matches = append(matches, e.run)
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})

	if opts.After != "" {
		idx := -1
		for i, r := range matches {
			if r.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	}

	limit := opts.EffectiveLimit()
	page := &history.Page{HasMore: len(matches) > limit}
	if page.HasMore {
		matches = matches[:limit]
	}
	page.Runs = make([]*history.Run, 0, len(matches))
	for _, r := range matches {
		c := *r
		page.Runs = append(page.Runs, &c)
	}
	return page, nil
}

// Len returns the number of stored runs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// HealthCheck always succeeds.
func (s *Store) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func visible(ctx context.Context, r *history.Run) bool {
	tenant := history.TenantFrom(ctx)
	return tenant == "" || r.Tenant == tenant
}

// evictOldest drops the least recently used run. Callers hold s.mu.
func (s *Store) evictOldest() {
	back := s.lru.Back()
	if back == nil {
		return
	}
	s.lru.Remove(back)
	delete(s.entries, back.Value.(string))
}
