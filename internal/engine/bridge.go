package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"panel-runtime/internal/metadata"
	"panel-runtime/internal/store"
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"

	// DefaultPageSize applies when neither the change nor the page sets one.
	DefaultPageSize = 10
)

// Pagination is the table's paging state. Current is 1-based.
type Pagination struct {
	Current  int `json:"current"`
	PageSize int `json:"pageSize"`
}

// Sorter is one sorted column as the table reports it: ascend or descend.
type Sorter struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

// TableChange is a table's paging, filter and sort state after a UI event.
type TableChange struct {
	Pagination Pagination     `json:"pagination"`
	Filters    map[string]any `json:"filters,omitempty"` // in-column filters
	Search     map[string]any `json:"search,omitempty"`  // search form
	Sorter     []Sorter       `json:"sorter,omitempty"`
}

// RawFilters merges the column filters and the search form, search winning.
func (t TableChange) RawFilters() map[string]any {
	return mergeMaps(t.Filters, t.Search)
}

// FetchRequest is the normalized list request sent to a read operation.
type FetchRequest struct {
	Skip   int                 `json:"skip"`
	Limit  int                 `json:"limit"`
	Sort   []map[string]string `json:"sort"`
	Filter map[string]any      `json:"filter"`
}

// OnTableChange normalizes a table change into a fetch request. Raw filter
// values for fields that are not grid columns pass through; for grid columns
// the compiled predicate replaces the raw value.
func OnTableChange(change TableChange, columns []metadata.GridColumn, static map[string]any) FetchRequest {
	pageSize := change.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	current := change.Pagination.Current
	if current < 1 {
		current = 1
	}

	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c.Field] = true
	}
	raw := change.RawFilters()
	filter := make(map[string]any, len(raw))
	for k, v := range raw {
		if !known[k] && v != nil {
			filter[k] = v
		}
	}
	for k, v := range CompileFilters(raw, columns, static) {
		filter[k] = v
	}

	return FetchRequest{
		Skip:   pageSize * (current - 1),
		Limit:  pageSize,
		Sort:   sortOrder(change.Sorter),
		Filter: filter,
	}
}

func sortOrder(sorters []Sorter) []map[string]string {
	var out []map[string]string
	for _, s := range sorters {
		if s.Field == "" {
			continue
		}
		switch s.Order {
		case "ascend", SortAsc:
			out = append(out, map[string]string{s.Field: SortAsc})
		case "descend", SortDesc:
			out = append(out, map[string]string{s.Field: SortDesc})
		}
	}
	if len(out) == 0 {
		return []map[string]string{{"id": SortDesc}}
	}
	return out
}

// PageCount is the number of pages needed for count rows.
func PageCount(count, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}

// TableStateStore keeps the last table state per resource name.
type TableStateStore interface {
	Get(ctx context.Context, resource string) (*TableChange, bool, error)
	Set(ctx context.Context, resource string, state TableChange) error
}

// MemoryTableStates keeps table states as JSON blobs in process memory.
type MemoryTableStates struct {
	mu     sync.RWMutex
	states map[string][]byte
}

func NewMemoryTableStates() *MemoryTableStates {
	return &MemoryTableStates{states: make(map[string][]byte)}
}

func (m *MemoryTableStates) Get(_ context.Context, resource string) (*TableChange, bool, error) {
	m.mu.RLock()
	blob, ok := m.states[resource]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	var state TableChange
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, false, fmt.Errorf("decode table state %s: %w", resource, err)
	}
	return &state, true, nil
}

func (m *MemoryTableStates) Set(_ context.Context, resource string, state TableChange) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode table state %s: %w", resource, err)
	}
	m.mu.Lock()
	m.states[resource] = blob
	m.mu.Unlock()
	return nil
}

// SQLTableStates persists table states in the _table_state table.
type SQLTableStates struct {
	repo *store.TableStateRepo
}

func NewSQLTableStates(s *store.Store) *SQLTableStates {
	return &SQLTableStates{repo: store.NewTableStateRepo(s)}
}

func (s *SQLTableStates) Get(ctx context.Context, resource string) (*TableChange, bool, error) {
	blob, err := s.repo.Get(ctx, resource)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var state TableChange
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, false, fmt.Errorf("decode table state %s: %w", resource, err)
	}
	return &state, true, nil
}

func (s *SQLTableStates) Set(ctx context.Context, resource string, state TableChange) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode table state %s: %w", resource, err)
	}
	return s.repo.Put(ctx, resource, blob)
}

// Coordinator keeps one live fetch per resource. Starting a fetch cancels the
// context of the previous one for the same resource, and the previous call
// then returns ErrSuperseded whatever its outcome.
type Coordinator struct {
	mu      sync.Mutex
	seq     map[string]uint64
	cancels map[string]context.CancelFunc
}

func NewCoordinator() *Coordinator {
	return &Coordinator{seq: make(map[string]uint64), cancels: make(map[string]context.CancelFunc)}
}

// Do runs fn as the latest fetch for resource.
func (c *Coordinator) Do(ctx context.Context, resource string, fn func(ctx context.Context) error) error {
	return c.DoAndCommit(ctx, resource, fn, nil)
}

// DoAndCommit is Do with a commit step that runs only when fn succeeded and
// no newer fetch for resource has started. Commit runs under the coordinator
// lock, so commits for one resource land in the order the fetches started.
func (c *Coordinator) DoAndCommit(ctx context.Context, resource string, fn func(ctx context.Context) error, commit func()) error {
	c.mu.Lock()
	c.seq[resource]++
	mine := c.seq[resource]
	if cancel, ok := c.cancels[resource]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancels[resource] = cancel
	c.mu.Unlock()

	err := fn(ctx)

	c.mu.Lock()
	latest := c.seq[resource] == mine
	if latest {
		delete(c.cancels, resource)
		if err == nil && commit != nil {
			commit()
		}
	}
	c.mu.Unlock()
	cancel()

	if !latest {
		return ErrSuperseded
	}
	return err
}
