package engine

import (
	"context"
	"net/http"
	"sync"

	"panel-runtime/internal/metadata"
)

type recordedCall struct {
	Op      string
	Payload any
}

// fakeOps records every call and answers from a per-operation table.
type fakeOps struct {
	mu      sync.Mutex
	calls   []recordedCall
	results map[string]*OperationResult
	errs    map[string]error
	// block, when set, is waited on inside Call after entered is signalled.
	block   chan struct{}
	entered chan struct{}
}

func newFakeOps() *fakeOps {
	return &fakeOps{results: map[string]*OperationResult{}, errs: map[string]error{}}
}

func (f *fakeOps) Call(ctx context.Context, _ *metadata.PageDefinition, op string, payload any) (*OperationResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Op: op, Payload: payload})
	res, err := f.results[op], f.errs[op]
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &OperationResult{Status: http.StatusOK}, nil
	}
	return res, nil
}

func (f *fakeOps) callsTo(op string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeOps) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func okList(rows ...map[string]any) *OperationResult {
	list := make([]any, len(rows))
	for i, r := range rows {
		list[i] = r
	}
	return &OperationResult{Status: http.StatusOK, Data: map[string]any{"list": list, "total": float64(len(rows))}}
}

func testUser(roles ...string) *metadata.UserContext {
	return &metadata.UserContext{ID: "op-1", Roles: roles}
}
