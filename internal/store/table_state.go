package store

import (
	"context"
	"errors"
	"fmt"
)

// TableStateRepo persists one JSON blob of grid state per resource name.
type TableStateRepo struct {
	store *Store
}

func NewTableStateRepo(s *Store) *TableStateRepo {
	return &TableStateRepo{store: s}
}

// Get returns the stored blob for resource, or ErrNotFound.
func (r *TableStateRepo) Get(ctx context.Context, resource string) ([]byte, error) {
	d := r.store.Dialect
	row, err := QueryRow(ctx, r.store.DB,
		fmt.Sprintf("SELECT state FROM _table_state WHERE resource = %s", d.Placeholder(1)),
		resource)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get table state %s: %w", resource, err)
	}
	switch v := row["state"].(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("get table state %s: unexpected column type %T", resource, v)
	}
}

// Put replaces the stored blob for resource.
func (r *TableStateRepo) Put(ctx context.Context, resource string, state []byte) error {
	d := r.store.Dialect
	sqlStr := fmt.Sprintf(
		"INSERT INTO _table_state (resource, state, updated_at) VALUES (%s, %s, %s) "+
			"ON CONFLICT (resource) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at",
		d.Placeholder(1), d.Placeholder(2), d.NowExpr())
	if _, err := Exec(ctx, r.store.DB, sqlStr, resource, string(state)); err != nil {
		return fmt.Errorf("put table state %s: %w", resource, err)
	}
	return nil
}
