package store

import (
	"context"
	"fmt"
	"log"
)

// Bootstrap creates the runtime's system tables if they do not exist.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	log.Printf("System tables ready (%s)", s.Dialect.Name())
	return nil
}
