package instrument

import (
	"context"
	"database/sql"
	"log"
	"strconv"
	"time"

	"panel-runtime/internal/store"
)

// CleanupOldEvents deletes events older than retentionDays.
func CleanupOldEvents(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int) (int64, error) {
	pb := dialect.NewParamBuilder()
	where := dialect.IntervalDeleteExpr("created_at", pb, strconv.Itoa(retentionDays))
	n, err := store.Exec(ctx, db, "DELETE FROM _events WHERE "+where, pb.Params()...)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("Event cleanup: deleted %d old events", n)
	}
	return n, nil
}

// StartCleanup runs CleanupOldEvents once an hour until ctx is done.
func StartCleanup(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			if _, err := CleanupOldEvents(ctx, db, dialect, retentionDays); err != nil {
				log.Printf("ERROR: event cleanup: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
