package instrument

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"panel-runtime/internal/store"
)

var eventColumns = []string{
	"trace_id", "span_id", "parent_span_id", "event_type", "source", "component",
	"action", "page", "row_id", "user_id", "duration_ms", "status", "metadata",
}

// EventBuffer collects events in memory and writes them to _events in
// batches, on a timer or as soon as maxSize events are pending.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Event
	db      *sql.DB
	dialect store.Dialect
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	metrics *Metrics
}

// SetMetrics counts events lost to failed flushes on m.
func (eb *EventBuffer) SetMetrics(m *Metrics) {
	eb.mu.Lock()
	eb.metrics = m
	eb.mu.Unlock()
}

func NewEventBuffer(db *sql.DB, dialect store.Dialect, maxSize int, flushIntervalMs int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 100
	}
	eb := &EventBuffer{
		db:      db,
		dialect: dialect,
		maxSize: maxSize,
		done:    make(chan struct{}),
		ticker:  time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond),
	}
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush()
		}
	}
}

func (eb *EventBuffer) Enqueue(event Event) {
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	full := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if full {
		go eb.Flush()
	}
}

// Pending returns the number of events not yet written.
func (eb *EventBuffer) Pending() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.events)
}

// Flush writes all pending events in one multi-row insert.
func (eb *EventBuffer) Flush() {
	eb.mu.Lock()
	if len(eb.events) == 0 {
		eb.mu.Unlock()
		return
	}
	batch := eb.events
	eb.events = nil
	metrics := eb.metrics
	eb.mu.Unlock()

	ctx := context.Background()
	tx, err := eb.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("ERROR: event buffer begin tx: %v", err)
		metrics.RecordDropped(len(batch))
		return
	}
	if syncOff := eb.dialect.SyncCommitOff(); syncOff != "" {
		if _, err := tx.ExecContext(ctx, syncOff); err != nil {
			tx.Rollback()
			log.Printf("ERROR: event buffer set sync commit: %v", err)
			metrics.RecordDropped(len(batch))
			return
		}
	}

	placeholders := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*len(eventColumns))
	for i, e := range batch {
		ph := make([]string, len(eventColumns))
		for j := range eventColumns {
			ph[j] = eb.dialect.Placeholder(i*len(eventColumns) + j + 1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")

		var metaJSON any
		if len(e.Metadata) > 0 {
			b, _ := json.Marshal(e.Metadata)
			metaJSON = string(b)
		}
		args = append(args, e.TraceID, e.SpanID, e.ParentSpanID, e.EventType, e.Source, e.Component,
			e.Action, e.Page, e.RowID, e.UserID, e.DurationMs, e.Status, metaJSON)
	}

	sqlStr := fmt.Sprintf("INSERT INTO _events (%s) VALUES %s",
		strings.Join(eventColumns, ","), strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		tx.Rollback()
		log.Printf("ERROR: event buffer insert: %v", err)
		metrics.RecordDropped(len(batch))
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("ERROR: event buffer commit: %v", err)
		metrics.RecordDropped(len(batch))
	}
}

// Stop halts the ticker and flushes what is left.
func (eb *EventBuffer) Stop() {
	eb.ticker.Stop()
	close(eb.done)
	eb.Flush()
}
