package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcomes recorded for webhook deliveries and manual purges.
const (
	OutcomeRevalidated  = "revalidated"
	OutcomeUnauthorized = "unauthorized"
	OutcomeBadRequest   = "bad_request"
	OutcomeFailed       = "failed"
	OutcomePurged       = "purged"
)

type Event struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"receivedAt"`
	Type       string    `json:"type,omitempty"`
	Slug       string    `json:"slug,omitempty"`
	Outcome    string    `json:"outcome"`
	Targets    []string  `json:"targets"`
	Purged     int       `json:"purged"`
	Error      string    `json:"error,omitempty"`
}

type Events struct {
	DB *sql.DB
}

// Record appends e to the log, filling ID and ReceivedAt when empty.
func (s *Events) Record(ctx context.Context, e Event) (Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	e.ReceivedAt = e.ReceivedAt.UTC().Truncate(time.Millisecond)
	if e.Targets == nil {
		e.Targets = []string{}
	}
	targets, err := json.Marshal(e.Targets)
	if err != nil {
		return e, err
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO revalidation_events (id, received_at, doc_type, slug, outcome, targets, purged, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ReceivedAt.UnixMilli(), e.Type, e.Slug, e.Outcome, string(targets), e.Purged, e.Error)
	if err != nil {
		return e, fmt.Errorf("insert revalidation event: %w", err)
	}
	return e, nil
}

// Recent returns up to limit events, newest first.
func (s *Events) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, received_at, doc_type, slug, outcome, targets, purged, error
		FROM revalidation_events ORDER BY received_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query revalidation events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e        Event
			received int64
			targets  string
		)
		if err := rows.Scan(&e.ID, &received, &e.Type, &e.Slug, &e.Outcome, &targets, &e.Purged, &e.Error); err != nil {
			return nil, err
		}
		e.ReceivedAt = time.UnixMilli(received).UTC()
		if err := json.Unmarshal([]byte(targets), &e.Targets); err != nil {
			return nil, fmt.Errorf("decode targets of %s: %w", e.ID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
