package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"btl-backend/internal/models"
	"btl-backend/internal/util"
)

// AllocateNext atomically increments and returns the counter for (kind, key),
// creating it at 1 if absent. Linearizable per key: the upsert-increment runs
// as a single statement, so concurrent callers never receive the same value.
func (s *Store) AllocateNext(ctx context.Context, kind models.CounterKind, key string) (int, error) {
	const query = `
		INSERT INTO counters (kind, key, sequence_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (kind, key)
		DO UPDATE SET sequence_value = counters.sequence_value + 1
		RETURNING sequence_value`

	var seq int
	if err := s.db.GetContext(ctx, &seq, query, string(kind), key); err != nil {
		return 0, fmt.Errorf("failed to allocate sequence for %s/%s: %w", kind, key, err)
	}

	util.SequenceAllocationsTotal.WithLabelValues(string(kind)).Inc()
	return seq, nil
}

// PeekCurrent returns the current counter value without mutating it,
// or 0 if the counter does not exist.
func (s *Store) PeekCurrent(ctx context.Context, kind models.CounterKind, key string) (int, error) {
	var seq int
	err := s.db.GetContext(ctx, &seq,
		"SELECT sequence_value FROM counters WHERE kind = $1 AND key = $2", string(kind), key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s/%s: %w", kind, key, err)
	}
	return seq, nil
}

// SetTo administratively overwrites a counter, used to resynchronize it with
// the highest sequence actually present in durable storage.
func (s *Store) SetTo(ctx context.Context, kind models.CounterKind, key string, value int) error {
	const query = `
		INSERT INTO counters (kind, key, sequence_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, key)
		DO UPDATE SET sequence_value = $3`

	if _, err := s.db.ExecContext(ctx, query, string(kind), key, value); err != nil {
		return fmt.Errorf("failed to set counter %s/%s: %w", kind, key, err)
	}
	return nil
}
