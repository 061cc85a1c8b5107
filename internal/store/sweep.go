package store

import (
	"context"
	"fmt"
)

// sweepBatchSize bounds each delete so the sweeper never holds the table
// for the duration of a full scan.
const sweepBatchSize = 500

// DeleteExpired removes every stored event whose expiration timestamp is
// at or before now, in bounded batches. Returns the number of events
// deleted. Idempotent: a second run with no intervening inserts deletes
// zero rows.
func (s *Store) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	var total int64
	for {
		n, err := s.deleteExpiredBatch(ctx, now)
		if err != nil {
			return total, err
		}
		total += n
		if n < sweepBatchSize {
			return total, nil
		}
	}
}

func (s *Store) deleteExpiredBatch(ctx context.Context, now int64) (int64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id FROM events
		WHERE expires_at IS NOT NULL AND expires_at <= ?
		LIMIT ?
	`), now, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("sweep: scan expired: %w", err)
	}

	var ids []any
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("sweep: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("sweep: iterate expired: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx,
		s.rebind("DELETE FROM events WHERE id IN ("+placeholders(len(ids))+")"), ids...)
	if err != nil {
		return 0, fmt.Errorf("sweep: delete batch: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep: rows affected: %w", err)
	}

	// The duplicate filter cannot forget the deleted ids; that is
	// acceptable because it is an accelerator, not an index. A resubmitted
	// expired event costs one exact lookup and is stored again.
	return deleted, nil
}
