package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/murmur/internal/event"
)

// SubmitStatus classifies the outcome of a submit.
type SubmitStatus int

const (
	// StatusAccepted means the event was inserted.
	StatusAccepted SubmitStatus = iota
	// StatusDuplicate means the same id was already stored; the submit is
	// an idempotent no-op, acknowledged as accepted.
	StatusDuplicate
	// StatusReplaced means the event was inserted and superseded an older
	// event with the same replacement key; Result.OldID names the loser.
	StatusReplaced
	// StatusObsolete means a newer event already holds the replacement
	// key; the submit is a no-op, not an error.
	StatusObsolete
	// StatusEphemeral means the event's kind is never persisted; it should
	// be forwarded to live subscribers and discarded.
	StatusEphemeral
)

// Result reports what SubmitEvent did.
type Result struct {
	Status SubmitStatus
	OldID  string
}

// Stored reports whether the event now resides in the store.
func (r Result) Stored() bool {
	return r.Status == StatusAccepted || r.Status == StatusReplaced
}

// SubmitEvent applies the write policy for the event's kind class.
//
// Regular events always insert; duplicates by id are idempotent no-ops.
// Replaceable classes keep exactly one row per replacement key: the
// incoming event wins iff its created_at is strictly greater than the
// stored one's, or equal with a lexicographically smaller id. Ephemeral
// kinds never touch the database.
//
// The caller is expected to have validated the event.
func (s *Store) SubmitEvent(ctx context.Context, ev *event.Event) (Result, error) {
	switch event.ClassOf(ev.Kind) {
	case event.ClassEphemeral:
		return Result{Status: StatusEphemeral}, nil
	case event.ClassRegular:
		return s.submitRegular(ctx, ev)
	case event.ClassReplaceable:
		return s.submitReplaceable(ctx, ev, "")
	case event.ClassParamReplaceable:
		return s.submitReplaceable(ctx, ev, ev.DTag())
	}
	return Result{}, fmt.Errorf("submit event %s: unhandled kind class", ev.ID)
}

func (s *Store) submitRegular(ctx context.Context, ev *event.Event) (Result, error) {
	// Fast path: "definitely absent" skips the exact lookup entirely.
	// "Maybe present" answers the duplicate case without an insert attempt.
	if s.seen.Test([]byte(ev.ID)) {
		stored, err := s.hasEventExact(ctx, ev.ID)
		if err != nil {
			return Result{}, err
		}
		if stored {
			return Result{Status: StatusDuplicate}, nil
		}
	}

	inserted, err := s.insert(ctx, ev, "")
	if err != nil {
		return Result{}, err
	}
	if !inserted {
		// Lost a race, or a filter false negative was impossible but the
		// row predated the filter. Either way: idempotent no-op.
		return Result{Status: StatusDuplicate}, nil
	}

	s.seen.Add([]byte(ev.ID))
	return Result{Status: StatusAccepted}, nil
}

func (s *Store) submitReplaceable(ctx context.Context, ev *event.Event, dTag string) (Result, error) {
	if s.seen.Test([]byte(ev.ID)) {
		stored, err := s.hasEventExact(ctx, ev.ID)
		if err != nil {
			return Result{}, err
		}
		if stored {
			return Result{Status: StatusDuplicate}, nil
		}
	}

	// Serialize writers for this replacement key so the compare below runs
	// against a consistent current row.
	mu := s.keys.lock(fmt.Sprintf("%s/%d/%s", ev.PubKey, ev.Kind, dTag))
	defer mu.Unlock()

	var (
		oldID        string
		oldCreatedAt int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, created_at FROM events
		WHERE pubkey = ? AND kind = ? AND d_tag = ?
	`), ev.PubKey, ev.Kind, dTag).Scan(&oldID, &oldCreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		inserted, err := s.insert(ctx, ev, dTag)
		if err != nil {
			return Result{}, err
		}
		if !inserted {
			return Result{Status: StatusDuplicate}, nil
		}
		s.seen.Add([]byte(ev.ID))
		return Result{Status: StatusAccepted}, nil
	case err != nil:
		return Result{}, fmt.Errorf("read replacement key for %s: %w", ev.ID, err)
	}

	if oldID == ev.ID {
		return Result{Status: StatusDuplicate}, nil
	}
	if !replaces(ev.CreatedAt, ev.ID, oldCreatedAt, oldID) {
		return Result{Status: StatusObsolete, OldID: oldID}, nil
	}

	if err := s.replace(ctx, ev, dTag, oldID); err != nil {
		return Result{}, err
	}
	s.seen.Add([]byte(ev.ID))
	return Result{Status: StatusReplaced, OldID: oldID}, nil
}

// replaces decides the replacement rule: strictly newer wins; equal
// timestamps keep the lexicographically smaller id.
func replaces(newCreatedAt int64, newID string, oldCreatedAt int64, oldID string) bool {
	if newCreatedAt != oldCreatedAt {
		return newCreatedAt > oldCreatedAt
	}
	return newID < oldID
}

// insert writes the event and its indexable tags in one transaction, so a
// concurrent query never observes an event without its tags. Returns false
// if the id already existed.
func (s *Store) insert(ctx context.Context, ev *event.Event, dTag string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("insert event %s: begin tx: %w", ev.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	inserted, err := s.insertTx(ctx, tx, ev, dTag)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("insert event %s: commit: %w", ev.ID, err)
	}
	return inserted, nil
}

// replace deletes the superseded event and inserts the winner in one
// transaction. Tag rows cascade with their event.
func (s *Store) replace(ctx context.Context, ev *event.Event, dTag, oldID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace %s with %s: begin tx: %w", oldID, ev.ID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM events WHERE id = ?"), oldID); err != nil {
		return fmt.Errorf("replace %s with %s: delete: %w", oldID, ev.ID, err)
	}
	if _, err := s.insertTx(ctx, tx, ev, dTag); err != nil {
		return fmt.Errorf("replace %s with %s: %w", oldID, ev.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace %s with %s: commit: %w", oldID, ev.ID, err)
	}
	return nil
}

func (s *Store) insertTx(ctx context.Context, tx *sql.Tx, ev *event.Event, dTag string) (bool, error) {
	tagsJSON, err := json.Marshal(ev.Tags)
	if err != nil {
		return false, fmt.Errorf("insert event %s: marshal tags: %w", ev.ID, err)
	}

	var lang string
	if s.detect != nil {
		lang = s.detect(ev.Content)
	}

	var expiresAt sql.NullInt64
	if ts, ok := ev.Expiration(); ok {
		expiresAt = sql.NullInt64{Int64: ts, Valid: true}
	}

	res, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO events (id, pubkey, created_at, kind, tags, content, sig, d_tag, language, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`),
		ev.ID,
		ev.PubKey,
		ev.CreatedAt,
		ev.Kind,
		string(tagsJSON),
		ev.Content,
		ev.Sig,
		dTag,
		lang,
		expiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert event %s: rows affected: %w", ev.ID, err)
	}
	if affected == 0 {
		return false, nil
	}

	for _, tag := range ev.Tags {
		if len(tag) < 2 || len(tag[0]) != 1 {
			continue
		}
		_, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO event_tags (event_id, name, value) VALUES (?, ?, ?)
		`), ev.ID, tag[0], tag[1])
		if err != nil {
			return false, fmt.Errorf("insert event %s: index tag %q: %w", ev.ID, tag[0], err)
		}
	}

	return true, nil
}
