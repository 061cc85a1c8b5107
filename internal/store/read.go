package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/murmur/internal/event"
	"github.com/roach88/murmur/internal/filter"
)

// Query returns stored events matching any of the filters, each filter
// capped at its own limit (or defaultLimit when unset, never above
// maxLimit). Results are deduplicated across filters and ordered by
// created_at descending, ties broken by id ascending - a deterministic
// total order for pagination and reproducible tests.
//
// Reads run against the live table, so a query reflects every commit
// ordered before it began.
func (s *Store) Query(ctx context.Context, filters []filter.Filter, defaultLimit, maxLimit int) ([]event.Event, error) {
	seen := make(map[string]struct{})
	var events []event.Event

	for i := range filters {
		limit := filters[i].Limit
		if limit <= 0 {
			limit = defaultLimit
		}
		if maxLimit > 0 && limit > maxLimit {
			limit = maxLimit
		}

		matched, err := s.queryOne(ctx, &filters[i], limit)
		if err != nil {
			return nil, err
		}
		for _, ev := range matched {
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			events = append(events, ev)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

// queryOne compiles a single filter to SQL and runs it.
func (s *Store) queryOne(ctx context.Context, f *filter.Filter, limit int) ([]event.Event, error) {
	query, args := compileFilter(f, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			ev       event.Event
			tagsJSON string
		)
		err := rows.Scan(&ev.ID, &ev.PubKey, &ev.CreatedAt, &ev.Kind, &tagsJSON, &ev.Content, &ev.Sig, &ev.Language)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &ev.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// compileFilter assembles the WHERE clause for one filter. Tag constraints
// conjunct across names and disjunct within one name, satisfied through
// the event_tags index rather than scanning tag JSON.
func compileFilter(f *filter.Filter, limit int) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if len(f.IDs) > 0 {
		conds = append(conds, "e.id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if len(f.Authors) > 0 {
		conds = append(conds, "e.pubkey IN ("+placeholders(len(f.Authors))+")")
		for _, a := range f.Authors {
			args = append(args, a)
		}
	}
	if len(f.Kinds) > 0 {
		conds = append(conds, "e.kind IN ("+placeholders(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	if f.Since != nil {
		conds = append(conds, "e.created_at >= ?")
		args = append(args, *f.Since)
	}
	if f.Until != nil {
		conds = append(conds, "e.created_at <= ?")
		args = append(args, *f.Until)
	}

	// Deterministic clause order for tag names keeps generated SQL stable
	// across runs (maps iterate randomly).
	tagNames := make([]string, 0, len(f.Tags))
	for name := range f.Tags {
		tagNames = append(tagNames, name)
	}
	sort.Strings(tagNames)
	for _, name := range tagNames {
		values := f.Tags[name]
		if len(values) == 0 {
			continue
		}
		conds = append(conds,
			"EXISTS (SELECT 1 FROM event_tags t WHERE t.event_id = e.id AND t.name = ? AND t.value IN ("+
				placeholders(len(values))+"))")
		args = append(args, name)
		for _, v := range values {
			args = append(args, v)
		}
	}

	query := "SELECT e.id, e.pubkey, e.created_at, e.kind, e.tags, e.content, e.sig, e.language FROM events e"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY e.created_at DESC, e.id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return query, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
