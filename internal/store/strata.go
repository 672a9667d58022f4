package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SaveUserStratum replaces the saved user stratum of itemID. An empty
// values map deletes the saved record.
func (s *Store) SaveUserStratum(ctx context.Context, itemID string, values map[string]any) error {
	if len(values) == 0 {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM user_strata WHERE item_id = ?", itemID); err != nil {
			return fmt.Errorf("store: delete user stratum %q: %w", itemID, err)
		}
		return nil
	}
	data, err := bson.Marshal(bson.M(values))
	if err != nil {
		return fmt.Errorf("store: encode user stratum %q: %w", itemID, err)
	}
	const q = `
		INSERT INTO user_strata (item_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, itemID, data, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("store: save user stratum %q: %w", itemID, err)
	}
	return nil
}

// LoadUserStratum returns the saved user stratum of itemID, or nil when none
// was saved. Values come back as JSON-like Go types: maps, []any, float64,
// string and bool.
func (s *Store) LoadUserStratum(ctx context.Context, itemID string) (map[string]any, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM user_strata WHERE item_id = ?", itemID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load user stratum %q: %w", itemID, err)
	}
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("store: decode user stratum %q: %w", itemID, err)
	}
	return normalise(doc).(map[string]any), nil
}

// UserStratumIDs lists the items with a saved user stratum.
func (s *Store) UserStratumIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT item_id FROM user_strata ORDER BY item_id")
	if err != nil {
		return nil, fmt.Errorf("store: list user strata: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan user stratum id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list user strata: %w", err)
	}
	return ids, nil
}

// normalise converts decoded BSON into the types encoding/json produces.
func normalise(v any) any {
	switch x := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalise(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalise(val)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = normalise(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalise(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalise(val)
		}
		return out
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case primitive.DateTime:
		return x.Time().UTC().Format(time.RFC3339)
	}
	return v
}
