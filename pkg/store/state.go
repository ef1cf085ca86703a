package store

import (
	"context"
	"database/sql"
	"time"
)

// SaveRiskState persists a user's serialized risk state (spec §3 risk state
// per user), keyed by user id with an idempotent upsert per spec §5.
func (s *Store) SaveRiskState(ctx context.Context, userID string, state []byte) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO risk_state (user_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, userID, state, time.Now())
	return err
}

func (s *Store) LoadRiskState(ctx context.Context, userID string) ([]byte, error) {
	var state []byte
	err := s.DB.QueryRowContext(ctx, `SELECT state FROM risk_state WHERE user_id = ?`, userID).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return state, err
}

// SaveOrder persists a serialized order snapshot for local durability.
func (s *Store) SaveOrder(ctx context.Context, id, userID, status string, data []byte) error {
	now := time.Now()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, data, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, status = excluded.status, updated_at = excluded.updated_at
	`, id, userID, data, status, now, now)
	return err
}

func (s *Store) LoadOrdersByUser(ctx context.Context, userID string) ([][]byte, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT data FROM orders WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, rows.Err()
}

// SavePosition persists a serialized position snapshot keyed by
// "userId:exchange:asset", per spec §3/§5.
func (s *Store) SavePosition(ctx context.Context, key string, data []byte) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO positions (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, key, data, time.Now())
	return err
}

func (s *Store) LoadPosition(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.DB.QueryRowContext(ctx, `SELECT data FROM positions WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return data, err
}
