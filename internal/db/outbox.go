package db

import (
	"context"
	"encoding/json"
	"time"
)

// OutboxEntry - websocket 브로드캐스트 실패분의 내구성 큐 항목
type OutboxEntry struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

func (db *Postgres) EnsureOutboxSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS event_outbox (
			id BIGSERIAL PRIMARY KEY,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			sent_at TIMESTAMPTZ
		)
	`
	_, err := db.Pool.Exec(ctx, query)
	return err
}

func (db *Postgres) EnqueueOutbox(ctx context.Context, eventType string, payload json.RawMessage) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO event_outbox (event_type, payload) VALUES ($1, $2::jsonb)`,
		eventType, []byte(payload))
	return err
}

// DequeuePending - 미발송 항목을 오래된 순으로 조회. 발송 성공 시 MarkOutboxSent 호출
func (db *Postgres) DequeuePending(ctx context.Context, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, event_type, payload, created_at
		FROM event_outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]OutboxEntry, 0, limit)
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (db *Postgres) MarkOutboxSent(ctx context.Context, id int64) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE event_outbox SET sent_at = NOW() WHERE id = $1 AND sent_at IS NULL`, id)
	return err
}

// PurgeSentOutbox - 발송 완료 후 보존 기간이 지난 항목 삭제
func (db *Postgres) PurgeSentOutbox(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM event_outbox WHERE sent_at IS NOT NULL AND sent_at < NOW() - $1::interval`,
		olderThan.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
