package db

import (
	"context"
	"time"

	"github.com/hostpulse/backend/internal/model"
)

func (db *Postgres) EnsureClientSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS clients (
			client_id TEXT PRIMARY KEY,
			client_type TEXT NOT NULL DEFAULT '',
			hostname TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS clients_last_seen_idx ON clients(last_seen DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// UpsertClient - 등록/heartbeat 시 호출. 이미 있으면 메타데이터와 last_seen 갱신
func (db *Postgres) UpsertClient(ctx context.Context, c model.Client) error {
	query := `
		INSERT INTO clients (client_id, client_type, hostname, address, version, status, last_seen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'active', NOW(), NOW(), NOW())
		ON CONFLICT (client_id) DO UPDATE SET
			client_type = EXCLUDED.client_type,
			hostname = EXCLUDED.hostname,
			address = EXCLUDED.address,
			version = EXCLUDED.version,
			status = 'active',
			last_seen = NOW(),
			updated_at = NOW()
	`
	_, err := db.Pool.Exec(ctx, query, c.ClientID, c.Type, c.Hostname, c.Address, c.Version)
	return err
}

func (db *Postgres) GetClient(ctx context.Context, clientID string) (*model.Client, error) {
	query := `
		SELECT client_id, client_type, hostname, address, version, status, last_seen
		FROM clients
		WHERE client_id = $1
	`
	var c model.Client
	err := db.Pool.QueryRow(ctx, query, clientID).Scan(
		&c.ClientID,
		&c.Type,
		&c.Hostname,
		&c.Address,
		&c.Version,
		&c.Status,
		&c.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// TouchClient - heartbeat: last_seen만 갱신
func (db *Postgres) TouchClient(ctx context.Context, clientID string) error {
	query := `
		UPDATE clients
		SET last_seen = NOW(), status = 'active', updated_at = NOW()
		WHERE client_id = $1
	`
	_, err := db.Pool.Exec(ctx, query, clientID)
	return err
}

// MarkStaleClients - 일정 시간 heartbeat 없는 클라이언트를 stale로 표시
func (db *Postgres) MarkStaleClients(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE clients
		SET status = 'stale', updated_at = NOW()
		WHERE status = 'active' AND last_seen < NOW() - $1::interval
	`
	tag, err := db.Pool.Exec(ctx, query, olderThan.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
