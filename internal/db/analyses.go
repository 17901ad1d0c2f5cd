package db

import (
	"context"
	"fmt"
	"time"

	"github.com/hostpulse/backend/internal/model"
)

func (db *Postgres) EnsureAnalysisSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS analyses (
			analysis_id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL REFERENCES clients(client_id),
			analysis_type TEXT NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			payload BYTEA NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'received',
			incident_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS analyses_client_id_idx ON analyses(client_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS analyses_incident_id_idx ON analyses(incident_id) WHERE incident_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS analyses_severity_idx ON analyses(severity)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// InsertAnalysis - append-only 저장. payload는 암호화된 바이트
func (db *Postgres) InsertAnalysis(ctx context.Context, analysisID, clientID, analysisType string, observedAt time.Time, sealedPayload []byte, severity model.Severity) error {
	query := `
		INSERT INTO analyses (analysis_id, client_id, analysis_type, observed_at, payload, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	_, err := db.Pool.Exec(ctx, query, analysisID, clientID, analysisType, observedAt, sealedPayload, string(severity))
	return err
}

// LinkAnalysisToIncident - incident_id는 최대 1회만 설정됨 (단조 설정)
// 이미 설정된 레코드는 건드리지 않고 에러 반환
func (db *Postgres) LinkAnalysisToIncident(ctx context.Context, analysisID, incidentID string) error {
	query := `
		UPDATE analyses
		SET incident_id = $2, status = 'escalated'
		WHERE analysis_id = $1 AND incident_id IS NULL
	`
	tag, err := db.Pool.Exec(ctx, query, analysisID, incidentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("analysis %s not found or already linked", analysisID)
	}
	return nil
}

// GetSealedAnalysis - 암호화된 payload 그대로 조회 (백업/복호화는 service 책임)
func (db *Postgres) GetSealedAnalysis(ctx context.Context, analysisID string) (*model.Analysis, []byte, error) {
	query := `
		SELECT analysis_id, client_id, analysis_type, observed_at, payload, severity, status, incident_id, created_at
		FROM analyses
		WHERE analysis_id = $1
	`
	var a model.Analysis
	var sealed []byte
	var severity string
	err := db.Pool.QueryRow(ctx, query, analysisID).Scan(
		&a.AnalysisID,
		&a.ClientID,
		&a.Type,
		&a.Timestamp,
		&sealed,
		&severity,
		&a.Status,
		&a.IncidentID,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, nil, err
	}
	a.Severity = model.Severity(severity)
	return &a, sealed, nil
}

// ListSealedAnalyses - 백업 스냅샷용 전체 조회 (payload는 암호화 상태 유지)
func (db *Postgres) ListSealedAnalyses(ctx context.Context) ([]model.Analysis, [][]byte, error) {
	query := `
		SELECT analysis_id, client_id, analysis_type, observed_at, payload, severity, status, incident_id, created_at
		FROM analyses
		ORDER BY created_at ASC
	`
	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var list []model.Analysis
	var payloads [][]byte
	for rows.Next() {
		var a model.Analysis
		var sealed []byte
		var severity string
		if err := rows.Scan(
			&a.AnalysisID,
			&a.ClientID,
			&a.Type,
			&a.Timestamp,
			&sealed,
			&severity,
			&a.Status,
			&a.IncidentID,
			&a.CreatedAt,
		); err != nil {
			return nil, nil, err
		}
		a.Severity = model.Severity(severity)
		list = append(list, a)
		payloads = append(payloads, sealed)
	}
	return list, payloads, rows.Err()
}
