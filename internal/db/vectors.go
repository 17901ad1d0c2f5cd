package db

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/hostpulse/backend/internal/model"
)

// incident feature vector 차원 수 (suppression feature vector와 동일)
const incidentVectorDim = 7

func (db *Postgres) EnsureVectorSchema(ctx context.Context) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`
		CREATE TABLE IF NOT EXISTS incident_vectors (
			incident_id TEXT PRIMARY KEY REFERENCES incidents(incident_id) ON DELETE CASCADE,
			features vector(7) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (db *Postgres) UpsertIncidentVector(ctx context.Context, incidentID string, features []float32) error {
	if len(features) != incidentVectorDim {
		return ErrInvalidInput
	}

	query := `
		INSERT INTO incident_vectors (incident_id, features)
		VALUES ($1, $2)
		ON CONFLICT (incident_id) DO UPDATE SET features = EXCLUDED.features
	`
	_, err := db.Pool.Exec(ctx, query, incidentID, pgvector.NewVector(features))
	return err
}

func (db *Postgres) GetIncidentVector(ctx context.Context, incidentID string) ([]float32, error) {
	var vec pgvector.Vector
	err := db.Pool.QueryRow(ctx,
		`SELECT features FROM incident_vectors WHERE incident_id = $1`, incidentID).Scan(&vec)
	if err != nil {
		return nil, err
	}
	return vec.Slice(), nil
}

// FindSimilarIncidents - 코사인 거리 기준 유사 incident 조회 (자기 자신 제외)
func (db *Postgres) FindSimilarIncidents(ctx context.Context, incidentID string, features []float32, limit int) ([]model.SimilarIncident, error) {
	if len(features) != incidentVectorDim {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = 5
	}

	query := `
		SELECT v.incident_id, i.title, v.features <=> $2 AS distance
		FROM incident_vectors v
		JOIN incidents i ON i.incident_id = v.incident_id
		WHERE v.incident_id <> $1
		ORDER BY distance
		LIMIT $3
	`

	rows, err := db.Pool.Query(ctx, query, incidentID, pgvector.NewVector(features), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]model.SimilarIncident, 0, limit)
	for rows.Next() {
		var s model.SimilarIncident
		if err := rows.Scan(&s.IncidentID, &s.Title, &s.Distance); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}
