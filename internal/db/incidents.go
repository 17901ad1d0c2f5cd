package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hostpulse/backend/internal/model"
)

func (db *Postgres) EnsureIncidentSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS incidents (
			incident_id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT 'high',
			status TEXT NOT NULL DEFAULT 'open',
			assigned_to TEXT,
			source_analyses JSONB NOT NULL DEFAULT '[]',
			resolution_steps JSONB NOT NULL DEFAULT '[]',
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS incidents_status_idx ON incidents(status)`,
		`CREATE INDEX IF NOT EXISTS incidents_created_at_idx ON incidents(created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (db *Postgres) CreateIncident(ctx context.Context, inc model.Incident) error {
	sources, err := json.Marshal(inc.SourceAnalyses)
	if err != nil {
		return err
	}
	steps, err := json.Marshal(inc.ResolutionSteps)
	if err != nil {
		return err
	}
	metadata := inc.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	query := `
		INSERT INTO incidents (incident_id, title, description, severity, status, assigned_to, source_analyses, resolution_steps, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9::jsonb, NOW(), NOW())
	`
	_, err = db.Pool.Exec(ctx, query,
		inc.IncidentID,
		inc.Title,
		inc.Description,
		string(inc.Severity),
		string(inc.Status),
		inc.AssignedTo,
		sources,
		steps,
		[]byte(metadata),
	)
	return err
}

const incidentColumns = `incident_id, title, description, severity, status, assigned_to, source_analyses, resolution_steps, metadata, created_at, updated_at`

func scanIncident(row interface {
	Scan(dest ...any) error
}) (*model.Incident, error) {
	var inc model.Incident
	var severity, status string
	var sources, steps json.RawMessage

	err := row.Scan(
		&inc.IncidentID,
		&inc.Title,
		&inc.Description,
		&severity,
		&status,
		&inc.AssignedTo,
		&sources,
		&steps,
		&inc.Metadata,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inc.Severity = model.Severity(severity)
	inc.Status = model.IncidentStatus(status)
	if err := json.Unmarshal(sources, &inc.SourceAnalyses); err != nil {
		return nil, fmt.Errorf("corrupt source_analyses for %s: %w", inc.IncidentID, err)
	}
	if err := json.Unmarshal(steps, &inc.ResolutionSteps); err != nil {
		return nil, fmt.Errorf("corrupt resolution_steps for %s: %w", inc.IncidentID, err)
	}
	return &inc, nil
}

func (db *Postgres) GetIncident(ctx context.Context, incidentID string) (*model.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE incident_id = $1`
	return scanIncident(db.Pool.QueryRow(ctx, query, incidentID))
}

func (db *Postgres) ListIncidents(ctx context.Context) ([]model.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents ORDER BY created_at DESC`

	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]model.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *inc)
	}
	return list, rows.Err()
}

// GetOpenIncidentForClient - 해당 클라이언트의 analysis가 연결된 open incident 조회
// 중복 incident 생성 방지에 사용
func (db *Postgres) GetOpenIncidentForClient(ctx context.Context, clientID string) (*model.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE status = 'open'
		  AND incident_id IN (SELECT incident_id FROM analyses WHERE client_id = $1 AND incident_id IS NOT NULL)
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanIncident(db.Pool.QueryRow(ctx, query, clientID))
}

// UpdateIncidentStatus - 행 잠금(FOR UPDATE) 하에 상태 전이 + 감사 스텝 추가
// 전이 검증은 service에서 하지만, 여기서도 동시 갱신 간 일관성 보장을 위해
// 현재 상태를 다시 읽어 전방 전이만 허용
func (db *Postgres) UpdateIncidentStatus(ctx context.Context, incidentID string, next model.IncidentStatus, assignedTo *string, step model.ResolutionStep) (*model.Incident, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	current, err := scanIncident(tx.QueryRow(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE incident_id = $1 FOR UPDATE`, incidentID))
	if err != nil {
		return nil, err
	}

	if !current.Status.CanTransition(next) {
		return nil, fmt.Errorf("illegal transition %s -> %s for %s", current.Status, next, incidentID)
	}

	step.From = string(current.Status)
	step.To = string(next)
	steps := append(current.ResolutionSteps, step)
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return nil, err
	}

	if assignedTo == nil {
		assignedTo = current.AssignedTo
	}

	if _, err := tx.Exec(ctx, `
		UPDATE incidents
		SET status = $2, assigned_to = $3, resolution_steps = $4::jsonb, updated_at = NOW()
		WHERE incident_id = $1
	`, incidentID, string(next), assignedTo, stepsJSON); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	current.Status = next
	current.AssignedTo = assignedTo
	current.ResolutionSteps = steps
	return current, nil
}

// AttachAnalysisToIncident - 기존 incident의 source_analyses에 analysis 추가
func (db *Postgres) AttachAnalysisToIncident(ctx context.Context, incidentID, analysisID string, severity model.Severity) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	current, err := scanIncident(tx.QueryRow(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE incident_id = $1 FOR UPDATE`, incidentID))
	if err != nil {
		return err
	}

	sources := append(current.SourceAnalyses, analysisID)
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return err
	}

	// critical이 들어오면 incident severity 상향
	newSeverity := current.Severity
	if severity == model.SeverityCritical {
		newSeverity = model.SeverityCritical
	}

	if _, err := tx.Exec(ctx, `
		UPDATE incidents
		SET source_analyses = $2::jsonb, severity = $3, updated_at = NOW()
		WHERE incident_id = $1
	`, incidentID, sourcesJSON, string(newSeverity)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
