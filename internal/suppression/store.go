// 학습 패턴 로컬 저장소 (sqlite)
//
// 저장 포맷은 스키마 버전이 명시된 구조화 테이블이며 로드 시 검증된다.
// 검증 실패는 빈 모델로 강등될 뿐 치명적이지 않다 (엔진 쪽에서 처리).

package suppression

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/hostpulse/backend/internal/model"
)

// storeSchemaVersion은 피처 벡터 레이아웃과 함께 올라간다.
const storeSchemaVersion = 1

type SQLitePatternStore struct {
	db *sqlx.DB
}

func NewSQLitePatternStore(path string) (*SQLitePatternStore, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern store: %w", err)
	}

	s := &SQLitePatternStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLitePatternStore) Close() error {
	return s.db.Close()
}

func (s *SQLitePatternStore) ensureSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS learned_patterns (
			alert_type TEXT PRIMARY KEY,
			centroid TEXT NOT NULL,
			fp_probability REAL NOT NULL,
			confidence REAL NOT NULL,
			sample_size INTEGER NOT NULL,
			last_updated TIMESTAMP NOT NULL
		)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to ensure pattern schema: %w", err)
		}
	}

	var count int
	if err := s.db.Get(&count, `SELECT COUNT(*) FROM schema_meta`); err != nil {
		return err
	}
	if count == 0 {
		_, err := s.db.Exec(`INSERT INTO schema_meta (version) VALUES (?)`, storeSchemaVersion)
		return err
	}
	return nil
}

type patternRow struct {
	AlertType     string    `db:"alert_type"`
	Centroid      string    `db:"centroid"`
	FPProbability float64   `db:"fp_probability"`
	Confidence    float64   `db:"confidence"`
	SampleSize    int       `db:"sample_size"`
	LastUpdated   time.Time `db:"last_updated"`
}

// Load validates the schema version and every row before returning the set.
// Any validation failure is returned as an error; callers degrade to an empty
// model rather than trusting a partially-corrupt one.
func (s *SQLitePatternStore) Load() ([]model.LearnedPattern, error) {
	var version int
	if err := s.db.Get(&version, `SELECT version FROM schema_meta LIMIT 1`); err != nil {
		return nil, fmt.Errorf("failed to read pattern schema version: %w", err)
	}
	if version != storeSchemaVersion {
		return nil, fmt.Errorf("pattern schema version %d, expected %d", version, storeSchemaVersion)
	}

	var rows []patternRow
	if err := s.db.Select(&rows, `SELECT alert_type, centroid, fp_probability, confidence, sample_size, last_updated FROM learned_patterns ORDER BY alert_type`); err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}

	patterns := make([]model.LearnedPattern, 0, len(rows))
	for _, row := range rows {
		var centroid []float64
		if err := json.Unmarshal([]byte(row.Centroid), &centroid); err != nil {
			return nil, fmt.Errorf("invalid centroid for %s: %w", row.AlertType, err)
		}
		if row.FPProbability < 0 || row.FPProbability > 1 || row.Confidence < 0 || row.Confidence > 1 {
			return nil, fmt.Errorf("out-of-range pattern stats for %s", row.AlertType)
		}

		patterns = append(patterns, model.LearnedPattern{
			AlertType:     row.AlertType,
			Centroid:      centroid,
			FPProbability: row.FPProbability,
			Confidence:    row.Confidence,
			SampleSize:    row.SampleSize,
			LastUpdated:   row.LastUpdated,
		})
	}
	return patterns, nil
}

// Replace swaps the persisted set wholesale inside one transaction.
func (s *SQLitePatternStore) Replace(patterns []model.LearnedPattern) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`DELETE FROM learned_patterns`); err != nil {
		return err
	}

	for _, p := range patterns {
		centroid, err := json.Marshal(p.Centroid)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO learned_patterns (alert_type, centroid, fp_probability, confidence, sample_size, last_updated)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.AlertType, string(centroid), p.FPProbability, p.Confidence, p.SampleSize, p.LastUpdated); err != nil {
			return err
		}
	}

	return tx.Commit()
}
