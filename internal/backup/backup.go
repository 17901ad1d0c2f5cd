// 분석 저장소 스냅샷 백업.
// payload는 저장 시 암호문 그대로 내보내므로 백업 파일도 평문을 담지 않는다
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hostpulse/backend/internal/metrics"
	"github.com/hostpulse/backend/internal/model"
)

// SnapshotSource - 백업 대상 레코드를 내어주는 쪽의 최소 계약
type SnapshotSource interface {
	ListSealedAnalyses(ctx context.Context) ([]model.Analysis, [][]byte, error)
}

// Uploader - 검증된 사본의 원격 업로드. nil이면 로컬 사본만 남긴다
type Uploader interface {
	Upload(ctx context.Context, localPath string, checksum string) error
}

type Engine struct {
	source   SnapshotSource
	mode     model.BackupMode
	dirs     []string
	uploader Uploader
}

type snapshotRecord struct {
	Analysis model.Analysis `json:"analysis"`
	Sealed   string         `json:"sealed"` // base64
}

type snapshotFile struct {
	BackupID  string           `json:"backup_id"`
	CreatedAt time.Time        `json:"created_at"`
	Records   []snapshotRecord `json:"records"`
}

func NewEngine(source SnapshotSource, mode model.BackupMode, dirs []string, uploader Uploader) (*Engine, error) {
	switch mode {
	case model.BackupSingle, model.BackupMirror, model.BackupMirrorParity:
	default:
		return nil, fmt.Errorf("unknown backup mode %q", mode)
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("at least one backup dir is required")
	}
	if mode != model.BackupSingle && len(dirs) < 2 {
		return nil, fmt.Errorf("mode %q requires at least two backup dirs", mode)
	}

	return &Engine{source: source, mode: mode, dirs: dirs, uploader: uploader}, nil
}

// Run - 스냅샷 생성, 사본 기록, checksum 검증.
// 검증 실패 사본은 폐기 목록에 올리고 나머지로 계속한다.
// 모든 사본이 폐기되면 실패
func (e *Engine) Run(ctx context.Context) (*model.BackupManifest, error) {
	analyses, sealed, err := e.source.ListSealedAnalyses(ctx)
	if err != nil {
		metrics.BackupsCompleted.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to snapshot analyses: %w", err)
	}

	snapshot := snapshotFile{
		BackupID:  uuid.NewString(),
		CreatedAt: time.Now(),
		Records:   make([]snapshotRecord, 0, len(analyses)),
	}
	for i, analysis := range analyses {
		snapshot.Records = append(snapshot.Records, snapshotRecord{
			Analysis: analysis,
			Sealed:   base64.StdEncoding.EncodeToString(sealed[i]),
		})
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		metrics.BackupsCompleted.WithLabelValues("error").Inc()
		return nil, err
	}

	wantSum := sha256.Sum256(data)
	wantChecksum := hex.EncodeToString(wantSum[:])

	manifest := &model.BackupManifest{
		BackupID:  snapshot.BackupID,
		Mode:      e.mode,
		CreatedAt: snapshot.CreatedAt,
	}

	targets := e.dirs
	if e.mode == model.BackupSingle {
		targets = e.dirs[:1]
	}

	filename := fmt.Sprintf("analyses-%s-%s.json", snapshot.CreatedAt.Format("20060102T150405"), snapshot.BackupID[:8])

	for _, dir := range targets {
		path := filepath.Join(dir, filename)
		copyRec, err := writeAndVerify(path, data, wantChecksum)
		if err != nil {
			log.Printf("[Backup] discarding copy %s: %v", path, err)
			manifest.Discarded = append(manifest.Discarded, path)
			continue
		}
		manifest.Copies = append(manifest.Copies, *copyRec)
	}

	if len(manifest.Copies) == 0 {
		metrics.BackupsCompleted.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("all %d backup copies failed verification", len(targets))
	}

	if e.uploader != nil {
		for i := range manifest.Copies {
			c := &manifest.Copies[i]
			if err := e.uploader.Upload(ctx, c.Path, c.Checksum); err != nil {
				log.Printf("[Backup] upload failed for %s: %v", c.Path, err)
				continue
			}
			c.Uploaded = true
		}
	}

	result := "ok"
	if len(manifest.Discarded) > 0 {
		result = "partial"
	}
	metrics.BackupsCompleted.WithLabelValues(result).Inc()

	return manifest, nil
}

// writeAndVerify - 사본을 쓰고 디스크에서 다시 읽어 checksum 검증.
// 불일치 사본은 삭제 후 에러 반환
func writeAndVerify(path string, data []byte, wantChecksum string) (*model.BackupCopy, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, err
	}

	written, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(written)
	checksum := hex.EncodeToString(sum[:])
	if checksum != wantChecksum {
		_ = os.Remove(path)
		return nil, fmt.Errorf("checksum mismatch: want %s got %s", wantChecksum, checksum)
	}

	return &model.BackupCopy{
		Path:     path,
		Checksum: checksum,
		Size:     int64(len(written)),
	}, nil
}
