package model

import "time"

// BackupMode - 백업 복제 방식
type BackupMode string

const (
	BackupSingle BackupMode = "single"
	BackupMirror BackupMode = "mirror"

	// BackupMirrorParity: mirror + parity placeholder (parity 블록은 아직 미구현,
	// manifest에 슬롯만 예약)
	BackupMirrorParity BackupMode = "mirror_parity"
)

// BackupCopy - 검증된 단일 백업 사본
type BackupCopy struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"` // sha256 hex
	Size     int64  `json:"size"`
	Uploaded bool   `json:"uploaded"`
}

// BackupManifest - Backup() 실행 결과
type BackupManifest struct {
	BackupID  string       `json:"backup_id"`
	Mode      BackupMode   `json:"mode"`
	CreatedAt time.Time    `json:"created_at"`
	Copies    []BackupCopy `json:"copies"`

	// Discarded: checksum 검증에 실패해 폐기된 사본 경로
	Discarded []string `json:"discarded,omitempty"`
}
