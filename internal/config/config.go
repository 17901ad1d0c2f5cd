package config

import "os"

// 서버 설정. .env 또는 환경변수에서 로드
type Config struct {
	Server ServerConfig
	Auth   AuthConfig
	Crypto CryptoConfig
	Backup BackupConfig
}

type ServerConfig struct {
	Addr string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  string
}

type CryptoConfig struct {
	// KeyFile: 분석 payload 암호화 키 파일 경로 (hex 32바이트, 퍼미션 0600)
	KeyFile string
}

type BackupConfig struct {
	// Mode: single | mirror | mirror_parity
	Mode string

	// Dirs: 백업 사본을 쓸 디렉터리 목록 (콤마 구분 env)
	Dirs string
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Addr: getenv("HTTP_ADDR", ":8080"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  getenv("AGENT_TOKEN_TTL", "24h"),
		},
		Crypto: CryptoConfig{
			KeyFile: getenv("PAYLOAD_KEY_FILE", "data/payload.key"),
		},
		Backup: BackupConfig{
			Mode: getenv("BACKUP_MODE", "single"),
			Dirs: getenv("BACKUP_DIRS", "data/backups"),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
