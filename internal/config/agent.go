package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// AgentSettings - 호스트 에이전트 설정. YAML 파일 + HOSTPULSE_ 환경변수로 로드
type AgentSettings struct {
	ClientID  string `mapstructure:"client_id"`
	ServerURL string `mapstructure:"server_url"`

	Monitor     MonitorSettings     `mapstructure:"monitor"`
	Baseline    BaselineSettings    `mapstructure:"baseline"`
	Suppression SuppressionSettings `mapstructure:"suppression"`
}

type MonitorSettings struct {
	Interval    time.Duration `mapstructure:"interval"`
	HistorySize int           `mapstructure:"history_size"`
}

type BaselineSettings struct {
	Duration time.Duration `mapstructure:"duration"`
	Cadence  time.Duration `mapstructure:"cadence"`
}

type SuppressionSettings struct {
	PatternDB           string  `mapstructure:"pattern_db"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	PatternWeight       float64 `mapstructure:"pattern_weight"`
	TemporalWeight      float64 `mapstructure:"temporal_weight"`
	ContextWeight       float64 `mapstructure:"context_weight"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

func LoadAgent(path string) (AgentSettings, error) {
	v := viper.New()

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("monitor.interval", "30s")
	v.SetDefault("monitor.history_size", 1000)
	v.SetDefault("baseline.duration", "60s")
	v.SetDefault("baseline.cadence", "1s")
	v.SetDefault("suppression.pattern_db", "data/patterns.db")
	v.SetDefault("suppression.confidence_threshold", 0.7)
	v.SetDefault("suppression.pattern_weight", 0.4)
	v.SetDefault("suppression.temporal_weight", 0.3)
	v.SetDefault("suppression.context_weight", 0.3)
	v.SetDefault("suppression.similarity_threshold", 0.8)

	v.SetEnvPrefix("HOSTPULSE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return AgentSettings{}, fmt.Errorf("failed to read agent config: %w", err)
		}
	}

	var settings AgentSettings
	if err := v.Unmarshal(&settings); err != nil {
		return AgentSettings{}, fmt.Errorf("failed to unmarshal agent config: %w", err)
	}

	if settings.ClientID == "" {
		return AgentSettings{}, fmt.Errorf("client_id is required")
	}

	return settings, nil
}
