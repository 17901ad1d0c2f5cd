package suppression

import (
	"time"

	"github.com/hostpulse/backend/internal/model"
)

// recordedAlert - 규칙 평가용 최근 알림 기록 (억제 여부와 무관하게 모두 기록)
type recordedAlert struct {
	alertType   string
	severity    model.Severity
	maintenance bool
	at          time.Time
}

// Rule is a static, stateless predicate over recent same-window alert history.
// A firing rule vetoes escalation regardless of the learned probability.
type Rule struct {
	Name        string
	Description string
	Fires       func(current model.Alert, history []recordedAlert, now time.Time) bool
}

func defaultRules(cfg Config) []Rule {
	return []Rule{
		{
			Name:        "burst",
			Description: "more than burst_count same-type alerts inside burst_window",
			Fires: func(current model.Alert, history []recordedAlert, now time.Time) bool {
				cutoff := now.Add(-cfg.BurstWindow)
				count := 0
				for _, r := range history {
					if r.alertType == current.AlertType && !r.at.Before(cutoff) {
						count++
					}
				}
				return count > cfg.BurstCount
			},
		},
		{
			Name:        "night_low_severity",
			Description: "low-severity alert seen within 1h during the night window",
			Fires: func(current model.Alert, history []recordedAlert, now time.Time) bool {
				if now.Hour() >= cfg.NightEndHour {
					return false
				}
				cutoff := now.Add(-time.Hour)
				for _, r := range history {
					if r.severity == model.SeverityLow && !r.at.Before(cutoff) {
						return true
					}
				}
				return false
			},
		},
		{
			Name:        "maintenance_window",
			Description: "any alert carrying the maintenance flag within 2h",
			Fires: func(current model.Alert, history []recordedAlert, now time.Time) bool {
				cutoff := now.Add(-2 * time.Hour)
				for _, r := range history {
					if r.maintenance && !r.at.Before(cutoff) {
						return true
					}
				}
				return false
			},
		},
	}
}
