// Package template provides webhook body template rendering.
//
// 지원하는 변수 형식:
//
//	{{incident.id}}, {{incident.title}}, {{incident.severity}},
//	{{incident.status}}, {{incident.created_at}}, {{incident.updated_at}},
//	{{incident.assigned_to}}, {{incident.source_count}}
package template

import (
	"strconv"
	"strings"
	"time"

	"github.com/hostpulse/backend/internal/model"
)

// IncidentData - 템플릿 렌더링에 사용할 Incident 데이터
type IncidentData struct {
	ID          string
	Title       string
	Severity    string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	AssignedTo  string
	SourceCount int
}

// IncidentDataFromModel - model.Incident에서 IncidentData 생성
func IncidentDataFromModel(inc model.Incident) IncidentData {
	assigned := ""
	if inc.AssignedTo != nil {
		assigned = *inc.AssignedTo
	}
	return IncidentData{
		ID:          inc.IncidentID,
		Title:       inc.Title,
		Severity:    string(inc.Severity),
		Status:      string(inc.Status),
		CreatedAt:   inc.CreatedAt,
		UpdatedAt:   inc.UpdatedAt,
		AssignedTo:  assigned,
		SourceCount: len(inc.SourceAnalyses),
	}
}

// RenderBody - webhook body 템플릿의 변수를 실제 값으로 치환
//
// incident가 nil이면 모든 변수가 빈 문자열로 치환됩니다.
func RenderBody(body string, incident *IncidentData) string {
	pairs := make([]string, 0, 16)

	if incident != nil {
		pairs = append(pairs,
			"{{incident.id}}", incident.ID,
			"{{incident.title}}", incident.Title,
			"{{incident.severity}}", incident.Severity,
			"{{incident.status}}", incident.Status,
			"{{incident.created_at}}", incident.CreatedAt.Format(time.RFC3339),
			"{{incident.updated_at}}", incident.UpdatedAt.Format(time.RFC3339),
			"{{incident.assigned_to}}", incident.AssignedTo,
			"{{incident.source_count}}", strconv.Itoa(incident.SourceCount),
		)
	} else {
		pairs = append(pairs,
			"{{incident.id}}", "",
			"{{incident.title}}", "",
			"{{incident.severity}}", "",
			"{{incident.status}}", "",
			"{{incident.created_at}}", "",
			"{{incident.updated_at}}", "",
			"{{incident.assigned_to}}", "",
			"{{incident.source_count}}", "",
		)
	}

	return strings.NewReplacer(pairs...).Replace(body)
}
