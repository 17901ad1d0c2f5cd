package service

import "github.com/hostpulse/backend/internal/model"

// BroadcastFanout - 여러 브로드캐스터(웹소켓 허브, 웹훅 전송)를 하나로 묶는다.
// 모두 호출하고 첫 에러를 반환한다 (outbox 우회 판단은 호출측 몫)
type BroadcastFanout []IncidentBroadcaster

func (f BroadcastFanout) BroadcastIncident(inc model.Incident) error {
	var first error
	for _, b := range f {
		if err := b.BroadcastIncident(inc); err != nil && first == nil {
			first = err
		}
	}
	return first
}
