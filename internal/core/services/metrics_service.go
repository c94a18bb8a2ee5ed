package services

import (
	"sync"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

// MetricsService counts presence, voice and chat events in process and
// forwards them to an optional sink such as the Prometheus collector.
// A nil *MetricsService is valid and records nothing.
type MetricsService struct {
	mu sync.RWMutex

	signals     map[domain.SignalType]uint64
	polls       uint64
	delivered   uint64
	joins       uint64
	leaves      uint64
	messages    uint64
	activeUsers map[string]int

	sink ports.MetricsSink
}

func NewMetricsService(sink ports.MetricsSink) *MetricsService {
	return &MetricsService{
		signals:     make(map[domain.SignalType]uint64),
		activeUsers: make(map[string]int),
		sink:        sink,
	}
}

func (m *MetricsService) SetActiveUsers(registry string, n int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.activeUsers[registry] = n
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.SetActiveUsers(registry, n)
	}
}

func (m *MetricsService) PresenceExpired(registry string, n int) {
	if m == nil || m.sink == nil || n == 0 {
		return
	}
	m.sink.RecordPresenceExpired(registry, n)
}

func (m *MetricsService) VoiceJoined() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.joins++
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.RecordVoiceJoin()
	}
}

func (m *MetricsService) VoiceLeft() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.leaves++
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.RecordVoiceLeave()
	}
}

func (m *MetricsService) SignalRelayed(t domain.SignalType) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.signals[t]++
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.RecordSignal(t)
	}
}

func (m *MetricsService) Polled(delivered int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.polls++
	m.delivered += uint64(delivered)
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.RecordPoll(delivered)
	}
}

func (m *MetricsService) MessagePosted(withAttachment bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.messages++
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.RecordMessagePosted(withAttachment)
	}
}

func (m *MetricsService) ChannelChanged(op string) {
	if m == nil || m.sink == nil {
		return
	}
	m.sink.RecordChannelChange(op)
}

func (m *MetricsService) Stats() domain.ServiceStats {
	if m == nil {
		return domain.ServiceStats{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	signals := make(map[domain.SignalType]uint64, len(m.signals))
	for k, v := range m.signals {
		signals[k] = v
	}
	active := make(map[string]int, len(m.activeUsers))
	for k, v := range m.activeUsers {
		active[k] = v
	}
	return domain.ServiceStats{
		SignalsRelayed:   signals,
		Polls:            m.polls,
		SignalsDelivered: m.delivered,
		VoiceJoins:       m.joins,
		VoiceLeaves:      m.leaves,
		MessagesPosted:   m.messages,
		ActiveUsers:      active,
	}
}
