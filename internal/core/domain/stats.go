package domain

// ServiceStats is a point-in-time view of in-process counters.
type ServiceStats struct {
	SignalsRelayed   map[SignalType]uint64 `json:"signals_relayed"`
	Polls            uint64                `json:"polls"`
	SignalsDelivered uint64                `json:"signals_delivered"`
	VoiceJoins       uint64                `json:"voice_joins"`
	VoiceLeaves      uint64                `json:"voice_leaves"`
	MessagesPosted   uint64                `json:"messages_posted"`
	ActiveUsers      map[string]int        `json:"active_users"`
}
