package services

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/infrastructure/repositories/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

type fixture struct {
	clock    *fakeClock
	metrics  *MetricsService
	channel  ports.PresenceRegistry
	voice    ports.PresenceRegistry
	mailbox  ports.MailboxStore
	voiceSvc ports.VoiceService
	store    *memory.MemoryChatStore
	chat     ports.ChatService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock()
	log := testLogger(t)
	metrics := NewMetricsService(nil)

	f := &fixture{clock: clock, metrics: metrics}
	f.channel = NewPresenceRegistry(ChannelRegistry, memory.NewMemoryPresenceStore(4), 15*time.Second, metrics, log, WithClock(clock.Now))
	f.voice = NewPresenceRegistry(VoiceRegistry, memory.NewMemoryPresenceStore(4), 20*time.Second, metrics, log, WithClock(clock.Now))
	f.mailbox = memory.NewMemoryMailboxStore(4, clock.Now)
	f.voiceSvc = NewVoiceService(f.voice, f.mailbox, 2*time.Minute, metrics, log)
	f.store = memory.NewMemoryChatStore()
	f.chat = NewChatService(
		f.store.Channels(),
		f.store.Messages(),
		f.channel,
		NewContentRenderer(),
		ChatConfig{
			HistoryLimit:   50,
			DefaultChannel: domain.Channel{Name: "General", Description: "General chat"},
		},
		metrics,
		log,
		WithClock(clock.Now),
	)
	return f
}
