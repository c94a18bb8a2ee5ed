package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"huddle/internal/core/domain"
)

func sdp(s string) *string { return &s }

func TestVoiceService_SignalThenPoll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "B", Nick: "bob"})
	require.NoError(t, err)

	err = f.voiceSvc.Signal(ctx, domain.SignalMessage{
		From: "A",
		To:   "B",
		Type: domain.SignalOffer,
		SDP:  sdp("v=0"),
	})
	require.NoError(t, err)

	msgs, active, err := f.voiceSvc.Poll(ctx, "B")
	require.NoError(t, err)
	assert.True(t, active)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.UserID("A"), msgs[0].From)
	assert.Equal(t, domain.SignalOffer, msgs[0].Type)
	require.NotNil(t, msgs[0].SDP)
	assert.Equal(t, "v=0", *msgs[0].SDP)
	assert.Nil(t, msgs[0].Candidate)

	msgs, _, err = f.voiceSvc.Poll(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	stats := f.metrics.Stats()
	assert.Equal(t, uint64(1), stats.SignalsRelayed[domain.SignalOffer])
	assert.Equal(t, uint64(2), stats.Polls)
	assert.Equal(t, uint64(1), stats.SignalsDelivered)
}

func TestVoiceService_JoinReturnsOthersOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	peers, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "A", Nick: "alice"})
	require.NoError(t, err)
	assert.Empty(t, peers)

	peers, err = f.voiceSvc.Join(ctx, domain.Participant{ID: "B", Nick: "bob"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Participant{{ID: "A", Nick: "alice"}}, peers)

	// rejoining does not list yourself
	peers, err = f.voiceSvc.Join(ctx, domain.Participant{ID: "A", Nick: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Participant{{ID: "B", Nick: "bob"}}, peers)
}

func TestVoiceService_JoinSkipsExpiredPeers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "A", Nick: "alice"})
	require.NoError(t, err)

	f.clock.Advance(21 * time.Second)

	peers, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "B", Nick: "bob"})
	require.NoError(t, err)
	assert.Empty(t, peers)
}

func TestVoiceService_PollKeepsParticipantActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "A", Nick: "alice"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		f.clock.Advance(15 * time.Second)
		_, _, err := f.voiceSvc.Poll(ctx, "A")
		require.NoError(t, err)
	}

	peers, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "B", Nick: "bob"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Participant{{ID: "A", Nick: "alice"}}, peers)
}

func TestVoiceService_LeaveThenPoll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "A", Nick: "alice"})
	require.NoError(t, err)
	require.NoError(t, f.voiceSvc.Signal(ctx, domain.SignalMessage{
		From: "B", To: "A", Type: domain.SignalCandidate, Candidate: sdp("candidate:1"),
	}))

	require.NoError(t, f.voiceSvc.Leave(ctx, "A"))

	msgs, active, err := f.voiceSvc.Poll(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.False(t, active)

	// polling after leave must not bring A back
	peers, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "B", Nick: "bob"})
	require.NoError(t, err)
	assert.Empty(t, peers)
}

func TestVoiceService_PollAfterSweepReportsInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "A", Nick: "alice"})
	require.NoError(t, err)

	f.clock.Advance(21 * time.Second)
	require.NoError(t, f.voiceSvc.Sweep(ctx))

	_, active, err := f.voiceSvc.Poll(ctx, "A")
	require.NoError(t, err)
	assert.False(t, active)

	peers, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "B", Nick: "bob"})
	require.NoError(t, err)
	assert.Empty(t, peers)

	// rejoining is how a swept client gets back in
	_, err = f.voiceSvc.Join(ctx, domain.Participant{ID: "A", Nick: "alice"})
	require.NoError(t, err)
	_, active, err = f.voiceSvc.Poll(ctx, "A")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestVoiceService_RequeueKeepsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "B", Nick: "bob"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.voiceSvc.Signal(ctx, domain.SignalMessage{
			From: domain.UserID(fmt.Sprintf("A%d", i)), To: "B", Type: domain.SignalCandidate, Candidate: sdp("candidate:1"),
		}))
	}

	msgs, _, err := f.voiceSvc.Poll(ctx, "B")
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	require.NoError(t, f.voiceSvc.Signal(ctx, domain.SignalMessage{
		From: "late", To: "B", Type: domain.SignalCandidate, Candidate: sdp("candidate:2"),
	}))
	require.NoError(t, f.voiceSvc.Requeue(ctx, "B", msgs[1:]))

	msgs, _, err = f.voiceSvc.Poll(ctx, "B")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.UserID("A1"), msgs[0].From)
	assert.Equal(t, domain.UserID("A2"), msgs[1].From)
	assert.Equal(t, domain.UserID("late"), msgs[2].From)
}

func TestVoiceService_UnknownUsersAreNotErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msgs, _, err := f.voiceSvc.Poll(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.NoError(t, f.voiceSvc.Leave(ctx, "nobody"))
	assert.NoError(t, f.voiceSvc.Signal(ctx, domain.SignalMessage{
		From: "A", To: "nobody", Type: domain.SignalAnswer, SDP: sdp("v=0"),
	}))
}

func TestVoiceService_SignalValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  domain.SignalMessage
		want error
	}{
		{"missing from", domain.SignalMessage{To: "B", Type: domain.SignalOffer, SDP: sdp("x")}, domain.ErrInvalidUserID},
		{"missing to", domain.SignalMessage{From: "A", Type: domain.SignalOffer, SDP: sdp("x")}, domain.ErrMissingRecipient},
		{"bad type", domain.SignalMessage{From: "A", To: "B", Type: "bye"}, domain.ErrInvalidSignalType},
		{"offer without sdp", domain.SignalMessage{From: "A", To: "B", Type: domain.SignalOffer}, domain.ErrEmptySignalPayload},
		{"candidate without candidate", domain.SignalMessage{From: "A", To: "B", Type: domain.SignalCandidate, SDP: sdp("x")}, domain.ErrEmptySignalPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.voiceSvc.Signal(ctx, tt.msg), tt.want)
		})
	}

	msgs, _, err := f.voiceSvc.Poll(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestVoiceService_ConcurrentSendersDeliveredOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const senders = 50

	_, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "B", Nick: "bob"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, f.voiceSvc.Signal(ctx, domain.SignalMessage{
				From:      domain.UserID(fmt.Sprintf("S%d", i)),
				To:        "B",
				Type:      domain.SignalCandidate,
				Candidate: sdp("c"),
			}))
		}(i)
	}
	wg.Wait()

	msgs, _, err := f.voiceSvc.Poll(ctx, "B")
	require.NoError(t, err)
	require.Len(t, msgs, senders)

	seen := make(map[domain.UserID]bool, senders)
	for _, m := range msgs {
		assert.False(t, seen[m.From], "duplicate from %s", m.From)
		seen[m.From] = true
	}

	msgs, _, err = f.voiceSvc.Poll(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestVoiceService_PerSenderOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, c := range []string{"c1", "c2", "c3"} {
		require.NoError(t, f.voiceSvc.Signal(ctx, domain.SignalMessage{
			From: "A", To: "B", Type: domain.SignalCandidate, Candidate: sdp(c),
		}))
	}

	msgs, _, err := f.voiceSvc.Poll(ctx, "B")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, want := range []string{"c1", "c2", "c3"} {
		assert.Equal(t, want, *msgs[i].Candidate)
	}
}

func TestVoiceService_JoinDiscardsStaleSignals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.voiceSvc.Signal(ctx, domain.SignalMessage{
		From: "A", To: "B", Type: domain.SignalOffer, SDP: sdp("old"),
	}))
	_, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "B", Nick: "bob"})
	require.NoError(t, err)

	msgs, _, err := f.voiceSvc.Poll(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestVoiceService_SubscribeWakesOnSignal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wake, cancel := f.voiceSvc.Subscribe("B")
	defer cancel()

	select {
	case <-wake:
	default:
		t.Fatal("expected initial wake")
	}

	require.NoError(t, f.voiceSvc.Signal(ctx, domain.SignalMessage{
		From: "A", To: "B", Type: domain.SignalOffer, SDP: sdp("v=0"),
	}))

	select {
	case _, ok := <-wake:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("no wake after signal")
	}

	require.NoError(t, f.voiceSvc.Leave(ctx, "B"))
	_, ok := <-wake
	assert.False(t, ok, "leave closes subscriptions")
}

func TestVoiceService_Sweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.voiceSvc.Join(ctx, domain.Participant{ID: "A", Nick: "alice"})
	require.NoError(t, err)

	f.clock.Advance(3 * time.Minute)
	require.NoError(t, f.voiceSvc.Sweep(ctx))

	pruned, err := f.mailbox.PruneIdle(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, pruned, "sweep already dropped the idle mailbox")

	n, err := f.voice.CountActive(ctx, domain.VoiceRoom, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, evt domain.VoiceEvent) error {
	return m.Called(evt).Error(0)
}

func TestVoiceService_PublishesEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pub := &mockPublisher{}
	pub.On("Publish", domain.VoiceEvent{Kind: domain.VoiceEventSignalQueued, UserID: "B"}).Return(nil).Once()
	pub.On("Publish", domain.VoiceEvent{Kind: domain.VoiceEventLeft, UserID: "B"}).Return(errors.New("redis down")).Once()

	svc := NewVoiceService(f.voice, f.mailbox, 2*time.Minute, f.metrics, testLogger(t), WithEventPublisher(pub))

	require.NoError(t, svc.Signal(ctx, domain.SignalMessage{From: "A", To: "B", Type: domain.SignalOffer, SDP: sdp("v=0")}))
	// a failed publish does not fail the leave
	require.NoError(t, svc.Leave(ctx, "B"))

	pub.AssertExpectations(t)
}

func TestVoiceService_ApplyEvent(t *testing.T) {
	f := newFixture(t)

	wake, cancel := f.voiceSvc.Subscribe("B")
	defer cancel()
	<-wake // initial wake

	f.voiceSvc.ApplyEvent(domain.VoiceEvent{Kind: domain.VoiceEventSignalQueued, UserID: "B"})
	select {
	case _, ok := <-wake:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("no wake after remote signal")
	}

	f.voiceSvc.ApplyEvent(domain.VoiceEvent{Kind: domain.VoiceEventLeft, UserID: "B"})
	_, ok := <-wake
	assert.False(t, ok)
}
