package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"huddle/internal/core/domain"
	"huddle/pkg/circuitbreaker"
	"huddle/pkg/retry"
)

type mockChannels struct{ mock.Mock }

func (m *mockChannels) Create(ctx context.Context, ch *domain.Channel) error {
	return m.Called(ch).Error(0)
}

func (m *mockChannels) GetByID(ctx context.Context, id domain.ChannelID) (*domain.Channel, error) {
	args := m.Called(id)
	ch, _ := args.Get(0).(*domain.Channel)
	return ch, args.Error(1)
}

func (m *mockChannels) List(ctx context.Context) ([]*domain.Channel, error) {
	args := m.Called()
	list, _ := args.Get(0).([]*domain.Channel)
	return list, args.Error(1)
}

func (m *mockChannels) Count(ctx context.Context) (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

func (m *mockChannels) Delete(ctx context.Context, id domain.ChannelID) error {
	return m.Called(id).Error(0)
}

type mockMessages struct{ mock.Mock }

func (m *mockMessages) Save(ctx context.Context, msg *domain.Message) error {
	return m.Called(msg).Error(0)
}

func (m *mockMessages) ListRecent(ctx context.Context, channelID domain.ChannelID, limit int) ([]*domain.Message, error) {
	args := m.Called(channelID, limit)
	list, _ := args.Get(0).([]*domain.Message)
	return list, args.Error(1)
}

func (m *mockMessages) Delete(ctx context.Context, id domain.MessageID) error {
	return m.Called(id).Error(0)
}

func newTestWrapper(t *testing.T, ch *mockChannels, msgs *mockMessages) *StoreWrapper {
	return NewStoreWrapper(ch, msgs,
		retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
		circuitbreaker.Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour, MaxRequestsHalfOpen: 1},
		zaptest.NewLogger(t).Sugar(),
	)
}

func TestStoreWrapper_RetriesTransientErrors(t *testing.T) {
	ch := &mockChannels{}
	ch.On("Count").Return(0, errors.New("database is locked")).Once()
	ch.On("Count").Return(3, nil).Once()

	w := newTestWrapper(t, ch, &mockMessages{})
	n, err := w.Channels().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	ch.AssertNumberOfCalls(t, "Count", 2)
}

func TestStoreWrapper_NotFoundIsNotRetried(t *testing.T) {
	ch := &mockChannels{}
	ch.On("GetByID", domain.ChannelID("x")).Return(nil, domain.ErrChannelNotFound)

	w := newTestWrapper(t, ch, &mockMessages{})
	for i := 0; i < 5; i++ {
		_, err := w.Channels().GetByID(context.Background(), "x")
		assert.ErrorIs(t, err, domain.ErrChannelNotFound)
	}

	ch.AssertNumberOfCalls(t, "GetByID", 5)
	assert.Equal(t, circuitbreaker.StateClosed, w.State())
}

func TestStoreWrapper_OpensCircuit(t *testing.T) {
	msgs := &mockMessages{}
	msgs.On("Save", mock.Anything).Return(errors.New("disk I/O error"))

	w := newTestWrapper(t, &mockChannels{}, msgs)
	err := w.Messages().Save(context.Background(), &domain.Message{ID: "m"})
	require.Error(t, err)
	assert.Equal(t, circuitbreaker.StateOpen, w.State())

	err = w.Messages().Save(context.Background(), &domain.Message{ID: "m"})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	msgs.AssertNumberOfCalls(t, "Save", 2)
}
