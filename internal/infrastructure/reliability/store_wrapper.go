package reliability

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/pkg/circuitbreaker"
	apperrors "huddle/pkg/errors"
	"huddle/pkg/retry"
)

// isExpected reports errors that describe the request, not the store's health.
// They are neither retried nor counted by the breaker.
func isExpected(err error) bool {
	return errors.Is(err, domain.ErrChannelNotFound) ||
		errors.Is(err, domain.ErrMessageNotFound) ||
		errors.Is(err, context.Canceled) ||
		apperrors.IsAppError(err)
}

// StoreWrapper guards the chat repositories with retry and a shared circuit
// breaker. Presence and mailboxes are never wrapped.
type StoreWrapper struct {
	channels ports.ChannelRepository
	messages ports.MessageRepository
	logger   *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewStoreWrapper(
	channels ports.ChannelRepository,
	messages ports.MessageRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *StoreWrapper {
	retryConfig.Retryable = func(err error) bool {
		return !isExpected(err) && !errors.Is(err, circuitbreaker.ErrOpen)
	}
	cbConfig.IsFailure = func(err error) bool {
		return !isExpected(err)
	}

	w := &StoreWrapper{
		channels:       channels,
		messages:       messages,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}

	w.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return w
}

func (w *StoreWrapper) Channels() ports.ChannelRepository {
	return guardedChannels{w}
}

func (w *StoreWrapper) Messages() ports.MessageRepository {
	return guardedMessages{w}
}

func (w *StoreWrapper) State() circuitbreaker.State {
	return w.circuitBreaker.State()
}

func (w *StoreWrapper) do(ctx context.Context, fn func() error) error {
	return retry.Retry(ctx, w.retryConfig, func() error {
		return w.circuitBreaker.Execute(ctx, fn)
	})
}

func guarded[T any](ctx context.Context, w *StoreWrapper, fn func() (T, error)) (T, error) {
	return retry.Do(ctx, w.retryConfig, func() (T, error) {
		return circuitbreaker.Execute(ctx, w.circuitBreaker, fn)
	})
}

type guardedChannels struct{ w *StoreWrapper }

func (g guardedChannels) Create(ctx context.Context, ch *domain.Channel) error {
	return g.w.do(ctx, func() error { return g.w.channels.Create(ctx, ch) })
}

func (g guardedChannels) GetByID(ctx context.Context, id domain.ChannelID) (*domain.Channel, error) {
	return guarded(ctx, g.w, func() (*domain.Channel, error) { return g.w.channels.GetByID(ctx, id) })
}

func (g guardedChannels) List(ctx context.Context) ([]*domain.Channel, error) {
	return guarded(ctx, g.w, func() ([]*domain.Channel, error) { return g.w.channels.List(ctx) })
}

func (g guardedChannels) Count(ctx context.Context) (int, error) {
	return guarded(ctx, g.w, func() (int, error) { return g.w.channels.Count(ctx) })
}

func (g guardedChannels) Delete(ctx context.Context, id domain.ChannelID) error {
	return g.w.do(ctx, func() error { return g.w.channels.Delete(ctx, id) })
}

type guardedMessages struct{ w *StoreWrapper }

func (g guardedMessages) Save(ctx context.Context, msg *domain.Message) error {
	return g.w.do(ctx, func() error { return g.w.messages.Save(ctx, msg) })
}

func (g guardedMessages) ListRecent(ctx context.Context, channelID domain.ChannelID, limit int) ([]*domain.Message, error) {
	return guarded(ctx, g.w, func() ([]*domain.Message, error) {
		return g.w.messages.ListRecent(ctx, channelID, limit)
	})
}

func (g guardedMessages) Delete(ctx context.Context, id domain.MessageID) error {
	return g.w.do(ctx, func() error { return g.w.messages.Delete(ctx, id) })
}
