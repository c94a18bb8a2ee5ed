package signal

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/infrastructure/middleware"
	apperrors "huddle/pkg/errors"
	"huddle/pkg/tracing"
)

type Config struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	MessagesPerSecond float64
	Burst             int
	AllowedOrigins    []string
}

func DefaultConfig() Config {
	return Config{
		PingInterval:      10 * time.Second,
		PongTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageSize:    64 * 1024,
		MessagesPerSecond: 50,
		Burst:             100,
	}
}

// PushObserver is told when push connections open and close.
type PushObserver interface {
	PushConnected()
	PushDisconnected()
}

// inboundSignal is a signal sent by the client over its socket. The sender
// is always the socket's owner.
type inboundSignal struct {
	To        domain.UserID `json:"to"`
	Type      string        `json:"type"`
	SDP       *string       `json:"sdp"`
	Candidate *string       `json:"candidate"`
}

type errorFrame struct {
	Error string `json:"error"`
}

type client struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// WebSocketServer pushes mailbox contents to voice participants as soon as
// they arrive, instead of waiting for the next poll. It also accepts signals
// from the client. Presence stays owned by the voice service: a socket only
// refreshes it while open.
type WebSocketServer struct {
	voice    ports.VoiceService
	identity *middleware.IdentityResolver
	limiter  *middleware.WebSocketLimiter
	observer PushObserver
	cfg      Config
	upgrader websocket.Upgrader

	clients map[domain.UserID]*client
	mu      sync.RWMutex

	logger *zap.SugaredLogger
}

func NewWebSocketServer(
	voice ports.VoiceService,
	identity *middleware.IdentityResolver,
	limiter *middleware.WebSocketLimiter,
	observer PushObserver,
	cfg Config,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	s := &WebSocketServer{
		voice:    voice,
		identity: identity,
		limiter:  limiter,
		observer: observer,
		cfg:      cfg,
		clients:  make(map[domain.UserID]*client),
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	// same host is always fine
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// HandleVoice upgrades the request and serves one participant until the
// socket closes, the participant leaves, or ctx ends.
func (s *WebSocketServer) HandleVoice(c *gin.Context) {
	who, err := s.identity.Resolve(c, c.Query("nick"))
	if err != nil {
		c.Error(err)
		return
	}

	release := func() {}
	if s.limiter != nil {
		var ok bool
		release, ok = s.limiter.Acquire(c.Request)
		if !ok {
			middleware.AbortWithAppError(c, apperrors.NewRateLimitError().WithContext("reason", "too many connections"))
			return
		}
	}
	defer release()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.serve(c.Request.Context(), who, conn)
}

func (s *WebSocketServer) register(id domain.UserID, cl *client) {
	s.mu.Lock()
	old, reconnect := s.clients[id]
	s.clients[id] = cl
	s.mu.Unlock()

	if reconnect {
		old.close()
		s.logger.Infow("replacing push connection", "user_id", id)
	}
}

func (s *WebSocketServer) unregister(id domain.UserID, cl *client) {
	s.mu.Lock()
	if s.clients[id] == cl {
		delete(s.clients, id)
	}
	s.mu.Unlock()
}

func (s *WebSocketServer) serve(ctx context.Context, who domain.Participant, conn *websocket.Conn) {
	cl := &client{conn: conn, done: make(chan struct{})}
	s.register(who.ID, cl)
	defer s.unregister(who.ID, cl)

	wake, cancel := s.voice.Subscribe(who.ID)
	defer cancel()

	if s.observer != nil {
		s.observer.PushConnected()
		defer s.observer.PushDisconnected()
	}

	s.logger.Infow("push connection opened", "user_id", who.ID, "nick", who.Nick)

	conn.SetReadLimit(s.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	replies := make(chan errorFrame, 8)
	readErr := make(chan error, 1)
	go s.readLoop(ctx, who.ID, conn, replies, readErr)

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	send := func(v interface{}) error { return s.writeJSON(conn, v) }

	for {
		select {
		case _, ok := <-wake:
			if !ok {
				s.writeClose(conn, "left voice")
				s.logger.Infow("push connection closed after leave", "user_id", who.ID)
				return
			}
			if err := s.deliver(ctx, who.ID, send); err != nil {
				s.logger.Infow("push delivery failed", "user_id", who.ID, "error", err)
				return
			}

		case reply := <-replies:
			if err := s.writeJSON(conn, reply); err != nil {
				return
			}

		case <-pingTicker.C:
			// an open socket counts as polling
			if err := s.deliver(ctx, who.ID, send); err != nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "user_id", who.ID, "error", err)
				return
			}

		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("error reading from push connection", "user_id", who.ID, "error", err)
			}
			return

		case <-cl.done:
			s.writeClose(conn, "replaced by a newer connection")
			return

		case <-ctx.Done():
			s.writeClose(conn, "server shutting down")
			return
		}
	}
}

// deliver drains the mailbox through send. Messages that could not be sent
// go back to the front of the mailbox in order.
func (s *WebSocketServer) deliver(ctx context.Context, id domain.UserID, send func(interface{}) error) error {
	ctx, span := tracing.TraceVoiceOperation(ctx, "push", string(id))
	defer span.End()

	msgs, active, err := s.voice.Poll(ctx, id)
	if err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	tracing.AddSpanAttributes(ctx,
		attribute.Int("voice.signals", len(msgs)),
		attribute.Bool("voice.active", active),
	)

	for i, m := range msgs {
		if err := send(m); err != nil {
			tracing.RecordError(ctx, err)
			if rqErr := s.voice.Requeue(context.WithoutCancel(ctx), id, msgs[i:]); rqErr != nil {
				s.logger.Errorw("failed to requeue undelivered signals",
					"user_id", id,
					"count", len(msgs)-i,
					"error", rqErr,
				)
			}
			return err
		}
	}
	return nil
}

func (s *WebSocketServer) readLoop(ctx context.Context, from domain.UserID, conn *websocket.Conn, replies chan<- errorFrame, readErr chan<- error) {
	limiter := rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)

	for {
		var in inboundSignal
		if err := conn.ReadJSON(&in); err != nil {
			readErr <- err
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		if s.cfg.MessagesPerSecond > 0 && !limiter.Allow() {
			s.reply(replies, "rate limit exceeded")
			continue
		}

		t, err := domain.ParseSignalType(in.Type)
		if err != nil {
			s.reply(replies, err.Error())
			continue
		}
		err = s.voice.Signal(ctx, domain.SignalMessage{
			From:      from,
			To:        in.To,
			Type:      t,
			SDP:       in.SDP,
			Candidate: in.Candidate,
		})
		if err != nil {
			s.reply(replies, err.Error())
		}
	}
}

func (s *WebSocketServer) reply(replies chan<- errorFrame, msg string) {
	select {
	case replies <- errorFrame{Error: msg}:
	default:
	}
}

func (s *WebSocketServer) writeJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteJSON(v)
}

func (s *WebSocketServer) writeClose(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
}

// ConnectedCount returns the number of open push connections.
func (s *WebSocketServer) ConnectedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *WebSocketServer) IsConnected(id domain.UserID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clients[id]
	return ok
}

// CloseAll asks every connection to close.
func (s *WebSocketServer) CloseAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cl := range s.clients {
		cl.close()
	}
}
