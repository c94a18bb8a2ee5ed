package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/core/services"
	"huddle/internal/infrastructure/media"
	"huddle/internal/infrastructure/middleware"
	"huddle/internal/infrastructure/repositories/memory"
	"huddle/internal/infrastructure/webrtc"
)

const testSecret = "test-secret"

type testApp struct {
	router   *gin.Engine
	voice    ports.VoiceService
	chat     ports.ChatService
	sessions ports.SessionService
	metrics  *services.MetricsService
	mediaDir string
}

func newTestApp(t *testing.T, mode domain.IdentityMode) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t).Sugar()

	metrics := services.NewMetricsService(nil)
	channelPresence := services.NewPresenceRegistry(services.ChannelRegistry, memory.NewMemoryPresenceStore(4), 15*time.Second, metrics, log)
	voicePresence := services.NewPresenceRegistry(services.VoiceRegistry, memory.NewMemoryPresenceStore(4), 20*time.Second, metrics, log)
	voice := services.NewVoiceService(voicePresence, memory.NewMemoryMailboxStore(4, time.Now), 2*time.Minute, metrics, log)

	store := memory.NewMemoryChatStore()
	chat := services.NewCachedChatService(services.NewChatService(
		store.Channels(),
		store.Messages(),
		channelPresence,
		services.NewContentRenderer(),
		services.ChatConfig{HistoryLimit: 50, DefaultChannel: domain.Channel{Name: "General"}},
		metrics,
		log,
	), time.Minute)

	mediaDir := t.TempDir()
	files, err := media.NewFileStore(mediaDir, "/uploads", 1024)
	require.NoError(t, err)

	sessions := services.NewSessionService(testSecret, time.Hour)
	identity := middleware.NewIdentityResolver(mode)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(log))
	api := router.Group("/api", middleware.SessionMiddleware(sessions))
	NewSessionHandler(sessions).SetupRoutes(api)
	NewVoiceHandler(voice, identity, webrtc.ICEServers(nil)).SetupRoutes(api)
	NewChatHandler(chat, files, identity, 1024).SetupRoutes(api)
	NewStatsHandler(metrics, nil).WithChannelCache(chat).SetupRoutes(api)

	return &testApp{
		router:   router,
		voice:    voice,
		chat:     chat,
		sessions: sessions,
		metrics:  metrics,
		mediaDir: mediaDir,
	}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req)
}

func (a *testApp) postJSON(path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(data)))
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

func (a *testApp) get(path string) *httptest.ResponseRecorder {
	return a.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (a *testApp) delete(path string) *httptest.ResponseRecorder {
	return a.do(httptest.NewRequest(http.MethodDelete, path, nil))
}

func decode(t *testing.T, body io.Reader, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(body).Decode(v))
}
