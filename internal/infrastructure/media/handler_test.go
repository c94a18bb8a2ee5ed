package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServedStore(t *testing.T) (*FileStore, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fs, err := NewFileStore(t.TempDir(), "/uploads", 1024)
	require.NoError(t, err)
	router := gin.New()
	fs.RegisterRoutes(router)
	return fs, router
}

func serveGet(router *gin.Engine, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	return w
}

func TestFileStore_ServesMediaInline(t *testing.T) {
	fs, router := newServedStore(t)
	att, err := fs.Save(context.Background(), "cat.png", strings.NewReader("pixels"))
	require.NoError(t, err)

	w := serveGet(router, att.URL)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pixels", w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestFileStore_ServesOtherFilesAsDownload(t *testing.T) {
	fs, router := newServedStore(t)

	for _, name := range []string{"page.html", "logo.svg", "notes"} {
		t.Run(name, func(t *testing.T) {
			att, err := fs.Save(context.Background(), name, strings.NewReader("<script>alert(1)</script>"))
			require.NoError(t, err)

			w := serveGet(router, att.URL)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
			assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment"))
		})
	}
}

func TestFileStore_ServeMissing(t *testing.T) {
	_, router := newServedStore(t)

	assert.Equal(t, http.StatusNotFound, serveGet(router, "/uploads/missing.png").Code)
	assert.Equal(t, http.StatusNotFound, serveGet(router, "/uploads/..").Code)
}
