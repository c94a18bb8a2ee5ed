package media

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"huddle/internal/core/domain"
)

// RegisterRoutes serves stored files under the URL prefix. Images, video and
// audio are served inline, anything else only as a download.
func (fs *FileStore) RegisterRoutes(r gin.IRoutes) {
	r.GET(fs.urlPrefix+"/:name", fs.serve)
	r.HEAD(fs.urlPrefix+"/:name", fs.serve)
}

func (fs *FileStore) serve(c *gin.Context) {
	name, ok := fs.storedName(c.Param("name"))
	if !ok {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	filePath := filepath.Join(fs.basePath, name)
	if info, err := os.Stat(filePath); err != nil || info.IsDir() {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	c.Header("X-Content-Type-Options", "nosniff")
	if domain.MediaKindOf(name) == domain.MediaLink {
		c.Header("Content-Type", "application/octet-stream")
		c.FileAttachment(filePath, name)
		return
	}
	c.File(filePath)
}
