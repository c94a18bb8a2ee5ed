package services

import (
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldhtml "github.com/yuin/goldmark/renderer/html"

	"huddle/internal/core/domain"
	"huddle/pkg/optimize"
)

// ContentRenderer turns user input into the HTML stored as message content.
// Raw HTML in text is dropped, so stored content is safe to insert as is.
type ContentRenderer struct {
	md   goldmark.Markdown
	bufs *optimize.BufferPool
}

func NewContentRenderer() *ContentRenderer {
	return &ContentRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
			goldmark.WithRendererOptions(goldhtml.WithHardWraps()),
		),
		bufs: optimize.NewBufferPool(512, 64<<10),
	}
}

// RenderText renders markdown text. Empty input yields "".
func (r *ContentRenderer) RenderText(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	buf := r.bufs.Get()
	defer r.bufs.Put(buf)
	if err := r.md.Convert([]byte(text), buf); err != nil {
		return "", fmt.Errorf("render message: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// RenderAttachment picks an inline player or image by file extension and
// falls back to a download link.
func (r *ContentRenderer) RenderAttachment(a domain.Attachment) string {
	src := html.EscapeString(a.URL)
	switch domain.MediaKindOf(a.Name) {
	case domain.MediaImage:
		return fmt.Sprintf(`<img src="%s" class="media-img" alt="%s">`, src, html.EscapeString(a.Name))
	case domain.MediaVideo:
		return fmt.Sprintf(`<video controls src="%s" class="media-vid"></video>`, src)
	case domain.MediaAudio:
		return fmt.Sprintf(`<audio controls src="%s"></audio>`, src)
	default:
		return fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener">📎 %s</a>`, src, html.EscapeString(a.Name))
	}
}

// Render combines an optional attachment with an optional caption.
func (r *ContentRenderer) Render(text string, attachment *domain.Attachment) (string, error) {
	body, err := r.RenderText(text)
	if err != nil {
		return "", err
	}
	if attachment == nil {
		return body, nil
	}
	media := r.RenderAttachment(*attachment)
	if body == "" {
		return media, nil
	}
	return media + "\n" + body, nil
}
