package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/core/domain"
)

func TestContentRenderer_RenderText(t *testing.T) {
	r := NewContentRenderer()

	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{name: "plain", input: "hello", contains: []string{"<p>hello</p>"}},
		{name: "emphasis", input: "**hi** ~~no~~", contains: []string{"<strong>hi</strong>", "<del>no</del>"}},
		{name: "raw html dropped", input: "<script>alert(1)</script>", excludes: []string{"<script>"}},
		{name: "entities escaped", input: "a < b & c", contains: []string{"a &lt; b &amp; c"}},
		{name: "autolink", input: "see https://example.org", contains: []string{`<a href="https://example.org">`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.RenderText(tt.input)
			require.NoError(t, err)
			for _, c := range tt.contains {
				assert.Contains(t, out, c)
			}
			for _, e := range tt.excludes {
				assert.NotContains(t, out, e)
			}
		})
	}

	out, err := r.RenderText("   ")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestContentRenderer_RenderAttachment(t *testing.T) {
	r := NewContentRenderer()

	tests := []struct {
		name string
		file string
		want string
	}{
		{"image", "cat.PNG", `<img src="/uploads/x" class="media-img" alt="cat.PNG">`},
		{"video", "clip.webm", `<video controls src="/uploads/x" class="media-vid"></video>`},
		{"audio", "voice_note.mp3", `<audio controls src="/uploads/x"></audio>`},
		{"other", "notes.pdf", `<a href="/uploads/x" target="_blank" rel="noopener">📎 notes.pdf</a>`},
		{"escaped name", `"><b>.txt`, `<a href="/uploads/x" target="_blank" rel="noopener">📎 &#34;&gt;&lt;b&gt;.txt</a>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.RenderAttachment(domain.Attachment{Name: tt.file, URL: "/uploads/x"}))
		})
	}
}

func TestContentRenderer_RenderWithCaption(t *testing.T) {
	r := NewContentRenderer()

	out, err := r.Render("look", &domain.Attachment{Name: "a.gif", URL: "/u/a.gif"})
	require.NoError(t, err)
	assert.Contains(t, out, `<img src="/u/a.gif"`)
	assert.Contains(t, out, "<p>look</p>")

	out, err = r.Render("", &domain.Attachment{Name: "a.gif", URL: "/u/a.gif"})
	require.NoError(t, err)
	assert.NotContains(t, out, "<p>")
}
