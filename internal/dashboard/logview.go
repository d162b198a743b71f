package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"

	"github.com/whaletop/whaletop/internal/docker"
	"github.com/whaletop/whaletop/internal/session"
)

// logView is the log pane: a viewport over the lines received so far,
// with follow mode and plain-text search.
type logView struct {
	viewport viewport.Model
	target   string
	stream   *session.LogStream

	lines  []docker.LogLine
	follow bool
	closed bool
	err    error

	query    string
	matches  []int
	matchIdx int
}

func newLogView(target string, stream *session.LogStream, width, height int) *logView {
	vp := viewport.New(width, height)
	return &logView{
		viewport: vp,
		target:   target,
		stream:   stream,
		follow:   true,
	}
}

// append records a new line and refreshes the viewport, sticking to the
// bottom while follow mode is on.
func (v *logView) append(line docker.LogLine) {
	v.lines = append(v.lines, line)
	if v.query != "" && lineMatches(line, v.query) {
		v.matches = append(v.matches, len(v.lines)-1)
	}
	v.refresh()
	if v.follow {
		v.viewport.GotoBottom()
	}
}

// refresh re-renders the viewport content from the line buffer.
func (v *logView) refresh() {
	var sb strings.Builder
	for i, line := range v.lines {
		ts := faintStyle.Render(line.Timestamp.Format("15:04:05"))
		text := line.Text
		if v.query != "" && containsMatch(v.matches, i) {
			text = highlightQuery(text, v.query)
		}
		sb.WriteString(ts + " " + text + "\n")
	}
	v.viewport.SetContent(sb.String())
}

// search records the query, collects matching line indexes and jumps to
// the first match. Follow mode is suspended so the jump sticks.
func (v *logView) search(query string) {
	v.query = query
	v.matches = v.matches[:0]
	v.matchIdx = 0
	if query == "" {
		v.refresh()
		return
	}
	for i, line := range v.lines {
		if lineMatches(line, query) {
			v.matches = append(v.matches, i)
		}
	}
	v.refresh()
	if len(v.matches) > 0 {
		v.follow = false
		v.jumpToMatch(0)
	}
}

// nextMatch moves the match cursor forward or backward, wrapping.
func (v *logView) nextMatch(dir int) {
	if len(v.matches) == 0 {
		return
	}
	v.matchIdx = (v.matchIdx + dir + len(v.matches)) % len(v.matches)
	v.jumpToMatch(v.matchIdx)
}

func (v *logView) jumpToMatch(idx int) {
	lineIdx := v.matches[idx]
	offset := lineIdx - v.viewport.Height/2
	if offset < 0 {
		offset = 0
	}
	v.viewport.SetYOffset(offset)
}

// status renders the log pane footer line.
func (v *logView) status() string {
	parts := []string{fmt.Sprintf("%d lines", len(v.lines))}
	if v.follow {
		parts = append(parts, "following")
	}
	if v.query != "" {
		parts = append(parts, searchStyle.Render(fmt.Sprintf("/%s %d/%d", v.query, v.matchIdx+1, len(v.matches))))
	}
	if v.closed {
		if v.err != nil {
			parts = append(parts, stoppedStyle.Render("stream error: "+v.err.Error()))
		} else {
			parts = append(parts, mutedStyle.Render("stream ended"))
		}
	}
	return statusStyle.Render(strings.Join(parts, "  "))
}

func lineMatches(line docker.LogLine, query string) bool {
	return strings.Contains(strings.ToLower(line.Text), strings.ToLower(query))
}

func containsMatch(matches []int, i int) bool {
	for _, m := range matches {
		if m == i {
			return true
		}
	}
	return false
}

func highlightQuery(text, query string) string {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, strings.ToLower(query))
	if idx < 0 {
		return text
	}
	end := idx + len(query)
	return text[:idx] + searchStyle.Render(text[idx:end]) + text[end:]
}
