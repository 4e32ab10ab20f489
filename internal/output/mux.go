package output

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

// Mux serializes per-file byte streams onto one writer, printing a
// "==> path <==" header whenever the contributing file changes, so the
// combined stream reads like classic multi-file tail output.
type Mux struct {
	w       *bufio.Writer
	baseDir string
	arrow   *color.Color

	// active is the path whose header was printed most recently; it
	// is display state only and never persisted.
	active string
	// started flips on the first header so the very first one is not
	// preceded by a blank line.
	started bool
	// lastByteNL tracks whether output currently ends at column zero,
	// so a header never lands mid-line.
	lastByteNL bool
}

// NewMux wraps w. Headers are colorized when colorize is set; paths
// are shown relative to the current working directory when they fit
// under it.
func NewMux(w io.Writer, colorize bool) *Mux {
	arrow := color.New(color.FgBlue, color.Bold)
	if colorize {
		arrow.EnableColor()
	} else {
		arrow.DisableColor()
	}
	baseDir, _ := os.Getwd()
	return &Mux{
		w:          bufio.NewWriter(w),
		baseDir:    baseDir,
		arrow:      arrow,
		lastByteNL: true,
	}
}

// Emit writes data attributed to path. freshHeader forces a header
// even when path is already active, which happens right after a
// rotation. Empty data writes nothing at all.
func (m *Mux) Emit(path string, data []byte, freshHeader bool) {
	if len(data) == 0 {
		return
	}
	if path != m.active || freshHeader || !m.started {
		m.header(path)
	}
	m.w.Write(data)
	m.lastByteNL = data[len(data)-1] == '\n'
}

func (m *Mux) header(path string) {
	if m.started {
		if !m.lastByteNL {
			m.w.WriteByte('\n')
		}
		m.w.WriteByte('\n')
	}
	m.arrow.Fprint(m.w, "==> ")
	m.w.WriteString(m.displayPath(path))
	m.arrow.Fprint(m.w, " <==")
	m.w.WriteByte('\n')
	m.active = path
	m.started = true
	m.lastByteNL = true
}

// Deactivate ends path's run as the active file, completing its last
// line so whatever comes next starts at column zero. A no-op when the
// path is not active.
func (m *Mux) Deactivate(path string) {
	if m.active != path {
		return
	}
	if !m.lastByteNL {
		m.w.WriteByte('\n')
		m.lastByteNL = true
	}
	m.active = ""
}

// Flush drains the buffer to the underlying writer.
func (m *Mux) Flush() error {
	return m.w.Flush()
}

func (m *Mux) displayPath(path string) string {
	if m.baseDir != "" {
		if rel, err := filepath.Rel(m.baseDir, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	return strings.TrimPrefix(path, "./")
}
