package utils

import (
	"io"
	"sync"

	"github.com/fatih/color"
)

var palette = []color.Attribute{color.FgYellow, color.FgGreen, color.FgCyan, color.FgWhite, color.FgMagenta}

var (
	paletteLock  sync.Mutex
	paletteIndex = -1
)

const MaxNameLength = 20

// PrefixWriter is an io.Writer that prefixes every write with a colored
// job name, so interleaved output from concurrent jobs stays readable.
type PrefixWriter struct {
	name   string
	writer io.Writer
	c      color.Attribute
}

// NewPrefixWriter wraps writer with a "name | " prefix. When newColor is
// true the next color in the palette is claimed, otherwise the current one
// is reused so a job's stdout and stderr share a color.
func NewPrefixWriter(name string, writer io.Writer, newColor bool) io.Writer {
	paletteLock.Lock()
	if newColor || paletteIndex < 0 {
		paletteIndex = (paletteIndex + 1) % len(palette)
	}
	c := palette[paletteIndex]
	paletteLock.Unlock()

	if len(name) > MaxNameLength {
		name = name[:MaxNameLength-3] + "..."
	}

	return &PrefixWriter{
		name:   name,
		writer: writer,
		c:      c,
	}
}

func (p *PrefixWriter) Write(b []byte) (int, error) {
	out := color.New(p.c)
	if _, err := out.Fprint(p.writer, p.name, " | "); err != nil {
		return 0, err
	}
	return out.Fprintf(p.writer, "%s", b)
}
