package logging

import (
	"io"
	"log"
	"os"

	"github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
)

// sinkWriter selects the writer used for the root logger's output. On
// Windows consoles that don't natively understand ANSI escapes, output is
// wrapped with go-colorable so that the color codes written by Warn/Error
// still render correctly; on non-TTY destinations (files, pipes, CI logs)
// the raw stream is used as-is, since color has no effect there beyond
// adding noise.
func sinkWriter(f *os.File) io.Writer {
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return f
	}
	return colorable.NewColorable(f)
}

func init() {
	// Set the global logger to use standard error, adapted for the current
	// console so that colorized Warn/Error output renders everywhere.
	log.SetOutput(sinkWriter(os.Stderr))
	log.SetFlags(0)
}
