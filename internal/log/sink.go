package log

import (
	"io"
	"os"
)

var output io.Writer = os.Stderr

func stderr() io.Writer { return output }

// SetOutput redirects subsequently configured loggers to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	output = w
	mu.Unlock()
}
