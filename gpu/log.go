package gpu

import (
	"fmt"
	"log/slog"
)

// Debug enables tracing of every pipeline step through Log.
var Debug = false

// Logger receives pipeline tracing. It defaults to slog.Default().
var Logger = slog.Default()

// Log emits a formatted debug record on Logger.
func Log(format string, args ...any) {
	Logger.Debug(fmt.Sprintf(format, args...))
}
