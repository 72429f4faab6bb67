package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process-wide logger. When logFile is non-empty
// the raw JSON stream is teed there alongside the console; lane debugging
// lives or dies on that file surviving restarts, so it is opened append-only.
func InitLogger(app, level, logFile string) zerolog.Logger {
	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	var out io.Writer = console
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			out = zerolog.MultiLevelWriter(console, f)
		}
	}
	logger := zerolog.New(out).With().Timestamp().Str("app", app).Logger()
	if lvl, err := zerolog.ParseLevel(level); err == nil && level != "" {
		logger = logger.Level(lvl)
	}
	log.Logger = logger
	return logger
}
