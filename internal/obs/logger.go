package obs

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. The level comes from PBJSON_LOG_LEVEL
// (any zerolog level name; default info).
func NewLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if s := os.Getenv("PBJSON_LOG_LEVEL"); s != "" {
		if parsed, err := zerolog.ParseLevel(s); err == nil {
			level = parsed
		}
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// TranscodeEvent annotates an event with the schema set and message type a
// transcode touched.
func TranscodeEvent(logger zerolog.Logger, schemaID, messageType string) *zerolog.Event {
	return logger.Info().Str("schema", schemaID).Str("messageType", messageType)
}
