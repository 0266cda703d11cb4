package logger

import (
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// zerologAdapter implements Logger on top of rs/zerolog. Every line carries
// the component field; the minimum level is read once from LOG_LEVEL at
// construction.
type zerologAdapter struct {
	log zerolog.Logger
}

// NewZerologLogger creates a component logger writing to stdout. APP_ENV=dev
// switches to the human-readable console writer, anything else emits JSON.
// LOG_LEVEL sets the minimum level; it defaults to info, so debug lines are
// dropped unless explicitly enabled.
func NewZerologLogger(component string) Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(os.Getenv("APP_ENV"), "dev") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	}
	return newZerologAdapter(out, component)
}

func newZerologAdapter(out io.Writer, component string) Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil && parsed != zerolog.NoLevel {
		level = parsed
	}
	z := zerolog.New(out).Level(level).With().Timestamp().Str("component", component).Logger()
	return &zerologAdapter{log: z}
}

func (l *zerologAdapter) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

// Debugw emits fields in key order so lines for the same call site diff
// cleanly across runs.
func (l *zerologAdapter) Debugw(msg string, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ev := l.log.Debug()
	for _, k := range keys {
		ev = ev.Interface(k, fields[k])
	}
	ev.Msg(msg)
}

func (l *zerologAdapter) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *zerologAdapter) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *zerologAdapter) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
