package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterCarriesComponentField(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	var buf bytes.Buffer
	l := newZerologAdapter(&buf, "candidate")

	l.Infof("resolved %d cards", 3)
	l.Debugw("ranked pool", map[string]any{"b": 2, "a": 1})

	out := buf.String()
	assert.Contains(t, out, `"component":"candidate"`)
	assert.Contains(t, out, "resolved 3 cards")

	// Structured fields render sorted by key.
	ia, ib := strings.Index(out, `"a":1`), strings.Index(out, `"b":2`)
	require.Greater(t, ia, -1)
	require.Greater(t, ib, -1)
	assert.Less(t, ia, ib)
}

func TestAdapterDefaultLevelDropsDebug(t *testing.T) {
	var buf bytes.Buffer
	l := newZerologAdapter(&buf, "api")

	l.Debugf("quiet %d", 1)
	l.Debugw("quiet", map[string]any{"k": 1})
	l.Warnf("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestAdapterLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	var buf bytes.Buffer
	l := newZerologAdapter(&buf, "outbox")

	l.Infof("dropped")
	l.Errorf("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewZerologLoggerDevConsole(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	require.NotNil(t, l)
	l.Infof("console mode")
}
