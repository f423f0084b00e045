package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(LevelInfo, FormatJSON, &buf)

	l.WithFields(map[string]interface{}{"importId": "abc-1", "network": "base"}).Info("import started")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "import started", entry["message"])
	assert.Equal(t, "abc-1", entry["importId"])
	assert.Equal(t, "base", entry["network"])
	assert.Equal(t, "info", entry["level"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(LevelWarn, FormatJSON, &buf)

	l.Info("hidden")
	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	l.SetLevel(LevelDebug)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(LevelInfo, FormatText, &buf)

	l.WithError(errors.New("boom")).Error("failed")
	out := buf.String()
	assert.True(t, strings.Contains(out, "failed"))
	assert.True(t, strings.Contains(out, "boom"))

	assert.Same(t, l, l.WithError(nil))
}

func TestFromContext(t *testing.T) {
	l := NewLoggerWithWriter(LevelInfo, FormatJSON, &bytes.Buffer{})
	ctx := WithLogger(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevelAndFormat(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLogLevel("verbose"))
	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatJSON, ParseLogFormat("yaml"))
}

func TestGlobalLogger(t *testing.T) {
	prev := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(prev) })

	var buf bytes.Buffer
	SetGlobalLogger(NewLoggerWithWriter(LevelDebug, FormatJSON, &buf))

	Debugf("page %d", 3)
	Warnf("retrying %s", "USDC")
	ErrorWithErr("insert failed", errors.New("conn reset"))

	out := buf.String()
	assert.Contains(t, out, "page 3")
	assert.Contains(t, out, "retrying USDC")
	assert.Contains(t, out, "conn reset")
}
