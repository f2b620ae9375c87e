package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComponentLoggers(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	InitWithWriter(&buf)
	defer func() { Default = nil }()

	ForCollector("조달청").Info().Msg("page fetched")
	LogError("store", errors.New("duplicate key"), "save %s failed", "R25BK00000001")

	out := buf.String()
	assert.Contains(t, out, "component=collector")
	assert.Contains(t, out, "org=조달청")
	assert.Contains(t, out, "page fetched")
	assert.Contains(t, out, "save R25BK00000001 failed")
	assert.Contains(t, out, "duplicate key")
	assert.True(t, IsDebugEnabled())
}

func TestLogLevelFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("BIDNOTICE_ENVIRONMENT", "production")
	assert.Equal(t, "info", getLogLevel().String())

	t.Setenv("BIDNOTICE_ENVIRONMENT", "development")
	assert.Equal(t, "debug", getLogLevel().String())

	t.Setenv("LOG_LEVEL", "not-a-level")
	assert.Equal(t, "info", getLogLevel().String())
}
