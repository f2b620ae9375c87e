package helpers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "error.log")

	l := NewLogger("worker", tmpFile)
	l.LogError("조달청", errors.New("test error"))
	l.LogInfo("수집 완료: %d건", 3)

	data, err := os.ReadFile(tmpFile)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "조달청")
	assert.Contains(t, string(data), "test error")
}

func TestLoggerWithoutFile(t *testing.T) {
	l := NewLogger("worker", "")
	assert.NotPanics(t, func() { l.LogError("source", errors.New("boom")) })
}
