package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectionError(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := NewNetwork("data.go.kr", "page 3 failed", cause)

	assert.Contains(t, err.Error(), "[network] data.go.kr: page 3 failed")
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsRetryable())
	assert.False(t, NewValidation("parser", "missing bidNtceNo").IsRetryable())
}

func TestIsType(t *testing.T) {
	wrapped := fmt.Errorf("save notice: %w", NewPersistence("store", "insert failed", nil))
	assert.True(t, IsType(wrapped, ErrorTypePersistence))
	assert.False(t, IsType(wrapped, ErrorTypeNetwork))
	assert.False(t, IsType(nil, ErrorTypeNetwork))
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "SETTINGS_NOT_FOUND", CodeSettingsNotFound.String())
	assert.Equal(t, "RENDER_ENGINE_ERROR", CodeRenderEngine.String())
	assert.Equal(t, "ERROR_42", ErrorCode(42).String())

	se := NewScrapeError(CodePageAccess, "all %d pages failed", 3)
	assert.Equal(t, "PAGE_ACCESS_ERROR(200): all 3 pages failed", se.Error())
}
