package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeError(t *testing.T) {
	se := NewTransportError("list deployments", stderrors.New("reset"))

	assert.Same(t, se, normalizeError(se))
	assert.Same(t, se, normalizeError(fmt.Errorf("wrapped: %w", se)))

	plain := normalizeError(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.Equal(t, "boom", plain.Details)
	assert.False(t, plain.Retryable)
}

func TestRetryDecision(t *testing.T) {
	tests := []struct {
		name       string
		err        *StandardError
		jobRetries int32
		retry      bool
		remaining  int32
	}{
		{"retryable with retries left", NewTransportError("x", nil), 3, true, 2},
		{"retryable on last attempt", NewTransportError("x", nil), 1, false, 0},
		{"non retryable", NewInvalidInputError(stderrors.New("bad json")), 3, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry, remaining := retryDecision(tt.err, tt.jobRetries)
			assert.Equal(t, tt.retry, retry)
			assert.Equal(t, tt.remaining, remaining)
		})
	}
}

func TestErrorVariables(t *testing.T) {
	vars := errorVariables(NewInvalidInputError(stderrors.New("unexpected end of JSON input")))

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(vars), &decoded))
	assert.Equal(t, "INVALID_INPUT", decoded["errorCode"])
	assert.Equal(t, "unexpected end of JSON input", decoded["errorDetails"])
}
