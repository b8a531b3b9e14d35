package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "key-value password",
			input:    "host=db port=5432 user=quality password=hunter2 dbname=quality_engine",
			expected: "host=db port=5432 user=quality password=[REDACTED] dbname=quality_engine",
		},
		{
			name:     "url credentials",
			input:    "postgres://quality:hunter2@db:5432/quality_engine",
			expected: "postgres://[REDACTED]@[REDACTED]/quality_engine",
		},
		{
			name:     "no secrets untouched",
			input:    "host=db port=5432 dbname=quality_engine",
			expected: "host=db port=5432 dbname=quality_engine",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeConnectionString(tt.input))
		})
	}
}

func TestSanitizeError(t *testing.T) {
	assert.Equal(t, "", SanitizeError(nil))

	err := errors.New(`dial failed: postgres://quality:hunter2@db:5432/q`)
	assert.NotContains(t, SanitizeError(err), "hunter2")
}
