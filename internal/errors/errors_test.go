package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/ledger-dashboard/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		category   ErrorCategory
		statusCode int
	}{
		{"validation", NewValidationError("address", "must be a 0x-prefixed hex address"), CategoryValidation, http.StatusBadRequest},
		{"wrapped fetch", fmt.Errorf("run: %w", NewFetchError("rate limited", nil)), CategoryFetch, http.StatusBadGateway},
		{"service not found", &types.ServiceError{Code: "WALLET_NOT_FOUND", Message: "missing"}, CategoryNotFound, http.StatusNotFound},
		{"service unknown", &types.ServiceError{Code: "WHATEVER", Message: "x"}, CategorySystem, http.StatusInternalServerError},
		{"plain", fmt.Errorf("boom"), CategorySystem, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Categorize(tt.err)
			assert.Equal(t, tt.category, c.Category)
			assert.Equal(t, tt.statusCode, GetHTTPStatusCode(tt.err))
		})
	}
	assert.Nil(t, Categorize(nil))
}

func TestValidationMessageNamesOnlyTheField(t *testing.T) {
	err := NewValidationError("tokens", "at least one asset is required")
	assert.Equal(t, "tokens: at least one asset is required", err.Message)
	assert.Equal(t, "INVALID_INPUT", err.ToServiceError().Code)
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsUserError(NewNotFoundError("import", "x")))
	assert.False(t, IsSystemError(NewNotFoundError("import", "x")))
	assert.True(t, IsSystemError(NewPersistenceError("insert", fmt.Errorf("down"))))
	assert.True(t, IsRetryable(NewFetchError("timeout", nil)))
	assert.False(t, IsRetryable(NewValidationError("network", "unsupported")))
	assert.True(t, Is(fmt.Errorf("wrap: %w", NewParseError("a.csv", 3, "bad")), CategoryParse))
	assert.False(t, Is(fmt.Errorf("plain"), CategoryParse))
}
