package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{NewValidationError("bad", nil), "VALIDATION_ERROR", http.StatusBadRequest},
		{NewNotFound("request", nil), "NOT_FOUND", http.StatusNotFound},
		{NewUnauthorized("nope"), "UNAUTHORIZED", http.StatusUnauthorized},
		{NewAuthorizationError("nope"), "AUTHORIZATION_ERROR", http.StatusForbidden},
		{NewConflict("raced", nil), "CONFLICT", http.StatusConflict},
		{NewRateLimited("slow down"), "RATE_LIMITED", http.StatusTooManyRequests},
		{NewInternalError(errors.New("boom")), "INTERNAL_ERROR", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		domainErr := ToDomainError(tc.err)
		require.Equal(t, tc.code, domainErr.Code)
		require.Equal(t, tc.status, domainErr.HTTPStatus)
		require.Equal(t, tc.code, CodeOf(tc.err))
	}
}

func TestToDomainErrorMapsNoRows(t *testing.T) {
	domainErr := ToDomainError(pgx.ErrNoRows)
	require.Equal(t, "NOT_FOUND", domainErr.Code)
	require.Equal(t, http.StatusNotFound, domainErr.HTTPStatus)

	wrapped := fmt.Errorf("load request: %w", pgx.ErrNoRows)
	require.Equal(t, "NOT_FOUND", ToDomainError(wrapped).Code)
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	cause := errors.New("connection reset")
	domainErr := ToDomainError(cause)
	require.Equal(t, "INTERNAL_ERROR", domainErr.Code)
	require.ErrorIs(t, domainErr, cause)
}

func TestToDomainErrorPreservesWrappedDomainError(t *testing.T) {
	inner := NewConflict("raced", map[string]any{"current_status": "IN_PROGRESS"})
	wrapped := fmt.Errorf("apply transition: %w", inner)

	domainErr := ToDomainError(wrapped)
	require.Equal(t, "CONFLICT", domainErr.Code)
	require.Equal(t, "IN_PROGRESS", domainErr.Details["current_status"])
}

func TestCodeOfUntagged(t *testing.T) {
	require.Empty(t, CodeOf(errors.New("plain")))
	require.Empty(t, CodeOf(nil))
}
