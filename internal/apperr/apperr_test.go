package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKind_HTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindAuthentication, http.StatusBadRequest},
		{KindValidation, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindAuthorization, http.StatusForbidden},
		{KindConflict, http.StatusBadRequest},
		{KindTransientProvider, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
		{KindUnauthenticated, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			require.Equal(t, tt.want, tt.kind.HTTPStatus())
		})
	}
}

func TestKindOf_wrapped(t *testing.T) {
	base := Conflict(CodeInviteExpired, "This invite has expired")
	err := fmt.Errorf("redeem: %w", base)

	require.Equal(t, KindConflict, KindOf(err))
	require.Equal(t, CodeInviteExpired, CodeOf(err))
	require.True(t, Is(err, KindConflict))
}

func TestKindOf_unclassified(t *testing.T) {
	err := errors.New("boom")

	require.Equal(t, KindInternal, KindOf(err))
	require.Equal(t, CodeUnknown, CodeOf(err))
}

func TestError_unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := TransientProvider("Failed to fetch subscription", cause)

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection reset")
}

func TestError_withDetail(t *testing.T) {
	err := Validation(CodeMissingMetadata, "Missing metadata").WithDetail("field", "planId")

	require.Equal(t, map[string]any{"field": "planId"}, err.Details)
}
