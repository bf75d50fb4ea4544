package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
)

func TestError_Mapping(t *testing.T) {
	tests := map[string]struct {
		err      *errors.Error
		wantHTTP int
		wantGRPC codes.Code
	}{
		"not found": {
			err:      errors.NotFound("quiz %s", "q1"),
			wantHTTP: http.StatusNotFound,
			wantGRPC: codes.NotFound,
		},
		"forbidden": {
			err:      errors.Forbidden("not yours"),
			wantHTTP: http.StatusForbidden,
			wantGRPC: codes.PermissionDenied,
		},
		"invalid state": {
			err:      errors.InvalidState("already completed"),
			wantHTTP: http.StatusConflict,
			wantGRPC: codes.FailedPrecondition,
		},
		"conflict": {
			err:      errors.Conflict("attempt in progress"),
			wantHTTP: http.StatusConflict,
			wantGRPC: codes.AlreadyExists,
		},
		"internal": {
			err:      errors.Internal(fmt.Errorf("boom")),
			wantHTTP: http.StatusInternalServerError,
			wantGRPC: codes.Internal,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.wantHTTP, tt.err.HTTPStatusCode())
			assert.Equal(t, tt.wantGRPC, status.Code(tt.err))
		})
	}
}

func TestConvert(t *testing.T) {
	wrapped := fmt.Errorf("controller: %w", errors.InvalidState("attempt is completed"))

	e := errors.Convert(wrapped)
	require.Equal(t, errors.CodeInvalidState, e.Code)
	require.Equal(t, "attempt is completed", e.Message)
	require.True(t, errors.Is(wrapped, errors.CodeInvalidState))
	require.False(t, errors.Is(wrapped, errors.CodeNotFound))

	cause := stderrors.New("connection reset")
	e = errors.Convert(cause)
	require.Equal(t, errors.CodeInternal, e.Code)
	require.ErrorIs(t, e, cause)
}
