package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, MetadataFor(CodeValidation).HTTPStatus)
	require.Equal(t, http.StatusConflict, MetadataFor(CodeConflict).HTTPStatus)
	require.Equal(t, http.StatusBadGateway, MetadataFor(CodeDependency).HTTPStatus)
	require.True(t, MetadataFor(CodeDependency).Retryable)
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	require.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("socket closed")
	err := Wrap(CodeDependency, cause, "payment gateway call failed")

	typed := As(fmt.Errorf("settling: %w", err))
	require.NotNil(t, typed)
	require.Equal(t, CodeDependency, typed.Code())
	require.Equal(t, "payment gateway call failed", typed.Message())
	require.ErrorIs(t, typed, cause)
}

func TestAsReturnsNilForPlainErrors(t *testing.T) {
	require.Nil(t, As(fmt.Errorf("plain")))
	require.Nil(t, As(nil))
}

func TestWithDetails(t *testing.T) {
	err := New(CodeValidation, "quantity must be at least 1").
		WithDetails(map[string]string{"field": "quantity"})
	require.Equal(t, map[string]string{"field": "quantity"}, err.Details())
}
