package efi

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusClassification(t *testing.T) {
	require.False(t, Success.IsError())
	require.False(t, Success.IsWarning())

	require.True(t, NotFound.IsError())
	require.False(t, NotFound.IsWarning())

	require.True(t, WarnDeleteFailure.IsWarning())
	require.False(t, WarnDeleteFailure.IsError())
}

func TestStatusAsError(t *testing.T) {
	// Status travels through ordinary error wrapping.
	err := fmt.Errorf("open volume: %w", NoMedia)
	require.True(t, errors.Is(err, NoMedia))
	require.Equal(t, NoMedia, StatusOf(err))
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, Success, StatusOf(nil))
	require.Equal(t, AccessDenied, StatusOf(AccessDenied))
	require.Equal(t, DeviceError, StatusOf(errors.New("no status in the chain")))
}

func TestSizeError(t *testing.T) {
	err := &SizeError{Needed: 102}
	require.True(t, errors.Is(err, BufferTooSmall))
	require.Equal(t, BufferTooSmall, StatusOf(err))

	wrapped := fmt.Errorf("read dir: %w", err)
	var se *SizeError
	require.True(t, errors.As(wrapped, &se))
	require.Equal(t, 102, se.Needed)
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "success", Success.String())
	require.Equal(t, "not found", NotFound.String())
	require.Equal(t, "warning: delete failure", WarnDeleteFailure.String())
	// Unknown codes still print something usable.
	require.Contains(t, Status(errBit|999).String(), "status")
}
