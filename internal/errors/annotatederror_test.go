package errors

import (
	"bytes"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnnotatedError(t *testing.T) {
	err := New("test error", slog.String("id", "123"))
	require.Equal(t, "test error", err.Error())

	// Assert that wrapping sentinel errors work as expected.
	sentinel := NewSentinel("test error")
	require.NotErrorIs(t, err, NewSentinel("test error"))
	wrapped := err.Wrap(sentinel)
	require.ErrorIs(t, wrapped, sentinel)

	// Ensure log values are coming through.
	group := err.LogValue().Group()
	require.Contains(t, group, slog.String("id", "123"))

	// Assert there's a valid source
	sourceIdx := slices.IndexFunc(group, func(attr slog.Attr) bool {
		return attr.Key == "source"
	})
	source := group[sourceIdx]
	require.Contains(t, source.Value.String(), "annotatederror_test.go")
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap(nil, "nothing"))

	sentinel := NewSentinel("view missing")
	err := Wrap(Wrap(sentinel, "load view", slog.String("view_id", "menu")), "preload")
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, "preload: load view: view missing", err.Error())

	var annotated AnnotatedError
	require.True(t, As(err, &annotated))
	require.Equal(t, "preload", annotated.Error())
}

func TestSlogError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	err := Wrap(NewSentinel("quota"), "complete", slog.String("character", "defendant"))

	logger.Error("backend failed", SlogError(err))

	out := buf.String()
	require.Contains(t, out, "error.message=\"complete: quota\"")
	require.Contains(t, out, "error.complete.character=defendant")
	require.Contains(t, out, "annotatederror_test.go")
}
