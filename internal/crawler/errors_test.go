package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfClassifiesTaggedAndUntaggedErrors(t *testing.T) {
	t.Parallel()

	tagged := Errorf(KindExtraction, "https://example.com/app/x", "title missing")
	wrapped := fmt.Errorf("process: %w", tagged)

	require.Equal(t, KindExtraction, KindOf(tagged))
	require.Equal(t, KindExtraction, KindOf(wrapped))
	require.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	require.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := context.DeadlineExceeded
	err := NewError(KindNavigationTimeout, "https://example.com", cause)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, "NavigationTimeout https://example.com: context deadline exceeded", err.Error())
	require.Equal(t, "context deadline exceeded", err.Message())

	bare := NewError(KindUnknown, "", nil)
	require.Equal(t, "UnknownError: UnknownError", bare.Error())
}

func TestHaltsRunOnlyForStoreWrites(t *testing.T) {
	t.Parallel()

	require.True(t, HaltsRun(NewError(KindStoreWrite, "u", errors.New("disk full"))))
	for _, kind := range []ErrorKind{KindNavigationTimeout, KindExpansionTimeout, KindExtraction, KindUnknown} {
		require.False(t, HaltsRun(NewError(kind, "u", nil)), kind)
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"navigation timeout", NewError(KindNavigationTimeout, "u", nil), true},
		{"expansion timeout", NewError(KindExpansionTimeout, "u", context.DeadlineExceeded), true},
		{"unknown", errors.New("socket closed"), true},
		{"extraction", NewError(KindExtraction, "u", nil), false},
		{"store write", NewError(KindStoreWrite, "u", nil), false},
		{"run canceled", NewError(KindUnknown, "u", context.Canceled), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

func TestNewApplicationMetadataDefaultsMissingCubes(t *testing.T) {
	t.Parallel()

	app := NewApplicationMetadata("id-1", "Focus App", "", []string{"1k+", "4.5"}, nil)

	require.Equal(t, "1k+", app.InstallationCounts)
	require.Equal(t, "4.5", app.AppScore)
	require.Empty(t, app.AppCategory)
	require.Empty(t, app.AppSize)
	require.Empty(t, app.AppLastUpdate)
	require.NotNil(t, app.AppImages)
	require.Empty(t, app.AppImages)
	require.Len(t, InfoCubeFields, 5)
}
