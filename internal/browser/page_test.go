package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

func TestPollRetriesUntilProbeSucceeds(t *testing.T) {
	t.Parallel()

	// The probe scans the whole candidate list on every pass, so a result
	// that only matches a fallback selector is still picked up on a later
	// iteration instead of the wait dying on the first candidate.
	attempts := 0
	ok := poll(context.Background(), time.Now().Add(time.Second), time.Millisecond, func() bool {
		attempts++
		return attempts >= 3
	})
	require.True(t, ok)
	require.Equal(t, 3, attempts)
}

func TestPollGivesUpAtDeadline(t *testing.T) {
	t.Parallel()

	attempts := 0
	ok := poll(context.Background(), time.Now().Add(30*time.Millisecond), 5*time.Millisecond, func() bool {
		attempts++
		return false
	})
	require.False(t, ok)
	require.Greater(t, attempts, 1)
}

func TestPollStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := poll(ctx, time.Now().Add(time.Second), time.Millisecond, func() bool { return false })
	require.False(t, ok)
}

func TestChooseTabPrefersKnownCandidates(t *testing.T) {
	t.Parallel()

	sel, fallback := chooseTab(func(sel string) bool {
		return sel == resultsTabCandidates[1]
	})
	require.Equal(t, resultsTabCandidates[1], sel)
	require.False(t, fallback)
}

func TestChooseTabFallsBackToFirstInactiveTab(t *testing.T) {
	t.Parallel()

	// None of the known selectors match the redeployed markup, but a tab
	// bar is still present.
	sel, fallback := chooseTab(func(sel string) bool {
		return sel == inactiveTabFallback
	})
	require.Equal(t, inactiveTabFallback, sel)
	require.True(t, fallback)
}

func TestChooseTabReportsNothingMatched(t *testing.T) {
	t.Parallel()

	sel, fallback := chooseTab(func(string) bool { return false })
	require.Empty(t, sel)
	require.False(t, fallback)
}

func TestNavigationErrorKeepsCauseAndSentinel(t *testing.T) {
	t.Parallel()

	cause := errors.New("net::ERR_NAME_NOT_RESOLVED")
	err := navigationError("https://portal.test", cause)
	require.ErrorIs(t, err, seace.ErrNavigationTimeout)
	require.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
	require.Contains(t, err.Error(), "https://portal.test")
}
