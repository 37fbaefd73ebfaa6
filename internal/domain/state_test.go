package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransitionLegalMoves(t *testing.T) {
	legal := []struct {
		from, to State
	}{
		{StateCreated, StateEnacted},
		{StateCreated, StateCanceled},
		{StateEnacted, StateConsumed},
		{StateEnacted, StateCanceled},
	}
	for _, tc := range legal {
		next, err := tc.from.Transition(tc.to)
		require.NoError(t, err, "%v to %v should be legal", tc.from, tc.to)
		require.Equal(t, tc.to, next)
	}
}

func TestTransitionRejectsIllegalMoves(t *testing.T) {
	states := []State{StateCreated, StateEnacted, StateConsumed, StateCanceled}
	legal := map[[2]State]bool{
		{StateCreated, StateEnacted}:  true,
		{StateCreated, StateCanceled}: true,
		{StateEnacted, StateConsumed}: true,
		{StateEnacted, StateCanceled}: true,
	}
	for _, from := range states {
		for _, to := range states {
			if legal[[2]State{from, to}] {
				continue
			}
			_, err := from.Transition(to)
			require.Error(t, err, "%v to %v must be rejected", from, to)
		}
	}
}

func TestTerminalStatesAdmitNothing(t *testing.T) {
	for _, terminal := range []State{StateConsumed, StateCanceled} {
		require.True(t, terminal.Terminal())
		for _, to := range []State{StateCreated, StateEnacted, StateConsumed, StateCanceled} {
			_, err := terminal.Transition(to)
			require.Error(t, err)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	tx := New(TransferParams{Amount: 100})

	require.Equal(t, StateCreated, tx.State)
	require.Equal(t, BalanceUnknown, tx.PayerBalance)
	require.False(t, tx.Submitted)
	require.False(t, tx.CreatedAt.IsZero())
	require.True(t, tx.EnactedAt.IsZero())
	require.True(t, tx.FinishedAt.IsZero())
}

func TestTimestampsSetExactlyOnce(t *testing.T) {
	tx := New(TransferParams{})

	require.NoError(t, tx.MarkEnacted())
	enactedAt := tx.EnactedAt
	require.False(t, enactedAt.IsZero())

	// A repeated transition is illegal, and the stamp must not move even if
	// a handler bug retried it.
	require.Error(t, tx.MarkEnacted())
	require.Equal(t, enactedAt, tx.EnactedAt)

	time.Sleep(time.Millisecond)
	require.NoError(t, tx.MarkConsumed())
	finishedAt := tx.FinishedAt
	require.False(t, finishedAt.IsZero())

	require.Error(t, tx.MarkCanceled())
	require.Equal(t, finishedAt, tx.FinishedAt)
	require.Equal(t, StateConsumed, tx.State)
}

func TestCancelBeforeEnact(t *testing.T) {
	tx := New(TransferParams{})

	require.NoError(t, tx.MarkCanceled())
	require.Equal(t, StateCanceled, tx.State)
	require.True(t, tx.EnactedAt.IsZero())
	require.False(t, tx.FinishedAt.IsZero())
}

func TestParseStateRoundTrip(t *testing.T) {
	for _, s := range []State{StateCreated, StateEnacted, StateConsumed, StateCanceled} {
		parsed, err := ParseState(s.String())
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}

	_, err := ParseState("teleport")
	require.Error(t, err)
}
