package seencache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSeenMarksAndReports(t *testing.T) {
	c := New(10, time.Minute)

	require.False(t, c.Seen("cid-blake3:a"), "first observation should not be seen")
	require.True(t, c.Seen("cid-blake3:a"), "second observation should be seen")
}

func TestSeenExpiresAfterTTL(t *testing.T) {
	c := New(10, 20*time.Millisecond)

	require.False(t, c.Seen("cid-blake3:a"))
	time.Sleep(50 * time.Millisecond)
	require.False(t, c.Seen("cid-blake3:a"), "entry should have expired out of the TTL window")
}

func TestDefaultsAppliedForNonPositiveArgs(t *testing.T) {
	c := New(0, 0)
	require.False(t, c.Seen("cid-blake3:a"))
	require.Equal(t, 1, c.Len())
}
