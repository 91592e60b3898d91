package outbox

import (
	"testing"

	"github.com/stretchr/testify/require"

	itesting "github.com/sgn-project/sgnd/internal/testing"
)

func TestEnqueueAndAfter(t *testing.T) {
	db := itesting.CreateTestDB(t)
	store := Open(db)

	tx, err := db.Begin()
	require.NoError(t, err)
	seq1, err := EnqueueTx(tx, "cid-blake3:one")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = db.Begin()
	require.NoError(t, err)
	seq2, err := EnqueueTx(tx, "cid-blake3:two")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Less(t, seq1, seq2)

	entries, err := store.After(0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "cid-blake3:one", entries[0].CID)
	require.Equal(t, "cid-blake3:two", entries[1].CID)

	entries, err = store.After(seq1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "cid-blake3:two", entries[0].CID)
}

func TestAfterRespectsLimit(t *testing.T) {
	db := itesting.CreateTestDB(t)
	store := Open(db)

	for i := 0; i < 5; i++ {
		tx, err := db.Begin()
		require.NoError(t, err)
		_, err = EnqueueTx(tx, "cid-blake3:x")
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	}

	entries, err := store.After(0, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestLatestSeqEmpty(t *testing.T) {
	db := itesting.CreateTestDB(t)
	store := Open(db)

	seq, err := store.LatestSeq()
	require.NoError(t, err)
	require.Equal(t, int64(0), seq)
}

func TestCursorInitLastAckedAck(t *testing.T) {
	db := itesting.CreateTestDB(t)
	store := Open(db)

	require.NoError(t, store.InitCursor("sub-1"))

	last, err := store.LastAcked("sub-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), last)

	require.NoError(t, store.Ack("sub-1", 5))
	last, err = store.LastAcked("sub-1")
	require.NoError(t, err)
	require.Equal(t, int64(5), last)

	// Acking a lower seq must not regress the cursor.
	require.NoError(t, store.Ack("sub-1", 2))
	last, err = store.LastAcked("sub-1")
	require.NoError(t, err)
	require.Equal(t, int64(5), last)
}

func TestLastAckedUnknownSubscriber(t *testing.T) {
	db := itesting.CreateTestDB(t)
	store := Open(db)

	last, err := store.LastAcked("ghost")
	require.NoError(t, err)
	require.Equal(t, int64(0), last)
}
