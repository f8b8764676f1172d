package store

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpdateCommits(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(tx *Tx) error {
		return tx.Put([]byte("a"), []byte("1"))
	}))

	require.NoError(t, s.View(func(tx *Tx) error {
		v, err := tx.Get([]byte("a"))
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), v)
		return nil
	}))
}

func TestUpdateErrorDiscardsWrites(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.Update(func(tx *Tx) error {
		require.NoError(t, tx.Put([]byte("a"), []byte("1")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(func(tx *Tx) error {
		_, err := tx.Get([]byte("a"))
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestSavepointRollback(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(tx *Tx) error {
		require.NoError(t, tx.Put([]byte("kept"), []byte("1")))
		sp := tx.Savepoint()
		require.NoError(t, tx.Put([]byte("dropped"), []byte("2")))
		require.NoError(t, tx.Put([]byte("kept"), []byte("3")))
		tx.RollbackTo(sp)
		return nil
	}))

	require.NoError(t, s.View(func(tx *Tx) error {
		v, err := tx.Get([]byte("kept"))
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), v)

		ok, err := tx.Has([]byte("dropped"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestViewRejectsWrites(t *testing.T) {
	s := newTestStore(t)
	err := s.View(func(tx *Tx) error {
		return tx.Put([]byte("a"), []byte("1"))
	})
	require.Error(t, err)
}

func TestIterateMergesPendingWrites(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(tx *Tx) error {
		require.NoError(t, tx.Put([]byte("p/b"), []byte("2")))
		return tx.Put([]byte("q/x"), []byte("9"))
	}))

	require.NoError(t, s.Update(func(tx *Tx) error {
		require.NoError(t, tx.Put([]byte("p/a"), []byte("1")))
		require.NoError(t, tx.Put([]byte("p/c"), []byte("3")))

		var keys []string
		err := tx.Iterate([]byte("p/"), func(key, value []byte) error {
			keys = append(keys, string(key))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"p/a", "p/b", "p/c"}, keys)
		return nil
	}))
}

func TestTypedHelpers(t *testing.T) {
	s := newTestStore(t)

	type record struct {
		ID     uint64
		Amount *big.Int
	}

	require.NoError(t, s.Update(func(tx *Tx) error {
		n, err := tx.GetUint64([]byte("n"))
		require.NoError(t, err)
		assert.Zero(t, n)
		require.NoError(t, tx.PutUint64([]byte("n"), 42))

		require.NoError(t, tx.PutBool([]byte("flag"), true))
		require.NoError(t, tx.PutBig([]byte("big"), big.NewInt(1_000_000)))
		return tx.PutRLP([]byte("rec"), &record{ID: 7, Amount: big.NewInt(99)})
	}))

	require.NoError(t, s.View(func(tx *Tx) error {
		n, err := tx.GetUint64([]byte("n"))
		require.NoError(t, err)
		assert.Equal(t, uint64(42), n)

		flag, err := tx.GetBool([]byte("flag"))
		require.NoError(t, err)
		assert.True(t, flag)

		v, err := tx.GetBig([]byte("big"))
		require.NoError(t, err)
		assert.Equal(t, int64(1_000_000), v.Int64())

		var rec record
		require.NoError(t, tx.GetRLP([]byte("rec"), &rec))
		assert.Equal(t, uint64(7), rec.ID)
		assert.Equal(t, int64(99), rec.Amount.Int64())
		return nil
	}))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(tx *Tx) error {
		require.NoError(t, tx.Put([]byte("p/a"), []byte("1")))
		return tx.Put([]byte("p/b"), []byte("2"))
	}))

	require.NoError(t, s.Update(func(tx *Tx) error {
		require.NoError(t, tx.Delete([]byte("p/a")))

		ok, err := tx.Has([]byte("p/a"))
		require.NoError(t, err)
		assert.False(t, ok)

		var keys []string
		require.NoError(t, tx.Iterate([]byte("p/"), func(key, _ []byte) error {
			keys = append(keys, string(key))
			return nil
		}))
		assert.Equal(t, []string{"p/b"}, keys)
		return nil
	}))

	require.NoError(t, s.View(func(tx *Tx) error {
		_, err := tx.Get([]byte("p/a"))
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestBadgerLoggerKeepsWarnings(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &badgerLogger{log: zap.New(core).Sugar()}

	l.Debugf("level %d", 0)
	l.Infof("table %s", "L0")
	l.Warningf("slow %s", "compaction")
	l.Errorf("failed %s", "flush")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "slow compaction", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}
