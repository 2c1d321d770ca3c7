package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/esvd-explorer/server/internal/filter"
)

func newStore(t *testing.T, max int) *Store {
	t.Helper()
	st, err := NewStore(Config{MaxSessions: max}, zap.NewNop())
	require.NoError(t, err)
	return st
}

func TestStore_CreateGetDelete(t *testing.T) {
	st := newStore(t, 10)
	var counts []int
	st.OnChange = func(n int) { counts = append(counts, n) }

	s := st.Create("esvd")
	assert.Equal(t, "esvd", s.Dataset)
	assert.True(t, s.Snapshot().Chain.Biome.IsNone())

	got, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	assert.True(t, st.Delete(s.ID))
	assert.False(t, st.Delete(s.ID))
	_, err = st.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.Get("not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []int{1, 0}, counts)
}

func TestStore_Bounded(t *testing.T) {
	st := newStore(t, 2)
	first := st.Create("esvd")
	st.Create("esvd")
	st.Create("esvd")

	assert.Equal(t, 2, st.Len())
	_, err := st.Get(first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_SetAndCommit(t *testing.T) {
	s := newStore(t, 1).Create("esvd")

	require.NoError(t, s.Set(filter.LevelBiome, filter.Value("Marine")))
	require.NoError(t, s.Set(filter.LevelEcozone, filter.Value("Pacific")))
	require.NoError(t, s.Set(filter.LevelService, filter.Value("Food")))
	assert.Error(t, s.Set(filter.Level("country"), filter.All()))

	st := s.Snapshot()
	assert.Equal(t, filter.Value("Marine"), st.Chain.Biome)
	assert.Equal(t, filter.Value("Pacific"), st.Chain.Ecozone)
	assert.True(t, st.Chain.Ecosystem.IsNone())
	assert.Equal(t, filter.Value("Food"), st.Service)

	repaired := State{
		Chain:   filter.Chain{Biome: filter.Value("Marine"), Ecozone: filter.All(), Ecosystem: filter.All()},
		Service: filter.All(),
	}
	s.Commit(repaired)
	assert.Equal(t, repaired, s.Snapshot())
}

func TestSessions_Independent(t *testing.T) {
	st := newStore(t, 10)
	a := st.Create("esvd")
	b := st.Create("esvd")

	require.NoError(t, a.Set(filter.LevelBiome, filter.Value("Marine")))
	assert.True(t, b.Snapshot().Chain.Biome.IsNone())
}

func TestSession_ConcurrentSet(t *testing.T) {
	s := newStore(t, 1).Create("esvd")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = s.Set(filter.LevelBiome, filter.Value("Marine"))
			} else {
				_ = s.Snapshot()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, filter.Value("Marine"), s.Snapshot().Chain.Biome)
}

func TestSession_UpdateSerializesCycles(t *testing.T) {
	s := newStore(t, 1).Create("esvd")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(held State) State {
				label := held.Chain.Ecosystem.Label()
				// yield between read and write; another cycle must not slip in
				time.Sleep(time.Microsecond)
				held.Chain.Ecosystem = filter.Value(label + "x")
				return held
			})
		}()
	}
	wg.Wait()
	assert.Len(t, s.Snapshot().Chain.Ecosystem.Label(), 50)
}

func TestState_Set(t *testing.T) {
	var st State
	require.NoError(t, st.Set(filter.LevelEcozone, filter.All()))
	require.NoError(t, st.Set(filter.LevelService, filter.Value("Food")))
	assert.Equal(t, filter.All(), st.Chain.Ecozone)
	assert.Equal(t, filter.Value("Food"), st.Service)
	assert.Error(t, st.Set(filter.Level("country"), filter.All()))
}

func TestStore_Sweep(t *testing.T) {
	st := newStore(t, 10)
	old := st.Create("esvd")
	fresh := st.Create("esvd")

	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	fresh.Snapshot()

	assert.Equal(t, 1, st.Sweep(cutoff))
	_, err := st.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestStore_StartStop(t *testing.T) {
	st, err := NewStore(Config{IdleTTL: time.Nanosecond, CleanupPeriod: time.Millisecond}, nil)
	require.NoError(t, err)
	st.Create("esvd")

	st.Start()
	defer st.Stop()
	assert.Eventually(t, func() bool { return st.Len() == 0 }, time.Second, 5*time.Millisecond)
}
