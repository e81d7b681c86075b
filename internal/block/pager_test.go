package block

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/pkg/compression"
	apperrors "github.com/exec-trace/pkg/errors"
)

func newIDPager(t *testing.T, dir string, cap int) *Pager[*IDBlock] {
	t.Helper()
	comp, err := compression.NewZstdCompressor(compression.LevelFastest)
	require.NoError(t, err)
	t.Cleanup(comp.Close)
	p, err := NewPager[*IDBlock](IDCodec{Layout: layout}, PagerOptions{Dir: dir, Cap: cap, Compressor: comp})
	require.NoError(t, err)
	return p
}

func fill(t *testing.T, p *Pager[*IDBlock], index int) {
	t.Helper()
	b, err := p.Get(index)
	require.NoError(t, err)
	first := layout.First(index)
	for i := 0; i < layout.EventsPerBlock; i++ {
		require.NoError(t, b.Set(first+event.ID(i), event.Kind(i%8), event.MustInstructionRef(index, i)))
	}
}

func TestCapFor(t *testing.T) {
	assert.Equal(t, MinResident, CapFor(0, 4096))
	assert.Equal(t, 1024, CapFor(int64(1024*4096*bytesPerEvent), 4096))
	assert.Equal(t, CapFor(1<<30, DefaultEventsPerBlock), CapFor(1<<30, 0))
}

func TestPager_CapAndReload(t *testing.T) {
	dir := t.TempDir()
	p := newIDPager(t, dir, 3)

	for i := 0; i < 10; i++ {
		fill(t, p, i)
		assert.LessOrEqual(t, p.Resident(), p.Cap())
	}

	// revisit everything in a scattered order
	for _, i := range []int{7, 0, 9, 3, 3, 5, 1, 8, 2, 6, 4} {
		b, err := p.Get(i)
		require.NoError(t, err)
		assert.LessOrEqual(t, p.Resident(), p.Cap())
		for off := 0; off < layout.EventsPerBlock; off++ {
			k, ref, ok := b.Get(layout.First(i) + event.ID(off))
			require.True(t, ok)
			assert.Equal(t, event.Kind(off%8), k)
			assert.Equal(t, event.MustInstructionRef(i, off), ref)
		}
	}
	stats := p.Stats()
	assert.Equal(t, 10, stats.Created)
	assert.Greater(t, stats.Loaded, 0)
	assert.Greater(t, stats.Evictions, 0)

	// another pager over the same directory sees identical data
	require.NoError(t, p.Flush())
	other := newIDPager(t, dir, 2)
	other.MarkPersisted(10)
	for i := 0; i < 10; i++ {
		assert.True(t, other.Persisted(i))
		b, err := other.Get(i)
		require.NoError(t, err)
		k, ref, ok := b.Get(layout.First(i) + 5)
		require.True(t, ok)
		assert.Equal(t, event.Kind(5), k)
		assert.Equal(t, event.MustInstructionRef(i, 5), ref)
	}
}

func TestPager_LockedBlocksStay(t *testing.T) {
	p := newIDPager(t, t.TempDir(), 2)

	locked, err := p.Lock(0)
	require.NoError(t, err)
	require.NoError(t, locked.Set(1, event.KindStart, event.InstructionRef{}))

	for i := 1; i < 6; i++ {
		_, err := p.Get(i)
		require.NoError(t, err)
	}
	again, err := p.Get(0)
	require.NoError(t, err)
	assert.Same(t, locked, again, "a locked block is never evicted")

	_, err = p.Lock(1)
	require.NoError(t, err)
	_, err = p.Get(2)
	assert.True(t, apperrors.IsDefect(err), "cap reached with every block locked")

	p.Unlock(1)
	p.Unlock(0)
	_, err = p.Get(2)
	assert.NoError(t, err)
}

func TestPager_DirtyRewrite(t *testing.T) {
	p := newIDPager(t, t.TempDir(), 2)
	fill(t, p, 0)
	require.NoError(t, p.Flush())
	assert.True(t, p.Persisted(0))

	b, err := p.Get(0)
	require.NoError(t, err)
	require.NoError(t, b.Set(3, event.KindThrow, event.InstructionRef{}))
	p.MarkDirty(0)
	assert.False(t, p.Persisted(0))

	fill(t, p, 1)
	fill(t, p, 2) // evicts block 0

	b, err = p.Get(0)
	require.NoError(t, err)
	k, _, _ := b.Get(3)
	assert.Equal(t, event.KindThrow, k)
}

func TestPager_ReadFailureMarksUnusable(t *testing.T) {
	dir := t.TempDir()
	p := newIDPager(t, dir, 2)
	fill(t, p, 0)
	require.NoError(t, p.Flush())

	other := newIDPager(t, dir, 2)
	other.MarkPersisted(1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0"), []byte{byte(compression.TypeNone), 'j', 'u', 'n', 'k'}, 0644))

	_, err := other.Get(0)
	require.Error(t, err)
	assert.True(t, apperrors.IsBlockIO(err))

	// still unusable after the file is repaired
	require.NoError(t, p.CopyTo(dir, 0))
	_, err2 := other.Get(0)
	assert.Equal(t, err, err2)
}

func TestPager_WriteFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ids")
	p := newIDPager(t, dir, 2)
	fill(t, p, 0)
	fill(t, p, 1)
	require.NoError(t, os.RemoveAll(dir))

	_, err := p.Get(2)
	require.Error(t, err)
	assert.True(t, apperrors.IsBlockIO(err))
}

func TestPager_CopyTo(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	p := newIDPager(t, src, 2)
	fill(t, p, 0)
	fill(t, p, 1)
	fill(t, p, 2) // block 0 now only on disk

	for i := 0; i < 4; i++ {
		require.NoError(t, p.CopyTo(dst, i))
	}

	q := newIDPager(t, dst, 2)
	q.MarkPersisted(4)
	b, err := q.Get(0)
	require.NoError(t, err)
	assert.Equal(t, layout.EventsPerBlock, b.Len())
	b, err = q.Get(3)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())
}
