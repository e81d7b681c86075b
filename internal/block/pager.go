package block

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/exec-trace/pkg/collections"
	"github.com/exec-trace/pkg/compression"
	apperrors "github.com/exec-trace/pkg/errors"
	"github.com/exec-trace/pkg/utils"
)

// MinResident is the smallest cap a pager accepts. The loader keeps one
// block locked while it may touch an older one.
const MinResident = 2

// bytesPerEvent approximates the resident cost of one event across the
// three block kinds.
const bytesPerEvent = 96

// CapFor derives a per-kind resident cap from a memory budget.
func CapFor(budget int64, eventsPerBlock int) int {
	if eventsPerBlock <= 0 {
		eventsPerBlock = DefaultEventsPerBlock
	}
	n := int(budget / int64(eventsPerBlock*bytesPerEvent))
	if n < MinResident {
		return MinResident
	}
	return n
}

// PagerOptions configures a Pager.
type PagerOptions struct {
	// Dir is the directory holding this kind's block files.
	Dir string
	// Cap is the hard limit on resident blocks.
	Cap        int
	Compressor compression.Compressor
	Logger     utils.Logger
}

// Stats counts pager activity.
type Stats struct {
	Created   int
	Loaded    int
	Flushed   int
	Evictions int
}

type entry[T any] struct {
	block  T
	age    uint32
	locks  int
	dirty  bool
	loaded bool
}

// Pager keeps at most Cap blocks of one kind resident, spilling the rest
// to files named by block index. Eviction picks the unlocked block with
// the highest age; ages reset on every touch and grow on every eviction
// scan, so the order only approximates recency.
//
// Pager is safe for concurrent use. A failed read or write marks the
// block unusable; later requests for it return the same error.
type Pager[T any] struct {
	mu        sync.Mutex
	codec     Codec[T]
	dir       string
	cap       int
	comp      compression.Compressor
	codecs    *compression.Codecs
	logger    utils.Logger
	resident  map[int]*entry[T]
	persisted *collections.Bitset
	failed    map[int]error
	stats     Stats
}

// NewPager creates a pager over opts.Dir, creating the directory.
func NewPager[T any](codec Codec[T], opts PagerOptions) (*Pager[T], error) {
	if opts.Cap < MinResident {
		opts.Cap = MinResident
	}
	if opts.Compressor == nil {
		opts.Compressor = compression.NoOpCompressor{}
	}
	if opts.Logger == nil {
		opts.Logger = &utils.NullLogger{}
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeBlockIO, "create block directory", err)
	}
	return &Pager[T]{
		codec:     codec,
		dir:       opts.Dir,
		cap:       opts.Cap,
		comp:      opts.Compressor,
		codecs:    compression.NewCodecs(opts.Compressor),
		logger:    opts.Logger.WithField("blocks", string(codec.Kind())),
		resident:  make(map[int]*entry[T]),
		persisted: collections.NewBitset(64),
		failed:    make(map[int]error),
	}, nil
}

// Path returns the file of block index.
func (p *Pager[T]) Path(index int) string {
	return filepath.Join(p.dir, strconv.Itoa(index))
}

// Cap returns the resident limit.
func (p *Pager[T]) Cap() int { return p.cap }

// Resident returns the number of resident blocks.
func (p *Pager[T]) Resident() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resident)
}

// Stats returns a snapshot of the counters.
func (p *Pager[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// MarkPersisted declares blocks [0, n) present on disk.
func (p *Pager[T]) MarkPersisted(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.persisted.SetRange(0, n)
}

// Persisted reports whether block index has a current copy on disk.
func (p *Pager[T]) Persisted(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resident[index]
	return p.persisted.Test(index) && (!ok || !e.dirty)
}

// Get returns block index, loading it from disk or creating it empty.
func (p *Pager[T]) Get(index int) (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.fetch(index)
	if err != nil {
		var zero T
		return zero, err
	}
	return e.block, nil
}

// Lock returns block index and pins it until Unlock.
func (p *Pager[T]) Lock(index int) (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.fetch(index)
	if err != nil {
		var zero T
		return zero, err
	}
	e.locks++
	return e.block, nil
}

// Unlock releases one Lock of block index.
func (p *Pager[T]) Unlock(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.resident[index]; ok && e.locks > 0 {
		e.locks--
	}
}

// MarkDirty records that a resident block changed since it was written.
func (p *Pager[T]) MarkDirty(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.resident[index]; ok {
		e.dirty = true
	}
}

// fetch must be called with p.mu held.
func (p *Pager[T]) fetch(index int) (*entry[T], error) {
	if err, bad := p.failed[index]; bad {
		return nil, err
	}
	if e, ok := p.resident[index]; ok {
		e.age = 0
		return e, nil
	}
	if err := p.makeRoom(); err != nil {
		return nil, err
	}
	e := &entry[T]{}
	if p.persisted.Test(index) {
		b, err := p.read(index)
		if err != nil {
			p.failed[index] = err
			return nil, err
		}
		e.block = b
		e.loaded = true
		p.stats.Loaded++
	} else {
		e.block = p.codec.New(index)
		e.dirty = true
		p.stats.Created++
	}
	p.resident[index] = e
	return e, nil
}

// makeRoom evicts until one more block fits.
func (p *Pager[T]) makeRoom() error {
	for len(p.resident) >= p.cap {
		victim, found := -1, false
		var oldest uint32
		for idx, e := range p.resident {
			e.age++
			if e.locks > 0 {
				continue
			}
			if !found || e.age > oldest || (e.age == oldest && idx < victim) {
				victim, oldest, found = idx, e.age, true
			}
		}
		if !found {
			return apperrors.Defectf("all %d resident %s blocks are locked", len(p.resident), p.codec.Kind())
		}
		if err := p.evict(victim); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pager[T]) evict(index int) error {
	e := p.resident[index]
	delete(p.resident, index)
	p.stats.Evictions++
	if !e.dirty && p.persisted.Test(index) {
		return nil
	}
	if err := p.write(index, e.block); err != nil {
		p.failed[index] = err
		p.logger.Error("block %d lost on eviction: %v", index, err)
		return err
	}
	return nil
}

// Flush writes every resident block that is not current on disk.
func (p *Pager[T]) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for idx, e := range p.resident {
		if !e.dirty && p.persisted.Test(idx) {
			continue
		}
		if err := p.write(idx, e.block); err != nil {
			p.failed[idx] = err
			return err
		}
		e.dirty = false
	}
	return nil
}

func (p *Pager[T]) encode(b T) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.codec.Encode(&buf, b); err != nil {
		return nil, err
	}
	return compression.Seal(p.comp, buf.Bytes())
}

// write stores a block atomically. Must be called with p.mu held.
func (p *Pager[T]) write(index int, b T) error {
	data, err := p.encode(b)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeBlockIO, fmt.Sprintf("encode %s block %d", p.codec.Kind(), index), err)
	}
	if err := writeFileAtomic(p.Path(index), data); err != nil {
		return apperrors.Wrap(apperrors.CodeBlockIO, fmt.Sprintf("write %s block %d", p.codec.Kind(), index), err)
	}
	p.persisted.Set(index)
	p.stats.Flushed++
	return nil
}

func (p *Pager[T]) read(index int) (T, error) {
	var zero T
	data, err := os.ReadFile(p.Path(index))
	if err != nil {
		return zero, apperrors.Wrap(apperrors.CodeBlockIO, fmt.Sprintf("read %s block %d", p.codec.Kind(), index), err)
	}
	raw, err := p.codecs.Open(data)
	if err != nil {
		return zero, apperrors.Wrap(apperrors.CodeBlockIO, fmt.Sprintf("decompress %s block %d", p.codec.Kind(), index), err)
	}
	b, err := p.codec.Decode(bytes.NewReader(raw), index)
	if err != nil {
		return zero, apperrors.Wrap(apperrors.CodeBlockIO, fmt.Sprintf("decode %s block %d", p.codec.Kind(), index), err)
	}
	return b, nil
}

// CopyTo writes the current contents of block index into dir, without
// making it resident if it is only on disk.
func (p *Pager[T]) CopyTo(dir string, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, bad := p.failed[index]; bad {
		return err
	}
	dst := filepath.Join(dir, strconv.Itoa(index))
	if e, ok := p.resident[index]; ok {
		data, err := p.encode(e.block)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeBlockIO, fmt.Sprintf("encode %s block %d", p.codec.Kind(), index), err)
		}
		return wrapIO(writeFileAtomic(dst, data), "save", p.codec.Kind(), index)
	}
	if !p.persisted.Test(index) {
		// never touched: an empty block
		data, err := p.encode(p.codec.New(index))
		if err != nil {
			return apperrors.Wrap(apperrors.CodeBlockIO, "encode empty block", err)
		}
		return wrapIO(writeFileAtomic(dst, data), "save", p.codec.Kind(), index)
	}
	data, err := os.ReadFile(p.Path(index))
	if err != nil {
		return wrapIO(err, "read", p.codec.Kind(), index)
	}
	return wrapIO(writeFileAtomic(dst, data), "save", p.codec.Kind(), index)
}

func wrapIO(err error, op string, kind Kind, index int) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.CodeBlockIO, fmt.Sprintf("%s %s block %d", op, kind, index), err)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
