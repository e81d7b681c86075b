package program

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/exec-trace/internal/event"
	apperrors "github.com/exec-trace/pkg/errors"
)

// DefaultCacheSize is the number of method analyses kept resident.
const DefaultCacheSize = 256

// Cache bounds the resident per-method analyses. It is shared by every
// query goroutine; concurrent misses on one method run a single analysis.
type Cache struct {
	prog     Program
	analyses *lru.Cache[event.MethodID, *Analysis]
	group    singleflight.Group

	overridersOnce sync.Once
	overriders     map[event.MethodID][]event.MethodID
}

// NewCache wraps prog with an LRU of size analyses.
func NewCache(prog Program, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	analyses, err := lru.New[event.MethodID, *Analysis](size)
	if err != nil {
		return nil, fmt.Errorf("create analysis cache: %w", err)
	}
	return &Cache{prog: prog, analyses: analyses}, nil
}

// Program returns the wrapped model.
func (c *Cache) Program() Program {
	return c.prog
}

// Method returns a method description.
func (c *Cache) Method(id event.MethodID) (*Method, bool) {
	return c.prog.Method(id)
}

// Analysis returns the analysis of method id, computing it on a miss.
func (c *Cache) Analysis(id event.MethodID) (*Analysis, error) {
	if a, ok := c.analyses.Get(id); ok {
		return a, nil
	}
	v, err, _ := c.group.Do(strconv.Itoa(int(id)), func() (interface{}, error) {
		a, err := c.prog.Analyze(id)
		if err != nil {
			return nil, err
		}
		c.analyses.Add(id, a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Analysis), nil
}

// Instruction returns the static description of ref.
func (c *Cache) Instruction(ref event.InstructionRef) (*Instruction, error) {
	id, ok := c.prog.MethodAt(ref)
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "no method contains instruction %s", ref)
	}
	a, err := c.Analysis(id)
	if err != nil {
		return nil, err
	}
	inst, ok := a.Instructions[ref]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "instruction %s missing from analysis of method %d", ref, id)
	}
	return inst, nil
}

// MethodOf returns the method containing ref.
func (c *Cache) MethodOf(ref event.InstructionRef) (*Method, error) {
	id, ok := c.prog.MethodAt(ref)
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "no method contains instruction %s", ref)
	}
	m, ok := c.prog.Method(id)
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "method %d", id)
	}
	return m, nil
}

// Overriders returns every method that overrides id, directly or through
// another override, ascending.
func (c *Cache) Overriders(id event.MethodID) []event.MethodID {
	c.overridersOnce.Do(c.indexOverriders)
	return c.overriders[id]
}

func (c *Cache) indexOverriders() {
	direct := make(map[event.MethodID][]event.MethodID)
	for _, id := range c.prog.Methods() {
		m, ok := c.prog.Method(id)
		if !ok {
			continue
		}
		for _, base := range m.Overrides {
			direct[base] = append(direct[base], id)
		}
	}
	c.overriders = make(map[event.MethodID][]event.MethodID, len(direct))
	for base := range direct {
		seen := map[event.MethodID]bool{base: true}
		var out []event.MethodID
		work := append([]event.MethodID(nil), direct[base]...)
		for len(work) > 0 {
			id := work[len(work)-1]
			work = work[:len(work)-1]
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
			work = append(work, direct[id]...)
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		c.overriders[base] = out
	}
}

// StaticTargets returns the methods an invocation instruction may enter:
// its named target and every override of it, ascending.
func (c *Cache) StaticTargets(inst *Instruction) []event.MethodID {
	over := c.Overriders(inst.Target)
	out := make([]event.MethodID, 0, len(over)+1)
	out = append(out, inst.Target)
	out = append(out, over...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of resident analyses.
func (c *Cache) Len() int {
	return c.analyses.Len()
}
