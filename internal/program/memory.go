package program

import (
	"fmt"
	"io"
	"sort"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/exec-trace/internal/event"
	apperrors "github.com/exec-trace/pkg/errors"
)

// Memory is a Program held entirely in memory.
type Memory struct {
	classes  int
	methods  map[event.MethodID]*Method
	analyses map[event.MethodID]*Analysis
	methodAt map[event.InstructionRef]event.MethodID

	analyzeCalls atomic.Int64
}

// NewMemory creates an empty model.
func NewMemory() *Memory {
	return &Memory{
		methods:  make(map[event.MethodID]*Method),
		analyses: make(map[event.MethodID]*Analysis),
		methodAt: make(map[event.InstructionRef]event.MethodID),
	}
}

// AddMethod registers a method and returns the stored copy.
func (m *Memory) AddMethod(meth Method) *Method {
	stored := meth
	m.methods[meth.ID] = &stored
	if int(meth.Class)+1 > m.classes {
		m.classes = int(meth.Class) + 1
	}
	if _, ok := m.analyses[meth.ID]; !ok {
		m.analyses[meth.ID] = &Analysis{
			Method:       meth.ID,
			Instructions: make(map[event.InstructionRef]*Instruction),
		}
	}
	return &stored
}

// AddInstruction registers an instruction of an existing method.
func (m *Memory) AddInstruction(inst Instruction) (*Instruction, error) {
	a, ok := m.analyses[inst.Method]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "instruction %s names unknown method %d", inst.Ref, inst.Method)
	}
	if owner, dup := m.methodAt[inst.Ref]; dup && owner != inst.Method {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "instruction %s already belongs to method %d", inst.Ref, owner)
	}
	stored := inst
	a.Instructions[inst.Ref] = &stored
	m.methodAt[inst.Ref] = inst.Method
	return &stored, nil
}

// Method implements Program.
func (m *Memory) Method(id event.MethodID) (*Method, bool) {
	meth, ok := m.methods[id]
	return meth, ok
}

// MethodAt implements Program.
func (m *Memory) MethodAt(ref event.InstructionRef) (event.MethodID, bool) {
	id, ok := m.methodAt[ref]
	return id, ok
}

// Analyze implements Program.
func (m *Memory) Analyze(id event.MethodID) (*Analysis, error) {
	m.analyzeCalls.Add(1)
	a, ok := m.analyses[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "method %d", id)
	}
	return a, nil
}

// AnalyzeCalls returns how often Analyze ran.
func (m *Memory) AnalyzeCalls() int64 {
	return m.analyzeCalls.Load()
}

// Methods implements Program.
func (m *Memory) Methods() []event.MethodID {
	ids := make([]event.MethodID, 0, len(m.methods))
	for id := range m.methods {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MethodCount implements Program.
func (m *Memory) MethodCount() int {
	return len(m.methods)
}

// ClassCount implements Program.
func (m *Memory) ClassCount() int {
	return m.classes
}

type memoryFile struct {
	Methods      []Method      `json:"methods"`
	Instructions []Instruction `json:"instructions"`
}

// WriteJSON writes the model.
func (m *Memory) WriteJSON(w io.Writer) error {
	var f memoryFile
	for _, id := range m.Methods() {
		f.Methods = append(f.Methods, *m.methods[id])
		a := m.analyses[id]
		refs := make([]event.InstructionRef, 0, len(a.Instructions))
		for ref := range a.Instructions {
			refs = append(refs, ref)
		}
		sort.Slice(refs, func(i, j int) bool { return refs[i].Pack() < refs[j].Pack() })
		for _, ref := range refs {
			f.Instructions = append(f.Instructions, *a.Instructions[ref])
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&f)
}

// ReadJSON loads a model written by WriteJSON.
func ReadJSON(r io.Reader) (*Memory, error) {
	var f memoryFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLoadFailure, "decode program model", err)
	}
	m := NewMemory()
	for _, meth := range f.Methods {
		m.AddMethod(meth)
	}
	for _, inst := range f.Instructions {
		if _, err := m.AddInstruction(inst); err != nil {
			return nil, fmt.Errorf("program model: %w", err)
		}
	}
	return m, nil
}
