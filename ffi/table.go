package ffi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/kelp"
	"github.com/gogpu/kelp/internal/slotmap"
)

// Table errors.
var (
	// ErrNullHandle is returned for handle zero.
	ErrNullHandle = errors.New("kelp/ffi: null handle")

	// ErrAlreadyInitialised is returned when the table is at its limit.
	ErrAlreadyInitialised = errors.New("kelp/ffi: renderer already initialised")

	// ErrNotInitialised is returned for unknown or closed handles.
	ErrNotInitialised = errors.New("kelp/ffi: renderer not initialised")
)

// Handle names a renderer in a Table. Zero is never issued.
type Handle uint64

// Table owns renderer instances behind generation-checked handles. A
// closed handle never resolves again, even after its slot is reused.
//
// Table is safe for concurrent use. Calls on the same table are
// serialized.
type Table struct {
	mu    sync.Mutex
	limit int
	items *slotmap.Map[*kelp.Kelp]
}

// NewTable creates a table holding at most limit live renderers. A limit
// of zero or less means unlimited; a limit of one reproduces a process-wide
// singleton.
func NewTable(limit int) *Table {
	return &Table{limit: limit, items: slotmap.New[*kelp.Kelp]()}
}

// Initialise creates a renderer for win and stores it.
func (t *Table) Initialise(win kelp.Window, opts ...kelp.Option) (Handle, Code) {
	var h Handle
	code := t.guard(func() error {
		if t.limit > 0 && t.items.Len() >= t.limit {
			return ErrAlreadyInitialised
		}
		k, err := kelp.Initialise(win, opts...)
		if err != nil {
			return err
		}
		h = Handle(t.items.Insert(k))
		return nil
	})
	return h, code
}

// Insert stores a renderer created elsewhere.
func (t *Table) Insert(k *kelp.Kelp) (Handle, error) {
	if k == nil {
		return 0, ErrNullHandle
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit > 0 && t.items.Len() >= t.limit {
		return 0, ErrAlreadyInitialised
	}
	return Handle(t.items.Insert(k)), nil
}

// Call resolves h and runs fn on its renderer. A panic in fn is recovered
// and reported as CodePanic.
func (t *Table) Call(h Handle, fn func(*kelp.Kelp) error) Code {
	return t.guard(func() error {
		k, err := t.lookup(h)
		if err != nil {
			return err
		}
		return fn(k)
	})
}

// Close closes the renderer for h and invalidates the handle.
func (t *Table) Close(h Handle) Code {
	return t.guard(func() error {
		if _, err := t.lookup(h); err != nil {
			return err
		}
		k, _ := t.items.Remove(slotmap.Handle(h))
		return k.Close()
	})
}

// CloseAll closes every renderer.
func (t *Table) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	var handles []slotmap.Handle
	t.items.Range(func(h slotmap.Handle, _ *kelp.Kelp) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		if k, ok := t.items.Remove(h); ok {
			_ = k.Close()
		}
	}
}

// Len returns the number of live renderers.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.items.Len()
}

func (t *Table) lookup(h Handle) (*kelp.Kelp, error) {
	if h == 0 {
		return nil, ErrNullHandle
	}
	k, ok := t.items.Get(slotmap.Handle(h))
	if !ok {
		return nil, fmt.Errorf("%w: handle %#x", ErrNotInitialised, uint64(h))
	}
	return k, nil
}

// guard runs fn under the table lock and converts its outcome to a Code.
func (t *Table) guard(fn func() error) (code Code) {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			kelp.Logger().Error("kelp/ffi: recovered panic", "panic", r)
			code = CodePanic
		}
	}()
	err := fn()
	if err != nil {
		kelp.Logger().Debug("kelp/ffi: call failed", "err", err)
	}
	return CodeOf(err)
}
