// Package binding implements reference values: handles bound to a
// fixed-width byte region inside a wire buffer. Reads and writes through a
// handle bypass the value model entirely and touch the region directly, so
// every holder of a handle over the same storage observes the latest
// committed value without re-parsing the surrounding document.
//
// Binary handles use atomic operations and are lock-free. Text handles
// rewrite a zero-padded ASCII decimal in place under a lock stripe shared
// by all handles over the same storage.
//
// A handle stays valid only while the owning buffer region is kept in
// place: reserve buffer capacity before creating bindings, because a
// growth reallocation moves the bytes out from under the handle.
package binding

import (
	"strconv"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Slot widths in bytes. Widths are fixed at creation and never change;
// that is what makes in-place concurrent mutation safe.
const (
	Int32Width = 4
	Int64Width = 8

	// Text slots hold a zero-padded decimal wide enough for any value of
	// the type, including the sign.
	TextInt32Width = 11
	TextInt64Width = 20
)

// Int32Value is a handle over a 32-bit slot.
type Int32Value interface {
	Load() int32
	Store(v int32)
	Add(delta int32) int32
	CompareAndSwap(old, new int32) bool
}

// Int64Value is a handle over a 64-bit slot.
type Int64Value interface {
	Load() int64
	Store(v int64)
	Add(delta int64) int64
	CompareAndSwap(old, new int64) bool
}

// Int64ArrayValue is a handle over a fixed-length array of 64-bit slots.
type Int64ArrayValue interface {
	Len() int
	Load(i int) int64
	Store(i int, v int64)
	Add(i int, delta int64) int64
}

// ============================================================
// Binary (atomic) handles
// ============================================================

// AtomicInt32 is a lock-free handle over a 4-byte aligned slot.
type AtomicInt32 struct {
	p *int32
}

var _ Int32Value = (*AtomicInt32)(nil)

// BindInt32 binds a handle to a 4-byte region. The region's width and
// alignment are checked; a mismatch is rejected rather than left undefined.
func BindInt32(region []byte) (*AtomicInt32, error) {
	if len(region) != Int32Width {
		return nil, errors.Newf("binding: int32 slot must be %d bytes, got %d", Int32Width, len(region))
	}
	p := unsafe.Pointer(&region[0])
	if uintptr(p)%Int32Width != 0 {
		return nil, errors.Newf("binding: int32 slot not %d-byte aligned", Int32Width)
	}
	return &AtomicInt32{p: (*int32)(p)}, nil
}

func (a *AtomicInt32) Load() int32          { return atomic.LoadInt32(a.p) }
func (a *AtomicInt32) Store(v int32)        { atomic.StoreInt32(a.p, v) }
func (a *AtomicInt32) Add(delta int32) int32 { return atomic.AddInt32(a.p, delta) }
func (a *AtomicInt32) CompareAndSwap(old, new int32) bool {
	return atomic.CompareAndSwapInt32(a.p, old, new)
}

// AtomicInt64 is a lock-free handle over an 8-byte aligned slot.
type AtomicInt64 struct {
	p *int64
}

var _ Int64Value = (*AtomicInt64)(nil)

// BindInt64 binds a handle to an 8-byte region, checking width and
// alignment.
func BindInt64(region []byte) (*AtomicInt64, error) {
	if len(region) != Int64Width {
		return nil, errors.Newf("binding: int64 slot must be %d bytes, got %d", Int64Width, len(region))
	}
	p := unsafe.Pointer(&region[0])
	if uintptr(p)%Int64Width != 0 {
		return nil, errors.Newf("binding: int64 slot not %d-byte aligned", Int64Width)
	}
	return &AtomicInt64{p: (*int64)(p)}, nil
}

func (a *AtomicInt64) Load() int64           { return atomic.LoadInt64(a.p) }
func (a *AtomicInt64) Store(v int64)         { atomic.StoreInt64(a.p, v) }
func (a *AtomicInt64) Add(delta int64) int64 { return atomic.AddInt64(a.p, delta) }
func (a *AtomicInt64) CompareAndSwap(old, new int64) bool {
	return atomic.CompareAndSwapInt64(a.p, old, new)
}

// AtomicInt64Array is a lock-free handle over n consecutive 8-byte slots.
type AtomicInt64Array struct {
	slots []int64
}

var _ Int64ArrayValue = (*AtomicInt64Array)(nil)

// BindInt64Array binds a handle to a region of n*8 bytes.
func BindInt64Array(region []byte, n int) (*AtomicInt64Array, error) {
	if len(region) != n*Int64Width {
		return nil, errors.Newf("binding: int64 array slot must be %d bytes, got %d", n*Int64Width, len(region))
	}
	p := unsafe.Pointer(&region[0])
	if uintptr(p)%Int64Width != 0 {
		return nil, errors.Newf("binding: int64 array not %d-byte aligned", Int64Width)
	}
	return &AtomicInt64Array{slots: unsafe.Slice((*int64)(p), n)}, nil
}

func (a *AtomicInt64Array) Len() int { return len(a.slots) }

func (a *AtomicInt64Array) Load(i int) int64 { return atomic.LoadInt64(&a.slots[i]) }

func (a *AtomicInt64Array) Store(i int, v int64) { atomic.StoreInt64(&a.slots[i], v) }

func (a *AtomicInt64Array) Add(i int, delta int64) int64 {
	return atomic.AddInt64(&a.slots[i], delta)
}

// ============================================================
// Text handles
// ============================================================

// Text handles cannot be updated with a single machine word, so mutation is
// serialized through a lock stripe keyed by the region's address. Handles
// over the same storage land on the same stripe.
var stripes [64]sync.Mutex

func stripeFor(region []byte) *sync.Mutex {
	if len(region) == 0 {
		return &stripes[0]
	}
	addr := uintptr(unsafe.Pointer(&region[0]))
	return &stripes[(addr>>3)%uintptr(len(stripes))]
}

// TextInt64 is a handle over a zero-padded ASCII decimal of fixed width.
type TextInt64 struct {
	region []byte
	mu     *sync.Mutex
}

var _ Int64Value = (*TextInt64)(nil)

// BindTextInt64 binds a handle to a TextInt64Width-byte ASCII region.
func BindTextInt64(region []byte) (*TextInt64, error) {
	if len(region) != TextInt64Width {
		return nil, errors.Newf("binding: text int64 slot must be %d bytes, got %d", TextInt64Width, len(region))
	}
	return &TextInt64{region: region, mu: stripeFor(region)}, nil
}

func (t *TextInt64) Load() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return parsePadded(t.region)
}

func (t *TextInt64) Store(v int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	formatPadded(t.region, v)
}

func (t *TextInt64) Add(delta int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := parsePadded(t.region) + delta
	formatPadded(t.region, v)
	return v
}

func (t *TextInt64) CompareAndSwap(old, new int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if parsePadded(t.region) != old {
		return false
	}
	formatPadded(t.region, new)
	return true
}

// TextInt32 is the 32-bit text handle.
type TextInt32 struct {
	region []byte
	mu     *sync.Mutex
}

var _ Int32Value = (*TextInt32)(nil)

// BindTextInt32 binds a handle to a TextInt32Width-byte ASCII region.
func BindTextInt32(region []byte) (*TextInt32, error) {
	if len(region) != TextInt32Width {
		return nil, errors.Newf("binding: text int32 slot must be %d bytes, got %d", TextInt32Width, len(region))
	}
	return &TextInt32{region: region, mu: stripeFor(region)}, nil
}

func (t *TextInt32) Load() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int32(parsePadded(t.region))
}

func (t *TextInt32) Store(v int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	formatPadded(t.region, int64(v))
}

func (t *TextInt32) Add(delta int32) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := int32(parsePadded(t.region)) + delta
	formatPadded(t.region, int64(v))
	return v
}

func (t *TextInt32) CompareAndSwap(old, new int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int32(parsePadded(t.region)) != old {
		return false
	}
	formatPadded(t.region, int64(new))
	return true
}

// TextInt64Array is a handle over n fixed-width decimal slots separated by
// single spaces.
type TextInt64Array struct {
	region []byte
	n      int
	mu     *sync.Mutex
}

var _ Int64ArrayValue = (*TextInt64Array)(nil)

// BindTextInt64Array binds a handle to n space-separated decimal slots.
func BindTextInt64Array(region []byte, n int) (*TextInt64Array, error) {
	want := 0
	if n > 0 {
		want = n*TextInt64Width + (n - 1)
	}
	if len(region) != want {
		return nil, errors.Newf("binding: text int64 array of %d slots must be %d bytes, got %d", n, want, len(region))
	}
	return &TextInt64Array{region: region, n: n, mu: stripeFor(region)}, nil
}

func (a *TextInt64Array) Len() int { return a.n }

func (a *TextInt64Array) slot(i int) []byte {
	off := i * (TextInt64Width + 1)
	return a.region[off : off+TextInt64Width]
}

func (a *TextInt64Array) Load(i int) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return parsePadded(a.slot(i))
}

func (a *TextInt64Array) Store(i int, v int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	formatPadded(a.slot(i), v)
}

func (a *TextInt64Array) Add(i int, delta int64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := parsePadded(a.slot(i)) + delta
	formatPadded(a.slot(i), v)
	return v
}

// FormatPadded writes v into region as a sign-aware zero-padded decimal
// occupying the whole region. Exposed for the text engine that allocates
// slots.
func FormatPadded(region []byte, v int64) { formatPadded(region, v) }

// ParsePadded reads a zero-padded decimal region.
func ParsePadded(region []byte) int64 { return parsePadded(region) }

func formatPadded(region []byte, v int64) {
	neg := v < 0
	s := strconv.FormatInt(v, 10)
	if neg {
		s = s[1:]
	}
	i := 0
	if neg {
		region[0] = '-'
		i = 1
	}
	pad := len(region) - i - len(s)
	for ; pad > 0; pad-- {
		region[i] = '0'
		i++
	}
	copy(region[i:], s)
}

func parsePadded(region []byte) int64 {
	i := 0
	neg := false
	if len(region) > 0 && region[i] == '-' {
		neg = true
		i++
	}
	var v int64
	for ; i < len(region); i++ {
		c := region[i]
		if c < '0' || c > '9' {
			continue
		}
		v = v*10 + int64(c-'0')
	}
	if neg {
		return -v
	}
	return v
}
