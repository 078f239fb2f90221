// Package invoke layers method invocation over wire documents: a writer
// turns calls into records, a reader turns records back into calls against
// an explicit dispatch table. One terminal call is one document; chained
// calls stage into the same document as successive fields.
package invoke

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/weftlabs/weft/weft"
)

// MethodSpec describes one method of a dispatch table.
type MethodSpec struct {
	// Name is the field key the call travels under.
	Name string

	// Chained marks a method whose return is another interface: the call
	// stages into the open document and routing continues in Chain.
	Chained bool

	// Chain is the dispatch table for the returned interface. Required
	// when Chained.
	Chain *InterfaceSpec

	// Handle receives the decoded argument on the reading side. Chained
	// methods may handle their argument too; nil is a no-op.
	Handle func(arg *weft.Value) error
}

// InterfaceSpec is an immutable dispatch table built from method specs.
type InterfaceSpec struct {
	name    string
	methods map[string]*MethodSpec
}

// NewInterfaceSpec builds a dispatch table, rejecting ambiguous method
// sets up front rather than at call time.
func NewInterfaceSpec(name string, methods ...MethodSpec) (*InterfaceSpec, error) {
	spec := &InterfaceSpec{name: name, methods: make(map[string]*MethodSpec, len(methods))}
	for i := range methods {
		m := &methods[i]
		if m.Name == "" {
			return nil, errors.Newf("invoke: %s: method with empty name", name)
		}
		if _, dup := spec.methods[m.Name]; dup {
			return nil, errors.Newf("invoke: %s: duplicate method %q", name, m.Name)
		}
		if m.Chained && m.Chain == nil {
			return nil, errors.Newf("invoke: %s: chained method %q without a chain table", name, m.Name)
		}
		spec.methods[m.Name] = m
	}
	return spec, nil
}

// MustInterfaceSpec is NewInterfaceSpec for tables built from constants.
func MustInterfaceSpec(name string, methods ...MethodSpec) *InterfaceSpec {
	spec, err := NewInterfaceSpec(name, methods...)
	if err != nil {
		panic(err)
	}
	return spec
}

// Name returns the table's interface name.
func (s *InterfaceSpec) Name() string { return s.name }

// Method resolves a method by wire name.
func (s *InterfaceSpec) Method(name string) (*MethodSpec, bool) {
	m, ok := s.methods[name]
	return m, ok
}

// ============================================================
// Writer
// ============================================================

// Interceptor sees every invocation before it is staged. Returning false
// suppresses the wire record; the interceptor may have delivered the call
// elsewhere (a local handler) before returning.
type Interceptor func(method string, arg *weft.Value) (bool, error)

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Interceptor, when set, can veto or locally consume calls.
	Interceptor Interceptor

	// Logger receives staging diagnostics. Nil selects a nop logger.
	Logger *zap.Logger
}

// Writer emits method invocations as documents. A chained call stages its
// field and moves the table to the chain; the next terminal call flushes
// everything staged as one document. Writers are confined to a single
// goroutine, like the wire they wrap.
type Writer struct {
	w    weft.Wire
	root *InterfaceSpec
	opts WriterOptions

	table  *InterfaceSpec
	staged []stagedCall
}

type stagedCall struct {
	method string
	arg    *weft.Value
}

// NewWriter builds a writer over a wire and a dispatch table.
func NewWriter(w weft.Wire, root *InterfaceSpec, opts WriterOptions) *Writer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Writer{w: w, root: root, opts: opts, table: root}
}

// Invoke writes one method call. Unknown methods fail with ErrDispatch
// before anything reaches the wire.
func (w *Writer) Invoke(method string, arg *weft.Value) error {
	ms, ok := w.table.Method(method)
	if !ok {
		return errors.Mark(
			errors.Newf("invoke: %s has no method %q", w.table.Name(), method),
			weft.ErrDispatch)
	}

	if w.opts.Interceptor != nil {
		pass, err := w.opts.Interceptor(method, arg)
		if err != nil {
			return err
		}
		if !pass {
			return nil
		}
	}

	w.staged = append(w.staged, stagedCall{method: method, arg: arg})
	if ms.Chained {
		w.table = ms.Chain
		return nil
	}
	return w.flush()
}

// Flush force-writes any staged chained calls as a document without a
// terminal call, as happens when a chain is abandoned.
func (w *Writer) Flush() error {
	if len(w.staged) == 0 {
		return nil
	}
	return w.flush()
}

func (w *Writer) flush() error {
	staged := w.staged
	w.staged = w.staged[:0]
	w.table = w.root
	return w.w.WriteDocument(func(out weft.ValueOut) error {
		for _, c := range staged {
			out.Field(c.method)
			if c.arg == nil {
				out.WriteValue(weft.Null())
			} else {
				out.WriteValue(c.arg)
			}
		}
		return out.Err()
	})
}

// ============================================================
// Reader
// ============================================================

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// OnError receives handler failures and recovered panics. The record
	// is consumed and reading continues. Nil logs through Logger.
	OnError func(method string, err error)

	// Logger backs the default OnError. Nil selects a nop logger.
	Logger *zap.Logger
}

// Reader consumes invocation documents and routes each call through the
// dispatch table. A document ending on a chained call leaves that chain as
// the implicit table for the next document.
type Reader struct {
	w    weft.Wire
	root *InterfaceSpec
	opts ReaderOptions

	// pending is the chain left open by the previous document, if any.
	pending *InterfaceSpec
}

// NewReader builds a reader over a wire and a dispatch table.
func NewReader(w weft.Wire, root *InterfaceSpec, opts ReaderOptions) *Reader {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.OnError == nil {
		log := opts.Logger
		opts.OnError = func(method string, err error) {
			log.Warn("invocation handler failed", zap.String("method", method), zap.Error(err))
		}
	}
	return &Reader{w: w, root: root, opts: opts}
}

// ReadOne consumes the next document and dispatches every call in it. It
// returns (false, nil) when no document is available. A method with no
// table entry fails with ErrDispatch; the document is consumed either way,
// so the caller's loop can keep going.
func (r *Reader) ReadOne() (bool, error) {
	if !r.w.HasDocument() {
		return false, nil
	}

	table := r.root
	if r.pending != nil {
		table = r.pending
		r.pending = nil
	}

	err := r.w.ReadDocument(func(in weft.ValueIn) error {
		for in.HasNext() {
			method, err := in.Field()
			if err != nil {
				return err
			}
			ms, ok := table.Method(method)
			if !ok {
				return errors.Mark(
					errors.Newf("invoke: %s has no method %q", table.Name(), method),
					weft.ErrDispatch)
			}
			arg, err := in.ReadValue()
			if err != nil {
				return err
			}
			if ms.Handle != nil {
				if herr := r.safeHandle(ms, arg); herr != nil {
					r.opts.OnError(method, herr)
				}
			}
			if ms.Chained {
				table = ms.Chain
			} else {
				table = r.root
			}
		}
		return nil
	})
	if err != nil {
		return true, err
	}
	// A trailing chained call makes its chain the target of the next
	// document.
	if table != r.root {
		r.pending = table
	}
	return true, nil
}

// ReadAll drains every available document, reporting the first fatal
// error. Dispatch and handler failures are surfaced per document and do
// not stop the drain.
func (r *Reader) ReadAll() (int, error) {
	n := 0
	for {
		ok, err := r.ReadOne()
		if !ok {
			return n, nil
		}
		n++
		if err != nil && !errors.Is(err, weft.ErrDispatch) {
			return n, err
		}
	}
}

func (r *Reader) safeHandle(ms *MethodSpec, arg *weft.Value) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("invoke: handler for %q panicked: %v", ms.Name, p)
		}
	}()
	return ms.Handle(arg)
}
