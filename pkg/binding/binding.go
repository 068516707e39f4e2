// Package binding couples an asynchronous fetch to a dependency list.
//
// A Binding re-runs its fetch whenever the watched dependencies change and
// exposes the last value, whether a call is outstanding and the last error.
// The I/O of a call runs wherever Task.Run is invoked (typically a
// goroutine); its result is applied by Completion.Commit, which must be
// called from the single goroutine owning the binding. Every call carries a
// monotonically increasing sequence number and only the latest one may
// commit, so a slow response can never overwrite a newer one.
package binding

import (
	"context"
	"errors"
)

// Fetch performs one call. It must honour ctx cancellation.
type Fetch[T any] func(ctx context.Context) (T, error)

// Thunk builds the fetch for the current state. A nil Fetch means the
// binding is not ready to fetch and nothing is started.
type Thunk[T any] func() Fetch[T]

// State is a snapshot of a binding.
type State[T any] struct {
	Value    T
	HasValue bool
	Loading  bool
	Err      error
}

// Binding holds the state of one asynchronous fetch.
type Binding[T any] struct {
	name    string
	seq     uint64
	version uint64
	deps    []any
	watched bool
	cancel  context.CancelFunc
	state   State[T]
}

// New creates an idle binding. The name is carried on tasks and completions.
func New[T any](name string) *Binding[T] {
	return &Binding[T]{name: name}
}

// Name returns the binding name.
func (b *Binding[T]) Name() string {
	return b.name
}

// State returns a snapshot of the binding.
func (b *Binding[T]) State() State[T] {
	return b.state
}

// Value returns the last committed value.
func (b *Binding[T]) Value() (T, bool) {
	return b.state.Value, b.state.HasValue
}

// Loading reports whether a call is outstanding.
func (b *Binding[T]) Loading() bool {
	return b.state.Loading
}

// Err returns the error of the last committed call, if it failed.
func (b *Binding[T]) Err() error {
	return b.state.Err
}

// Version increases with every committed success. Downstream bindings use
// it as a dependency to re-run whenever a new value arrives, even if equal.
func (b *Binding[T]) Version() uint64 {
	return b.version
}

// Seq returns the sequence number of the latest issued call.
func (b *Binding[T]) Seq() uint64 {
	return b.seq
}

// Watch starts a call when deps differ from the previously watched deps
// (compared element-wise with ==, so deps must be comparable) or on the
// first invocation. It returns false when nothing was started. A change
// to deps for which the thunk is not ready abandons the outstanding call.
func (b *Binding[T]) Watch(parent context.Context, deps []any, thunk Thunk[T]) (Task, bool) {
	if b.watched && equalDeps(b.deps, deps) {
		return Task{}, false
	}

	b.watched = true
	b.deps = append(b.deps[:0:0], deps...)

	task, ok := b.start(parent, thunk)
	if !ok {
		b.Cancel()
	}
	return task, ok
}

// Reload re-runs the fetch regardless of dependencies. It returns false
// when the thunk is not ready.
func (b *Binding[T]) Reload(parent context.Context, thunk Thunk[T]) (Task, bool) {
	return b.start(parent, thunk)
}

// Cancel abandons the outstanding call, if any. Its completion will be stale.
func (b *Binding[T]) Cancel() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.state.Loading {
		b.seq++
		b.state.Loading = false
	}
}

// Reset abandons the outstanding call and forgets the last error. The last
// value and its version are kept.
func (b *Binding[T]) Reset() {
	b.Cancel()
	b.state.Err = nil
}

func (b *Binding[T]) start(parent context.Context, thunk Thunk[T]) (Task, bool) {
	fetch := thunk()
	if fetch == nil {
		return Task{}, false
	}

	if b.cancel != nil {
		b.cancel()
	}

	ctx, cancel := context.WithCancel(parent)
	b.cancel = cancel
	b.seq++
	b.state.Loading = true

	seq := b.seq
	task := Task{
		Binding: b.name,
		Seq:     seq,
		run: func() Completion {
			value, err := fetch(ctx)
			return Completion{
				Binding: b.name,
				Seq:     seq,
				Err:     err,
				commit: func() bool {
					return b.commit(seq, value, err)
				},
			}
		},
	}

	return task, true
}

// commit applies a result when seq is the latest issued call.
func (b *Binding[T]) commit(seq uint64, value T, err error) bool {
	if seq != b.seq {
		return false
	}

	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.state.Loading = false

	if err != nil {
		b.state.Err = err
		return true
	}

	b.state.Value = value
	b.state.HasValue = true
	b.state.Err = nil
	b.version++

	return true
}

func equalDeps(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Task is one started call.
type Task struct {
	Binding string
	Seq     uint64
	run     func() Completion
}

// Run performs the call and returns its completion. It blocks for the
// duration of the I/O and is safe to call from any goroutine.
func (t Task) Run() Completion {
	return t.run()
}

// Completion is the outcome of a Task, waiting to be committed.
type Completion struct {
	Binding string
	Seq     uint64
	Err     error
	commit  func() bool
}

// Commit applies the completion to its binding. It reports false, leaving
// the binding untouched, when a newer call has been issued since.
func (c Completion) Commit() bool {
	if c.commit == nil {
		return false
	}
	return c.commit()
}

// Cancelled reports whether the call ended because its context was cancelled.
func (c Completion) Cancelled() bool {
	return errors.Is(c.Err, context.Canceled)
}
