// Package tripwire implements the one-shot shutdown broadcast described in
// spec.md §9 ("Shutdown composition"): every long-lived task holds a clone
// and races it into its primary await. Go has no native stream_cancel
// Trigger/Tripwire pair, so this wraps a context.Context, the idiomatic
// cancellation token for this runtime.
package tripwire

import "context"

// Tripwire is a cheap, cloneable handle to a shared cancellation signal.
type Tripwire struct {
	ctx context.Context
}

// Trigger fires the tripwire exactly once.
type Trigger struct {
	cancel context.CancelFunc
}

// New returns a Trigger/Tripwire pair. Firing the Trigger closes every clone
// of the Tripwire's Done channel.
func New() (Trigger, Tripwire) {
	ctx, cancel := context.WithCancel(context.Background())
	return Trigger{cancel: cancel}, Tripwire{ctx: ctx}
}

// Fire trips the wire. Safe to call more than once.
func (t Trigger) Fire() {
	t.cancel()
}

// Done returns a channel closed once the wire has tripped, suitable for use
// in a select alongside any other awaitable.
func (w Tripwire) Done() <-chan struct{} {
	return w.ctx.Done()
}

// Tripped reports whether the wire has already fired.
func (w Tripwire) Tripped() bool {
	select {
	case <-w.ctx.Done():
		return true
	default:
		return false
	}
}

// Context exposes the underlying context, for call sites that want to pass
// the tripwire into a context-accepting API (e.g. net.Dialer) directly.
func (w Tripwire) Context() context.Context {
	return w.ctx
}
