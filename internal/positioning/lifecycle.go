package positioning

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/bus"
)

// ErrNotRegistered is wrapped by TransportError when no bus handle could be registered.
var ErrNotRegistered = errors.New("service handle is not registered")

// CallKind distinguishes the two calls the adapter keeps in flight.
type CallKind int

const (
	Streaming CallKind = iota
	OneShot
)

func (k CallKind) String() string {
	if k == Streaming {
		return "streaming"
	}
	return "one-shot"
}

// Caller issues bus calls. *bus.Handle implements it.
type Caller interface {
	CallMultiReply(uri string, payload []byte, handler bus.ReplyHandler) (bus.Call, error)
	CallOneReply(uri string, payload []byte, timeout time.Duration, handler bus.ReplyHandler) (bus.Call, error)
}

// TransportError reports that a call could not be issued at all.
type TransportError struct {
	Kind CallKind
	URI  string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to issue %s call to %s: %v", e.Kind, e.URI, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PendingCall is a call tracked by CallLifecycle.
type PendingCall struct {
	kind CallKind
	call bus.Call
	done bool
}

// Kind returns the kind of the call.
func (p *PendingCall) Kind() CallKind {
	return p.kind
}

// Done reports whether the call was cancelled or, for one-shot calls, answered.
func (p *PendingCall) Done() bool {
	return p == nil || p.done
}

// ReplyFunc receives replies of a call on the loop.
type ReplyFunc func(kind CallKind, payload []byte)

// CallLifecycle keeps at most one streaming and one one-shot call. Starting a call of a kind
// cancels the previous call of that kind. Replies are posted to the loop and are dropped there
// if the call was cancelled meanwhile, so no reply is seen after Cancel returns.
type CallLifecycle struct {
	caller Caller
	poster Poster
	logger zerolog.Logger
	slots  [2]*PendingCall
}

// NewCallLifecycle creates a lifecycle. caller may be nil, in which case every start fails.
func NewCallLifecycle(caller Caller, poster Poster, logger zerolog.Logger) *CallLifecycle {
	return &CallLifecycle{
		caller: caller,
		poster: poster,
		logger: logger,
	}
}

// StartStreaming issues a call producing replies until cancelled.
func (lc *CallLifecycle) StartStreaming(uri string, payload []byte, onReply ReplyFunc) (*PendingCall, error) {
	return lc.start(Streaming, uri, payload, 0, onReply)
}

// StartOneShot issues a call producing a single reply. timeout is also enforced by the transport.
func (lc *CallLifecycle) StartOneShot(uri string, payload []byte, timeout time.Duration, onReply ReplyFunc) (*PendingCall, error) {
	return lc.start(OneShot, uri, payload, timeout, onReply)
}

// Pending returns the live call of kind, or nil.
func (lc *CallLifecycle) Pending(kind CallKind) *PendingCall {
	return lc.slots[kind]
}

// Cancel stops a call. It is a no-op for nil, answered or already cancelled calls.
func (lc *CallLifecycle) Cancel(pc *PendingCall) {
	if pc.Done() {
		return
	}
	lc.finish(pc)
	if pc.call != nil {
		pc.call.Cancel()
	}
	lc.logger.Debug().Str("call", pc.kind.String()).Msg("Call cancelled")
}

func (lc *CallLifecycle) start(kind CallKind, uri string, payload []byte, timeout time.Duration, onReply ReplyFunc) (*PendingCall, error) {
	if lc.caller == nil {
		return nil, &TransportError{Kind: kind, URI: uri, Err: ErrNotRegistered}
	}

	lc.Cancel(lc.slots[kind])

	pc := &PendingCall{kind: kind}
	handler := func(payload []byte) {
		lc.poster.Post(func() { lc.deliver(pc, payload, onReply) })
	}

	var (
		call bus.Call
		err  error
	)
	if kind == Streaming {
		call, err = lc.caller.CallMultiReply(uri, payload, handler)
	} else {
		call, err = lc.caller.CallOneReply(uri, payload, timeout, handler)
	}
	if err != nil {
		pc.done = true
		return nil, &TransportError{Kind: kind, URI: uri, Err: err}
	}

	pc.call = call
	lc.slots[kind] = pc
	lc.logger.Debug().Str("call", kind.String()).Str("uri", uri).Str("token", call.Token()).Msg("Call started")
	return pc, nil
}

func (lc *CallLifecycle) deliver(pc *PendingCall, payload []byte, onReply ReplyFunc) {
	if pc.done {
		return
	}
	if pc.kind == OneShot {
		lc.finish(pc)
	}
	onReply(pc.kind, payload)
}

func (lc *CallLifecycle) finish(pc *PendingCall) {
	pc.done = true
	if lc.slots[pc.kind] == pc {
		lc.slots[pc.kind] = nil
	}
}
