// Package envelope correlates outbound requests with their eventual
// replies. It is pure bookkeeping: one fresh id per request, one pending
// record per id, resolved or rejected at most once.
package envelope

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/wilcooo/fx-cast/internal/bridge"
)

var ErrRouterClosed = errors.New("envelope router closed")

// Outbound is any command whose wire envelope carries a requestId field.
// The router owns that field: whatever the caller put there is
// overwritten before the frame leaves the process.
type Outbound interface {
	SetRequestID(id uint64)
}

// Result is the terminal state of a pending request: a raw reply payload
// or an error, never both.
type Result struct {
	Data json.RawMessage
	Err  error
}

// Pending is the handle for one outstanding request.
type Pending struct {
	id uint64
	ch chan Result
}

func (p *Pending) ID() uint64 { return p.id }

// Wait blocks until the request resolves or ctx is cancelled.
// Cancellation abandons the wait; the record stays pending until a reply
// arrives or the router closes.
func (p *Pending) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case res := <-p.ch:
		return res.Data, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type Router struct {
	send func(bridge.Payload) error

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*Pending
	closed  error
}

func NewRouter(send func(bridge.Payload) error) *Router {
	return &Router{
		send:    send,
		pending: make(map[uint64]*Pending),
	}
}

// Send assigns a fresh correlation id, stamps the command's wire
// requestId (the real id when wireID is set, the fixed 0 used on the
// media channel otherwise), registers a pending record and hands the
// frame to the bridge. On send failure nothing stays registered.
func (r *Router) Send(p bridge.Payload, cmd Outbound, wireID bool) (*Pending, error) {
	r.mu.Lock()
	if r.closed != nil {
		err := r.closed
		r.mu.Unlock()
		return nil, err
	}
	r.nextID++
	id := r.nextID
	pend := &Pending{id: id, ch: make(chan Result, 1)}
	r.pending[id] = pend
	r.mu.Unlock()

	if wireID {
		cmd.SetRequestID(id)
	} else {
		cmd.SetRequestID(0)
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		r.drop(id)
		return nil, err
	}
	p.RequestID = id
	p.Data = data

	if err := r.send(p); err != nil {
		r.drop(id)
		return nil, err
	}
	return pend, nil
}

// Resolve delivers a reply payload to the pending record for id.
// Unknown or already-consumed ids are a no-op: late and duplicate
// replies from the receiver are expected.
func (r *Router) Resolve(id uint64, data json.RawMessage) {
	if pend := r.take(id); pend != nil {
		pend.ch <- Result{Data: data}
	}
}

// Reject delivers an error the same way Resolve delivers a payload.
func (r *Router) Reject(id uint64, err error) {
	if pend := r.take(id); pend != nil {
		pend.ch <- Result{Err: err}
	}
}

// Close rejects every outstanding record and fails all future sends.
// Called when the owning session's connection ends; without it a request
// the receiver never answers would stay pending forever.
func (r *Router) Close(err error) {
	if err == nil {
		err = ErrRouterClosed
	}
	r.mu.Lock()
	if r.closed != nil {
		r.mu.Unlock()
		return
	}
	r.closed = err
	orphaned := r.pending
	r.pending = make(map[uint64]*Pending)
	r.mu.Unlock()

	for _, pend := range orphaned {
		pend.ch <- Result{Err: err}
	}
}

// Outstanding reports how many requests await a reply.
func (r *Router) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Router) take(id uint64) *Pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	pend, ok := r.pending[id]
	if !ok {
		return nil
	}
	delete(r.pending, id)
	return pend
}

func (r *Router) drop(id uint64) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}
