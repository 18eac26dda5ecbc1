package human

import (
	"context"
	"errors"
	"sync"
)

// ErrNoPendingReview is returned by Submit when nothing is awaiting a verdict.
var ErrNoPendingReview = errors.New("no review pending")

// Channel is a per-run reviewer fed by an external transport such as the
// HTTP API. Review blocks until Submit delivers a verdict, the channel is
// closed, or the context ends. Each run owns its own Channel.
type Channel struct {
	requirements string

	mu       sync.Mutex
	pending  *Request
	onReview func(Request)

	replies   chan Response
	done      chan struct{}
	closeOnce sync.Once
}

// NewChannel returns a Channel that answers Requirements with requirements.
func NewChannel(requirements string) *Channel {
	return &Channel{
		requirements: requirements,
		replies:      make(chan Response, 1),
		done:         make(chan struct{}),
	}
}

// OnReview registers a callback invoked whenever a review starts waiting.
func (c *Channel) OnReview(fn func(Request)) {
	c.mu.Lock()
	c.onReview = fn
	c.mu.Unlock()
}

// Requirements returns the requirements supplied at construction.
func (c *Channel) Requirements(ctx context.Context) (string, error) {
	if c.requirements == "" {
		return "", errors.New("requirements must be supplied when the run is created")
	}
	return c.requirements, nil
}

// Review publishes req as pending and waits for a verdict.
func (c *Channel) Review(ctx context.Context, req Request) (Response, error) {
	c.mu.Lock()
	r := req
	c.pending = &r
	notify := c.onReview
	c.mu.Unlock()

	if notify != nil {
		notify(req)
	}

	defer func() {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
	}()

	select {
	case resp := <-c.replies:
		resp.Feedback = CleanFeedback(resp.Feedback)
		return resp, nil
	case <-c.done:
		return Response{}, ErrAborted
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Pending returns the request currently awaiting a verdict.
func (c *Channel) Pending() (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Request{}, false
	}
	return *c.pending, true
}

// Submit delivers a verdict to the waiting review.
func (c *Channel) Submit(resp Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ErrNoPendingReview
	}
	select {
	case <-c.done:
		return ErrAborted
	default:
	}
	c.pending = nil
	c.replies <- resp
	return nil
}

// Close abandons any current or future review.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
