package bus

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// timeoutText matches the error text of the bus' own call timeout.
const timeoutText = "Message timeout"

// Call is an outstanding bus call.
type Call interface {
	// Token identifies the call on the bus.
	Token() string
	// Cancel stops reply delivery. Cancelling a completed or cancelled call is a no-op.
	Cancel()
}

type call struct {
	handle   *Handle
	token    string
	service  string
	oneReply bool
	handler  ReplyHandler

	mu     sync.Mutex
	timer  *clock.Timer
	cancel sync.Once
}

func (c *call) Token() string {
	return c.token
}

func (c *call) Cancel() {
	c.cancel.Do(func() {
		if _, ok := c.handle.calls.Pop(c.token); !ok {
			return
		}
		c.stopTimeout()
		c.handle.sendCancel(c)
	})
}

func (c *call) armTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timer = c.handle.clock.AfterFunc(d, func() {
		if _, ok := c.handle.calls.Pop(c.token); !ok {
			return
		}
		c.handle.logger.Debug().Str("token", c.token).Dur("timeout", d).Msg("Bus call timed out")
		c.handler(failureReply(timeoutText))
	})
}

func (c *call) stopTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
}
