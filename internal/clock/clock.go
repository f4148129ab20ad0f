// Package clock obtains a trusted wall-clock reading from an NTP server.
//
// The node does not discipline the system clock; it records the offset and
// applies it to diagnostic timestamps. Alarm behaviour never depends on it.
package clock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/ntp"

	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
)

// defaultTimeout bounds one NTP query when the configuration leaves it unset.
const defaultTimeout = 5 * time.Second

// ErrDisabled is returned by Sync when time sync is turned off.
var ErrDisabled = errors.New("clock: sync disabled")

// queryFunc matches ntp.QueryWithOptions.
type queryFunc func(address string, opt ntp.QueryOptions) (*ntp.Response, error)

// Clock holds the offset between the local clock and the time server.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Clock struct {
	cfg   config.TimeConfig
	query queryFunc

	mu     sync.RWMutex
	offset time.Duration
	synced bool
}

// New creates a Clock for the server in cfg.
func New(cfg config.TimeConfig) *Clock {
	return &Clock{cfg: cfg, query: ntp.QueryWithOptions}
}

// Sync queries the time server once and stores the clock offset.
//
// Returns:
//   - time.Duration: Offset to add to the local clock
//   - error: ErrDisabled, ctx.Err(), or the query/validation failure
func (c *Clock) Sync(ctx context.Context) (time.Duration, error) {
	if !c.cfg.Enabled {
		return 0, ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	timeout := time.Duration(c.cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	address := net.JoinHostPort(c.cfg.Server, strconv.Itoa(c.cfg.Port))
	resp, err := c.query(address, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, fmt.Errorf("clock: querying %s: %w", address, err)
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("clock: invalid response from %s: %w", address, err)
	}

	c.mu.Lock()
	c.offset = resp.ClockOffset
	c.synced = true
	c.mu.Unlock()

	return resp.ClockOffset, nil
}

// Now returns the local time corrected by the last successful sync.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Synced reports whether a sync has succeeded.
func (c *Clock) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}
