// Package connectivity checks that the network is reachable before any
// source is contacted.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ryosukesatoh/lit-briefing/internal/config"
)

// ErrNoConnectivity is returned when the probe address cannot be reached.
var ErrNoConnectivity = errors.New("no network connectivity")

// Checker dials a well-known address.
type Checker struct {
	address string
	timeout time.Duration
	dialer  *net.Dialer
}

func New(address string, timeout time.Duration) *Checker {
	return &Checker{address: address, timeout: timeout, dialer: &net.Dialer{}}
}

// FromConfig returns nil when the check is disabled.
func FromConfig(cfg config.ConnectivityConfig) *Checker {
	if !cfg.Enabled {
		return nil
	}
	return New(cfg.Address, cfg.Timeout)
}

// Check opens and closes one TCP connection. A nil Checker always succeeds.
func (c *Checker) Check(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrNoConnectivity, c.address, err)
	}
	return conn.Close()
}
