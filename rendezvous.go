package client

import (
	"fmt"
	"strconv"
)

// WaitForWorkers implements §4.5: each of NumWorkers processes (the
// daemon host included) increments the rendezvous counter by one to
// learn its join order, then blocks until the counter reaches
// NumWorkers. A client constructed with Options.WaitWorkers runs this
// automatically before New returns; callers that skip that flag can
// invoke it explicitly (e.g. to rendezvous at a later phase boundary).
func (c *Client) WaitForWorkers() error {
	if c.opts.NumWorkers <= 0 {
		return fmt.Errorf("client: WaitForWorkers: NumWorkers must be positive, got %d", c.opts.NumWorkers)
	}
	target := int64(c.opts.NumWorkers)

	count, err := c.Add(rendezvousKey, 1)
	if err != nil {
		return fmt.Errorf("client: WaitForWorkers: %w", err)
	}

	for count < target {
		if err := c.Wait([]string{rendezvousKey}, c.opts.Timeout); err != nil {
			return fmt.Errorf("client: WaitForWorkers: %w", err)
		}
		raw, err := c.rawGet(rendezvousKey)
		if err != nil {
			return fmt.Errorf("client: WaitForWorkers: %w", err)
		}
		count, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("client: WaitForWorkers: malformed counter %q: %w", raw, err)
		}
	}
	return nil
}
