package connector

import (
	"errors"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/sarameisburger/go-pcp-client/connection"
)

// SetHeartbeatInterval adjusts the monitor cadence. Changes are ignored once
// the monitor is running.
func (c *Connector) SetHeartbeatInterval(interval time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if interval > 0 && !c.monitoring {
		c.heartbeat = interval
	}
}

// MonitorConnection starts the background supervisor for the link: every
// heartbeat interval it pings an open connection or, when the link is down,
// clears the associated flag and reconnects with up to maxAttempts dials.
// Only one monitor runs per connector; repeat calls warn and do nothing.
func (c *Connector) MonitorConnection(maxAttempts int) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.conn == nil {
		return &NotInitializedError{}
	}
	if c.closed {
		return errors.New("cannot monitor a closed connector")
	}
	if c.monitoring {
		c.logger.Warn("The connection monitor is already running")
		return nil
	}

	// a previous monitor may have stopped on a fatal connect failure
	if !c.monitorTmb.Alive() {
		c.monitorTmb = tomb.Tomb{}
	}

	c.monitoring = true
	c.monitorTmb.Go(func() error {
		return c.monitor(maxAttempts)
	})

	return nil
}

// MonitorDone is closed when the monitor exits, either from Close or after
// a fatal reconnect failure.
func (c *Connector) MonitorDone() <-chan struct{} {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.monitorTmb.Dead()
}

// MonitorErr reports why the monitor stopped.
func (c *Connector) MonitorErr() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.monitorTmb.Err()
}

func (c *Connector) monitor(maxAttempts int) error {
	defer func() {
		c.lock.Lock()
		c.monitoring = false
		c.lock.Unlock()
	}()

	conn := c.connection()

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.monitorTmb.Dying():
			c.logger.Info("Stopping the connection monitor")
			return nil
		case <-ticker.C:
			if conn.State() != connection.Open {
				c.logger.Warn("Websocket connection to the broker lost; retrying")
				c.associated.Store(false)

				if err := conn.Connect(maxAttempts); err != nil {
					var fatal *connection.FatalError
					if errors.As(err, &fatal) {
						c.logger.Errorf("The connection monitor will stop - failure: %s", err)
						return err
					}
					c.logger.Errorf("Connection monitor failure: %s", err)
				}
			} else {
				c.logger.Debug("Sending heartbeat ping")
				if err := conn.Ping(); err != nil {
					c.logger.Errorf("Connection monitor failure: %s", err)
				}
			}
		}
	}
}
