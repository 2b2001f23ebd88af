package client

import (
	"context"
	"time"

	"meshhub/internal/config"
	"meshhub/internal/utils"
)

// Keepalive is the background pinger of §4.8: while mode is active, it
// invokes the cheapest read operation (listAgents(includeDetails=false))
// at pingIntervalMs to defeat idle-connection pruning by the network
// fabric fronting the Hub. Exceptions inside the ping loop are caught and
// logged; they MUST NOT tear down the Dispatch Loop, so Run never panics
// and never returns an error to its caller.
type Keepalive struct {
	cfg    config.RuntimeConfig
	conn   *Connection
	logger *utils.Logger
}

func NewKeepalive(cfg config.RuntimeConfig, conn *Connection, logger *utils.Logger) *Keepalive {
	return &Keepalive{cfg: cfg, conn: conn, logger: logger}
}

// Run waits for the connection's first successful session open before it
// starts pinging, and stops when ctx is cancelled.
func (k *Keepalive) Run(ctx context.Context) {
	if k.cfg.KeepaliveMode != config.KeepaliveActive {
		return
	}
	interval := time.Duration(k.cfg.KeepaliveIntervalMs) * time.Millisecond
	for !k.conn.Connected() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.ping(ctx)
		}
	}
}

func (k *Keepalive) ping(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			k.logger.Errorf("keepalive ping panicked: %v", r)
		}
	}()
	if _, err := k.conn.RPC(ctx, "listAgents", map[string]bool{"includeDetails": false}); err != nil {
		k.logger.Warnf("keepalive ping failed: %v", err)
	}
}
