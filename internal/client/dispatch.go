package client

import (
	"context"
	"encoding/json"
	"time"

	"meshhub/internal/config"
	"meshhub/internal/huberr"
	"meshhub/internal/types"
	"meshhub/internal/utils"
)

// Dispatch is the Dispatch Loop (§4.9): it blocks on waitForMentions and
// only wakes the Agent Brain on a non-empty batch, which is the mechanism
// behind the cost reduction described in the overview — an idle agent
// burns zero Brain invocations.
type Dispatch struct {
	cfg    config.RuntimeConfig
	conn   *Connection
	brain  Brain
	logger *utils.Logger

	emptyBackoff time.Duration
}

func NewDispatch(cfg config.RuntimeConfig, conn *Connection, brain Brain, logger *utils.Logger) *Dispatch {
	return &Dispatch{cfg: cfg, conn: conn, brain: brain, logger: logger, emptyBackoff: 250 * time.Millisecond}
}

// Run blocks until ctx is cancelled, looping waitForMentions -> Decide ->
// execute for as long as the connection is viable. Transport failures on
// the waitForMentions call itself are treated like an empty batch: back
// off briefly and try again, letting Connection.Run's own reconnect loop
// handle the underlying session.
func (d *Dispatch) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !d.conn.Connected() {
			select {
			case <-time.After(d.emptyBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		batch, err := d.waitForMentions(ctx)
		if err != nil {
			if huberr.Is(err, huberr.WaitAlreadyActive) {
				// another wait is already in flight for this agent; this
				// should not happen with a single dispatch loop per
				// runtime, but don't spin hot if it does.
				select {
				case <-time.After(d.emptyBackoff):
				case <-ctx.Done():
					return
				}
				continue
			}
			d.logger.Warnf("waitForMentions failed: %v", err)
			select {
			case <-time.After(d.emptyBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		if len(batch) == 0 {
			select {
			case <-time.After(d.emptyBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		d.handleBatch(ctx, batch)
	}
}

func (d *Dispatch) waitForMentions(ctx context.Context) ([]types.MentionDelivery, error) {
	raw, err := d.conn.RPC(ctx, "waitForMentions", map[string]int{"timeoutMs": d.cfg.WaitTimeoutMs})
	if err != nil {
		return nil, err
	}
	var batch []types.MentionDelivery
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, huberr.New(huberr.ProtocolError, err.Error())
	}
	return batch, nil
}

func (d *Dispatch) handleBatch(ctx context.Context, batch []types.MentionDelivery) {
	actions, err := d.brain.Decide(batch)
	if err != nil {
		d.logger.Errorf("brain decide failed on batch of %d: %v", len(batch), err)
		return
	}
	for _, action := range actions {
		action := action
		correlationId := types.NewCorrelationId() // shared by every retry of this action
		err := WithRetry(ctx, d.logger, "dispatch:"+action.Op, func() error {
			return d.execute(ctx, action, correlationId)
		})
		if err != nil {
			d.logger.Errorf("action %s on thread %s failed: %v", action.Op, action.ThreadId, err)
		}
	}
}

func (d *Dispatch) execute(ctx context.Context, action Action, correlationId string) error {
	switch action.Op {
	case "sendMessage":
		_, err := d.conn.RPC(ctx, "sendMessage", map[string]any{
			"threadId":      action.ThreadId,
			"body":          action.Body,
			"correlationId": correlationId,
		})
		return err
	case "closeThread":
		_, err := d.conn.RPC(ctx, "closeThread", map[string]any{"threadId": action.ThreadId})
		return err
	default:
		return huberr.New(huberr.ProtocolError, "unknown action op: "+action.Op)
	}
}
