package client

import "meshhub/internal/types"

// Action is an outbound Tool-Surface operation the Agent Brain asks the
// Dispatch Loop to execute, typically a sendMessage back to the
// originating thread.
type Action struct {
	Op       string         // "sendMessage", "createThread", "closeThread", ...
	ThreadId types.ThreadId `json:"threadId,omitempty"`
	Body     string         `json:"body,omitempty"`
}

// Brain is the out-of-scope decision-making collaborator (§6): given a
// non-empty MentionDelivery batch, it returns zero or more outbound
// actions. The Dispatch Loop (§4.9) MUST NOT call Decide with an empty
// batch.
type Brain interface {
	Decide(batch []types.MentionDelivery) ([]Action, error)
}

// NoOpBrain answers every mention on its thread with "@<sender>
// acknowledged"; it exists so cmd/agentctl can run end to end without a
// real Agent Brain plugged in.
type NoOpBrain struct{}

func (NoOpBrain) Decide(batch []types.MentionDelivery) ([]Action, error) {
	actions := make([]Action, 0, len(batch))
	for _, d := range batch {
		actions = append(actions, Action{
			Op:       "sendMessage",
			ThreadId: d.ThreadId,
			Body:     "@" + string(d.SenderId) + " acknowledged",
		})
	}
	return actions, nil
}
