package hub

import (
	"regexp"

	"meshhub/internal/types"
)

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_\-.]+)`)

// ParseMentions extracts the set of @agentId references from a message
// body, in first-occurrence order and without duplicates (§3 DATA MODEL:
// mentions is parsed from body at post time).
func ParseMentions(body string) []types.AgentId {
	matches := mentionPattern.FindAllStringSubmatch(body, -1)
	seen := make(map[types.AgentId]bool, len(matches))
	out := make([]types.AgentId, 0, len(matches))
	for _, m := range matches {
		id := types.AgentId(m[1])
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// MentionRouter enqueues a MentionDelivery for every mentioned agent on
// message append (§4.4). The sender is never self-delivered even if it
// appears in its own mentions.
type MentionRouter struct {
	registry *Registry
}

func NewMentionRouter(registry *Registry) *MentionRouter {
	return &MentionRouter{registry: registry}
}

func (r *MentionRouter) Route(msg *types.Message) {
	for _, target := range msg.Mentions {
		if target == msg.SenderId {
			continue
		}
		buf, ok := r.registry.Lookup(target)
		if !ok {
			continue
		}
		buf.Enqueue(types.MentionDelivery{
			TargetAgentId: target,
			ThreadId:      msg.ThreadId,
			MessageId:     msg.MessageId,
			SenderId:      msg.SenderId,
			Body:          msg.Body,
			PostedAt:      msg.PostedAt,
		})
	}
}
