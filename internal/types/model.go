package types

import "time"

// Agent is a registered worker process. It is created on session open and
// destroyed on session close; it carries no back-reference to the threads
// it participates in (threads hold AgentId sets instead).
type Agent struct {
	AgentId      AgentId
	Description  string
	Capabilities []string
	RegisteredAt time.Time
	SessionId    SessionId
}

// AgentSummary is the snapshot shape returned by listAgents. In detail mode
// it additionally reports mention-buffer depth and the drop counter.
type AgentSummary struct {
	AgentId            AgentId   `json:"agentId"`
	Description        string    `json:"description"`
	Capabilities       []string  `json:"capabilities"`
	RegisteredAt       time.Time `json:"registeredAt"`
	LastActivityAt     time.Time `json:"lastActivityAt,omitempty"`
	MentionBufferDepth int       `json:"mentionBufferDepth,omitempty"`
	MentionsDropped    uint64    `json:"mentionsDropped,omitempty"`
	Departed           bool      `json:"departed,omitempty"`
}

// Thread is a named, participant-scoped, append-only sequence of messages.
// Participants MUST include CreatedBy at creation time.
type Thread struct {
	ThreadId     ThreadId
	Name         string
	CreatedBy    AgentId
	Participants map[AgentId]bool
	Closed       bool
	Log          []*Message
}

// Message is an immutable, appended record. Mentions is parsed from Body at
// post time and MUST be a subset of the owning thread's Participants.
type Message struct {
	MessageId MessageId
	ThreadId  ThreadId
	SenderId  AgentId
	Body      string
	Mentions  []AgentId
	PostedAt  time.Time
}

// MentionDelivery is a single addressed-work record enqueued into the
// target agent's mention buffer at post time.
type MentionDelivery struct {
	TargetAgentId AgentId
	ThreadId      ThreadId
	MessageId     MessageId
	SenderId      AgentId
	Body          string
	PostedAt      time.Time
}
