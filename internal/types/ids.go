// Package types holds the wire- and storage-level shapes shared between the
// Hub and the Client Runtime: opaque identifiers, agents, sessions, threads,
// messages, and mention deliveries.
package types

import "github.com/google/uuid"

// AgentId is the stable, caller-supplied identity of a worker process.
// Unlike SessionId, ThreadId, and MessageId it is not generated by the Hub.
type AgentId string

// SessionId is an opaque 128-bit identifier minted by the Hub on session
// open. It MAY change across reconnects; routing is always by AgentId.
type SessionId string

// ThreadId is an opaque identifier for a named conversation.
type ThreadId string

// MessageId is an opaque identifier for a single appended message.
type MessageId string

// NewSessionId mints a fresh opaque session identifier.
func NewSessionId() SessionId { return SessionId(uuid.NewString()) }

// NewThreadId mints a fresh opaque thread identifier.
func NewThreadId() ThreadId { return ThreadId(uuid.NewString()) }

// NewMessageId mints a fresh opaque message identifier.
func NewMessageId() MessageId { return MessageId(uuid.NewString()) }

// NewCorrelationId mints a client-generated correlation identifier used to
// deduplicate retried sendMessage/createThread calls on the Hub side.
func NewCorrelationId() string { return uuid.NewString() }
