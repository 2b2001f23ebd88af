package hub

import (
	"sync"
	"time"

	"meshhub/internal/huberr"
	"meshhub/internal/types"
)

// threadRecord pairs a Thread with its own append lock, so concurrent
// sendMessage calls against different threads never contend, and a
// crashing Agent Brain downstream of the router never leaves another
// thread's lock held (§9 scoped acquisition).
type threadRecord struct {
	mu     sync.Mutex
	thread *types.Thread
}

// ThreadStore is the Hub's in-memory mapping of thread identifiers to
// membership sets and append-only message logs (§4.3). No persistence
// across restarts, per the Non-goals.
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[types.ThreadId]*threadRecord
	router  *MentionRouter
	reg     *Registry
}

func NewThreadStore(router *MentionRouter, reg *Registry) *ThreadStore {
	return &ThreadStore{
		threads: make(map[types.ThreadId]*threadRecord),
		router:  router,
		reg:     reg,
	}
}

// CreateThread atomically creates a thread; creator is implicitly added.
// All participants must currently be registered.
func (s *ThreadStore) CreateThread(creator types.AgentId, name string, participants []types.AgentId) (types.ThreadId, error) {
	for _, p := range participants {
		if err := s.reg.Require(p); err != nil {
			return "", err
		}
	}
	if err := s.reg.Require(creator); err != nil {
		return "", err
	}

	set := make(map[types.AgentId]bool, len(participants)+1)
	set[creator] = true
	for _, p := range participants {
		set[p] = true
	}

	id := types.NewThreadId()
	rec := &threadRecord{thread: &types.Thread{
		ThreadId:     id,
		Name:         name,
		CreatedBy:    creator,
		Participants: set,
		Log:          nil,
	}}

	s.mu.Lock()
	s.threads[id] = rec
	s.mu.Unlock()
	return id, nil
}

func (s *ThreadStore) get(id types.ThreadId) (*threadRecord, error) {
	s.mu.RLock()
	rec, ok := s.threads[id]
	s.mu.RUnlock()
	if !ok {
		return nil, huberr.New(huberr.ThreadClosed, "unknown thread")
	}
	return rec, nil
}

// AddParticipant is permitted to any existing participant.
func (s *ThreadStore) AddParticipant(threadId types.ThreadId, requester, agentId types.AgentId) error {
	rec, err := s.get(threadId)
	if err != nil {
		return err
	}
	if err := s.reg.Require(agentId); err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.thread.Participants[requester] {
		return huberr.New(huberr.NotAParticipant, string(requester))
	}
	if rec.thread.Closed {
		return huberr.New(huberr.ThreadClosed, string(threadId))
	}
	rec.thread.Participants[agentId] = true
	return nil
}

// RemoveParticipant removes agentId from the thread. Removing the creator
// is allowed; removing the last participant closes the thread.
func (s *ThreadStore) RemoveParticipant(threadId types.ThreadId, requester, agentId types.AgentId) error {
	rec, err := s.get(threadId)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.thread.Participants[requester] {
		return huberr.New(huberr.NotAParticipant, string(requester))
	}
	if !rec.thread.Participants[agentId] {
		return huberr.New(huberr.NotAParticipant, string(agentId))
	}
	delete(rec.thread.Participants, agentId)
	if len(rec.thread.Participants) == 0 {
		rec.thread.Closed = true
	}
	return nil
}

// CloseThread is idempotent; further posts fail with ThreadClosed.
func (s *ThreadStore) CloseThread(threadId types.ThreadId, requester types.AgentId) error {
	rec, err := s.get(threadId)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.thread.Closed = true
	return nil
}

// SendMessage validates sender membership, mentions ⊆ participants, and
// that the thread isn't closed; appends under the thread's lock; then
// hands the message to the Mention Router. Returns the new messageId.
func (s *ThreadStore) SendMessage(threadId types.ThreadId, senderId types.AgentId, body string) (types.MessageId, error) {
	rec, err := s.get(threadId)
	if err != nil {
		return "", err
	}

	mentions := ParseMentions(body)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.thread.Closed {
		return "", huberr.New(huberr.ThreadClosed, string(threadId))
	}
	if !rec.thread.Participants[senderId] {
		return "", huberr.New(huberr.NotAParticipant, string(senderId))
	}
	for _, m := range mentions {
		if !rec.thread.Participants[m] {
			return "", huberr.New(huberr.MentionNotParticipant, string(m))
		}
	}

	msg := &types.Message{
		MessageId: types.NewMessageId(),
		ThreadId:  threadId,
		SenderId:  senderId,
		Body:      body,
		Mentions:  mentions,
		PostedAt:  time.Now().UTC(),
	}
	rec.thread.Log = append(rec.thread.Log, msg)
	s.router.Route(msg)
	return msg.MessageId, nil
}

// Count reports the number of threads currently tracked, open or closed.
func (s *ThreadStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}
