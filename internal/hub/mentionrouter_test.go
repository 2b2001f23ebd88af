package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshhub/internal/types"
	"meshhub/internal/utils"
)

func TestParseMentions_DedupAndOrder(t *testing.T) {
	body := "hey @bob can you loop in @carol, @bob again and @dave?"
	mentions := ParseMentions(body)
	assert.Equal(t, []types.AgentId{"bob", "carol", "dave"}, mentions)
}

func TestParseMentions_NoMentions(t *testing.T) {
	assert.Empty(t, ParseMentions("no mentions here"))
}

func TestMentionRouter_Route_SkipsSelfMention(t *testing.T) {
	reg := NewRegistry(utils.NewLogger("error"), time.Minute, 16)
	reg.OpenSession("alice", "", nil)
	router := NewMentionRouter(reg)

	msg := &types.Message{SenderId: "alice", Mentions: []types.AgentId{"alice"}, Body: "@alice talking to myself"}
	router.Route(msg)

	buf, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, 0, buf.Len())
}

func TestMentionRouter_Route_SkipsUnknownAgent(t *testing.T) {
	reg := NewRegistry(utils.NewLogger("error"), time.Minute, 16)
	router := NewMentionRouter(reg)

	msg := &types.Message{SenderId: "alice", Mentions: []types.AgentId{"ghost"}, Body: "@ghost hello"}
	assert.NotPanics(t, func() { router.Route(msg) })
}

func TestMentionRouter_Route_DeliversToRegisteredTarget(t *testing.T) {
	reg := NewRegistry(utils.NewLogger("error"), time.Minute, 16)
	reg.OpenSession("bob", "", nil)
	router := NewMentionRouter(reg)

	msg := &types.Message{
		MessageId: "msg-1",
		ThreadId:  "thread-1",
		SenderId:  "alice",
		Mentions:  []types.AgentId{"bob"},
		Body:      "@bob please review",
	}
	router.Route(msg)

	buf, ok := reg.Lookup("bob")
	require.True(t, ok)
	out := buf.DrainUpTo(1)
	require.Len(t, out, 1)
	assert.Equal(t, types.AgentId("bob"), out[0].TargetAgentId)
	assert.Equal(t, types.AgentId("alice"), out[0].SenderId)
	assert.Equal(t, "@bob please review", out[0].Body)
}
