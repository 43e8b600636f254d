package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/jingle/file"
	"github.com/opd-ai/jingle/stanza"
	"github.com/opd-ai/jingle/transport"
)

func TestAddContentDuplicateKey(t *testing.T) {
	h := newHarness(t, 1000, file.DirectionSend)

	dup := NewContent(transport.NewBytestream("other"), nil)
	err := h.session.AddContent(CreatorInitiator, "ft-1", dup)
	assert.ErrorIs(t, err, ErrDuplicateContent)

	// Same name under the other creator is a distinct identity.
	require.NoError(t, h.session.AddContent(CreatorResponder, "ft-1", dup))
	assert.Len(t, h.session.Contents(), 2)
}

func TestContentLookup(t *testing.T) {
	h := newHarness(t, 1000, file.DirectionSend)

	c, ok := h.session.Content(CreatorInitiator, "ft-1")
	require.True(t, ok)
	assert.Same(t, h.content, c)
	assert.Equal(t, CreatorInitiator, c.Creator())
	assert.Equal(t, "ft-1", c.Name())

	_, ok = h.session.Content(CreatorResponder, "ft-1")
	assert.False(t, ok)
}

func TestDeliverDropsUnknownContent(t *testing.T) {
	h := newHarness(t, 1000, file.DirectionSend)

	stale := remoteTransportNode("initiator", "ft-gone", 1)
	require.NoError(t, h.session.Deliver("transport-info", stanza.New("iq"), stale, nil))
	assert.Empty(t, h.transport.RemoteCandidates())
}

func TestDeliverDropsMalformedCreator(t *testing.T) {
	h := newHarness(t, 1000, file.DirectionSend)

	node := remoteTransportNode("neither", "ft-1", 1)
	require.NoError(t, h.session.Deliver("transport-info", stanza.New("iq"), node, nil))
	assert.Empty(t, h.transport.RemoteCandidates())
}

func TestDeliverSessionLevelStanza(t *testing.T) {
	h := newHarness(t, 1000, file.DirectionSend)
	require.NoError(t, h.session.Deliver("session-info", stanza.New("iq"), nil, nil))
}

func TestDeliverAfterDestroyIsDropped(t *testing.T) {
	h := newHarness(t, 1000, file.DirectionSend)
	h.content.SetAccepted(true)
	h.content.Destroy()

	inbound := remoteTransportNode("initiator", "ft-1", 1)
	require.NoError(t, h.session.Deliver("content-accept", stanza.New("iq"), inbound, nil))
	assert.False(t, h.content.Negotiated(), "a destroyed content never hears from the registry again")
	assert.Empty(t, h.session.Contents())
}

func TestBuildContentsSessionInitiate(t *testing.T) {
	h := newHarness(t, 1000, file.DirectionSend)

	parent := stanza.New("jingle").SetNamespace(NSJingle)
	require.NoError(t, h.session.BuildContents(ActionSessionInitiate, parent))

	contents := parent.ChildrenNamed("content")
	require.Len(t, contents, 1)
	node := contents[0]
	assert.Equal(t, "ft-1", node.Attr("name"))
	assert.Equal(t, "initiator", node.Attr("creator"))
	assert.Equal(t, "both", node.Attr("senders"))
	assert.NotNil(t, node.Child("description"))
	assert.NotNil(t, node.Child("transport"))
	assert.True(t, h.content.Sent())

	// A second build finds nothing left to send.
	again := stanza.New("jingle")
	require.NoError(t, h.session.BuildContents(ActionSessionInitiate, again))
	assert.Empty(t, again.ChildrenNamed("content"))
}

func TestBuildContentsAcceptNeedsReadiness(t *testing.T) {
	h := newHarness(t, 1000, file.DirectionSend)

	parent := stanza.New("jingle")
	require.NoError(t, h.session.BuildContents(ActionSessionAccept, parent))
	assert.Empty(t, parent.ChildrenNamed("content"), "unaccepted contents never join an accept")

	h.content.SetAccepted(true)
	require.NoError(t, h.session.BuildContents(ActionSessionAccept, parent))
	require.Len(t, parent.ChildrenNamed("content"), 1)
	assert.True(t, h.content.Negotiated(), "building our accept completes negotiation")
}

func TestBuildContentsFillFailureSkipsContentOnly(t *testing.T) {
	h := newHarness(t, 1000, file.DirectionSend)

	broken := NewContent(transport.NewBytestream("b2"), nil)
	require.NoError(t, h.session.AddContent(CreatorResponder, "ft-2", broken))

	parent := stanza.New("jingle")
	err := h.session.BuildContents(ActionSessionInitiate, parent)
	assert.ErrorIs(t, err, ErrContentSetup)

	// The healthy content still made it into the stanza.
	require.Len(t, parent.ChildrenNamed("content"), 1)
	assert.Equal(t, "ft-1", parent.ChildrenNamed("content")[0].Attr("name"))
	assert.False(t, broken.Sent())
}

func TestNotifySentRoutesByContentAttributes(t *testing.T) {
	h := newHarness(t, 1000, file.DirectionSend)

	st := stanza.New("jingle")
	st.NewChild("content").
		SetAttr("creator", "initiator").
		SetAttr("name", "ft-1")
	st.NewChild("content").
		SetAttr("creator", "responder").
		SetAttr("name", "not-registered")

	require.NoError(t, h.session.NotifySent(ActionSessionInitiate, st))
	assert.True(t, h.content.Sent())
}

func TestSessionNegotiatedWhenAllContentsDone(t *testing.T) {
	h := newHarness(t, 1000, file.DirectionSend)

	second := NewContent(transport.NewBytestream("b2"),
		file.NewTransfer("tsid2", "other.bin", h.content.Transfer.FilePath, 1000, file.DirectionSend))
	require.NoError(t, h.session.AddContent(CreatorInitiator, "ft-2", second))

	var sessionDone int
	h.session.OnNegotiated(func() { sessionDone++ })

	h.content.SetAccepted(true)
	second.SetAccepted(true)

	require.NoError(t, h.session.Deliver("content-accept", stanza.New("iq"),
		remoteTransportNode("initiator", "ft-1", 0), nil))
	assert.Zero(t, sessionDone, "one of two contents is not the whole session")

	require.NoError(t, h.session.Deliver("content-accept", stanza.New("iq"),
		remoteTransportNode("initiator", "ft-2", 0), nil))
	assert.Equal(t, 1, sessionDone)

	// Redelivery does not re-fire.
	require.NoError(t, h.session.Deliver("content-accept", stanza.New("iq"),
		remoteTransportNode("initiator", "ft-1", 0), nil))
	assert.Equal(t, 1, sessionDone)
}

func TestActionRoundTrip(t *testing.T) {
	for a := Action(0); a < numActions; a++ {
		parsed, ok := ParseAction(a.String())
		require.True(t, ok, a.String())
		assert.Equal(t, a, parsed)
	}

	_, ok := ParseAction("tango-down")
	assert.False(t, ok)
	assert.Equal(t, "unknown", Action(200).String())
}
