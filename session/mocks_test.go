package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opd-ai/jingle/file"
	"github.com/opd-ai/jingle/stanza"
	"github.com/opd-ai/jingle/transport"
)

// mockSender records the content elements handed to the outbound channel.
type mockSender struct {
	transportInfos   []*stanza.Node
	descriptionInfos []*stanza.Node
}

func (m *mockSender) SendTransportInfo(content *stanza.Node) error {
	m.transportInfos = append(m.transportInfos, content)
	return nil
}

func (m *mockSender) SendDescriptionInfo(content *stanza.Node) error {
	m.descriptionInfos = append(m.descriptionInfos, content)
	return nil
}

// testHarness bundles a session, its sender and one registered
// file content.
type testHarness struct {
	session   *Session
	sender    *mockSender
	content   *Content
	transport *transport.Bytestream
}

// newHarness builds a session with a single send-direction file content
// whose backing file exists on disk with the given content, but whose
// advertised size can be spoofed to exercise the inline-hash threshold.
func newHarness(t *testing.T, advertisedSize uint64, direction file.Direction) *testHarness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "offer.bin")
	require.NoError(t, os.WriteFile(path, []byte("file body used for digests"), 0o644))

	tr := file.NewTransfer("tsid", "offer.bin", path, advertisedSize, direction)
	tr.Date = "2026-08-01T10:30:00Z"

	bs := transport.NewBytestream("bsid")
	bs.AddLocalCandidate(transport.Candidate{
		CID:      "local1",
		Host:     "192.0.2.1",
		Port:     7777,
		JID:      "romeo@montague.lit/orchard",
		Priority: 100,
		Type:     transport.CandidateDirect,
	})

	sender := &mockSender{}
	sess := NewSession("session1", "juliet@capulet.lit/balcony", sender)

	c := NewContent(bs, tr)
	require.NoError(t, sess.AddContent(CreatorInitiator, "ft-1", c))

	return &testHarness{
		session:   sess,
		sender:    sender,
		content:   c,
		transport: bs,
	}
}

// remoteTransportNode builds an inbound content node carrying a transport
// payload with the given number of candidates.
func remoteTransportNode(creator, name string, candidates int) *stanza.Node {
	remote := transport.NewBytestream("peer-bsid")
	for i := 0; i < candidates; i++ {
		remote.AddLocalCandidate(transport.Candidate{
			CID:      string(rune('a' + i)),
			Host:     "198.51.100.7",
			Port:     uint16(6000 + i),
			Priority: uint32(10 - i),
			Type:     transport.CandidateProxy,
		})
	}

	content := stanza.New("content").
		SetAttr("creator", creator).
		SetAttr("name", name)
	content.AddChild(remote.MakePayload(transport.PayloadOptions{}))
	return content
}
