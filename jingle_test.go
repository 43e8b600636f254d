package jingle

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/jingle/file"
	"github.com/opd-ai/jingle/session"
	"github.com/opd-ai/jingle/stanza"
)

type recordingSender struct {
	transportInfos   []*stanza.Node
	descriptionInfos []*stanza.Node
}

func (r *recordingSender) SendTransportInfo(content *stanza.Node) error {
	r.transportInfos = append(r.transportInfos, content)
	return nil
}

func (r *recordingSender) SendDescriptionInfo(content *stanza.Node) error {
	r.descriptionInfos = append(r.descriptionInfos, content)
	return nil
}

const peer = "juliet@capulet.lit/balcony"

func newFileSession(t *testing.T) *FileSession {
	t.Helper()
	fs, err := New(NewOptions())
	require.NoError(t, err)
	fs.SetSender(&recordingSender{})
	return fs
}

func writeTempFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewValidatesOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"bad log level", func(o *Options) { o.LogLevel = "chatty" }},
		{"bad algorithm", func(o *Options) { o.HashAlgorithm = "crc32" }},
		{"security without certificate", func(o *Options) { o.UseSecurity = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewOptions()
			tt.mutate(opts)
			_, err := New(opts)
			assert.Error(t, err)
		})
	}
}

func TestNewNilOptionsUsesDefaults(t *testing.T) {
	fs, err := New(nil)
	require.NoError(t, err)
	assert.NotNil(t, fs.Manager())
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("JINGLE_LOG_LEVEL", "debug")
	t.Setenv("JINGLE_RANGED_TRANSFERS", "false")
	t.Setenv("JINGLE_HASH_ALGORITHM", "blake2b-256")

	opts, err := OptionsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "debug", opts.LogLevel)
	assert.False(t, opts.RangedTransfers)
	assert.Equal(t, "blake2b-256", opts.HashAlgorithm)
}

func TestSendFileRegistersTransferAndContent(t *testing.T) {
	fs := newFileSession(t)
	path := writeTempFile(t, "scene.txt", "wherefore art thou")

	tr, err := fs.SendFile(peer, path, "act two")
	require.NoError(t, err)
	assert.Equal(t, file.DirectionSend, tr.Direction)
	assert.Equal(t, "scene.txt", tr.Name)
	assert.Equal(t, "act two", tr.Desc)

	got, err := fs.Manager().Get(file.DirectionSend, tr.SID)
	require.NoError(t, err)
	assert.Same(t, tr, got)
	assert.Equal(t, 1, fs.Manager().Count(), "exactly one registration per offer")

	c, ok := fs.Session(peer).Content(session.CreatorInitiator, tr.SID)
	require.True(t, ok)
	assert.True(t, c.IsReady())
}

func TestSendFileWithoutSender(t *testing.T) {
	fs, err := New(NewOptions())
	require.NoError(t, err)

	_, err = fs.SendFile(peer, "/tmp/whatever", "")
	assert.ErrorIs(t, err, ErrNoSender)
}

func TestBuildOfferCarriesFileMetadataAndHash(t *testing.T) {
	fs := newFileSession(t)
	path := writeTempFile(t, "scene.txt", "wherefore art thou")

	tr, err := fs.SendFile(peer, path, "")
	require.NoError(t, err)

	offer, err := fs.BuildOffer(peer)
	require.NoError(t, err)
	assert.Equal(t, "jingle", offer.Name())
	assert.Equal(t, "session-initiate", offer.Attr("action"))
	assert.Equal(t, fs.Session(peer).SID, offer.Attr("sid"))

	contents := offer.ChildrenNamed("content")
	require.Len(t, contents, 1)
	fileNode := contents[0].Child("description").Child("file")
	require.NotNil(t, fileNode)
	assert.Equal(t, "scene.txt", fileNode.ChildText("name"))
	assert.NotNil(t, fileNode.Child("hash"), "small files get an inline digest")
	assert.True(t, tr.HashExpected())

	// The content was consumed; a second offer is empty.
	again, err := fs.BuildOffer(peer)
	require.NoError(t, err)
	assert.Empty(t, again.ChildrenNamed("content"))
}

func TestApproveReceiveFreshFile(t *testing.T) {
	fs := newFileSession(t)
	dest := filepath.Join(t.TempDir(), "incoming.bin")

	tr, err := fs.ApproveReceive(ReceiveRequest{
		PeerJID:     peer,
		SID:         "recv1",
		ContentName: "ft-recv",
		Creator:     session.CreatorInitiator,
		Name:        "incoming.bin",
		Size:        4096,
		Algorithm:   file.SHA256,
		Ranged:      true,
	}, dest)
	require.NoError(t, err)
	assert.Equal(t, file.DirectionReceive, tr.Direction)
	assert.Zero(t, tr.Offset())
	assert.Equal(t, 1, fs.Manager().Count(), "exactly one registration per approval")

	accept, err := fs.BuildAccept(peer)
	require.NoError(t, err)
	assert.Equal(t, "session-accept", accept.Attr("action"))
	assert.Len(t, accept.ChildrenNamed("content"), 1)
}

func TestApproveReceiveResumesPartialFile(t *testing.T) {
	fs := newFileSession(t)
	dest := writeTempFile(t, "incoming.bin", "first half")

	tr, err := fs.ApproveReceive(ReceiveRequest{
		PeerJID:     peer,
		SID:         "recv1",
		ContentName: "ft-recv",
		Creator:     session.CreatorInitiator,
		Name:        "incoming.bin",
		Size:        4096,
		Algorithm:   file.SHA256,
		Ranged:      true,
	}, dest)
	require.NoError(t, err)
	assert.Equal(t, uint64(len("first half")), tr.Offset())
}

func TestApproveReceiveIgnoresOffsetWithoutRangedSupport(t *testing.T) {
	fs := newFileSession(t)
	dest := writeTempFile(t, "incoming.bin", "first half")

	tr, err := fs.ApproveReceive(ReceiveRequest{
		PeerJID:     peer,
		SID:         "recv1",
		ContentName: "ft-recv",
		Creator:     session.CreatorInitiator,
		Name:        "incoming.bin",
		Size:        4096,
		Algorithm:   file.SHA256,
		Ranged:      false,
	}, dest)
	require.NoError(t, err)
	assert.Zero(t, tr.Offset(), "peer cannot resume; restart from byte zero")
}

func TestApproveReceiveProbeFailureLeavesNoRecord(t *testing.T) {
	fs := newFileSession(t)
	// A destination under a regular file makes the probe's stat fail with
	// something other than absence.
	parent := writeTempFile(t, "occupied", "not a directory")
	dest := filepath.Join(parent, "incoming.bin")

	req := ReceiveRequest{
		PeerJID:     peer,
		SID:         "recv1",
		ContentName: "ft-recv",
		Creator:     session.CreatorInitiator,
		Name:        "incoming.bin",
		Size:        4096,
		Algorithm:   file.SHA256,
	}
	_, err := fs.ApproveReceive(req, dest)
	require.Error(t, err)
	assert.Zero(t, fs.Manager().Count(), "a failed approval must not linger in the registry")

	// The same offer can be re-approved once the destination is usable.
	_, err = fs.ApproveReceive(req, filepath.Join(t.TempDir(), "incoming.bin"))
	require.NoError(t, err)
}

func TestDeliverRoutesToPeerSession(t *testing.T) {
	fs := newFileSession(t)
	path := writeTempFile(t, "scene.txt", "wherefore art thou")

	tr, err := fs.SendFile(peer, path, "")
	require.NoError(t, err)
	_, err = fs.BuildOffer(peer)
	require.NoError(t, err)

	var negotiated []string
	fs.OnNegotiated(func(p string) { negotiated = append(negotiated, p) })

	contentNode := stanza.New("content").
		SetAttr("creator", "initiator").
		SetAttr("name", tr.SID)
	require.NoError(t, fs.Deliver(peer, "session-accept", stanza.New("iq"), contentNode, nil))

	assert.Equal(t, []string{peer}, negotiated)
	c, _ := fs.Session(peer).Content(session.CreatorInitiator, tr.SID)
	assert.True(t, c.Negotiated())
}

func TestProgressCallbackRouting(t *testing.T) {
	fs := newFileSession(t)
	path := writeTempFile(t, "scene.txt", "wherefore art thou")

	tr, err := fs.SendFile(peer, path, "")
	require.NoError(t, err)
	require.NoError(t, tr.Start())

	var seen []uint64
	fs.OnProgress(func(got *file.Transfer, transferred uint64) {
		assert.Same(t, tr, got)
		seen = append(seen, transferred)
	})

	fs.Progress(file.DirectionSend, tr.SID, 5)
	fs.Progress(file.DirectionSend, tr.SID, 12)
	assert.Equal(t, []uint64{5, 12}, seen)

	// Unknown transfers are dropped, not panicked on.
	fs.Progress(file.DirectionReceive, "no-such-sid", 99)
	assert.Len(t, seen, 2)
}

func TestVerifyReceivedMismatchRunsRecovery(t *testing.T) {
	fs := newFileSession(t)
	dest := writeTempFile(t, "incoming.bin", "corrupted body")
	expected := sha256.Sum256([]byte("pristine body"))

	tr, err := fs.manager.NewReceive("recv1", "incoming.bin", dest, uint64(len("corrupted body")), expected[:], file.SHA256)
	require.NoError(t, err)

	var failed, fresh *file.Transfer
	fs.OnHashMismatch(func(f, n *file.Transfer) { failed, fresh = f, n })

	err = fs.VerifyReceived(tr)
	assert.ErrorIs(t, err, file.ErrHashMismatch)
	require.NotNil(t, fresh)
	assert.Same(t, tr, failed)
	assert.NotEqual(t, tr.SID, fresh.SID)
	assert.Zero(t, fresh.Offset())
	assert.NoFileExists(t, dest, "the corrupted file is deleted")

	// The registry holds exactly the fresh record.
	_, err = fs.Manager().Get(file.DirectionReceive, tr.SID)
	assert.ErrorIs(t, err, file.ErrTransferNotFound)
	got, err := fs.Manager().Get(file.DirectionReceive, fresh.SID)
	require.NoError(t, err)
	assert.Same(t, fresh, got)
}

func TestVerifyReceivedCleanFile(t *testing.T) {
	fs := newFileSession(t)
	dest := writeTempFile(t, "incoming.bin", "pristine body")
	expected := sha256.Sum256([]byte("pristine body"))

	tr, err := fs.manager.NewReceive("recv1", "incoming.bin", dest, uint64(len("pristine body")), expected[:], file.SHA256)
	require.NoError(t, err)

	fs.Progress(file.DirectionReceive, tr.SID, tr.Size)
	assert.Equal(t, file.StatusVerifying, tr.Status())

	require.NoError(t, fs.VerifyReceived(tr))
	assert.Equal(t, file.StatusComplete, tr.Status())
}
