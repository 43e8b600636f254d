package jingle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/jingle/file"
	"github.com/opd-ai/jingle/session"
	"github.com/opd-ai/jingle/stanza"
	"github.com/opd-ai/jingle/transport"
	"github.com/opd-ai/jingle/xtls"
)

// ErrNoSender indicates an outbound operation was attempted before a
// signaling channel was installed.
var ErrNoSender = errors.New("no signaling sender installed")

// ReceiveRequest carries the metadata of an inbound file offer, as parsed
// by the embedder from the peer's session-initiate.
type ReceiveRequest struct {
	PeerJID     string
	SID         string
	ContentName string
	Creator     session.Creator
	Name        string
	Size        uint64
	Digest      []byte
	Algorithm   file.Algorithm

	// Ranged reports whether the peer's transport supports resuming at
	// an offset.
	Ranged bool
}

// FileSession is the top-level facade: one signaling session per peer,
// a shared transfer registry, and the verification and recovery flow
// wired together. The embedder supplies the wire (a session.Sender) and
// feeds inbound stanzas through Deliver.
type FileSession struct {
	options     *Options
	manager     *file.Manager
	recovery    *file.Recovery
	certificate *xtls.Certificate

	mu       sync.Mutex
	sender   session.Sender
	sessions map[string]*session.Session

	onNegotiated   func(peerJID string)
	onProgress     func(t *file.Transfer, transferred uint64)
	onHashMismatch func(failed, fresh *file.Transfer)
}

// New creates a FileSession from the given options. A nil options value
// uses the defaults.
func New(options *Options) (*FileSession, error) {
	if options == nil {
		options = NewOptions()
	}
	if err := options.validate(); err != nil {
		return nil, err
	}

	level, _ := logrus.ParseLevel(options.LogLevel)
	logrus.SetLevel(level)

	fs := &FileSession{
		options:  options,
		manager:  file.NewManager(),
		sessions: make(map[string]*session.Session),
	}

	if options.UseSecurity {
		cert, err := xtls.LoadCertificate(options.CertificatePath)
		if err != nil {
			return nil, fmt.Errorf("loading certificate: %w", err)
		}
		fs.certificate = cert
	}

	fs.recovery = file.NewRecovery(fs.manager, fs.requestRestart)

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"security": options.UseSecurity,
		"ranged":   options.RangedTransfers,
	}).Info("File session created")

	return fs, nil
}

// SetSender installs the outbound signaling channel and propagates it to
// every open session.
func (fs *FileSession) SetSender(sender session.Sender) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.sender = sender
	for _, s := range fs.sessions {
		s.SetSender(sender)
	}
}

// OnNegotiated installs a callback fired when a peer's session has every
// content negotiated.
func (fs *FileSession) OnNegotiated(cb func(peerJID string)) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.onNegotiated = cb
}

// OnProgress installs a callback fired on every progress update of every
// registered transfer.
func (fs *FileSession) OnProgress(cb func(t *file.Transfer, transferred uint64)) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.onProgress = cb
}

// OnHashMismatch installs a callback fired when a completed receive fails
// verification. The failed record has already been replaced by the fresh
// one when the callback runs.
func (fs *FileSession) OnHashMismatch(cb func(failed, fresh *file.Transfer)) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.onHashMismatch = cb
}

// Manager exposes the transfer registry for direct inspection.
func (fs *FileSession) Manager() *file.Manager {
	return fs.manager
}

// Session returns the signaling session for a peer, creating it on first
// use.
func (fs *FileSession) Session(peerJID string) *session.Session {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.sessionLocked(peerJID)
}

func (fs *FileSession) sessionLocked(peerJID string) *session.Session {
	if s, ok := fs.sessions[peerJID]; ok {
		return s
	}
	s := session.NewSession(uuid.NewString(), peerJID, fs.sender)
	s.OnNegotiated(func() {
		fs.mu.Lock()
		cb := fs.onNegotiated
		fs.mu.Unlock()
		if cb != nil {
			cb(peerJID)
		}
	})
	fs.sessions[peerJID] = s
	return s
}

// SendFile offers a local file to a peer: a send transfer is registered,
// a content is added to the peer's session, and the returned transfer
// tracks its progress. The offer itself goes out when the embedder builds
// the session-initiate with BuildOffer.
func (fs *FileSession) SendFile(peerJID, path, desc string) (*file.Transfer, error) {
	fs.mu.Lock()
	if fs.sender == nil {
		fs.mu.Unlock()
		return nil, ErrNoSender
	}
	fs.mu.Unlock()

	t, err := fs.manager.NewSend(path, desc)
	if err != nil {
		return nil, err
	}
	t.SetHash(nil, file.Algorithm(fs.options.HashAlgorithm))
	fs.watchProgress(t)

	c := session.NewContent(fs.newTransport(t.SID), t)
	c.UseSecurity = fs.options.UseSecurity
	c.Certificate = fs.certificate
	c.SetAccepted(true)

	s := fs.Session(peerJID)
	if err := s.AddContent(session.CreatorInitiator, t.SID, c); err != nil {
		fs.manager.Remove(t.Direction, t.SID)
		return nil, err
	}
	return t, nil
}

// ApproveReceive accepts an inbound file offer into destPath. Existing
// bytes at destPath drive the resume decision: a partial file continues
// at its length when the peer supports ranged transfers, a complete file
// short-circuits straight to verification, anything else restarts from
// zero.
func (fs *FileSession) ApproveReceive(req ReceiveRequest, destPath string) (*file.Transfer, error) {
	t, err := fs.manager.NewReceive(req.SID, req.Name, destPath, req.Size, req.Digest, req.Algorithm)
	if err != nil {
		return nil, err
	}
	fs.watchProgress(t)

	decision, offset, err := file.ProbeResume(destPath, req.Size, req.Ranged && fs.options.RangedTransfers)
	if err != nil {
		fs.manager.Remove(t.Direction, t.SID)
		return nil, err
	}
	t.SetOffset(offset)

	logrus.WithFields(logrus.Fields{
		"function": "ApproveReceive",
		"sid":      req.SID,
		"peer":     req.PeerJID,
		"decision": decision.String(),
		"offset":   offset,
	}).Info("Inbound file offer approved")

	c := session.NewContent(fs.newTransport(req.SID), t)
	c.UseSecurity = fs.options.UseSecurity
	c.Certificate = fs.certificate
	c.SetAccepted(true)

	s := fs.Session(req.PeerJID)
	if err := s.AddContent(req.Creator, req.ContentName, c); err != nil {
		fs.manager.Remove(t.Direction, t.SID)
		return nil, err
	}

	if decision == file.ResumeComplete {
		return t, fs.VerifyReceived(t)
	}
	return t, nil
}

// Deliver routes one inbound signaling action to the peer's session.
func (fs *FileSession) Deliver(peerJID, actionName string, st, contentNode, errNode *stanza.Node) error {
	return fs.Session(peerJID).Deliver(actionName, st, contentNode, errNode)
}

// BuildOffer builds the jingle element of a session-initiate for the
// peer, filling every content not yet sent.
func (fs *FileSession) BuildOffer(peerJID string) (*stanza.Node, error) {
	return fs.buildJingle(peerJID, session.ActionSessionInitiate)
}

// BuildAccept builds the jingle element of a session-accept for the
// peer, filling every accepted, not-yet-sent content.
func (fs *FileSession) BuildAccept(peerJID string) (*stanza.Node, error) {
	return fs.buildJingle(peerJID, session.ActionSessionAccept)
}

func (fs *FileSession) buildJingle(peerJID string, action session.Action) (*stanza.Node, error) {
	s := fs.Session(peerJID)
	node := stanza.New("jingle").
		SetNamespace(session.NSJingle).
		SetAttr("action", action.String()).
		SetAttr("sid", s.SID)
	if err := s.BuildContents(action, node); err != nil {
		return nil, err
	}
	return node, nil
}

// Progress reports bytes moved on a transfer, stamped with wall-clock
// time. Unknown transfers are dropped by the registry.
func (fs *FileSession) Progress(direction file.Direction, sid string, transferred uint64) {
	fs.manager.OnProgress(direction, sid, transferred, time.Now())
}

// VerifyReceived checks a completed receive against its expected digest.
// A mismatch deletes the corrupted file, replaces the record with a fresh
// full-restart one and fires the mismatch callback; the error is still
// returned so callers can surface it.
func (fs *FileSession) VerifyReceived(t *file.Transfer) error {
	fresh, err := fs.recovery.VerifyAndRecover(t)
	if fresh == nil {
		return err
	}

	fs.watchProgress(fresh)
	fs.mu.Lock()
	cb := fs.onHashMismatch
	fs.mu.Unlock()
	if cb != nil {
		cb(t, fresh)
	}
	if err != nil {
		return err
	}
	return file.ErrHashMismatch
}

// requestRestart is the recovery hook: the fresh record needs a new offer
// round, which the embedder drives from the mismatch callback. Nothing to
// signal here.
func (fs *FileSession) requestRestart(t *file.Transfer) error {
	logrus.WithFields(logrus.Fields{
		"function": "requestRestart",
		"sid":      t.SID,
		"name":     t.Name,
	}).Info("Requesting full restart of failed transfer")
	return nil
}

func (fs *FileSession) newTransport(sid string) *transport.Bytestream {
	bs := transport.NewBytestream(sid)
	bs.SetRanged(fs.options.RangedTransfers)
	return bs
}

func (fs *FileSession) watchProgress(t *file.Transfer) {
	t.OnProgress(func(transferred uint64) {
		fs.mu.Lock()
		cb := fs.onProgress
		fs.mu.Unlock()
		if cb != nil {
			cb(t, transferred)
		}
	})
}
