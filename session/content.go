package session

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/jingle/file"
	"github.com/opd-ai/jingle/limits"
	"github.com/opd-ai/jingle/stanza"
	"github.com/opd-ai/jingle/transport"
	"github.com/opd-ai/jingle/xtls"
)

// Jingle namespaces used by content payloads.
const (
	NSJingle        = "urn:xmpp:jingle:1"
	NSFileTransfer5 = "urn:xmpp:jingle:apps:file-transfer:5"
	NSHashes2       = "urn:xmpp:hashes:2"
	NSXTLS          = "urn:xmpp:jingle:security:xtls:0"
)

// ErrContentSetup indicates a content could not be initialized or filled.
// The session aborts negotiation for that content only, never the whole
// session.
var ErrContentSetup = errors.New("content setup failed")

// Creator identifies which peer proposed a content.
type Creator uint8

const (
	// CreatorInitiator marks a content proposed by the session initiator.
	CreatorInitiator Creator = iota
	// CreatorResponder marks a content proposed by the session responder.
	CreatorResponder
)

// String returns the wire name of the creator.
func (c Creator) String() string {
	if c == CreatorResponder {
		return "responder"
	}
	return "initiator"
}

// ParseCreator maps a wire name to a Creator.
func ParseCreator(name string) (Creator, bool) {
	switch name {
	case "initiator":
		return CreatorInitiator, true
	case "responder":
		return CreatorResponder, true
	default:
		return 0, false
	}
}

// Senders is the stream direction policy of a content.
type Senders uint8

const (
	// SendersBoth is the default: both peers send.
	SendersBoth Senders = iota
	// SendersInitiator restricts sending to the initiator.
	SendersInitiator
	// SendersResponder restricts sending to the responder.
	SendersResponder
	// SendersNone disables sending on the stream.
	SendersNone
)

// String returns the wire name of the senders policy.
func (s Senders) String() string {
	switch s {
	case SendersInitiator:
		return "initiator"
	case SendersResponder:
		return "responder"
	case SendersNone:
		return "none"
	default:
		return "both"
	}
}

// MediaFile is the media kind of a file-transfer content.
const MediaFile = "file"

// handlerFunc is one dispatch-table entry. Handlers report errors but
// never abort the handler list; the dispatcher runs every registered
// handler and joins the failures.
type handlerFunc func(st, content, errNode *stanza.Node, action Action) error

// Content is the per-content negotiation state machine. Its identity
// (creator, name) is assigned by the owning session and immutable
// afterwards; the session strictly outlives and exclusively owns it.
type Content struct {
	session *Session
	creator Creator
	name    string

	Media        string
	Senders      Senders
	AllowSending bool
	Transport    transport.Transport
	Transfer     *file.Transfer

	// UseSecurity requests an end-to-end security element in outbound
	// payloads, built from Certificate.
	UseSecurity bool
	Certificate *xtls.Certificate

	accepted   bool
	sent       bool
	negotiated bool

	recvHandlers [numActions][]handlerFunc
	sentHandlers [numActions][]handlerFunc
}

// NewContent creates a content over the given transport. The transfer
// record is attached when the content represents a file stream.
func NewContent(tr transport.Transport, transfer *file.Transfer) *Content {
	c := &Content{
		Media:        MediaFile,
		Senders:      SendersBoth,
		AllowSending: true,
		Transport:    tr,
		Transfer:     transfer,
	}

	// Inbound table: what to do when the peer's stanza arrives. Reserved
	// actions keep explicit empty entries so dispatch stays branch-free.
	c.recvHandlers = [numActions][]handlerFunc{
		ActionContentAccept:    {c.onTransportInfo, c.onContentAccept},
		ActionContentAdd:       {c.onTransportInfo},
		ActionContentModify:    {},
		ActionContentReject:    {},
		ActionContentRemove:    {},
		ActionDescriptionInfo:  {},
		ActionSecurityInfo:     {},
		ActionSessionAccept:    {c.onTransportInfo, c.onContentAccept},
		ActionSessionInfo:      {},
		ActionSessionInitiate:  {c.onTransportInfo},
		ActionSessionTerminate: {},
		ActionTransportInfo:    {c.onTransportInfo},
		ActionTransportReplace: {c.onTransportReplace},
		ActionTransportAccept:  {c.onTransportReplace},
		ActionTransportReject:  {},
		ActionIQResult:         {},
		ActionIQError:          {},
	}

	// Sent table: what to do after we transmit a stanza of that kind.
	c.sentHandlers = [numActions][]handlerFunc{
		ActionContentAccept:    {c.fillStanza, c.onContentAccept},
		ActionContentAdd:       {c.fillStanza},
		ActionSessionInitiate:  {c.fillStanza},
		ActionSessionAccept:    {c.fillStanza, c.onContentAccept},
		ActionSessionTerminate: {},
	}

	return c
}

// Creator returns which peer proposed this content.
func (c *Content) Creator() Creator {
	return c.creator
}

// Name returns the content name, unique within its session.
func (c *Content) Name() string {
	return c.name
}

// IsReady reports whether the content is accepted locally but not yet
// included in an outbound stanza.
func (c *Content) IsReady() bool {
	return c.accepted && !c.sent
}

// Accepted reports whether the content has been accepted locally.
func (c *Content) Accepted() bool {
	return c.accepted
}

// SetAccepted records local acceptance of the content.
func (c *Content) SetAccepted(accepted bool) {
	c.accepted = accepted
}

// Sent reports whether a fill handler has run for this content.
func (c *Content) Sent() bool {
	return c.sent
}

// Negotiated reports whether both peers agreed to use this content.
func (c *Content) Negotiated() bool {
	return c.negotiated
}

// OnStanza runs the ordered inbound handler list for the action. Every
// handler executes; failures are joined, never short-circuited. Actions
// outside the vocabulary are no-ops.
func (c *Content) OnStanza(action Action, st, content, errNode *stanza.Node) error {
	if action >= numActions {
		return nil
	}
	return c.dispatch(c.recvHandlers[action], action, st, content, errNode)
}

// OnStanzaSent runs the ordered "-sent" handler list for the action,
// invoked by outbound stanza construction after the stanza of that kind
// was built for transmission.
func (c *Content) OnStanzaSent(action Action, st, content, errNode *stanza.Node) error {
	if action >= numActions {
		return nil
	}
	return c.dispatch(c.sentHandlers[action], action, st, content, errNode)
}

func (c *Content) dispatch(handlers []handlerFunc, action Action, st, content, errNode *stanza.Node) error {
	var errs []error
	for _, h := range handlers {
		if err := h(st, content, errNode, action); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// onContentAccept marks the content negotiated once it is locally
// accepted. Redelivery is harmless: an already negotiated content is not
// re-notified.
func (c *Content) onContentAccept(st, content, errNode *stanza.Node, action Action) error {
	c.onNegotiated()
	return nil
}

func (c *Content) onNegotiated() {
	if !c.accepted || c.negotiated {
		return
	}
	c.negotiated = true

	logrus.WithFields(logrus.Fields{
		"function": "onNegotiated",
		"creator":  c.creator.String(),
		"name":     c.name,
		"media":    c.Media,
	}).Info("Content negotiation complete")

	if c.session != nil {
		c.session.contentNegotiated(c)
	}
}

// onTransportInfo merges candidates from the inbound stanza's transport
// element into our transport.
func (c *Content) onTransportInfo(st, content, errNode *stanza.Node, action Action) error {
	tnode := content.Child("transport")
	if tnode == nil {
		return nil
	}
	candidates := c.Transport.ParsePayload(tnode)
	if len(candidates) == 0 {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function":   "onTransportInfo",
		"name":       c.name,
		"action":     action.String(),
		"candidates": len(candidates),
	}).Debug("Merging remote transport candidates")

	c.AddRemoteCandidates(candidates)
	return nil
}

// onTransportReplace appends our full transport payload to the reply being
// constructed for an incoming transport-replace/transport-accept, without
// touching negotiation flags.
func (c *Content) onTransportReplace(st, content, errNode *stanza.Node, action Action) error {
	content.AddChild(c.Transport.MakePayload(transport.PayloadOptions{}))
	return nil
}

// fillStanza populates the outbound content payload, marks the content
// sent, and appends the transport payload last. This is the only path
// that flips sent.
func (c *Content) fillStanza(st, content, errNode *stanza.Node, action Action) error {
	if err := c.fillContent(content); err != nil {
		return err
	}
	c.sent = true
	content.AddChild(c.Transport.MakePayload(transport.PayloadOptions{}))
	return nil
}

// fillContent builds the description element (file metadata, hash,
// desc text) and, when requested, the security element. Description comes
// before security, and both precede the transport payload the caller
// appends; compatibility code downstream indexes children positionally.
func (c *Content) fillContent(content *stanza.Node) error {
	t := c.Transfer
	if t == nil {
		return fmt.Errorf("%w: content %q has no transfer record", ErrContentSetup, c.name)
	}

	desc := stanza.New("description").SetNamespace(NSFileTransfer5)
	fileNode := desc.NewChild("file")
	if t.Name != "" {
		fileNode.NewChild("name").SetText(t.Name)
	}
	if t.Date != "" {
		fileNode.NewChild("date").SetText(t.Date)
	}
	if t.Size > 0 {
		fileNode.NewChild("size").SetText(strconv.FormatUint(t.Size, 10))
	}

	if err := c.attachHash(fileNode); err != nil {
		return err
	}

	descText := fileNode.NewChild("desc")
	if t.Desc != "" {
		descText.SetText(t.Desc)
	}

	content.AddChild(desc)

	if c.UseSecurity {
		security, err := c.buildSecurity()
		if err != nil {
			return err
		}
		content.AddChild(security)
	}
	return nil
}

// attachHash adds the digest element to the file node. A receive attaches
// the known expected digest verbatim. A send with no digest yet computes
// one synchronously when the file is small enough; larger files are the
// caller's responsibility to hash asynchronously before sending, keeping
// the blocking window during stanza construction bounded.
func (c *Content) attachHash(fileNode *stanza.Node) error {
	t := c.Transfer
	digest, algo := t.Hash()

	if t.Direction == file.DirectionReceive {
		if len(digest) > 0 {
			c.hashNode(fileNode, digest, algo)
		}
		return nil
	}

	if len(digest) > 0 {
		c.hashNode(fileNode, digest, algo)
		return nil
	}
	if !limits.HashInline(t.Size) {
		return nil
	}

	computed, err := file.DigestFile(t.FilePath, algo)
	if err != nil {
		return fmt.Errorf("computing digest of %s: %w", t.FilePath, err)
	}
	t.SetHash(computed, algo)
	c.hashNode(fileNode, computed, algo)

	logrus.WithFields(logrus.Fields{
		"function":  "attachHash",
		"name":      c.name,
		"size":      t.Size,
		"algorithm": string(algo),
	}).Debug("Computed file digest inline")

	return nil
}

func (c *Content) hashNode(fileNode *stanza.Node, digest []byte, algo file.Algorithm) {
	fileNode.NewChild("hash").
		SetNamespace(NSHashes2).
		SetAttr("algo", string(algo)).
		SetText(base64.StdEncoding.EncodeToString(digest))
}

// buildSecurity builds the security element: the local certificate's
// fingerprint under its own declared signature digest, plus the supported
// authentication methods (currently exactly x509).
func (c *Content) buildSecurity() (*stanza.Node, error) {
	if c.Certificate == nil {
		return nil, fmt.Errorf("%w: security requested but no certificate loaded", ErrContentSetup)
	}

	digestAlgo := c.Certificate.SignatureAlgorithm()
	fp, err := c.Certificate.Fingerprint(digestAlgo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentSetup, err)
	}

	security := stanza.New("security").SetNamespace(NSXTLS)
	security.NewChild("fingerprint").SetText(fp)
	for _, method := range []string{"x509"} {
		security.NewChild("method").SetAttr("name", method)
	}
	return security, nil
}

// contentNode builds the content wrapper element carrying this content's
// identity attributes.
func (c *Content) contentNode() *stanza.Node {
	return stanza.New("content").
		SetAttr("name", c.name).
		SetAttr("creator", c.creator.String()).
		SetAttr("senders", c.Senders.String())
}

// AddRemoteCandidates replaces the transport's remote candidate set.
// Later calls supersede earlier ones; the transport owns connectivity
// checks.
func (c *Content) AddRemoteCandidates(candidates []transport.Candidate) {
	c.Transport.MergeRemoteCandidates(candidates)
}

// SendCandidate wraps a single candidate in a fresh content element and
// hands it to the session's transport-info channel.
func (c *Content) SendCandidate(cand transport.Candidate) error {
	content := c.contentNode()
	content.AddChild(c.Transport.MakePayload(transport.PayloadOptions{
		Candidates: []transport.Candidate{cand},
	}))
	return c.session.sendTransportInfo(content)
}

// SendErrorCandidate signals that no viable path exists: a transport
// payload with candidates suppressed and a candidate-error marker child.
func (c *Content) SendErrorCandidate() error {
	content := c.contentNode()
	payload := content.AddChild(c.Transport.MakePayload(transport.PayloadOptions{
		OmitCandidates: true,
	}))
	payload.NewChild("candidate-error")
	return c.session.sendTransportInfo(content)
}

// SendDescriptionInfo sends the current content description out of band.
func (c *Content) SendDescriptionInfo() error {
	content := c.contentNode()
	if err := c.fillContent(content); err != nil {
		return err
	}
	return c.session.sendDescriptionInfo(content)
}

// Destroy removes the content from its owning session. Any further
// dispatch to a destroyed content is a programming error; the registry
// drops stanzas addressed to it.
func (c *Content) Destroy() {
	if c.session != nil {
		c.session.removeContent(contentKey{creator: c.creator, name: c.name})
	}
}
