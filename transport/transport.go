package transport

import (
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/jingle/stanza"
)

// PayloadOptions selects what an outbound transport payload carries.
type PayloadOptions struct {
	// Candidates, when non-nil, is the exact candidate subset to include.
	// When nil, all local candidates are included.
	Candidates []Candidate

	// OmitCandidates suppresses candidates entirely, used when signalling
	// a candidate-error.
	OmitCandidates bool
}

// Transport abstracts the candidate exchange of one content. Implementations
// own connectivity-check semantics; the session layer only merges remote
// candidates and serializes payloads through this interface.
type Transport interface {
	// MergeRemoteCandidates replaces the remote candidate set. Later calls
	// supersede earlier ones; ordering across repeated calls carries no
	// meaning beyond last writer wins.
	MergeRemoteCandidates(candidates []Candidate)

	// MakePayload builds the outbound transport element.
	MakePayload(opts PayloadOptions) *stanza.Node

	// ParsePayload extracts candidates from an inbound transport element.
	// Malformed candidate entries are skipped, not fatal.
	ParsePayload(node *stanza.Node) []Candidate

	// SupportsRanged reports whether the peer addressing scheme supports
	// resuming a transfer from a byte offset.
	SupportsRanged() bool
}

// Bytestream is a SOCKS5-bytestream-flavoured Transport carrying candidate
// metadata for one content. It does not move bytes itself.
type Bytestream struct {
	sid    string
	ranged bool

	mu     sync.Mutex
	local  []Candidate
	remote []Candidate
}

// NewBytestream creates a bytestream transport with the given transport
// session identifier.
func NewBytestream(sid string) *Bytestream {
	logrus.WithFields(logrus.Fields{
		"function": "NewBytestream",
		"sid":      sid,
	}).Debug("Creating bytestream transport")

	return &Bytestream{sid: sid}
}

// SID returns the transport session identifier.
func (b *Bytestream) SID() string {
	return b.sid
}

// SetRanged configures whether ranged resumption is supported.
func (b *Bytestream) SetRanged(ranged bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ranged = ranged
}

// SupportsRanged reports whether ranged resumption is supported.
func (b *Bytestream) SupportsRanged() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ranged
}

// AddLocalCandidate appends a candidate to the local offer set.
func (b *Bytestream) AddLocalCandidate(c Candidate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.local = append(b.local, c)

	logrus.WithFields(logrus.Fields{
		"function": "AddLocalCandidate",
		"sid":      b.sid,
		"cid":      c.CID,
		"host":     c.Host,
		"port":     c.Port,
		"type":     c.Type.String(),
	}).Debug("Local candidate added")
}

// LocalCandidates returns a copy of the local candidate set.
func (b *Bytestream) LocalCandidates() []Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Candidate, len(b.local))
	copy(out, b.local)
	return out
}

// RemoteCandidates returns a copy of the remote candidate set.
func (b *Bytestream) RemoteCandidates() []Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Candidate, len(b.remote))
	copy(out, b.remote)
	return out
}

// MergeRemoteCandidates replaces the remote candidate set. Last writer wins.
func (b *Bytestream) MergeRemoteCandidates(candidates []Candidate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remote = make([]Candidate, len(candidates))
	copy(b.remote, candidates)

	logrus.WithFields(logrus.Fields{
		"function":   "MergeRemoteCandidates",
		"sid":        b.sid,
		"candidates": len(candidates),
	}).Debug("Remote candidates replaced")
}

// MakePayload builds the outbound transport element with the selected
// candidates as children.
func (b *Bytestream) MakePayload(opts PayloadOptions) *stanza.Node {
	node := stanza.New("transport").
		SetNamespace(NSBytestreams).
		SetAttr("sid", b.sid)

	if opts.OmitCandidates {
		return node
	}

	candidates := opts.Candidates
	if candidates == nil {
		candidates = b.LocalCandidates()
	}
	for _, c := range candidates {
		node.NewChild("candidate").
			SetAttr("cid", c.CID).
			SetAttr("host", c.Host).
			SetAttr("port", c.portString()).
			SetAttr("jid", c.JID).
			SetAttr("priority", c.priorityString()).
			SetAttr("type", c.Type.String())
	}
	return node
}

// ParsePayload extracts candidates from an inbound transport element.
// Entries with an unparseable port or type are skipped with a warning.
func (b *Bytestream) ParsePayload(node *stanza.Node) []Candidate {
	var out []Candidate
	for _, child := range node.ChildrenNamed("candidate") {
		c, ok := parseCandidate(child)
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function": "ParsePayload",
				"sid":      b.sid,
				"cid":      child.Attr("cid"),
			}).Warn("Skipping malformed candidate entry")
			continue
		}
		out = append(out, c)
	}
	return out
}

// parseCandidate reads one candidate element.
func parseCandidate(node *stanza.Node) (Candidate, bool) {
	port, err := strconv.ParseUint(node.Attr("port"), 10, 16)
	if err != nil {
		return Candidate{}, false
	}
	typ, ok := parseCandidateType(node.Attr("type"))
	if !ok {
		return Candidate{}, false
	}
	priority, err := strconv.ParseUint(node.Attr("priority"), 10, 32)
	if err != nil {
		// Priority is advisory; a missing value sorts last.
		priority = 0
	}
	return Candidate{
		CID:      node.Attr("cid"),
		Host:     node.Attr("host"),
		Port:     uint16(port),
		JID:      node.Attr("jid"),
		Priority: uint32(priority),
		Type:     typ,
	}, true
}
