package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/jingle/stanza"
)

// ErrDuplicateContent indicates a content was added under a (creator,
// name) key that is already in use.
var ErrDuplicateContent = errors.New("content already exists")

// Sender is the outbound signaling channel supplied by the embedder. The
// session hands it fully built content elements; serialization and
// transmission happen behind this boundary.
type Sender interface {
	SendTransportInfo(content *stanza.Node) error
	SendDescriptionInfo(content *stanza.Node) error
}

// contentKey identifies a content within its session.
type contentKey struct {
	creator Creator
	name    string
}

// Session owns the set of contents being negotiated with one peer and
// routes inbound actions to the matching content. Add and remove of
// content keys are serialized; each content's flags are only ever mutated
// through this routing, so contents need no locking of their own.
type Session struct {
	SID     string
	PeerJID string

	mu       sync.Mutex
	contents map[contentKey]*Content
	sender   Sender

	onNegotiated        func()
	onContentNegotiated func(media string)
}

// NewSession creates a session with the given identifier and peer.
func NewSession(sid, peerJID string, sender Sender) *Session {
	logrus.WithFields(logrus.Fields{
		"function": "NewSession",
		"sid":      sid,
		"peer":     peerJID,
	}).Info("Creating signaling session")

	return &Session{
		SID:      sid,
		PeerJID:  peerJID,
		contents: make(map[contentKey]*Content),
		sender:   sender,
	}
}

// SetSender installs the outbound signaling channel.
func (s *Session) SetSender(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = sender
}

// OnNegotiated installs a callback fired once every content in the
// session has completed negotiation.
func (s *Session) OnNegotiated(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNegotiated = cb
}

// OnContentNegotiated installs a callback fired as each content completes
// negotiation, with the content's media kind.
func (s *Session) OnContentNegotiated(cb func(media string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onContentNegotiated = cb
}

// AddContent assigns the (creator, name) identity to the content and
// registers it. The identity is immutable afterwards.
func (s *Session) AddContent(creator Creator, name string, c *Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := contentKey{creator: creator, name: name}
	if _, exists := s.contents[key]; exists {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateContent, creator, name)
	}

	c.session = s
	c.creator = creator
	c.name = name
	s.contents[key] = c

	logrus.WithFields(logrus.Fields{
		"function": "AddContent",
		"sid":      s.SID,
		"creator":  creator.String(),
		"name":     name,
		"media":    c.Media,
	}).Info("Content added to session")

	return nil
}

// Content looks up a registered content.
func (s *Session) Content(creator Creator, name string) (*Content, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[contentKey{creator: creator, name: name}]
	return c, ok
}

// Contents returns all registered contents.
func (s *Session) Contents() []*Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Content, 0, len(s.contents))
	for _, c := range s.contents {
		out = append(out, c)
	}
	return out
}

// removeContent drops a content from the registry.
func (s *Session) removeContent(key contentKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contents, key)

	logrus.WithFields(logrus.Fields{
		"function": "removeContent",
		"sid":      s.SID,
		"creator":  key.creator.String(),
		"name":     key.name,
	}).Debug("Content removed from session")
}

// Deliver routes one inbound action to the content addressed by the
// content node's creator and name attributes. Stanzas for unknown or
// destroyed contents are dropped with a warning, not propagated: peers
// legitimately race with stale in-flight stanzas. Unknown action names
// are no-ops.
func (s *Session) Deliver(actionName string, st, contentNode, errNode *stanza.Node) error {
	action, ok := ParseAction(actionName)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Deliver",
			"sid":      s.SID,
			"action":   actionName,
		}).Debug("Ignoring unknown action")
		return nil
	}

	if contentNode == nil {
		// Session-level stanzas carry no content element; nothing to
		// dispatch at the content level.
		return nil
	}

	c := s.routeContent(contentNode)
	if c == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Deliver",
			"sid":      s.SID,
			"action":   actionName,
			"creator":  contentNode.Attr("creator"),
			"name":     contentNode.Attr("name"),
		}).Warn("Dropping stanza for unknown content")
		return nil
	}

	return c.OnStanza(action, st, contentNode, errNode)
}

// routeContent resolves the content addressed by an inbound content node.
func (s *Session) routeContent(contentNode *stanza.Node) *Content {
	if contentNode == nil {
		return nil
	}
	creator, ok := ParseCreator(contentNode.Attr("creator"))
	if !ok {
		return nil
	}
	c, _ := s.Content(creator, contentNode.Attr("name"))
	return c
}

// BuildContents runs the "-sent" handler lists for an outbound stanza of
// the given action kind: each participating content gets its wrapper
// element built, filled, and appended to parent. For initiate/add kinds
// the not-yet-sent contents participate; for accept kinds the ready ones
// (accepted and not yet sent). Fill failures abort that content only.
func (s *Session) BuildContents(action Action, parent *stanza.Node) error {
	var errs []error
	for _, c := range s.selectContents(action) {
		node := c.contentNode()
		if err := c.OnStanzaSent(action, parent, node, nil); err != nil {
			errs = append(errs, fmt.Errorf("content %q: %w", c.Name(), err))
			continue
		}
		parent.AddChild(node)
	}
	return errors.Join(errs...)
}

// NotifySent runs the "-sent" handlers of every content that participated
// in an already-built outbound stanza, for embedders that construct
// stanzas themselves. The content nodes must carry creator/name
// attributes for routing.
func (s *Session) NotifySent(action Action, st *stanza.Node) error {
	var errs []error
	for _, contentNode := range st.ChildrenNamed("content") {
		c := s.routeContent(contentNode)
		if c == nil {
			continue
		}
		if err := c.OnStanzaSent(action, st, contentNode, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// selectContents picks the contents participating in an outbound stanza.
func (s *Session) selectContents(action Action) []*Content {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Content
	for _, c := range s.contents {
		switch action {
		case ActionSessionInitiate, ActionContentAdd:
			if !c.Sent() {
				out = append(out, c)
			}
		case ActionSessionAccept, ActionContentAccept:
			if c.IsReady() {
				out = append(out, c)
			}
		}
	}
	return out
}

// contentNegotiated records one content's completed negotiation and fires
// the session-level callback once all contents are done.
func (s *Session) contentNegotiated(c *Content) {
	s.mu.Lock()
	contentCb := s.onContentNegotiated
	sessionCb := s.onNegotiated
	all := len(s.contents) > 0
	for _, other := range s.contents {
		if !other.Negotiated() {
			all = false
			break
		}
	}
	s.mu.Unlock()

	if contentCb != nil {
		contentCb(c.Media)
	}
	if all && sessionCb != nil {
		logrus.WithFields(logrus.Fields{
			"function": "contentNegotiated",
			"sid":      s.SID,
		}).Info("All contents negotiated; session usable")
		sessionCb()
	}
}

// sendTransportInfo hands a content element to the outbound channel.
func (s *Session) sendTransportInfo(content *stanza.Node) error {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		return errors.New("session has no sender")
	}
	return sender.SendTransportInfo(content)
}

// sendDescriptionInfo hands a content element to the outbound channel.
func (s *Session) sendDescriptionInfo(content *stanza.Node) error {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		return errors.New("session has no sender")
	}
	return sender.SendDescriptionInfo(content)
}
