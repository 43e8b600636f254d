// Package session implements the per-content negotiation state machine
// for Jingle-style signaling sessions.
//
// A Session owns a set of Contents keyed by (creator, name). Inbound
// protocol actions are routed through Session.Deliver into the matching
// Content, which runs an ordered handler list for the action; outbound
// stanza construction triggers the mirrored "-sent" handler list on the
// same Content. The action vocabulary is fixed and dispatch tables are
// arrays indexed by the Action enum, so unknown actions are structurally
// no-ops and a handler can never run for an action outside the
// vocabulary.
//
// The effect of an action depends on whether it was received or sent:
// receiving content-accept merges the peer's transport candidates and
// marks the content negotiated, while sending one fills our description,
// hash and security payload into the outbound stanza and flips the sent
// flag. The invariant negotiated ⟹ accepted holds after any dispatch
// sequence, and sent becomes true only through a fill handler.
//
// Candidate exchange is out of band from content negotiation: transport
// candidates travel in transport-info stanzas built by SendCandidate and
// SendErrorCandidate, while transport-replace/transport-accept replies
// get our transport payload appended without touching negotiation flags.
package session
