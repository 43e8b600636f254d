// Package transport defines the candidate-exchange boundary between a
// Jingle content and the bytestream layer that eventually moves bytes.
//
// A content owns exactly one Transport. The content merges remote
// candidates into it as transport-info stanzas arrive and asks it to
// serialize outbound transport payloads; connectivity checks and the
// actual byte movement are owned by the bytestream implementation behind
// this boundary.
package transport

import (
	"errors"
	"strconv"
)

// ErrNoViablePath indicates that every exchanged candidate failed; the
// transfer riding on this transport is terminal and is not retried
// automatically.
var ErrNoViablePath = errors.New("no viable candidate path")

// NSBytestreams is the namespace of the SOCKS5 bytestream transport payload.
const NSBytestreams = "urn:xmpp:jingle:transports:s5b:1"

// CandidateType classifies how a candidate reaches the peer.
type CandidateType uint8

const (
	// CandidateDirect is a directly reachable host address.
	CandidateDirect CandidateType = iota
	// CandidateAssisted is an address discovered with NAT assistance.
	CandidateAssisted
	// CandidateTunnel is an address reached through a tunnel.
	CandidateTunnel
	// CandidateProxy is a mediated proxy address.
	CandidateProxy
)

// String returns the wire name of the candidate type.
func (t CandidateType) String() string {
	switch t {
	case CandidateDirect:
		return "direct"
	case CandidateAssisted:
		return "assisted"
	case CandidateTunnel:
		return "tunnel"
	case CandidateProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// parseCandidateType maps a wire name back to a CandidateType.
func parseCandidateType(name string) (CandidateType, bool) {
	switch name {
	case "direct":
		return CandidateDirect, true
	case "assisted":
		return CandidateAssisted, true
	case "tunnel":
		return CandidateTunnel, true
	case "proxy":
		return CandidateProxy, true
	default:
		return 0, false
	}
}

// Candidate is one connectivity option offered for establishing the data
// channel.
type Candidate struct {
	CID      string
	Host     string
	Port     uint16
	JID      string
	Priority uint32
	Type     CandidateType
}

// portString formats the port for the wire attribute.
func (c Candidate) portString() string {
	return strconv.FormatUint(uint64(c.Port), 10)
}

// priorityString formats the priority for the wire attribute.
func (c Candidate) priorityString() string {
	return strconv.FormatUint(uint64(c.Priority), 10)
}
