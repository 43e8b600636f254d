package session

// Action is the semantic kind of one Jingle signaling message. The
// vocabulary is fixed; it is never extended at runtime. Dispatch tables
// are fixed-size arrays indexed by Action, so a typo'd or unregistered
// action cannot exist.
type Action uint8

const (
	ActionContentAccept Action = iota
	ActionContentAdd
	ActionContentModify
	ActionContentReject
	ActionContentRemove
	ActionDescriptionInfo
	ActionSecurityInfo
	ActionSessionAccept
	ActionSessionInfo
	ActionSessionInitiate
	ActionSessionTerminate
	ActionTransportInfo
	ActionTransportReplace
	ActionTransportAccept
	ActionTransportReject
	ActionIQResult
	ActionIQError

	// numActions sizes the dispatch tables.
	numActions
)

// actionNames maps actions to their wire names.
var actionNames = [numActions]string{
	ActionContentAccept:    "content-accept",
	ActionContentAdd:       "content-add",
	ActionContentModify:    "content-modify",
	ActionContentReject:    "content-reject",
	ActionContentRemove:    "content-remove",
	ActionDescriptionInfo:  "description-info",
	ActionSecurityInfo:     "security-info",
	ActionSessionAccept:    "session-accept",
	ActionSessionInfo:      "session-info",
	ActionSessionInitiate:  "session-initiate",
	ActionSessionTerminate: "session-terminate",
	ActionTransportInfo:    "transport-info",
	ActionTransportReplace: "transport-replace",
	ActionTransportAccept:  "transport-accept",
	ActionTransportReject:  "transport-reject",
	ActionIQResult:         "iq-result",
	ActionIQError:          "iq-error",
}

// String returns the wire name of the action.
func (a Action) String() string {
	if a >= numActions {
		return "unknown"
	}
	return actionNames[a]
}

// ParseAction maps a wire name to an Action. Unknown names report false;
// the caller treats them as no-ops to tolerate protocol extensions.
func ParseAction(name string) (Action, bool) {
	for a, n := range actionNames {
		if n == name {
			return Action(a), true
		}
	}
	return 0, false
}
