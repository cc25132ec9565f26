package trust

import (
	"fmt"
	"strings"
)

// Action is the intent for one policy.
type Action int

const (
	Trust Action = iota
	Deny
	Remove
)

func (a Action) String() string {
	switch a {
	case Trust:
		return "trust"
	case Deny:
		return "deny"
	case Remove:
		return "remove"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Result returns the trust outcome an entry must carry to satisfy a.
// Remove has no result.
func (a Action) Result() Result {
	switch a {
	case Trust:
		return ResultConfirm
	case Deny:
		return ResultDeny
	}
	return ResultInvalid
}

func (a Action) valid() bool {
	return a == Trust || a == Deny || a == Remove
}

// ParseAction parses "trust", "deny" or "remove".
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trust":
		return Trust, nil
	case "deny":
		return Deny, nil
	case "remove":
		return Remove, nil
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// Result is the trust outcome recorded under kSecTrustSettingsResult.
type Result int

const (
	ResultInvalid Result = iota
	ResultTrustRoot
	ResultConfirm
	ResultDeny
	ResultUnspecified
)

func (r Result) String() string {
	switch r {
	case ResultInvalid:
		return "invalid"
	case ResultTrustRoot:
		return "trustRoot"
	case ResultConfirm:
		return "confirm"
	case ResultDeny:
		return "deny"
	case ResultUnspecified:
		return "unspecified"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// PolicyAction pairs a policy with the desired action. Handled is written by
// Reconcile only: it is true once an existing entry for the policy was
// processed or a new entry was added for it.
type PolicyAction struct {
	Policy  Policy
	Action  Action
	Handled bool
}

func (pa PolicyAction) String() string {
	return pa.Action.String() + " " + pa.Policy.String()
}
