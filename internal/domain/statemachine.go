package domain

// transition is one permitted edge of the request state machine and the
// role allowed to take it.
type transition struct {
	from, to string
	role     string
}

var requestTransitions = []transition{
	{RequestStatusPending, RequestStatusAccepted, RoleProfessional},
	{RequestStatusPending, RequestStatusRejected, RoleProfessional},
	{RequestStatusPending, RequestStatusCancelled, RoleClient},
	{RequestStatusAccepted, RequestStatusCancelled, RoleClient},
	{RequestStatusAccepted, RequestStatusCompleted, RoleProfessional},
}

// IsTerminal reports whether no further status transition is permitted.
func IsTerminal(status string) bool {
	switch status {
	case RequestStatusRejected, RequestStatusCancelled, RequestStatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether the edge from -> to exists, regardless of role.
func CanTransition(from, to string) bool {
	for _, t := range requestTransitions {
		if t.from == from && t.to == to {
			return true
		}
	}
	return false
}

// TransitionRole returns the role permitted to move a request from -> to,
// or "" when the edge does not exist.
func TransitionRole(from, to string) string {
	for _, t := range requestTransitions {
		if t.from == from && t.to == to {
			return t.role
		}
	}
	return ""
}

// CanInitiateCall reports whether a new call attempt may replace the
// current call status ("" means no call).
func CanInitiateCall(callStatus string) bool {
	switch callStatus {
	case "", VideoCallPending, VideoCallEnded:
		return true
	}
	return false
}

// IsLiveCall reports whether the call still needs ending.
func IsLiveCall(callStatus string) bool {
	return callStatus == VideoCallPending || callStatus == VideoCallActive
}
