package model

// AuthState represents the lifecycle state of the client session.
type AuthState string

const (
	AuthStateLoading         AuthState = "LOADING"
	AuthStateAuthenticated   AuthState = "AUTHENTICATED"
	AuthStateUnauthenticated AuthState = "UNAUTHENTICATED"
)

// String returns the string representation of the auth state.
func (s AuthState) String() string {
	return string(s)
}

// ValidAuthTransitions defines the allowed auth state transitions.
// Loading is left exactly once and never re-entered.
var ValidAuthTransitions = map[AuthState][]AuthState{
	AuthStateLoading:         {AuthStateAuthenticated, AuthStateUnauthenticated},
	AuthStateAuthenticated:   {AuthStateAuthenticated, AuthStateUnauthenticated},
	AuthStateUnauthenticated: {AuthStateAuthenticated, AuthStateUnauthenticated},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s AuthState) CanTransitionTo(next AuthState) bool {
	for _, allowed := range ValidAuthTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
