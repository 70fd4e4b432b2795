package oauth2

// State is the authentication state of one catalog source.
//
//	Unauthenticated -> Authenticating -> Authenticated -> Expired -> Refreshing
//	Refreshing -> Authenticated | Unauthenticated
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateExpired
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
