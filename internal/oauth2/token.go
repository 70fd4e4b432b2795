package oauth2

import "time"

// TokenResponse contains tokens returned from the authorization server
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int // seconds until expiry
	Scope        string
}

// ExpiresAt calculates the absolute expiry time from ExpiresIn
func (t *TokenResponse) ExpiresAt(now time.Time) *time.Time {
	if t.ExpiresIn <= 0 {
		return nil
	}
	exp := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	return &exp
}

// AccessToken is a bearer token held in memory for one catalog source.
// It is never persisted.
type AccessToken struct {
	Value     string
	Type      string
	ExpiresAt *time.Time
	Source    string
}

// expiringSoon checks if the token is expired or expiring within margin.
// A token without expiry never expires on its own.
func (t *AccessToken) expiringSoon(now time.Time, margin time.Duration) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return now.Add(margin).After(*t.ExpiresAt)
}
