package entities

import (
	"time"
)

// OAuthCredential holds what is needed to silently re-authenticate against a
// catalog source. The password is never part of it.
type OAuthCredential struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// CatalogURL is the source origin (scheme://host[:port]) the credential authenticates
	CatalogURL string `gorm:"column:catalog_url;type:varchar(512);not null;uniqueIndex" json:"catalog_url"`

	// FeedIdentifier references the owning OPDSFeed; deleting the feed deletes the credential.
	// Empty when the source was authenticated from a URL that has no stored feed.
	FeedIdentifier string `gorm:"column:feed_identifier;size:64;index" json:"feed_identifier,omitempty"`

	// Login is optional, some sources allow anonymous refresh
	Login string `gorm:"type:varchar(255)" json:"login,omitempty"`

	OAuthURL   string `gorm:"column:oauth_url;type:text;not null" json:"oauth_url"`
	RefreshURL string `gorm:"column:refresh_url;type:text" json:"refresh_url,omitempty"`

	// RefreshToken is hex-encoded ciphertext produced by crypto.Vault
	RefreshToken string `gorm:"type:text" json:"-"`

	// KeyFingerprint identifies the key/IV pair that produced RefreshToken
	KeyFingerprint string `gorm:"size:32" json:"-"`

	// LastRefreshedAt tracks when the refresh token was last exchanged
	LastRefreshedAt *time.Time `json:"last_refreshed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (OAuthCredential) TableName() string {
	return "oauth_credentials"
}

// HasRefreshToken reports whether a silent refresh can be attempted.
func (c *OAuthCredential) HasRefreshToken() bool {
	return c != nil && c.RefreshToken != ""
}

// RefreshEndpoint returns the refresh URL, falling back to the OAuth URL.
func (c *OAuthCredential) RefreshEndpoint() string {
	if c.RefreshURL != "" {
		return c.RefreshURL
	}
	return c.OAuthURL
}
