// Package credentials stores OAuth credentials for catalog sources.
//
// Only ciphertext refresh tokens are written; encryption happens in the caller
// through crypto.Vault before Save is invoked.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/opdscatalog/internal/entities"
)

// Repository handles OAuth credential database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new credentials repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Save creates or updates the credential for cred.CatalogURL.
func (r *Repository) Save(ctx context.Context, cred *entities.OAuthCredential) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("catalog_url = ?", cred.CatalogURL).
			Assign(map[string]interface{}{
				"feed_identifier":   cred.FeedIdentifier,
				"login":             cred.Login,
				"oauth_url":         cred.OAuthURL,
				"refresh_url":       cred.RefreshURL,
				"refresh_token":     cred.RefreshToken,
				"key_fingerprint":   cred.KeyFingerprint,
				"last_refreshed_at": cred.LastRefreshedAt,
				"updated_at":        now,
			}).
			FirstOrCreate(cred).Error
	})

	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Get returns the credential for a catalog origin, or nil when none is stored.
func (r *Repository) Get(ctx context.Context, catalogURL string) (*entities.OAuthCredential, error) {
	var cred entities.OAuthCredential
	err := r.db.WithContext(ctx).Where("catalog_url = ?", catalogURL).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &cred, nil
}

// UpdateRefreshToken replaces the encrypted refresh token after a refresh grant.
func (r *Repository) UpdateRefreshToken(ctx context.Context, catalogURL, encryptedToken, fingerprint string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&entities.OAuthCredential{}).
		Where("catalog_url = ?", catalogURL).
		Updates(map[string]interface{}{
			"refresh_token":     encryptedToken,
			"key_fingerprint":   fingerprint,
			"last_refreshed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update refresh token: %w", result.Error)
	}
	return nil
}

// ClearRefreshToken drops a refresh token the server has revoked.
func (r *Repository) ClearRefreshToken(ctx context.Context, catalogURL string) error {
	return r.UpdateRefreshToken(ctx, catalogURL, "", "")
}

// Delete removes the credential for a catalog origin.
func (r *Repository) Delete(ctx context.Context, catalogURL string) error {
	result := r.db.WithContext(ctx).Where("catalog_url = ?", catalogURL).Delete(&entities.OAuthCredential{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete credential: %w", result.Error)
	}
	return nil
}

// ClaimForFeed assigns the unowned credential of a catalog origin to a feed.
// Credentials already owned by another feed are left alone. The origin is
// matched case-insensitively.
func (r *Repository) ClaimForFeed(ctx context.Context, origin, feedIdentifier string) (int64, error) {
	if origin == "" || feedIdentifier == "" {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&entities.OAuthCredential{}).
		Where("LOWER(catalog_url) = ? AND (feed_identifier = '' OR feed_identifier IS NULL)", strings.ToLower(origin)).
		Update("feed_identifier", feedIdentifier)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to claim credential for feed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteForFeed removes every credential owned by a feed.
func (r *Repository) DeleteForFeed(ctx context.Context, feedIdentifier string) (int64, error) {
	result := r.db.WithContext(ctx).Where("feed_identifier = ?", feedIdentifier).Delete(&entities.OAuthCredential{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete credentials for feed: %w", result.Error)
	}
	return result.RowsAffected, nil
}
