// Package feeds provides the Feed Store: persistent catalog feed definitions.
//
// # Usage
//
//	repo := feeds.NewRepository(db)
//	feed, err := repo.AddFeed(ctx, &entities.OPDSFeed{Title: "Gutenberg", URL: "https://m.gutenberg.org/ebooks.opds/"})
//	err = repo.DeleteFeed(ctx, feed.Identifier) // also removes its OAuth credentials
//
// Adding or updating a feed claims the unowned OAuth credential stored for the
// feed's origin, so a login made before the feed existed is removed with it.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mrlokans/opdscatalog/internal/database/credentials"
	"github.com/mrlokans/opdscatalog/internal/entities"
	"github.com/mrlokans/opdscatalog/internal/httpclient"
)

var (
	ErrNotFound            = errors.New("feed not found")
	ErrDuplicateIdentifier = errors.New("feed identifier already exists")
	ErrInvalidFeed         = errors.New("invalid feed definition")
)

// Repository handles all feed database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new feeds repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AddFeed stores a new feed. An identifier is assigned unless the caller
// supplies one, in which case it must not already exist.
func (r *Repository) AddFeed(ctx context.Context, feed *entities.OPDSFeed) (*entities.OPDSFeed, error) {
	if err := Validate(feed); err != nil {
		return nil, err
	}

	record := entities.OPDSFeed{
		Identifier: strings.TrimSpace(feed.Identifier),
		Title:      strings.TrimSpace(feed.Title),
		URL:        strings.TrimSpace(feed.URL),
	}
	if record.Identifier == "" {
		record.Identifier = uuid.NewString()
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := identifierExists(tx, record.Identifier)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdentifier
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		return claimCredential(ctx, tx, &record)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateIdentifier) {
			return nil, err
		}
		// A concurrent insert of the same identifier loses on the primary key.
		if exists, _ := identifierExists(r.db.WithContext(ctx), record.Identifier); exists {
			return nil, ErrDuplicateIdentifier
		}
		return nil, fmt.Errorf("failed to add feed: %w", err)
	}

	return &record, nil
}

// UpdateFeed replaces the title and URL of an existing feed.
func (r *Repository) UpdateFeed(ctx context.Context, feed *entities.OPDSFeed) (*entities.OPDSFeed, error) {
	if strings.TrimSpace(feed.Identifier) == "" {
		return nil, ErrNotFound
	}
	if err := Validate(feed); err != nil {
		return nil, err
	}

	var stored entities.OPDSFeed
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("identifier = ?", feed.Identifier).First(&stored).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		stored.Title = strings.TrimSpace(feed.Title)
		stored.URL = strings.TrimSpace(feed.URL)
		if err := tx.Save(&stored).Error; err != nil {
			return err
		}
		return claimCredential(ctx, tx, &stored)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update feed: %w", err)
	}

	return &stored, nil
}

// DeleteFeed removes a feed and every credential it owns.
// Deleting an absent identifier fails with ErrNotFound.
func (r *Repository) DeleteFeed(ctx context.Context, identifier string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("identifier = ?", identifier).Delete(&entities.OPDSFeed{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		_, err := credentials.NewRepository(tx).DeleteForFeed(ctx, identifier)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	return nil
}

// GetFeed retrieves a feed by identifier.
func (r *Repository) GetFeed(ctx context.Context, identifier string) (*entities.OPDSFeed, error) {
	var feed entities.OPDSFeed
	err := r.db.WithContext(ctx).Where("identifier = ?", identifier).First(&feed).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return &feed, nil
}

// FindAllFeeds returns every feed in insertion order.
func (r *Repository) FindAllFeeds(ctx context.Context) ([]entities.OPDSFeed, error) {
	feeds := []entities.OPDSFeed{}
	err := r.db.WithContext(ctx).Order("created_at ASC").Order("rowid ASC").Find(&feeds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	return feeds, nil
}

// FindByOrigin returns feeds served from a catalog origin (scheme://host[:port]),
// oldest first. Scheme and host compare case-insensitively.
func (r *Repository) FindByOrigin(ctx context.Context, origin string) ([]entities.OPDSFeed, error) {
	origin = strings.ToLower(origin)
	if origin == "" {
		return nil, nil
	}

	var candidates []entities.OPDSFeed
	err := r.db.WithContext(ctx).
		Where("LOWER(substr(url, 1, ?)) = ?", len(origin), origin).
		Order("created_at ASC").
		Order("rowid ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find feeds: %w", err)
	}

	// The prefix also matches longer hosts such as https://a.example.org.
	feeds := make([]entities.OPDSFeed, 0, len(candidates))
	for _, f := range candidates {
		if httpclient.Origin(f.URL) == origin {
			feeds = append(feeds, f)
		}
	}
	return feeds, nil
}

// Validate checks that a feed definition has a title and an absolute http(s) URL.
func Validate(feed *entities.OPDSFeed) error {
	if feed == nil {
		return fmt.Errorf("%w: feed is required", ErrInvalidFeed)
	}
	if strings.TrimSpace(feed.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidFeed)
	}

	u, err := url.Parse(strings.TrimSpace(feed.URL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidFeed)
	}
	return nil
}

func identifierExists(tx *gorm.DB, identifier string) (bool, error) {
	var count int64
	if err := tx.Model(&entities.OPDSFeed{}).Where("identifier = ?", identifier).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func claimCredential(ctx context.Context, tx *gorm.DB, feed *entities.OPDSFeed) error {
	_, err := credentials.NewRepository(tx).ClaimForFeed(ctx, httpclient.Origin(feed.URL), feed.Identifier)
	return err
}
