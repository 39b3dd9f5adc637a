package storage

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"lyrsync/pkg/align"
)

// Status is the review state of a lyrics version.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
)

// Source records how a lyrics version was produced.
type Source string

const (
	SourceManual        Source = "manual"
	SourceAutoGenerated Source = "auto_generated"
	SourceImportedLRC   Source = "imported_lrc"
	SourceImportedAPI   Source = "imported_api"
)

// Lines stores a timed line sequence as a JSON column.
type Lines []align.Line

func (l Lines) Value() (driver.Value, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to marshal lines: %w", err)
	}
	return string(b), nil
}

func (l *Lines) Scan(v interface{}) error {
	var b []byte
	switch t := v.(type) {
	case []byte:
		b = t
	case string:
		b = []byte(t)
	case nil:
		*l = nil
		return nil
	default:
		return fmt.Errorf("storage: unsupported lines column type %T", v)
	}
	if len(b) == 0 {
		*l = nil
		return nil
	}
	if err := json.Unmarshal(b, l); err != nil {
		return fmt.Errorf("storage: failed to unmarshal lines: %w", err)
	}
	return nil
}

type LyricsVersion struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	SongID        string `gorm:"index;not null"`
	VersionNumber int    `gorm:"not null;default:0"`
	Status        Status `gorm:"index;not null;default:'draft'"`
	IsCanonical   bool   `gorm:"index;not null;default:false"`
	Source        Source `gorm:"not null;default:''"`
	Lines         Lines  `gorm:"type:text"`

	Author     string `gorm:"not null;default:''"`
	Reviewer   string `gorm:"not null;default:''"`
	ReviewedAt *time.Time
	Notes      string `gorm:"not null;default:''"`
}

func (s *Store) GetVersion(ctx context.Context, id string) (*LyricsVersion, error) {
	var v LyricsVersion
	if err := s.db.First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get LyricsVersion %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) SetVersion(ctx context.Context, v *LyricsVersion) error {
	if err := s.db.Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set LyricsVersion %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) ListVersions(ctx context.Context, songID string) ([]*LyricsVersion, error) {
	vs := []*LyricsVersion{}
	if err := s.db.Where("song_id = ?", songID).Order("version_number").Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list LyricsVersions for %s: %w", songID, err)
	}
	return vs, nil
}

// CanonicalVersion returns the version currently served for a song, or
// ErrNotFound when the song has none.
func (s *Store) CanonicalVersion(ctx context.Context, songID string) (*LyricsVersion, error) {
	var v LyricsVersion
	if err := s.db.First(&v, "song_id = ? AND is_canonical", songID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get canonical version for %s: %w", songID, err)
	}
	return &v, nil
}

// CreateVersion inserts a new version, assigning the next sequential
// version number for the song inside a single transaction.
func (s *Store) CreateVersion(ctx context.Context, v *LyricsVersion) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var max int
		row := tx.Model(&LyricsVersion{}).
			Where("song_id = ?", v.SongID).
			Select("COALESCE(MAX(version_number), 0)").
			Row()
		if err := row.Scan(&max); err != nil {
			return err
		}
		v.VersionNumber = max + 1
		return tx.Create(v).Error
	})
	if err != nil {
		return fmt.Errorf("storage: failed to create LyricsVersion for %s: %w", v.SongID, err)
	}
	return nil
}

// Canonicalize marks a version approved and canonical, clearing any prior
// canonical version of the same song. The clear and the set are one
// transaction, so no reader ever observes zero or two canonical versions.
func (s *Store) Canonicalize(ctx context.Context, id, reviewer string) error {
	now := time.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var v LyricsVersion
		if err := tx.First(&v, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Model(&LyricsVersion{}).
			Where("song_id = ? AND is_canonical", v.SongID).
			Updates(map[string]interface{}{"is_canonical": false}).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{
			"status":       StatusApproved,
			"is_canonical": true,
		}
		if reviewer != "" {
			updates["reviewer"] = reviewer
			updates["reviewed_at"] = &now
		}
		return tx.Model(&v).Updates(updates).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("storage: failed to canonicalize LyricsVersion %s: %w", id, err)
	}
	return nil
}
