package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Category classifies how reliably a song's audio is attributable. Only
// some categories are eligible for automated lyric timing.
type Category string

const (
	CategoryReleased   Category = "released"
	CategoryUnreleased Category = "unreleased"
	CategoryUnsurfaced Category = "unsurfaced"
	CategorySession    Category = "session"
)

// EligibleCategories are the categories automated retrieval and timing run
// against. Session material is excluded: its audio attribution is too
// unreliable to feed a transcription provider.
var EligibleCategories = []Category{
	CategoryReleased,
	CategoryUnreleased,
	CategoryUnsurfaced,
}

type Song struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ExternalID string   `gorm:"index;not null;default:''"`
	Name       string   `gorm:"not null;default:''"`
	FilePath   string   `gorm:"not null;default:''"`
	Category   Category `gorm:"index;not null;default:''"`
	Available  bool     `gorm:"not null;default:true"`

	// RawLyrics is the untimed lyric text; empty means not yet retrieved.
	RawLyrics string `gorm:"not null;default:''"`
	// LyricsSource records where RawLyrics came from.
	LyricsSource string `gorm:"not null;default:''"`
}

func (s *Store) GetSong(ctx context.Context, id string) (*Song, error) {
	var v Song
	if err := s.db.First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get Song %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) SetSong(ctx context.Context, v *Song) error {
	if err := s.db.Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set Song %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) ListSongs(ctx context.Context, page, size int, orderBy string, filter ...Filter) ([]*Song, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size
	vs := []*Song{}

	q := s.db.Offset(offset).Limit(size)
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	if orderBy != "" {
		q = q.Order(orderBy)
	}
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list Songs: %w", err)
	}
	return vs, nil
}

// RetrievalCandidates returns songs still missing raw lyrics that have audio
// and an eligible category.
func (s *Store) RetrievalCandidates(ctx context.Context, categories []Category) ([]*Song, error) {
	if len(categories) == 0 {
		categories = EligibleCategories
	}
	vs := []*Song{}
	q := s.db.
		Where("raw_lyrics = ?", "").
		Where("file_path != ?", "").
		Where("category IN ?", categories).
		Order("id")
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list retrieval candidates: %w", err)
	}
	return vs, nil
}

// AlignmentCandidates returns songs ready for timing generation: available,
// eligible, with audio and enough lyric text. Unless force is set, songs
// that already have a canonical version are excluded; with force, songs
// whose canonical version was auto generated are re-timed, but human-curated
// canonicals are always left alone.
func (s *Store) AlignmentCandidates(ctx context.Context, categories []Category, minLyrics int, force bool) ([]*Song, error) {
	if len(categories) == 0 {
		categories = EligibleCategories
	}
	vs := []*Song{}
	q := s.db.
		Where("file_path != ?", "").
		Where("length(raw_lyrics) >= ?", minLyrics).
		Where("available = ?", true).
		Where("category IN ?", categories).
		Order("id")
	if force {
		q = q.Where(
			"NOT EXISTS (SELECT 1 FROM lyrics_versions lv WHERE lv.song_id = songs.id AND lv.is_canonical AND lv.source != ?)",
			SourceAutoGenerated,
		)
	} else {
		q = q.Where("NOT EXISTS (SELECT 1 FROM lyrics_versions lv WHERE lv.song_id = songs.id AND lv.is_canonical)")
	}
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list alignment candidates: %w", err)
	}
	return vs, nil
}
