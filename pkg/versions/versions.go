// Package versions governs the lifecycle of a song's timed-lyrics
// artifacts: creation as a draft, review submission, approval, rejection
// and reverting to an earlier approved version. Every transition that makes
// a version canonical goes through a single storage transaction, so a song
// never has two canonical versions at once.
package versions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"lyrsync/pkg/align"
	"lyrsync/pkg/storage"
)

var (
	ErrNotDraft    = errors.New("versions: version is not a draft")
	ErrNotPending  = errors.New("versions: version is not pending review")
	ErrNotApproved = errors.New("versions: version is not approved")
)

// CoverageError rejects a submission whose timed-line share is below the
// floor. It names the unmet threshold so the caller can report it.
type CoverageError struct {
	Timed int
	Total int
	Min   float64
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("versions: only %d of %d lines are timed, need at least %.0f%%", e.Timed, e.Total, e.Min*100)
}

type Service struct {
	store *storage.Store

	// MinTimedRatio is the share of lines that must carry a real start
	// timestamp before a submission is accepted.
	MinTimedRatio float64
	// MaxLineDuration flags suspiciously long lines on submission. The
	// warning never blocks, it only informs the reviewer.
	MaxLineDuration time.Duration
}

func New(store *storage.Store) *Service {
	return &Service{
		store:           store,
		MinTimedRatio:   0.7,
		MaxLineDuration: 12 * time.Second,
	}
}

// Create stores a new draft version with the next version number for the
// song. Lines without an ID get one assigned.
func (s *Service) Create(ctx context.Context, songID string, source storage.Source, author string, lines []align.Line, notes string) (*storage.LyricsVersion, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("versions: can't create a version with no lines")
	}
	stored := make(storage.Lines, len(lines))
	copy(stored, lines)
	for i := range stored {
		if stored[i].ID == "" {
			stored[i].ID = ulid.Make().String()
		}
	}
	v := &storage.LyricsVersion{
		ID:     ulid.Make().String(),
		SongID: songID,
		Status: storage.StatusDraft,
		Source: source,
		Lines:  stored,
		Author: author,
		Notes:  notes,
	}
	if err := s.store.CreateVersion(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// SubmitResult reports where a submission landed and any review warnings.
type SubmitResult struct {
	Version  *storage.LyricsVersion
	Warnings []string
}

// Submit moves a draft into review. Privileged authors (the system identity
// and trusted editors) go straight to approved and canonical; everyone else
// lands in pending_review. Submission requires that enough lines carry real
// timestamps, which guards against publishing near-fully-synthetic output.
func (s *Service) Submit(ctx context.Context, id string, privileged bool) (*SubmitResult, error) {
	v, err := s.store.GetVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Status != storage.StatusDraft {
		return nil, ErrNotDraft
	}
	timed := 0
	for _, l := range v.Lines {
		if l.Start > 0 || l.Confidence > 0 {
			timed++
		}
	}
	if float64(timed) < s.MinTimedRatio*float64(len(v.Lines)) {
		return nil, &CoverageError{Timed: timed, Total: len(v.Lines), Min: s.MinTimedRatio}
	}
	warnings := s.warnings(v.Lines)

	if privileged {
		if err := s.store.Canonicalize(ctx, v.ID, v.Author); err != nil {
			return nil, err
		}
	} else {
		v.Status = storage.StatusPendingReview
		if err := s.store.SetVersion(ctx, v); err != nil {
			return nil, err
		}
	}
	v, err = s.store.GetVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Version: v, Warnings: warnings}, nil
}

// Approve accepts a pending version and makes it canonical.
func (s *Service) Approve(ctx context.Context, id, reviewer string) error {
	v, err := s.store.GetVersion(ctx, id)
	if err != nil {
		return err
	}
	if v.Status != storage.StatusPendingReview {
		return ErrNotPending
	}
	return s.store.Canonicalize(ctx, id, reviewer)
}

// Reject marks a pending version rejected. The version is kept for history.
func (s *Service) Reject(ctx context.Context, id, reviewer, notes string) error {
	v, err := s.store.GetVersion(ctx, id)
	if err != nil {
		return err
	}
	if v.Status != storage.StatusPendingReview {
		return ErrNotPending
	}
	now := time.Now()
	v.Status = storage.StatusRejected
	v.Reviewer = reviewer
	v.ReviewedAt = &now
	if notes != "" {
		v.Notes = notes
	}
	return s.store.SetVersion(ctx, v)
}

// Revert re-canonicalizes a previously approved version, superseding
// whatever is canonical now.
func (s *Service) Revert(ctx context.Context, id, reviewer string) error {
	v, err := s.store.GetVersion(ctx, id)
	if err != nil {
		return err
	}
	if v.Status != storage.StatusApproved {
		return ErrNotApproved
	}
	return s.store.Canonicalize(ctx, id, reviewer)
}

func (s *Service) warnings(lines storage.Lines) []string {
	var warnings []string
	maxMS := int(s.MaxLineDuration / time.Millisecond)
	for i, l := range lines {
		if l.End > l.Start && l.End-l.Start > maxMS {
			warnings = append(warnings, fmt.Sprintf("line %d lasts %.1fs", i+1, float64(l.End-l.Start)/1000))
		}
		if i > 0 && lines[i-1].End > 0 && l.Start < lines[i-1].End {
			warnings = append(warnings, fmt.Sprintf("line %d overlaps line %d", i+1, i))
		}
	}
	return warnings
}
