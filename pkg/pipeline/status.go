package pipeline

import (
	"sync"
	"time"
)

// Status is a point-in-time snapshot of the current or most recent run,
// safe to serialize and poll from an admin surface.
type Status struct {
	Running    bool          `json:"running"`
	Reason     string        `json:"reason,omitempty"`
	Mode       Mode          `json:"mode,omitempty"`
	Stage      Stage         `json:"stage,omitempty"`
	StartedAt  time.Time     `json:"started_at,omitempty"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Error      string        `json:"error,omitempty"`
	Stages     []StageStatus `json:"stages,omitempty"`
}

// StageStatus reports one stage's progress counters and a bounded sample of
// recent errors.
type StageStatus struct {
	Stage      Stage    `json:"stage"`
	Skipped    bool     `json:"skipped,omitempty"`
	SkipReason string   `json:"skip_reason,omitempty"`
	Candidates int      `json:"candidates"`
	Succeeded  int      `json:"succeeded"`
	Failed     int      `json:"failed"`
	Misses     int      `json:"misses"`
	Errors     []string `json:"errors,omitempty"`
}

type runState struct {
	reason     string
	mode       Mode
	startedAt  time.Time
	finishedAt time.Time
	err        string
	stage      Stage
	stages     []*stageStatus
	maxErrors  int
}

func newStatus(reason string, mode Mode, maxErrors int) *runState {
	return &runState{
		reason:    reason,
		mode:      mode,
		startedAt: time.Now(),
		maxErrors: maxErrors,
	}
}

func (s *runState) finish(err error) {
	s.finishedAt = time.Now()
	if err != nil {
		s.err = err.Error()
	}
}

// stage registers a new stage on the current run and marks it current.
func (r *Runner) stage(name Stage) *stageStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := &stageStatus{maxErrors: r.status.maxErrors}
	st.s.Stage = name
	r.status.stage = name
	r.status.stages = append(r.status.stages, st)
	return st
}

// Status returns a snapshot of the current or last run. Counters are
// updated live by workers, so consecutive snapshots are monotonic.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == nil {
		return Status{}
	}
	out := Status{
		Running:    r.active,
		Reason:     r.status.reason,
		Mode:       r.status.mode,
		Stage:      r.status.stage,
		StartedAt:  r.status.startedAt,
		FinishedAt: r.status.finishedAt,
		Error:      r.status.err,
	}
	for _, st := range r.status.stages {
		out.Stages = append(out.Stages, st.snapshot())
	}
	return out
}

// stageStatus holds one stage's live counters. Workers update it
// concurrently, so every mutation takes the lock.
type stageStatus struct {
	mu        sync.Mutex
	s         StageStatus
	maxErrors int
}

func (st *stageStatus) begin(candidates int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Candidates = candidates
}

func (st *stageStatus) skipStage(reason string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Skipped = true
	st.s.SkipReason = reason
}

func (st *stageStatus) success() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Succeeded++
}

// miss counts a valid empty outcome: nothing found, or nothing publishable.
func (st *stageStatus) miss() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Misses++
}

func (st *stageStatus) fail(msg string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Failed++
	st.s.Errors = append(st.s.Errors, msg)
	if len(st.s.Errors) > st.maxErrors {
		st.s.Errors = st.s.Errors[len(st.s.Errors)-st.maxErrors:]
	}
}

func (st *stageStatus) snapshot() StageStatus {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := st.s
	out.Errors = append([]string(nil), st.s.Errors...)
	return out
}
