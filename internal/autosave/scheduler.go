// Package autosave debounces editor content changes into store writes.
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/lemesvini/codeLog/internal/logging"
	"github.com/lemesvini/codeLog/internal/metrics"
)

// DefaultDelay is the quiet period before an edit is persisted.
const DefaultDelay = 5 * time.Second

// SaveFunc persists content for a file, stamped with the save time.
type SaveFunc func(ctx context.Context, fileID, content string, at time.Time) error

// Options configures a Scheduler. Zero values pick defaults.
type Options struct {
	Delay   time.Duration
	Timeout time.Duration // per-save deadline
	Clock   clockwork.Clock
	OnSaved func(fileID, content string)
	OnError func(fileID string, err error)
}

type pendingSave struct {
	fileID  string
	content string
}

// Scheduler watches (file, content) pairs and writes the latest content
// once no change has been seen for Delay. Switching files drops whatever
// was pending for the previous one.
type Scheduler struct {
	save    SaveFunc
	clock   clockwork.Clock
	delay   time.Duration
	timeout time.Duration
	onSaved func(string, string)
	onError func(string, error)

	mu       sync.Mutex
	fileID   string
	baseline string
	current  string // latest content observed for fileID
	pending  *pendingSave
	timer    clockwork.Timer
	gen      uint64
	stopped  bool
}

// New creates a Scheduler that persists through save.
func New(save SaveFunc, opts Options) *Scheduler {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		save:    save,
		clock:   opts.Clock,
		delay:   opts.Delay,
		timeout: opts.Timeout,
		onSaved: opts.OnSaved,
		onError: opts.OnError,
	}
}

// Reset records a new selection and its already-saved content. Any pending
// save is cancelled. An empty fileID means nothing is selected.
func (s *Scheduler) Reset(fileID, baseline string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.fileID = fileID
	s.baseline = baseline
	s.current = baseline
}

// Observe reports the editor's current content for fileID. Content for
// any file other than the one passed to the last Reset only cancels the
// pending save; it is never written.
func (s *Scheduler) Observe(fileID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.cancelLocked()
	if fileID == "" || fileID != s.fileID {
		return
	}
	s.current = content
	if content != s.baseline {
		s.armLocked()
	}
}

func (s *Scheduler) armLocked() {
	s.pending = &pendingSave{fileID: s.fileID, content: s.current}
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.delay, func() { go s.fire(gen) })
}

// Pending reports whether a save is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Baseline returns the selected file and its last saved content.
func (s *Scheduler) Baseline() (fileID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileID, s.baseline
}

// Flush persists the pending content immediately, if any.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	p := s.pending
	s.cancelLocked()
	s.mu.Unlock()

	if p == nil {
		return nil
	}
	return s.persist(ctx, *p)
}

// Stop cancels the pending save. Later observations are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.stopped = true
}

// cancelLocked drops the pending save and invalidates any timer callback
// that is already running.
func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.gen++
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.pending == nil {
		s.mu.Unlock()
		return
	}
	p := *s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.persist(ctx, p)
}

func (s *Scheduler) persist(ctx context.Context, p pendingSave) error {
	err := s.save(ctx, p.fileID, p.content, s.clock.Now())
	metrics.RecordAutosave(err == nil)
	if err != nil {
		logging.Error("autosave failed", zap.String("file_id", p.fileID), zap.Error(err))
		if s.onError != nil {
			s.onError(p.fileID, err)
		}
		return err
	}

	s.mu.Lock()
	if s.fileID == p.fileID {
		s.baseline = p.content
		// An edit seen while the save was in flight may have matched the
		// old baseline and armed nothing.
		if !s.stopped && s.pending == nil && s.current != s.baseline {
			s.armLocked()
		}
	}
	s.mu.Unlock()

	logging.Debug("autosaved", zap.String("file_id", p.fileID), zap.Int("bytes", len(p.content)))
	if s.onSaved != nil {
		s.onSaved(p.fileID, p.content)
	}
	return nil
}
