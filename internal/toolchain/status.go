package toolchain

import (
	"sync"

	"github.com/rs/zerolog"
)

// StatusReporter receives best-effort progress hints for the host UI.
type StatusReporter interface {
	SetStatusText(text string)
	SetIndeterminate(on bool)
}

// LogStatus reports status changes to a logger and remembers the last
// values for hosts that poll.
type LogStatus struct {
	logger zerolog.Logger

	mu            sync.Mutex
	text          string
	indeterminate bool
}

// NewLogStatus creates a LogStatus writing to logger.
func NewLogStatus(logger zerolog.Logger) *LogStatus {
	return &LogStatus{logger: logger}
}

// SetStatusText implements StatusReporter.
func (s *LogStatus) SetStatusText(text string) {
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()

	if text == "" {
		s.logger.Debug().Msg("status cleared")
		return
	}
	s.logger.Info().Msg(text)
}

// SetIndeterminate implements StatusReporter.
func (s *LogStatus) SetIndeterminate(on bool) {
	s.mu.Lock()
	s.indeterminate = on
	s.mu.Unlock()
	s.logger.Trace().Bool("indeterminate", on).Msg("progress")
}

// Text returns the current status text.
func (s *LogStatus) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Indeterminate reports whether indeterminate progress is on.
func (s *LogStatus) Indeterminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indeterminate
}

// NopStatus discards status updates.
type NopStatus struct{}

// SetStatusText implements StatusReporter.
func (NopStatus) SetStatusText(string) {}

// SetIndeterminate implements StatusReporter.
func (NopStatus) SetIndeterminate(bool) {}
