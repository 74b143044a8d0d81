package status

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Reporter receives progress of long running operations.
type Reporter interface {
	StartLoading(operation string) string
	SetText(text string)
	StopLoading(id string)
}

// LogReporter writes progress to a logger and tracks running operations.
type LogReporter struct {
	mu      sync.Mutex
	running map[string]string
	log     *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{
		running: make(map[string]string),
		log:     logger,
	}
}

func (r *LogReporter) StartLoading(operation string) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.running[id] = operation
	r.mu.Unlock()

	r.log.Info("Started", slog.String("operation", operation), slog.String("id", id))
	return id
}

func (r *LogReporter) SetText(text string) {
	r.log.Info(text)
}

// StopLoading ends an operation. Unknown ids are ignored.
func (r *LogReporter) StopLoading(id string) {
	r.mu.Lock()
	operation, ok := r.running[id]
	delete(r.running, id)
	r.mu.Unlock()

	if ok {
		r.log.Info("Finished", slog.String("operation", operation), slog.String("id", id))
	}
}

// Running returns the operations that have not been stopped yet.
func (r *LogReporter) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	operations := make([]string, 0, len(r.running))
	for _, op := range r.running {
		operations = append(operations, op)
	}
	return operations
}

// Nop discards all progress.
type Nop struct{}

func (Nop) StartLoading(string) string { return "" }
func (Nop) SetText(string)             {}
func (Nop) StopLoading(string)         {}
