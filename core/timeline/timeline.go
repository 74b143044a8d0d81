package timeline

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/helper"
	"github.com/siherrmann/pano/model"
)

var ErrInvalidSpan = errors.New("event ends before it starts")

// Manager keeps the events shown on the timeline. Events synced from Event
// entities are keyed by their source entity id.
type Manager struct {
	mu     sync.RWMutex
	events []model.TimelineEvent
	log    *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{log: logger}
}

// AddEvent adds a manual event.
func (m *Manager) AddEvent(event model.TimelineEvent) error {
	if event.EndTime.Before(event.StartTime) {
		return helper.NewError("add event "+event.Title, ErrInvalidSpan)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)
	return nil
}

// SyncEvent replaces the events of an Event entity. Entities without a
// complete span or with the timeline flag unset lose their events.
func (m *Manager) SyncEvent(entity *model.Entity) error {
	event, ok := model.TimelineEventFromEntity(entity)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(entity.ID)
	if !ok {
		return nil
	}
	if event.EndTime.Before(event.StartTime) {
		return helper.NewError("sync event "+entity.ID.String(), ErrInvalidSpan)
	}
	m.events = append(m.events, event)

	m.log.Debug("Synced timeline event", slog.String("entity_id", entity.ID.String()), slog.String("title", event.Title))
	return nil
}

// RemoveEventsForEntity removes every event created from the entity.
func (m *Manager) RemoveEventsForEntity(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(id)
	return nil
}

func (m *Manager) removeLocked(id uuid.UUID) {
	m.events = slices.DeleteFunc(m.events, func(e model.TimelineEvent) bool {
		return e.SourceEntityID != nil && *e.SourceEntityID == id
	})
}

// Events returns the events ordered by start time.
func (m *Manager) Events() []model.TimelineEvent {
	m.mu.RLock()
	events := slices.Clone(m.events)
	m.mu.RUnlock()

	slices.SortStableFunc(events, func(a, b model.TimelineEvent) int {
		return a.StartTime.Compare(b.StartTime)
	})
	return events
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = nil
}

// Serialize returns the events in insertion order for saving.
func (m *Manager) Serialize() []model.TimelineEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.events)
}

// Deserialize replaces all events. Events that end before they start are
// skipped.
func (m *Manager) Deserialize(events []model.TimelineEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = make([]model.TimelineEvent, 0, len(events))
	for _, e := range events {
		if e.EndTime.Before(e.StartTime) {
			m.log.Warn("Skipping timeline event with invalid span", slog.String("title", e.Title))
			continue
		}
		m.events = append(m.events, e)
	}
}
