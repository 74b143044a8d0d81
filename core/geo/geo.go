package geo

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/model"
)

var ErrNoCoordinates = errors.New("no coordinates")

// Geocoder resolves a free-text address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lon float64, err error)
}

// Marker is a Location entity placed on the map.
type Marker struct {
	EntityID  uuid.UUID `json:"entity_id"`
	Label     string    `json:"label"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Geocoded  bool      `json:"geocoded"`
}

// Manager keeps one marker per Location entity. Addresses are geocoded
// in the background, results of superseded requests are dropped.
type Manager struct {
	mu             sync.RWMutex
	markers        map[uuid.UUID]Marker
	requests       map[uuid.UUID]uint64
	seq            uint64
	geocoder       Geocoder
	geocodeTimeout time.Duration
	log            *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	pending sync.WaitGroup
}

// NewManager creates a map without geocoding. Use WithGeocoder to
// resolve locations that only have an address.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		markers:        make(map[uuid.UUID]Marker),
		requests:       make(map[uuid.UUID]uint64),
		geocodeTimeout: 10 * time.Second,
		log:            logger,
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (m *Manager) WithGeocoder(g Geocoder, timeout time.Duration) *Manager {
	m.geocoder = g
	if timeout > 0 {
		m.geocodeTimeout = timeout
	}
	return m
}

// UpdateLocation places or moves the marker of a Location entity. A
// location without usable coordinates loses its marker. Locations with
// only an address get their marker once geocoding finishes.
func (m *Manager) UpdateLocation(entity *model.Entity) error {
	if entity.Type != model.EntityTypeLocation {
		return nil
	}

	marker := Marker{EntityID: entity.ID, Label: entity.Label}
	lat, lon, ok := entity.Coordinates()

	m.mu.Lock()
	defer m.mu.Unlock()

	request := m.nextRequestLocked(entity.ID)
	if ok {
		marker.Latitude, marker.Longitude = lat, lon
		m.markers[entity.ID] = marker
		return nil
	}

	delete(m.markers, entity.ID)
	address := geocodeAddress(entity)
	if m.geocoder == nil || address == "" {
		m.log.Debug("Location has no coordinates", slog.String("entity_id", entity.ID.String()))
		return nil
	}

	m.pending.Add(1)
	go m.geocode(marker, address, request)

	return nil
}

func (m *Manager) RemoveLocation(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextRequestLocked(id)
	delete(m.markers, id)
	return nil
}

func (m *Manager) nextRequestLocked(id uuid.UUID) uint64 {
	m.seq++
	m.requests[id] = m.seq
	return m.seq
}

func (m *Manager) geocode(marker Marker, address string, request uint64) {
	defer m.pending.Done()

	ctx, cancel := context.WithTimeout(m.ctx, m.geocodeTimeout)
	defer cancel()

	lat, lon, err := m.geocoder.Geocode(ctx, address)
	if err != nil {
		m.log.Debug("Geocoding failed", slog.String("entity_id", marker.EntityID.String()), slog.String("error", err.Error()))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.requests[marker.EntityID] != request {
		return
	}
	marker.Latitude, marker.Longitude, marker.Geocoded = lat, lon, true
	m.markers[marker.EntityID] = marker
}

func geocodeAddress(entity *model.Entity) string {
	var parts []string
	for _, name := range []string{"address", "city", "state", "postal_code", "country"} {
		if v := strings.TrimSpace(entity.String(name)); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// Wait blocks until all running geocode requests are done.
func (m *Manager) Wait() {
	m.pending.Wait()
}

// Close cancels running geocode requests and waits for them.
func (m *Manager) Close() {
	m.cancel()
	m.pending.Wait()
}

// Marker returns the marker of an entity.
func (m *Manager) Marker(id uuid.UUID) (Marker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	marker, ok := m.markers[id]
	return marker, ok
}

// Markers returns all markers ordered by label.
func (m *Manager) Markers() []Marker {
	m.mu.RLock()
	markers := make([]Marker, 0, len(m.markers))
	for _, marker := range m.markers {
		markers = append(markers, marker)
	}
	m.mu.RUnlock()

	slices.SortFunc(markers, func(a, b Marker) int {
		if c := strings.Compare(a.Label, b.Label); c != 0 {
			return c
		}
		return strings.Compare(a.EntityID.String(), b.EntityID.String())
	})
	return markers
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.markers = make(map[uuid.UUID]Marker)
	m.requests = make(map[uuid.UUID]uint64)
}
