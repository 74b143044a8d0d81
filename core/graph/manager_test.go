package graph

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMap struct {
	mu      sync.Mutex
	updated []uuid.UUID
	removed []uuid.UUID
	err     error
}

func (r *recordingMap) UpdateLocation(entity *model.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, entity.ID)
	return r.err
}

func (r *recordingMap) RemoveLocation(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
	return r.err
}

type recordingTimeline struct {
	synced  []uuid.UUID
	removed []uuid.UUID
	panics  bool
}

func (r *recordingTimeline) SyncEvent(entity *model.Entity) error {
	if r.panics {
		panic("timeline broken")
	}
	r.synced = append(r.synced, entity.ID)
	return nil
}

func (r *recordingTimeline) RemoveEventsForEntity(id uuid.UUID) error {
	r.removed = append(r.removed, id)
	return nil
}

func person(t *testing.T, name string) *model.Entity {
	t.Helper()
	e, err := model.NewEntity(model.EntityTypePerson, map[string]any{"full_name": name})
	require.NoError(t, err, "Expected person to be created")
	return e
}

func TestAddNode(t *testing.T) {
	t.Run("Add node stores a copy at the given position", func(t *testing.T) {
		m := NewManager()
		e := person(t, "Alice")

		node := m.AddNode(e, model.Position{X: 10, Y: 20})
		require.NotNil(t, node, "Expected node to be returned")
		assert.Equal(t, e.ID, node.ID(), "Expected node id to match entity id")
		assert.Equal(t, model.Position{X: 10, Y: 20}, node.Position, "Expected position to be kept")

		e.Label = "changed"
		stored, ok := m.Node(e.ID)
		require.True(t, ok, "Expected node to be found")
		assert.Equal(t, "Alice", stored.Entity.Label, "Expected caller mutation not to leak into the graph")
	})

	t.Run("Add node twice keeps exactly one node", func(t *testing.T) {
		m := NewManager()
		e := person(t, "Alice")

		first := m.AddNode(e, model.Position{})
		second := m.AddNode(e, model.Position{X: 99})
		assert.Same(t, first, second, "Expected the existing node to be returned")

		nodes, _ := m.Len()
		assert.Equal(t, 1, nodes, "Expected one node")
	})

	t.Run("Add location notifies the map", func(t *testing.T) {
		mapView := &recordingMap{}
		m := NewManager(WithMapNotifier(mapView))
		loc := model.MustNewEntity(model.EntityTypeLocation, map[string]any{"name": "Berlin", "latitude": "52.52", "longitude": "13.405"})

		m.AddNode(loc, model.Position{})
		assert.Equal(t, []uuid.UUID{loc.ID}, mapView.updated, "Expected map to be notified")
	})

	t.Run("Failing notifier does not abort the mutation", func(t *testing.T) {
		mapView := &recordingMap{err: errors.New("map offline")}
		timeline := &recordingTimeline{panics: true}
		m := NewManager(WithMapNotifier(mapView), WithTimelineNotifier(timeline))

		loc := model.MustNewEntity(model.EntityTypeLocation, map[string]any{"name": "Berlin"})
		event := model.MustNewEntity(model.EntityTypeEvent, map[string]any{"name": "Meeting"})
		assert.NotPanics(t, func() {
			m.AddNode(loc, model.Position{})
			m.AddNode(event, model.Position{})
		}, "Expected notifier failures to be contained")

		nodes, _ := m.Len()
		assert.Equal(t, 2, nodes, "Expected both nodes to be added")
	})
}

func TestAddEdge(t *testing.T) {
	m := NewManager()
	a := m.AddNode(person(t, "A"), model.Position{})
	b := m.AddNode(person(t, "B"), model.Position{})

	t.Run("Add edge between existing nodes", func(t *testing.T) {
		edge := m.AddEdge(a.ID(), b.ID(), "knows")
		require.NotNil(t, edge, "Expected edge to be created")
		assert.Equal(t, "knows", edge.Relationship, "Expected relationship to be set")
		assert.Equal(t, model.EdgeID(a.ID(), b.ID()), edge.ID, "Expected edge id to be derived from endpoints")
	})

	t.Run("Add edge twice returns the first edge", func(t *testing.T) {
		first, _ := m.Edge(a.ID(), b.ID())
		again := m.AddEdge(a.ID(), b.ID(), "works_with")
		assert.Same(t, first, again, "Expected the existing edge")
		assert.Equal(t, "knows", again.Relationship, "Expected first write to win")

		_, edges := m.Len()
		assert.Equal(t, 1, edges, "Expected one edge")
	})

	t.Run("Add edge with missing endpoint returns nil", func(t *testing.T) {
		edge := m.AddEdge(a.ID(), uuid.New(), "knows")
		assert.Nil(t, edge, "Expected no edge for missing target")

		_, edges := m.Len()
		assert.Equal(t, 1, edges, "Expected edge count unchanged")
	})

	t.Run("Reverse direction is a separate edge", func(t *testing.T) {
		edge := m.AddEdge(b.ID(), a.ID(), "knows")
		require.NotNil(t, edge, "Expected reverse edge to be created")

		_, edges := m.Len()
		assert.Equal(t, 2, edges, "Expected two edges")
	})
}

func TestRemoveNode(t *testing.T) {
	t.Run("Remove node cascades to edges", func(t *testing.T) {
		m := NewManager()
		a := m.AddNode(person(t, "A"), model.Position{})
		b := m.AddNode(person(t, "B"), model.Position{})
		c := m.AddNode(person(t, "C"), model.Position{})
		m.AddEdge(a.ID(), b.ID(), "knows")
		m.AddEdge(c.ID(), a.ID(), "knows")
		m.AddEdge(b.ID(), c.ID(), "knows")

		m.RemoveNode(a.ID())

		_, ok := m.Node(a.ID())
		assert.False(t, ok, "Expected node to be removed")
		edges := m.Edges()
		require.Len(t, edges, 1, "Expected only the unrelated edge to remain")
		assert.Equal(t, b.ID(), edges[0].SourceID, "Expected b->c to remain")
	})

	t.Run("Remove missing node is a no-op", func(t *testing.T) {
		m := NewManager()
		m.AddNode(person(t, "A"), model.Position{})

		m.RemoveNode(uuid.New())
		nodes, _ := m.Len()
		assert.Equal(t, 1, nodes, "Expected node count unchanged")
	})

	t.Run("Remove location and event notifies collaborators", func(t *testing.T) {
		mapView := &recordingMap{}
		timeline := &recordingTimeline{}
		m := NewManager(WithMapNotifier(mapView), WithTimelineNotifier(timeline))

		loc := m.AddNode(model.MustNewEntity(model.EntityTypeLocation, map[string]any{"name": "Paris"}), model.Position{})
		event := m.AddNode(model.MustNewEntity(model.EntityTypeEvent, map[string]any{"name": "Launch"}), model.Position{})

		m.RemoveNode(loc.ID())
		m.RemoveNode(event.ID())

		assert.Equal(t, []uuid.UUID{loc.ID()}, mapView.removed, "Expected location removal to reach the map")
		assert.Equal(t, []uuid.UUID{event.ID()}, timeline.removed, "Expected event removal to reach the timeline")
	})
}

func TestClear(t *testing.T) {
	mapView := &recordingMap{}
	m := NewManager(WithMapNotifier(mapView))
	a := m.AddNode(person(t, "A"), model.Position{})
	loc := m.AddNode(model.MustNewEntity(model.EntityTypeLocation, map[string]any{"name": "Rome"}), model.Position{})
	m.AddEdge(a.ID(), loc.ID(), "lives_in")
	m.CreateGroup("All", []uuid.UUID{a.ID(), loc.ID()}, "")

	m.Clear()

	nodes, edges := m.Len()
	assert.Equal(t, 0, nodes, "Expected no nodes")
	assert.Equal(t, 0, edges, "Expected no edges")
	assert.Empty(t, m.Groups(), "Expected no groups")
	assert.Equal(t, []uuid.UUID{loc.ID()}, mapView.removed, "Expected map marker to be removed")
}

func TestUpdateNode(t *testing.T) {
	t.Run("Update node refreshes label and version", func(t *testing.T) {
		m := NewManager()
		node := m.AddNode(person(t, "Alice"), model.Position{X: 5})

		updated, err := m.UpdateNode(node.ID(), func(e *model.Entity) error {
			return e.Set("full_name", "Alice Smith")
		})
		require.NoError(t, err, "Expected update to succeed")
		assert.Equal(t, "Alice Smith", updated.Entity.Label, "Expected label to be refreshed")
		assert.Equal(t, uint64(1), updated.Version, "Expected version to increase")
		assert.Equal(t, model.Position{X: 5}, updated.Position, "Expected position to be kept")
		assert.Equal(t, "Alice", node.Entity.Label, "Expected earlier snapshot to stay unchanged")
	})

	t.Run("Failed update keeps prior value", func(t *testing.T) {
		m := NewManager()
		node := m.AddNode(person(t, "Alice"), model.Position{})

		_, err := m.UpdateNode(node.ID(), func(e *model.Entity) error {
			return e.Set("age", "not a number")
		})
		require.Error(t, err, "Expected validation error")

		var validationErr *model.PropertyValidationError
		assert.ErrorAs(t, err, &validationErr, "Expected a property validation error")

		stored, _ := m.Node(node.ID())
		_, ok := stored.Entity.Get("age")
		assert.False(t, ok, "Expected age to stay unset")
	})

	t.Run("Update missing node returns ErrNodeNotFound", func(t *testing.T) {
		m := NewManager()
		_, err := m.UpdateNode(uuid.New(), func(e *model.Entity) error { return nil })
		assert.ErrorIs(t, err, ErrNodeNotFound, "Expected ErrNodeNotFound")
	})

	t.Run("Updating event span resyncs the timeline", func(t *testing.T) {
		timeline := &recordingTimeline{}
		m := NewManager(WithTimelineNotifier(timeline))
		node := m.AddNode(model.MustNewEntity(model.EntityTypeEvent, map[string]any{"name": "Launch"}), model.Position{})

		_, err := m.UpdateNode(node.ID(), func(e *model.Entity) error {
			return e.SetAll(map[string]any{
				"start_date":      time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
				"end_date":        time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
				"add_to_timeline": true,
			})
		})
		require.NoError(t, err, "Expected update to succeed")
		assert.Equal(t, []uuid.UUID{node.ID(), node.ID()}, timeline.synced, "Expected add and update to sync")
	})

	t.Run("Concurrent updates are serialised", func(t *testing.T) {
		m := NewManager()
		node := m.AddNode(person(t, "Alice"), model.Position{})

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = m.UpdateNode(node.ID(), func(e *model.Entity) error {
					return e.Set("age", i)
				})
			}()
		}
		wg.Wait()

		stored, _ := m.Node(node.ID())
		assert.Equal(t, uint64(20), stored.Version, "Expected every update to be applied")
	})
}

func TestMoveNodeAndUpdateEdge(t *testing.T) {
	m := NewManager()
	a := m.AddNode(person(t, "A"), model.Position{})
	b := m.AddNode(person(t, "B"), model.Position{})
	m.AddEdge(a.ID(), b.ID(), "knows")

	t.Run("Move node", func(t *testing.T) {
		require.NoError(t, m.MoveNode(a.ID(), model.Position{X: 1, Y: 2}), "Expected move to succeed")
		node, _ := m.Node(a.ID())
		assert.Equal(t, model.Position{X: 1, Y: 2}, node.Position, "Expected new position")
		assert.ErrorIs(t, m.MoveNode(uuid.New(), model.Position{}), ErrNodeNotFound, "Expected ErrNodeNotFound")
	})

	t.Run("Update edge style", func(t *testing.T) {
		edge, err := m.UpdateEdge(a.ID(), b.ID(), func(e *model.Edge) error {
			e.Style.LineStyle = model.LineDash
			e.Label = "since 2019"
			return nil
		})
		require.NoError(t, err, "Expected update to succeed")
		assert.Equal(t, model.LineDash, edge.Style.LineStyle, "Expected dashed line")
		assert.Equal(t, "since 2019", edge.Label, "Expected label")
	})

	t.Run("Invalid edge style is rejected", func(t *testing.T) {
		_, err := m.UpdateEdge(a.ID(), b.ID(), func(e *model.Edge) error {
			e.Style.Width = -1
			return nil
		})
		assert.Error(t, err, "Expected invalid width to fail")

		edge, _ := m.Edge(a.ID(), b.ID())
		assert.Equal(t, model.LineDash, edge.Style.LineStyle, "Expected previous style to be kept")
	})

	t.Run("Remove edge", func(t *testing.T) {
		require.NoError(t, m.RemoveEdge(a.ID(), b.ID()), "Expected removal to succeed")
		assert.ErrorIs(t, m.RemoveEdge(a.ID(), b.ID()), ErrEdgeNotFound, "Expected second removal to fail")
		assert.Empty(t, m.EdgesOf(a.ID()), "Expected no edges left")
	})
}

func TestSnapshotRestore(t *testing.T) {
	source := NewManager()
	alice := source.AddNode(person(t, "Alice"), model.Position{X: 1, Y: 2})
	email := source.AddNode(model.MustNewEntity(model.EntityTypeEmail, map[string]any{"address": "alice@example.com"}), model.Position{X: 3, Y: 4})
	source.AddEdge(alice.ID(), email.ID(), "has_email")
	source.CreateGroup("Alice", []uuid.UUID{alice.ID(), email.ID()}, "#ff0000")

	t.Run("Restore reproduces the graph", func(t *testing.T) {
		target := NewManager()
		require.NoError(t, target.Restore(source.Snapshot()), "Expected restore to succeed")

		nodes, edges := target.Len()
		assert.Equal(t, 2, nodes, "Expected two nodes")
		assert.Equal(t, 1, edges, "Expected one edge")

		restored, ok := target.Node(email.ID())
		require.True(t, ok, "Expected email node to keep its id")
		assert.Equal(t, "example.com", restored.Entity.String("domain"), "Expected derived property to survive")
		assert.Equal(t, model.Position{X: 3, Y: 4}, restored.Position, "Expected position to survive")

		groups := target.Groups()
		require.Len(t, groups, 1, "Expected group to survive")
		assert.ElementsMatch(t, []uuid.UUID{alice.ID(), email.ID()}, groups[0].NodeIDs, "Expected group members")
	})

	t.Run("Dict round trip through JSON", func(t *testing.T) {
		data, err := source.ToDict()
		require.NoError(t, err, "Expected to dict to succeed")

		b, err := json.Marshal(data)
		require.NoError(t, err, "Expected dict to be JSON encodable")
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(b, &decoded), "Expected dict to decode")

		target := NewManager()
		require.NoError(t, target.FromDict(decoded), "Expected from dict to succeed")
		edge, ok := target.Edge(alice.ID(), email.ID())
		require.True(t, ok, "Expected edge to survive")
		assert.Equal(t, "has_email", edge.Relationship, "Expected relationship")
	})

	t.Run("Undecodable document leaves graph untouched", func(t *testing.T) {
		target := NewManager()
		existing := target.AddNode(person(t, "Bob"), model.Position{})

		err := target.Restore(&model.Investigation{Nodes: []model.NodeRecord{{
			ID:         uuid.New(),
			EntityType: "Spaceship",
			Properties: map[string]any{},
		}}})
		assert.Error(t, err, "Expected unknown entity type to fail")

		_, ok := target.Node(existing.ID())
		assert.True(t, ok, "Expected existing node to remain")
	})

	t.Run("Edges with missing endpoints are skipped", func(t *testing.T) {
		inv := source.Snapshot()
		inv.Edges = append(inv.Edges, model.EdgeRecord{Source: alice.ID(), Target: uuid.New(), Relationship: "ghost", Style: model.DefaultEdgeStyle()})

		target := NewManager()
		require.NoError(t, target.Restore(inv), "Expected restore to succeed")
		_, edges := target.Len()
		assert.Equal(t, 1, edges, "Expected dangling edge to be skipped")
	})
}

func TestNeighborsAndStyle(t *testing.T) {
	m := NewManager()
	a := m.AddNode(person(t, "A"), model.Position{})
	b := m.AddNode(person(t, "B"), model.Position{})
	c := m.AddNode(person(t, "C"), model.Position{})
	m.AddEdge(a.ID(), b.ID(), "knows")
	m.AddEdge(b.ID(), a.ID(), "knows")
	m.AddEdge(c.ID(), a.ID(), "knows")

	assert.Equal(t, []uuid.UUID{b.ID(), c.ID()}, m.Neighbors(a.ID()), "Expected unique neighbors in edge order")

	style := model.EdgeStyle{LineStyle: model.LineDot, Color: "#ff0000", Width: 2}
	edge, err := m.SetEdgeStyle(a.ID(), b.ID(), style)
	require.NoError(t, err, "Expected style to be set")
	assert.Equal(t, style, edge.Style, "Expected new style")

	_, err = m.SetEdgeStyle(a.ID(), c.ID(), style)
	assert.ErrorIs(t, err, ErrEdgeNotFound, "Expected missing edge to fail")
}

// gatedTimeline blocks the first SyncEvent until release is closed and
// records the event names in arrival order.
type gatedTimeline struct {
	mu      sync.Mutex
	names   []string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedTimeline) SyncEvent(entity *model.Entity) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.names = append(g.names, entity.String("name"))
	return nil
}

func (g *gatedTimeline) RemoveEventsForEntity(id uuid.UUID) error { return nil }

func TestNotificationOrder(t *testing.T) {
	t.Run("Concurrent updates notify in write order", func(t *testing.T) {
		event, err := model.NewEntity(model.EntityTypeEvent, map[string]any{"name": "v0"})
		require.NoError(t, err, "Expected event to be created")

		m := NewManager()
		m.AddNode(event, model.Position{})

		timeline := &gatedTimeline{entered: make(chan struct{}), release: make(chan struct{})}
		m.timelineNotifier = timeline

		rename := func(name string) func(e *model.Entity) error {
			return func(e *model.Entity) error { return e.Set("name", name) }
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := m.UpdateNode(event.ID, rename("v1"))
			assert.NoError(t, err, "Expected first update to succeed")
		}()
		<-timeline.entered

		go func() {
			defer wg.Done()
			_, err := m.UpdateNode(event.ID, rename("v2"))
			assert.NoError(t, err, "Expected second update to succeed")
		}()
		time.Sleep(50 * time.Millisecond)
		close(timeline.release)
		wg.Wait()

		node, ok := m.Node(event.ID)
		require.True(t, ok, "Expected node to be found")
		assert.Equal(t, "v2", node.Entity.String("name"), "Expected last write in the graph")
		assert.Equal(t, []string{"v1", "v2"}, timeline.names, "Expected notifications in write order")
	})
}
