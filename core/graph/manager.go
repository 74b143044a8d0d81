package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/helper"
	"github.com/siherrmann/pano/model"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrEdgeNotFound = errors.New("edge not found")
)

// MapNotifier is told about Location entities entering, changing in and
// leaving the graph.
type MapNotifier interface {
	UpdateLocation(entity *model.Entity) error
	RemoveLocation(id uuid.UUID) error
}

// TimelineNotifier is told about Event entities. SyncEvent adds or
// replaces the events keyed by the entity id, or removes them when the
// entity no longer has a timeline span.
type TimelineNotifier interface {
	SyncEvent(entity *model.Entity) error
	RemoveEventsForEntity(id uuid.UUID) error
}

// Node is an entity placed on the canvas. Nodes handed out by the manager
// are immutable snapshots: every mutation stores a new Node.
type Node struct {
	Entity   *model.Entity  `json:"entity"`
	Position model.Position `json:"position"`
	Version  uint64         `json:"version"`
}

// ID returns the id of the node's entity.
func (n *Node) ID() uuid.UUID {
	return n.Entity.ID
}

// Reader is the read-only view of a graph.
type Reader interface {
	Node(id uuid.UUID) (*Node, bool)
	Nodes() []*Node
	Edges() []*model.Edge
	EdgesOf(id uuid.UUID) []*model.Edge
}

// Manager owns the nodes and edges of one investigation. It is safe for
// concurrent use.
type Manager struct {
	mu        sync.RWMutex
	notifyMu  sync.Mutex // Taken before mu is released, keeps notifications in write order
	nodes     map[uuid.UUID]*Node
	nodeOrder []uuid.UUID
	edges     map[string]*model.Edge
	edgeOrder []string
	groups    []*model.Group
	groupSeq  int

	mapNotifier      MapNotifier
	timelineNotifier TimelineNotifier
	log              *slog.Logger
}

type Option func(*Manager)

func WithMapNotifier(n MapNotifier) Option {
	return func(m *Manager) { m.mapNotifier = n }
}

func WithTimelineNotifier(n TimelineNotifier) Option {
	return func(m *Manager) { m.timelineNotifier = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.log = logger }
}

// NewManager creates an empty graph.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		nodes: make(map[uuid.UUID]*Node),
		edges: make(map[string]*model.Edge),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddNode places a copy of entity at pos. If a node with the entity's id
// exists, the existing node is returned unchanged.
func (m *Manager) AddNode(entity *model.Entity, pos model.Position) *Node {
	m.mu.Lock()
	if existing, ok := m.nodes[entity.ID]; ok {
		m.mu.Unlock()
		m.log.Warn("Node already exists", slog.String("node_id", entity.ID.String()))
		return existing
	}

	node := &Node{
		Entity:   entity.Clone(),
		Position: pos,
	}
	m.nodes[entity.ID] = node
	m.nodeOrder = append(m.nodeOrder, entity.ID)
	m.unlockAndNotify(func() { m.notifyUpdated(node.Entity) })

	m.log.Debug("Added node", slog.String("node_id", entity.ID.String()), slog.String("entity_type", string(entity.Type)))

	return node
}

// AddEdge connects two existing nodes. It returns nil when an endpoint is
// missing. Edges are unique per (source, target): adding the pair again
// returns the existing edge whatever the relationship.
func (m *Manager) AddEdge(sourceID, targetID uuid.UUID, relationship string) *model.Edge {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.addEdgeLocked(sourceID, targetID, relationship)
}

func (m *Manager) addEdgeLocked(sourceID, targetID uuid.UUID, relationship string) *model.Edge {
	_, okSource := m.nodes[sourceID]
	_, okTarget := m.nodes[targetID]
	if !okSource || !okTarget {
		m.log.Error("Cannot create edge: node not found", slog.String("source_id", sourceID.String()), slog.String("target_id", targetID.String()))
		return nil
	}

	id := model.EdgeID(sourceID, targetID)
	if existing, ok := m.edges[id]; ok {
		m.log.Warn("Edge already exists", slog.String("edge_id", id))
		return existing
	}

	edge := model.NewEdge(sourceID, targetID, relationship)
	m.edges[id] = edge
	m.edgeOrder = append(m.edgeOrder, id)

	return edge
}

// RemoveNode removes the node and every edge it takes part in.
func (m *Manager) RemoveNode(id uuid.UUID) {
	m.mu.Lock()
	node, ok := m.nodes[id]
	if !ok {
		m.mu.Unlock()
		m.log.Warn("Node not found", slog.String("node_id", id.String()))
		return
	}

	m.edgeOrder = slices.DeleteFunc(m.edgeOrder, func(edgeID string) bool {
		edge := m.edges[edgeID]
		if edge.SourceID == id || edge.TargetID == id {
			delete(m.edges, edgeID)
			return true
		}
		return false
	})

	delete(m.nodes, id)
	m.nodeOrder = slices.DeleteFunc(m.nodeOrder, func(n uuid.UUID) bool { return n == id })
	m.removeFromGroupsLocked(id)
	m.unlockAndNotify(func() { m.notifyRemoved(node.Entity) })

	m.log.Debug("Removed node", slog.String("node_id", id.String()))
}

// RemoveEdge removes the edge between source and target.
func (m *Manager) RemoveEdge(sourceID, targetID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := model.EdgeID(sourceID, targetID)
	if _, ok := m.edges[id]; !ok {
		return helper.NewError("remove edge "+id, ErrEdgeNotFound)
	}
	delete(m.edges, id)
	m.edgeOrder = slices.DeleteFunc(m.edgeOrder, func(e string) bool { return e == id })

	return nil
}

// Clear removes all edges, then all nodes and groups.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.edges = make(map[string]*model.Edge)
	m.edgeOrder = nil

	removed := make([]*model.Entity, 0, len(m.nodeOrder))
	for _, id := range m.nodeOrder {
		removed = append(removed, m.nodes[id].Entity)
	}
	m.nodes = make(map[uuid.UUID]*Node)
	m.nodeOrder = nil
	m.groups = nil
	m.groupSeq = 0
	m.unlockAndNotify(func() {
		for _, e := range removed {
			m.notifyRemoved(e)
		}
	})
	m.log.Debug("Cleared graph", slog.Int("removed_nodes", len(removed)))
}

// UpdateNode applies fn to a copy of the node's entity and stores the
// result. If fn fails the node keeps its prior state. Concurrent updates
// are serialised, the last write of a property wins.
func (m *Manager) UpdateNode(id uuid.UUID, fn func(entity *model.Entity) error) (*Node, error) {
	m.mu.Lock()
	node, ok := m.nodes[id]
	if !ok {
		m.mu.Unlock()
		return nil, helper.NewError("update node "+id.String(), ErrNodeNotFound)
	}

	entity := node.Entity.Clone()
	if err := fn(entity); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	entity.ID = id
	entity.UpdateLabel()

	updated := &Node{
		Entity:   entity,
		Position: node.Position,
		Version:  node.Version + 1,
	}
	m.nodes[id] = updated
	m.unlockAndNotify(func() { m.notifyUpdated(entity) })

	return updated, nil
}

// MoveNode sets the canvas position of a node.
func (m *Manager) MoveNode(id uuid.UUID, pos model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[id]
	if !ok {
		return helper.NewError("move node "+id.String(), ErrNodeNotFound)
	}
	m.nodes[id] = &Node{
		Entity:   node.Entity,
		Position: pos,
		Version:  node.Version + 1,
	}
	return nil
}

// UpdateEdge applies fn to a copy of the edge and stores it when fn
// succeeds and the style is valid.
func (m *Manager) UpdateEdge(sourceID, targetID uuid.UUID, fn func(edge *model.Edge) error) (*model.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := model.EdgeID(sourceID, targetID)
	edge, ok := m.edges[id]
	if !ok {
		return nil, helper.NewError("update edge "+id, ErrEdgeNotFound)
	}

	updated := edge.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	if err := updated.Style.Validate(); err != nil {
		return nil, helper.NewError("validate edge style", err)
	}
	updated.ID, updated.SourceID, updated.TargetID = id, sourceID, targetID
	m.edges[id] = updated

	return updated, nil
}

// SetEdgeStyle replaces the visual style of an edge.
func (m *Manager) SetEdgeStyle(sourceID, targetID uuid.UUID, style model.EdgeStyle) (*model.Edge, error) {
	return m.UpdateEdge(sourceID, targetID, func(edge *model.Edge) error {
		edge.Style = style
		return nil
	})
}

// Node returns the node with the given id.
func (m *Manager) Node(id uuid.UUID) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.nodes[id]
	return node, ok
}

// Nodes returns all nodes in insertion order.
func (m *Manager) Nodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := make([]*Node, 0, len(m.nodeOrder))
	for _, id := range m.nodeOrder {
		nodes = append(nodes, m.nodes[id])
	}
	return nodes
}

// Edges returns all edges in insertion order.
func (m *Manager) Edges() []*model.Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()

	edges := make([]*model.Edge, 0, len(m.edgeOrder))
	for _, id := range m.edgeOrder {
		edges = append(edges, m.edges[id])
	}
	return edges
}

// Edge returns the edge between source and target.
func (m *Manager) Edge(sourceID, targetID uuid.UUID) (*model.Edge, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	edge, ok := m.edges[model.EdgeID(sourceID, targetID)]
	return edge, ok
}

// EdgesOf returns the edges the node is source or target of.
func (m *Manager) EdgesOf(id uuid.UUID) []*model.Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var edges []*model.Edge
	for _, edgeID := range m.edgeOrder {
		edge := m.edges[edgeID]
		if edge.SourceID == id || edge.TargetID == id {
			edges = append(edges, edge)
		}
	}
	return edges
}

// Neighbors returns the ids of nodes connected to id in either
// direction, in edge order and without duplicates.
func (m *Manager) Neighbors(id uuid.UUID) []uuid.UUID {
	var neighbors []uuid.UUID
	for _, edge := range m.EdgesOf(id) {
		other := edge.TargetID
		if other == id {
			other = edge.SourceID
		}
		if !slices.Contains(neighbors, other) {
			neighbors = append(neighbors, other)
		}
	}
	return neighbors
}

// Len returns the number of nodes and edges.
func (m *Manager) Len() (nodes int, edges int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.nodes), len(m.edges)
}

// Snapshot returns the graph as an investigation document without
// timeline events, which the timeline owns.
func (m *Manager) Snapshot() *model.Investigation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv := &model.Investigation{
		Nodes: make([]model.NodeRecord, 0, len(m.nodeOrder)),
		Edges: make([]model.EdgeRecord, 0, len(m.edgeOrder)),
	}
	for _, id := range m.nodeOrder {
		node := m.nodes[id]
		inv.Nodes = append(inv.Nodes, model.NodeRecord{
			ID:         id,
			EntityType: node.Entity.Type,
			Properties: node.Entity.ToDict(),
			Position:   node.Position,
		})
	}
	for _, id := range m.edgeOrder {
		edge := m.edges[id]
		inv.Edges = append(inv.Edges, model.EdgeRecord{
			ID:           edge.ID,
			Source:       edge.SourceID,
			Target:       edge.TargetID,
			Relationship: edge.Relationship,
			Style:        edge.Style,
			Label:        edge.Label,
			Properties:   edge.Properties.Clone(),
		})
	}
	for _, g := range m.groups {
		inv.Groups = append(inv.Groups, cloneGroup(g))
	}

	return inv
}

// Restore replaces the graph with the content of inv. All entities are
// decoded before anything is cleared, so a document that fails to decode
// leaves the graph untouched.
func (m *Manager) Restore(inv *model.Investigation) error {
	if inv == nil {
		return helper.NewError("restore graph", fmt.Errorf("investigation is nil"))
	}

	entities := make([]*model.Entity, len(inv.Nodes))
	for i := range inv.Nodes {
		entity, err := inv.Nodes[i].Entity()
		if err != nil {
			return helper.NewError(fmt.Sprintf("decode node %d", i), err)
		}
		entities[i] = entity
	}

	m.Clear()

	for i, entity := range entities {
		m.AddNode(entity, inv.Nodes[i].Position)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range inv.Edges {
		edge := m.addEdgeLocked(record.Source, record.Target, record.Relationship)
		if edge == nil {
			continue
		}
		if record.Style.Validate() == nil {
			edge.Style = record.Style
		} else {
			m.log.Warn("Ignoring invalid edge style", slog.String("edge_id", edge.ID))
		}
		edge.Label = record.Label
		edge.Properties = record.Properties.Clone()
	}

	for _, g := range inv.Groups {
		group := cloneGroup(&g)
		group.NodeIDs = slices.DeleteFunc(group.NodeIDs, func(id uuid.UUID) bool {
			_, ok := m.nodes[id]
			return !ok
		})
		m.groups = append(m.groups, &group)
		m.groupSeq++
	}

	return nil
}

// ToDict returns the snapshot as a generic JSON map.
func (m *Manager) ToDict() (map[string]any, error) {
	b, err := json.Marshal(m.Snapshot())
	if err != nil {
		return nil, helper.NewError("marshal graph", err)
	}

	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, helper.NewError("unmarshal graph", err)
	}
	return data, nil
}

// FromDict restores the graph from a generic JSON map. Existing content
// is discarded.
func (m *Manager) FromDict(data map[string]any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return helper.NewError("marshal graph", err)
	}

	var inv model.Investigation
	if err := json.Unmarshal(b, &inv); err != nil {
		return helper.NewError("decode graph", err)
	}
	return m.Restore(&inv)
}

// unlockAndNotify releases mu, which must be held, and runs fn before any
// later writer can notify.
func (m *Manager) unlockAndNotify(fn func()) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.mu.Unlock()
	fn()
}

func (m *Manager) notifyUpdated(entity *model.Entity) {
	switch entity.Type {
	case model.EntityTypeLocation:
		if m.mapNotifier != nil {
			m.notify("update location", entity.ID, func() error { return m.mapNotifier.UpdateLocation(entity) })
		}
	case model.EntityTypeEvent:
		if m.timelineNotifier != nil {
			m.notify("sync timeline event", entity.ID, func() error { return m.timelineNotifier.SyncEvent(entity) })
		}
	}
}

func (m *Manager) notifyRemoved(entity *model.Entity) {
	switch entity.Type {
	case model.EntityTypeLocation:
		if m.mapNotifier != nil {
			m.notify("remove location", entity.ID, func() error { return m.mapNotifier.RemoveLocation(entity.ID) })
		}
	case model.EntityTypeEvent:
		if m.timelineNotifier != nil {
			m.notify("remove timeline events", entity.ID, func() error { return m.timelineNotifier.RemoveEventsForEntity(entity.ID) })
		}
	}
}

// notify runs a collaborator call. Errors and panics are logged and never
// reach the caller of the graph mutation.
func (m *Manager) notify(operation string, id uuid.UUID, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Notification panicked", slog.String("operation", operation), slog.String("node_id", id.String()), slog.Any("panic", r))
		}
	}()

	if err := fn(); err != nil {
		m.log.Warn("Notification failed", slog.String("operation", operation), slog.String("node_id", id.String()), slog.String("error", err.Error()))
	}
}
