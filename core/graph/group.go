package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/helper"
	"github.com/siherrmann/pano/model"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

const DefaultGroupColor = "#3d3d3d"

var ErrGroupNotFound = errors.New("group not found")

// CreateGroup groups the given nodes under name. Unknown node ids are
// dropped. An empty color falls back to DefaultGroupColor.
func (m *Manager) CreateGroup(name string, nodeIDs []uuid.UUID, color string) model.Group {
	m.mu.Lock()
	defer m.mu.Unlock()

	return cloneGroup(m.createGroupLocked(name, nodeIDs, color))
}

func (m *Manager) createGroupLocked(name string, nodeIDs []uuid.UUID, color string) *model.Group {
	if color == "" {
		color = DefaultGroupColor
	}

	members := make([]uuid.UUID, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if _, ok := m.nodes[id]; ok && !slices.Contains(members, id) {
			members = append(members, id)
		}
	}

	group := &model.Group{
		ID:       m.nextGroupIDLocked(),
		Name:     name,
		Color:    color,
		NodeIDs:  members,
		Expanded: true,
	}
	m.updateCenterLocked(group)
	m.groups = append(m.groups, group)

	m.log.Debug("Created group", slog.String("group_id", group.ID), slog.Int("nodes", len(members)))
	return group
}

// DeleteGroup removes a group. The member nodes stay in the graph.
func (m *Manager) DeleteGroup(groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.groupIndexLocked(groupID)
	if i < 0 {
		return helper.NewError("delete group "+groupID, ErrGroupNotFound)
	}
	m.groups = slices.Delete(m.groups, i, i+1)

	return nil
}

// AddNodeToGroup adds an existing node to a group.
func (m *Manager) AddNodeToGroup(groupID string, nodeID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.groupIndexLocked(groupID)
	if i < 0 {
		return helper.NewError("add node to group "+groupID, ErrGroupNotFound)
	}
	if _, ok := m.nodes[nodeID]; !ok {
		return helper.NewError("add node to group "+groupID, ErrNodeNotFound)
	}

	group := m.groups[i]
	if !slices.Contains(group.NodeIDs, nodeID) {
		group.NodeIDs = append(group.NodeIDs, nodeID)
		m.updateCenterLocked(group)
	}

	return nil
}

// RemoveNodeFromGroup removes a node from a group. Removing a node that
// is not a member is a no-op.
func (m *Manager) RemoveNodeFromGroup(groupID string, nodeID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.groupIndexLocked(groupID)
	if i < 0 {
		return helper.NewError("remove node from group "+groupID, ErrGroupNotFound)
	}

	group := m.groups[i]
	group.NodeIDs = slices.DeleteFunc(group.NodeIDs, func(id uuid.UUID) bool { return id == nodeID })
	m.updateCenterLocked(group)

	return nil
}

// ToggleGroupExpansion flips the expanded state and returns the new one.
func (m *Manager) ToggleGroupExpansion(groupID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.groupIndexLocked(groupID)
	if i < 0 {
		return false, helper.NewError("toggle group "+groupID, ErrGroupNotFound)
	}
	m.groups[i].Expanded = !m.groups[i].Expanded

	return m.groups[i].Expanded, nil
}

// Groups returns copies of all groups in creation order.
func (m *Manager) Groups() []model.Group {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make([]model.Group, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, cloneGroup(g))
	}
	return groups
}

// NodeGroups returns the groups a node belongs to.
func (m *Manager) NodeGroups(nodeID uuid.UUID) []model.Group {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var groups []model.Group
	for _, g := range m.groups {
		if slices.Contains(g.NodeIDs, nodeID) {
			groups = append(groups, cloneGroup(g))
		}
	}
	return groups
}

// AutoGroupByType replaces all groups with one group per entity type
// that has more than one node.
func (m *Manager) AutoGroupByType() []model.Group {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.groups = nil
	m.groupSeq = 0

	var types []model.EntityType
	byType := make(map[model.EntityType][]uuid.UUID)
	for _, id := range m.nodeOrder {
		t := m.nodes[id].Entity.Type
		if _, ok := byType[t]; !ok {
			types = append(types, t)
		}
		byType[t] = append(byType[t], id)
	}

	groups := []model.Group{}
	for _, t := range types {
		if len(byType[t]) < 2 {
			continue
		}

		color := DefaultGroupColor
		if schema, err := model.SchemaFor(t); err == nil {
			color = schema.Color
		}
		groups = append(groups, cloneGroup(m.createGroupLocked(string(t)+" Group", byType[t], color)))
	}

	return groups
}

// AutoGroupByConnectivity replaces all groups with one group per
// connected component of at least minSize nodes. Edge direction is
// ignored.
func (m *Manager) AutoGroupByConnectivity(minSize int) []model.Group {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.groups = nil
	m.groupSeq = 0

	g, index := m.undirectedLocked()
	components := topo.ConnectedComponents(g)

	// Components come back in map order, sort by first insertion.
	position := make(map[uuid.UUID]int, len(m.nodeOrder))
	for i, id := range m.nodeOrder {
		position[id] = i
	}

	var clusters [][]uuid.UUID
	for _, component := range components {
		if len(component) < minSize {
			continue
		}

		ids := make([]uuid.UUID, 0, len(component))
		for _, n := range component {
			ids = append(ids, index[n.ID()])
		}
		slices.SortFunc(ids, func(a, b uuid.UUID) int { return position[a] - position[b] })
		clusters = append(clusters, ids)
	}
	slices.SortFunc(clusters, func(a, b []uuid.UUID) int { return position[a[0]] - position[b[0]] })

	groups := []model.Group{}
	for i, ids := range clusters {
		groups = append(groups, cloneGroup(m.createGroupLocked(fmt.Sprintf("Cluster %d", i+1), ids, DefaultGroupColor)))
	}

	return groups
}

// undirectedLocked builds a gonum view of the graph. The returned slice
// maps gonum node ids back to entity ids.
func (m *Manager) undirectedLocked() (*simple.UndirectedGraph, []uuid.UUID) {
	g := simple.NewUndirectedGraph()
	ids := make(map[uuid.UUID]int64, len(m.nodeOrder))
	index := make([]uuid.UUID, len(m.nodeOrder))

	for i, id := range m.nodeOrder {
		ids[id] = int64(i)
		index[i] = id
		g.AddNode(simple.Node(i))
	}
	for _, edgeID := range m.edgeOrder {
		edge := m.edges[edgeID]
		if edge.SourceID == edge.TargetID {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(ids[edge.SourceID]), simple.Node(ids[edge.TargetID])))
	}

	return g, index
}

func (m *Manager) removeFromGroupsLocked(nodeID uuid.UUID) {
	for _, g := range m.groups {
		if slices.Contains(g.NodeIDs, nodeID) {
			g.NodeIDs = slices.DeleteFunc(g.NodeIDs, func(id uuid.UUID) bool { return id == nodeID })
			m.updateCenterLocked(g)
		}
	}
}

func (m *Manager) updateCenterLocked(g *model.Group) {
	if len(g.NodeIDs) == 0 {
		g.Center = nil
		return
	}

	var center model.Position
	for _, id := range g.NodeIDs {
		center.X += m.nodes[id].Position.X
		center.Y += m.nodes[id].Position.Y
	}
	center.X /= float64(len(g.NodeIDs))
	center.Y /= float64(len(g.NodeIDs))
	g.Center = &center
}

func (m *Manager) groupIndexLocked(groupID string) int {
	return slices.IndexFunc(m.groups, func(g *model.Group) bool { return g.ID == groupID })
}

func (m *Manager) nextGroupIDLocked() string {
	for {
		id := fmt.Sprintf("group_%d", m.groupSeq)
		m.groupSeq++
		if m.groupIndexLocked(id) < 0 {
			return id
		}
	}
}

func cloneGroup(g *model.Group) model.Group {
	c := *g
	c.NodeIDs = slices.Clone(g.NodeIDs)
	if g.Center != nil {
		center := *g.Center
		c.Center = &center
	}
	return c
}
