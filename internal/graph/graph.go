// Package graph holds the in-memory working set of DataNodes and KartaEdges
// for the active context, indexed for neighbor queries.
package graph

import (
	"sort"
	"sync"

	"github.com/kittclouds/karta/internal/store"
)

// Graph is a directed graph of DataNodes keyed by global id.
// Adjacency lists mirror the edge map in both directions.
type Graph struct {
	mu sync.RWMutex

	// Node storage: ID -> Node
	nodes map[string]*store.DataNode
	// Edge storage: ID -> Edge
	edges map[string]*store.KartaEdge

	// Adjacency lists: SourceID -> TargetID -> Edge
	outbound map[string]map[string]*store.KartaEdge
	inbound  map[string]map[string]*store.KartaEdge
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*store.DataNode),
		edges:    make(map[string]*store.KartaEdge),
		outbound: make(map[string]map[string]*store.KartaEdge),
		inbound:  make(map[string]map[string]*store.KartaEdge),
	}
}

// =============================================================================
// Nodes
// =============================================================================

// PutNode adds or replaces a node.
func (g *Graph) PutNode(n *store.DataNode) {
	if n == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[n.ID] = n.Clone()
}

// Node retrieves a node by ID
func (g *Graph) Node(id string) *store.DataNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id].Clone()
}

// HasNode reports whether id is in the working set.
func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// NodeByPath finds a node in the working set by path.
func (g *Graph) NodeByPath(p string) *store.DataNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.Path == p {
			return n.Clone()
		}
	}
	return nil
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes, id)
	for eid, e := range g.edges {
		if e.Touches(id) {
			g.unlinkLocked(eid)
		}
	}
}

// Nodes returns every node sorted by id.
func (g *Graph) Nodes() []*store.DataNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	result := make([]*store.DataNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		result = append(result, n.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// NodeIDs returns every node id, sorted.
func (g *Graph) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.nodes)
}

// NodeCount returns the number of nodes
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// =============================================================================
// Edges
// =============================================================================

// PutEdge adds or replaces an edge, re-indexing its endpoints.
func (g *Graph) PutEdge(e *store.KartaEdge) {
	if e == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.linkLocked(e.Clone())
}

// Edge retrieves an edge by ID
func (g *Graph) Edge(id string) *store.KartaEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[id].Clone()
}

// RemoveEdge deletes an edge.
func (g *Graph) RemoveEdge(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unlinkLocked(id)
}

// EdgeBetween returns the edge joining a and b in either direction.
func (g *Graph) EdgeBetween(a, b string) *store.KartaEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if e := g.outbound[a][b]; e != nil {
		return e.Clone()
	}
	if e := g.outbound[b][a]; e != nil {
		return e.Clone()
	}
	return nil
}

// Edges returns every edge sorted by id.
func (g *Graph) Edges() []*store.KartaEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	result := make([]*store.KartaEdge, 0, len(g.edges))
	for _, e := range g.edges {
		result = append(result, e.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// EdgeCount returns the number of edges
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Neighbors returns all nodes connected to the given node (both directions),
// sorted by id. Endpoints missing from the working set are skipped.
func (g *Graph) Neighbors(id string) []*store.DataNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []*store.DataNode
	for _, nid := range g.neighborIDsLocked(id) {
		if node := g.nodes[nid]; node != nil {
			result = append(result, node.Clone())
		}
	}
	return result
}

// NeighborIDs returns the ids adjacent to id, sorted.
func (g *Graph) NeighborIDs(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.neighborIDsLocked(id)
}

func (g *Graph) neighborIDsLocked(id string) []string {
	seen := make(map[string]bool)
	// Outbound neighbors
	for targetID := range g.outbound[id] {
		seen[targetID] = true
	}
	// Inbound neighbors
	for sourceID := range g.inbound[id] {
		seen[sourceID] = true
	}
	return sortedKeys(seen)
}

// =============================================================================
// Working set
// =============================================================================

// ReplaceWorkingSet swaps the whole working set in one step. Nodes become
// exactly the given set. Candidate edges are the current edges merged
// with the given ones; an edge survives only if both endpoints are in
// visible. The returned Diff describes the node-level change.
func (g *Graph) ReplaceWorkingSet(nodes []*store.DataNode, edges []*store.KartaEdge, visible map[string]bool) Diff[string] {
	nextNodes := make(map[string]*store.DataNode, len(nodes))
	for _, n := range nodes {
		if n != nil {
			nextNodes[n.ID] = n.Clone()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	candidates := make(map[string]*store.KartaEdge, len(g.edges)+len(edges))
	for id, e := range g.edges {
		candidates[id] = e
	}
	for _, e := range edges {
		if e != nil {
			candidates[e.ID] = e.Clone()
		}
	}

	diff := Reconcile(sortedKeys(g.nodes), sortedKeys(nextNodes))

	g.nodes = nextNodes
	g.edges = make(map[string]*store.KartaEdge)
	g.outbound = make(map[string]map[string]*store.KartaEdge)
	g.inbound = make(map[string]map[string]*store.KartaEdge)
	for _, e := range candidates {
		if visible[e.Source] && visible[e.Target] {
			g.linkLocked(e)
		}
	}
	return diff
}

// Clear removes all nodes and edges
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*store.DataNode)
	g.edges = make(map[string]*store.KartaEdge)
	g.outbound = make(map[string]map[string]*store.KartaEdge)
	g.inbound = make(map[string]map[string]*store.KartaEdge)
}

func (g *Graph) linkLocked(e *store.KartaEdge) {
	if old := g.edges[e.ID]; old != nil {
		g.unlinkLocked(e.ID)
	}
	g.edges[e.ID] = e

	// Ensure outbound map exists
	if g.outbound[e.Source] == nil {
		g.outbound[e.Source] = make(map[string]*store.KartaEdge)
	}
	g.outbound[e.Source][e.Target] = e

	// Maintain reverse index
	if g.inbound[e.Target] == nil {
		g.inbound[e.Target] = make(map[string]*store.KartaEdge)
	}
	g.inbound[e.Target][e.Source] = e
}

func (g *Graph) unlinkLocked(id string) {
	e := g.edges[id]
	if e == nil {
		return
	}
	delete(g.edges, id)
	if out := g.outbound[e.Source]; out != nil && out[e.Target] == e {
		delete(out, e.Target)
		if len(out) == 0 {
			delete(g.outbound, e.Source)
		}
	}
	if in := g.inbound[e.Target]; in != nil && in[e.Source] == e {
		delete(in, e.Source)
		if len(in) == 0 {
			delete(g.inbound, e.Target)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
