// Package patch implements the DAG router: a fixed-capacity graph of
// module nodes and single-input edges, with cycle-safe topological
// ordering cached across edits. The router owns graph shape only; the
// audio work blocks that flow along its edges belong to the host
// (internal/host), which resolves each node's input against the
// router's edge map once per block.
package patch

import (
	"errors"
	"fmt"

	"github.com/Norsninja/music-chronus/internal/module"
)

// Fixed maxima; pre-sized like the audio/command rings so graph edits
// never grow hot-path structures after construction.
const (
	MaxModules = 16
	MaxEdges   = 32
)

var (
	ErrCapacityExceeded = errors.New("patch: capacity exceeded")
	ErrCycleDetected    = errors.New("patch: cycle detected")
	ErrUnknownNode      = errors.New("patch: unknown node")
	ErrDuplicateNode    = errors.New("patch: node already exists")
	ErrNodeHasEdges     = errors.New("patch: node has connected edges, disconnect first")
	ErrInputTaken       = errors.New("patch: destination already has an incoming edge")
)

// node holds one module instance plus its insertion-sequence tie-break
// key, used so that semantically equivalent patches (same nodes/edges,
// built in the same order) always yield the same topological order.
type node struct {
	id       string
	mod      module.Module
	typeName string
	seq      int
}

// Router is the patch graph: nodes plus single-input edges (dst → src),
// a cached topological order, and fan-out tracking (src → []dst). Each
// destination may have at most one incoming edge, and no node in the
// graph sums several sources into one signal.
type Router struct {
	nodes    map[string]*node
	order    []string // insertion order, used for tie-breaking topo sort
	incoming map[string]string   // dst -> src
	outgoing map[string][]string // src -> []dst, in connect order

	topo      []string
	topoValid bool

	nextSeq int
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{
		nodes:    make(map[string]*node, MaxModules),
		incoming: make(map[string]string, MaxEdges),
		outgoing: make(map[string][]string, MaxModules),
	}
}

// AddModule registers a new node. The module must already have had
// Prepare called by the caller (the host owns allocation timing).
func (r *Router) AddModule(id string, typeName string, mod module.Module) error {
	if !module.ValidIdentifier(id) {
		return fmt.Errorf("patch: invalid module id %q", id)
	}
	if _, exists := r.nodes[id]; exists {
		return ErrDuplicateNode
	}
	if len(r.nodes) >= MaxModules {
		return ErrCapacityExceeded
	}
	r.nodes[id] = &node{id: id, mod: mod, typeName: typeName, seq: r.nextSeq}
	r.nextSeq++
	r.order = append(r.order, id)
	r.topoValid = false
	return nil
}

// RemoveModule deletes a node. A node that is the source or destination
// of any edge must be disconnected first; delete never cascades.
func (r *Router) RemoveModule(id string) error {
	if _, ok := r.nodes[id]; !ok {
		return ErrUnknownNode
	}
	if _, hasIncoming := r.incoming[id]; hasIncoming {
		return ErrNodeHasEdges
	}
	if len(r.outgoing[id]) > 0 {
		return ErrNodeHasEdges
	}
	delete(r.nodes, id)
	delete(r.outgoing, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.topoValid = false
	return nil
}

// Module returns the module instance bound to id.
func (r *Router) Module(id string) (module.Module, bool) {
	n, ok := r.nodes[id]
	if !ok {
		return nil, false
	}
	return n.mod, true
}

func (r *Router) edgeCount() int {
	n := 0
	for _, dsts := range r.outgoing {
		n += len(dsts)
	}
	return n
}

// Connect adds a single-input edge src→dst. Connecting an edge that
// already exists is accepted as a no-op. Rejected if either node is
// missing, dst already has an incoming edge from another source,
// capacity is exhausted, or the edge would introduce a cycle; a
// rejected connect leaves the graph exactly as it was before the call.
func (r *Router) Connect(src, dst string) error {
	if _, ok := r.nodes[src]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, src)
	}
	if _, ok := r.nodes[dst]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, dst)
	}
	if existing, ok := r.incoming[dst]; ok && existing == src {
		return nil // already connected; idempotent
	}
	if _, ok := r.incoming[dst]; ok {
		return ErrInputTaken
	}
	if r.edgeCount() >= MaxEdges {
		return ErrCapacityExceeded
	}

	r.incoming[dst] = src
	r.outgoing[src] = append(r.outgoing[src], dst)

	order, ok := r.tentativeTopoSort()
	if !ok {
		// Roll back: the attempted edge must not leave any trace.
		delete(r.incoming, dst)
		r.outgoing[src] = r.outgoing[src][:len(r.outgoing[src])-1]
		return ErrCycleDetected
	}
	r.topo = order
	r.topoValid = true
	return nil
}

// Disconnect removes edge src→dst if present. A no-op if the edge does
// not exist (so connect;disconnect;disconnect stays well-defined).
func (r *Router) Disconnect(src, dst string) error {
	if r.incoming[dst] != src {
		return nil
	}
	delete(r.incoming, dst)
	dsts := r.outgoing[src]
	for i, d := range dsts {
		if d == dst {
			r.outgoing[src] = append(dsts[:i], dsts[i+1:]...)
			break
		}
	}
	r.topoValid = false
	return nil
}

// IncomingSource returns the node feeding dst's input, if any.
func (r *Router) IncomingSource(dst string) (string, bool) {
	src, ok := r.incoming[dst]
	return src, ok
}

// Validate recomputes (without caching) whether the current graph is
// acyclic and covers every node.
func (r *Router) Validate() error {
	if _, ok := r.tentativeTopoSort(); !ok {
		return ErrCycleDetected
	}
	return nil
}

// ProcessingOrder returns the cached topological order, recomputing it
// first if the graph was edited since the last computation.
func (r *Router) ProcessingOrder() ([]string, error) {
	if r.topoValid {
		return r.topo, nil
	}
	order, ok := r.tentativeTopoSort()
	if !ok {
		return nil, ErrCycleDetected
	}
	r.topo = order
	r.topoValid = true
	return r.topo, nil
}

// tentativeTopoSort runs Kahn's algorithm over the current edge set,
// breaking ties by insertion sequence so equivalent patches always
// produce the same order. Returns ok=false if a cycle makes a full
// ordering impossible.
func (r *Router) tentativeTopoSort() ([]string, bool) {
	indegree := make(map[string]int, len(r.nodes))
	for id := range r.nodes {
		indegree[id] = 0
	}
	for dst := range r.incoming {
		indegree[dst]++
	}

	// Ready set ordered by insertion sequence, not map iteration order.
	ready := make([]string, 0, len(r.nodes))
	for _, id := range r.order {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	var out []string
	for len(ready) > 0 {
		// Pop lowest insertion-seq node first.
		best := 0
		for i := 1; i < len(ready); i++ {
			if r.nodes[ready[i]].seq < r.nodes[ready[best]].seq {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		out = append(out, id)

		for _, dst := range r.outgoing[id] {
			indegree[dst]--
			if indegree[dst] == 0 {
				ready = append(ready, dst)
			}
		}
	}

	return out, len(out) == len(r.nodes)
}
