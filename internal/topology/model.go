// Package topology models the ownership hierarchy of Docker workloads
// (swarm stacks, compose projects, standalone containers) and classifies
// raw runtime objects into it.
package topology

import (
	"sort"
	"time"
)

// Docker labels consumed for classification. Everything else on the
// object is ignored here.
const (
	LabelSwarmStack     = "com.docker.stack.namespace"
	LabelSwarmService   = "com.docker.swarm.service.name"
	LabelSwarmTaskID    = "com.docker.swarm.task.id"
	LabelComposeProject = "com.docker.compose.project"
	LabelComposeService = "com.docker.compose.service"
)

// ObjectKind identifies what kind of raw runtime object the adapter returned.
type ObjectKind string

// Raw object kinds.
const (
	ObjectContainer ObjectKind = "container"
	ObjectService   ObjectKind = "service"
	ObjectTask      ObjectKind = "task"
)

// RuntimeObject is a raw fact read from the Docker daemon during one poll.
// It is immutable once read and superseded by the next poll.
type RuntimeObject struct {
	ID        string
	Kind      ObjectKind
	Name      string
	Image     string
	Labels    map[string]string
	State     string // raw engine state: running, exited, paused, ...
	UpdatedAt time.Time

	// Point-in-time resource usage, zero when stats were not sampled.
	CPUPercent  float64
	MemoryUsage uint64
	MemoryLimit uint64
}

// NodeKind identifies the position and flavor of a node in the topology tree.
type NodeKind int

// Node kinds, roots first.
const (
	KindStandaloneContainer NodeKind = iota
	KindComposeProject
	KindSwarmStack
	KindComposeService
	KindSwarmService
	KindContainerInstance
)

// String returns a short human-readable kind name.
func (k NodeKind) String() string {
	switch k {
	case KindStandaloneContainer:
		return "container"
	case KindComposeProject:
		return "project"
	case KindSwarmStack:
		return "stack"
	case KindComposeService:
		return "service"
	case KindSwarmService:
		return "service"
	case KindContainerInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// IsGroup reports whether nodes of this kind own children.
func (k NodeKind) IsGroup() bool {
	switch k {
	case KindComposeProject, KindSwarmStack, KindComposeService, KindSwarmService:
		return true
	default:
		return false
	}
}

// State is the lifecycle state of a topology node. Leaf nodes carry the
// engine-reported container state; group nodes carry a state aggregated
// from their children every tick.
type State int

// Node states. Group aggregation only ever produces Running, Degraded,
// Stopped or Unknown; the remaining values are leaf-only.
const (
	StateUnknown State = iota
	StateRunning
	StateDegraded
	StateStopped
	StatePaused
	StateRestarting
	StateCreated
	StateExited
	StateDead
	StateRemoved
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDegraded:
		return "degraded"
	case StateStopped:
		return "stopped"
	case StatePaused:
		return "paused"
	case StateRestarting:
		return "restarting"
	case StateCreated:
		return "created"
	case StateExited:
		return "exited"
	case StateDead:
		return "dead"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// StateFromEngine maps a raw Docker container state string onto a leaf State.
func StateFromEngine(raw string) State {
	switch raw {
	case "running":
		return StateRunning
	case "paused":
		return StatePaused
	case "restarting":
		return StateRestarting
	case "created":
		return StateCreated
	case "exited", "stopped":
		return StateExited
	case "dead":
		return StateDead
	case "removing", "removed":
		return StateRemoved
	default:
		return StateUnknown
	}
}

// Node is one classified entity in the topology tree. The tree owns its
// nodes exclusively; sharing a *Node between two trees is a bug.
type Node struct {
	// Key is derived deterministically from classification labels and
	// names, so it stays stable across polls even when the underlying
	// container is replaced and gets a new ID.
	Key         string
	Kind        NodeKind
	DisplayName string
	State       State
	Children    []*Node

	// LastSeenTick is the poll counter of the last poll that included
	// this node. The reconciler prunes nodes that fall behind by more
	// than one tick.
	LastSeenTick uint64

	// Expanded is UI-attached state, preserved across reconciliation.
	Expanded bool

	// Object is the backing runtime object for leaf nodes and swarm
	// service nodes; nil for synthesized group nodes.
	Object *RuntimeObject
}

// IsContainer reports whether the node is an actual container that log
// and exec sessions can bind to.
func (n *Node) IsContainer() bool {
	return n.Kind == KindStandaloneContainer || n.Kind == KindContainerInstance
}

// ContainerID returns the backing container ID, or "" for group nodes.
func (n *Node) ContainerID() string {
	if n.Object == nil || !n.IsContainer() {
		return ""
	}
	return n.Object.ID
}

// Clone returns a deep copy of the node and its subtree.
func (n *Node) Clone() *Node {
	c := *n
	if n.Object != nil {
		obj := *n.Object
		c.Object = &obj
	}
	c.Children = make([]*Node, len(n.Children))
	for i, child := range n.Children {
		c.Children[i] = child.Clone()
	}
	return &c
}

// Forest is an ordered set of topology roots, sorted by key.
type Forest []*Node

// Clone returns a deep copy of the forest.
func (f Forest) Clone() Forest {
	out := make(Forest, len(f))
	for i, n := range f {
		out[i] = n.Clone()
	}
	return out
}

// Find walks the forest and returns the node with the given key, or nil.
func (f Forest) Find(key string) *Node {
	var found *Node
	f.Walk(func(n *Node) bool {
		if n.Key == key {
			found = n
			return false
		}
		return true
	})
	return found
}

// Walk visits every node depth-first, parents before children. The visit
// function returns false to stop the walk early.
func (f Forest) Walk(visit func(*Node) bool) {
	var rec func(n *Node) bool
	rec = func(n *Node) bool {
		if !visit(n) {
			return false
		}
		for _, c := range n.Children {
			if !rec(c) {
				return false
			}
		}
		return true
	}
	for _, n := range f {
		if !rec(n) {
			return
		}
	}
}

// Containers returns all container nodes in the forest, in tree order.
func (f Forest) Containers() []*Node {
	var out []*Node
	f.Walk(func(n *Node) bool {
		if n.IsContainer() {
			out = append(out, n)
		}
		return true
	})
	return out
}

// sortNodes orders siblings by key for deterministic output.
func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
}

// RecomputeStates recomputes aggregated group states bottom-up across the
// whole forest. Leaf states are left as classified. A group is Running
// when all children run, Degraded when some but not all do (or any child
// is itself degraded), and Stopped when none do. A group with no children
// at all (a swarm service whose every task is gone) is Stopped.
func RecomputeStates(f Forest) {
	for _, n := range f {
		recomputeState(n)
	}
}

func recomputeState(n *Node) State {
	if len(n.Children) == 0 {
		if n.Kind.IsGroup() {
			n.State = StateStopped
		}
		return n.State
	}

	running, degraded := 0, 0
	for _, c := range n.Children {
		switch recomputeState(c) {
		case StateRunning:
			running++
		case StateDegraded:
			degraded++
		}
	}

	switch {
	case running == len(n.Children) && degraded == 0:
		n.State = StateRunning
	case running > 0 || degraded > 0:
		n.State = StateDegraded
	default:
		n.State = StateStopped
	}
	return n.State
}
