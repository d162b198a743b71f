// Package reconcile maintains the live topology tree across polling
// cycles, diffing each freshly classified forest against the previous
// snapshot and emitting structural events for consumers.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/whaletop/whaletop/internal/topology"
)

// EventType identifies the kind of structural change an Event reports.
type EventType int

// Event types.
const (
	EventAdded EventType = iota
	EventRemoved
	EventStateChanged
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventStateChanged:
		return "state-changed"
	default:
		return "unknown"
	}
}

// Event is one structural change observed during a reconciliation pass.
type Event struct {
	Type EventType
	Key  string
	Kind topology.NodeKind

	// Old and New are set for EventStateChanged only.
	Old topology.State
	New topology.State
}

// String renders the event for logging and the journal.
func (e Event) String() string {
	if e.Type == EventStateChanged {
		return fmt.Sprintf("%s %s: %s -> %s", e.Type, e.Key, e.Old, e.New)
	}
	return fmt.Sprintf("%s %s", e.Type, e.Key)
}

// Reconcile merges the incoming classified forest into the previous one
// and returns the merged forest plus the structural events the merge
// produced. The caller owns both input forests; nodes from previous are
// reused in the result (preserving UI-attached state such as Expanded),
// so pass a clone when the original must stay untouched for concurrent
// readers.
//
// A node absent from exactly one poll is kept for one extra tick (grace
// period) so a single missed poll never flaps the tree; absent for two
// consecutive polls it is removed, with removal events emitted bottom-up
// (descendants strictly before their parents).
func Reconcile(previous, incoming topology.Forest, tick uint64) (topology.Forest, []Event) {
	// Aggregated states as the consumer last saw them, for change detection.
	oldStates := make(map[string]topology.State)
	previous.Walk(func(n *topology.Node) bool {
		oldStates[n.Key] = n.State
		return true
	})

	var events []Event
	merged := mergeLevel(previous, incoming, tick, &events)

	forest := topology.Forest(merged)
	topology.RecomputeStates(forest)

	// State changes on surviving nodes, children before parents so a
	// consumer never reacts to a parent transition ahead of the leaf
	// change that caused it.
	for _, root := range forest {
		walkPostOrder(root, func(n *topology.Node) {
			old, seen := oldStates[n.Key]
			if seen && old != n.State {
				events = append(events, Event{
					Type: EventStateChanged,
					Key:  n.Key,
					Kind: n.Kind,
					Old:  old,
					New:  n.State,
				})
			}
		})
	}

	return forest, events
}

// mergeLevel performs the key-matched three-way merge for one tree level
// and recurses into matched children.
func mergeLevel(previous, incoming []*topology.Node, tick uint64, events *[]Event) []*topology.Node {
	prevByKey := make(map[string]*topology.Node, len(previous))
	for _, n := range previous {
		prevByKey[n.Key] = n
	}
	incomingKeys := make(map[string]struct{}, len(incoming))

	out := make([]*topology.Node, 0, len(incoming))
	for _, inc := range incoming {
		incomingKeys[inc.Key] = struct{}{}
		prev, ok := prevByKey[inc.Key]
		if !ok {
			markAdded(inc, tick, events)
			out = append(out, inc)
			continue
		}
		// Keep node identity; refresh mutable fields from the new poll.
		prev.DisplayName = inc.DisplayName
		prev.Object = inc.Object
		prev.LastSeenTick = tick
		if !prev.Kind.IsGroup() {
			prev.State = inc.State
		}
		prev.Children = mergeLevel(prev.Children, inc.Children, tick, events)
		out = append(out, prev)
	}

	for _, prev := range previous {
		if _, ok := incomingKeys[prev.Key]; ok {
			continue
		}
		if tick-prev.LastSeenTick <= 1 {
			// Missed a single poll: keep the node one extra tick without
			// refreshing LastSeenTick, so a second miss prunes it.
			out = append(out, prev)
			continue
		}
		removeSubtree(prev, events)
	}

	sortByKey(out)
	return out
}

// markAdded stamps the tick on a freshly inserted subtree and emits Added
// events, parents before children.
func markAdded(n *topology.Node, tick uint64, events *[]Event) {
	n.LastSeenTick = tick
	*events = append(*events, Event{Type: EventAdded, Key: n.Key, Kind: n.Kind})
	for _, c := range n.Children {
		markAdded(c, tick, events)
	}
}

// removeSubtree emits removal events bottom-up. When pruning drains a
// group of its container instances, the group's transition to Stopped is
// reported before its own removal, so consumers observe the same sequence
// a live drain would have produced. Groups that only held other groups
// skip the transition; the removal of those children already tells the
// story.
func removeSubtree(n *topology.Node, events *[]Event) {
	holdsContainers := false
	for _, c := range n.Children {
		if c.IsContainer() {
			holdsContainers = true
		}
		removeSubtree(c, events)
	}
	if holdsContainers && n.State != topology.StateStopped {
		*events = append(*events, Event{
			Type: EventStateChanged,
			Key:  n.Key,
			Kind: n.Kind,
			Old:  n.State,
			New:  topology.StateStopped,
		})
	}
	n.Children = nil
	*events = append(*events, Event{Type: EventRemoved, Key: n.Key, Kind: n.Kind})
}

func walkPostOrder(n *topology.Node, visit func(*topology.Node)) {
	for _, c := range n.Children {
		walkPostOrder(c, visit)
	}
	visit(n)
}

func sortByKey(nodes []*topology.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
}
