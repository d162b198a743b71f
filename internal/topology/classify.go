package topology

import (
	"fmt"
	"strings"
)

// Precedence selects which ownership label wins when a runtime object
// carries both swarm stack and compose project labels. Real-world objects
// normally carry only one family, but nothing in the engine forbids both.
type Precedence int

// Precedence values.
const (
	PreferSwarm Precedence = iota
	PreferCompose
)

// ParsePrecedence maps a config string onto a Precedence. Unrecognized
// values fall back to PreferSwarm.
func ParsePrecedence(s string) Precedence {
	if strings.EqualFold(s, "compose") {
		return PreferCompose
	}
	return PreferSwarm
}

// Conflict records a non-fatal classification anomaly: an object claimed
// by both swarm and compose labels, or two objects deriving the same key
// at the same tree level.
type Conflict struct {
	ObjectID   string
	ObjectName string
	Stack      string // set for dual-ownership conflicts
	Project    string // set for dual-ownership conflicts
	Key        string // set for duplicate-key conflicts
}

// String renders the conflict for logging.
func (c Conflict) String() string {
	if c.Key != "" {
		return fmt.Sprintf("duplicate key %q for object %s (%s)", c.Key, c.ObjectName, shortID(c.ObjectID))
	}
	return fmt.Sprintf("object %s (%s) carries both stack %q and project %q labels",
		c.ObjectName, shortID(c.ObjectID), c.Stack, c.Project)
}

// Classifier derives the ownership forest from raw runtime objects.
// It holds no cross-call state; Classify is a pure function of its input.
type Classifier struct {
	prefer Precedence
}

// NewClassifier returns a classifier using the given label precedence.
func NewClassifier(prefer Precedence) *Classifier {
	return &Classifier{prefer: prefer}
}

// Classify builds a freshly allocated topology forest from one poll's
// objects. Key derivation is deterministic: identical input always yields
// identical keys and tree shape, which the reconciler's diffing relies on.
// Conflicts are returned for logging; they never abort classification.
func (c *Classifier) Classify(objects []RuntimeObject) (Forest, []Conflict) {
	b := newForestBuilder()

	for i := range objects {
		obj := objects[i]
		stack := obj.Labels[LabelSwarmStack]
		project := obj.Labels[LabelComposeProject]

		// An object cannot be claimed by both orchestrators. Resolve by
		// configured precedence and surface the condition once.
		if stack != "" && project != "" {
			b.conflicts = append(b.conflicts, Conflict{
				ObjectID:   obj.ID,
				ObjectName: obj.Name,
				Stack:      stack,
				Project:    project,
			})
			if c.prefer == PreferSwarm {
				project = ""
			} else {
				stack = ""
			}
		}

		switch {
		case obj.Kind == ObjectService:
			b.placeService(obj, stack)
		case stack != "":
			b.placeGrouped(obj, "stack/"+stack, KindSwarmStack, stack,
				swarmServiceName(obj.Labels[LabelSwarmService], stack), KindSwarmService)
		case obj.Labels[LabelSwarmService] != "":
			// Swarm service created outside any stack: the service itself
			// is the root group.
			svc := obj.Labels[LabelSwarmService]
			b.placeGrouped(obj, "service/"+svc, KindSwarmService, svc, "", KindSwarmService)
		case project != "":
			b.placeGrouped(obj, "project/"+project, KindComposeProject, project,
				obj.Labels[LabelComposeService], KindComposeService)
		default:
			b.placeStandalone(obj)
		}
	}

	forest := b.finish()
	RecomputeStates(forest)
	return forest, b.conflicts
}

// swarmServiceName strips the "<stack>_" prefix the engine prepends to
// service names inside a stack, so the mid-level node reads like the
// service the user named.
func swarmServiceName(full, stack string) string {
	if full == "" {
		return ""
	}
	return strings.TrimPrefix(full, stack+"_")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// forestBuilder accumulates nodes during one Classify call.
type forestBuilder struct {
	roots     map[string]*Node
	byKey     map[string]*Node // every key in the forest, for duplicate detection
	conflicts []Conflict
}

func newForestBuilder() *forestBuilder {
	return &forestBuilder{
		roots: make(map[string]*Node),
		byKey: make(map[string]*Node),
	}
}

func (b *forestBuilder) ensureRoot(key string, kind NodeKind, name string) *Node {
	if n, ok := b.roots[key]; ok {
		return n
	}
	n := &Node{Key: key, Kind: kind, DisplayName: name}
	b.roots[key] = n
	b.byKey[key] = n
	return n
}

func (b *forestBuilder) ensureChildGroup(parent *Node, key string, kind NodeKind, name string) *Node {
	for _, c := range parent.Children {
		if c.Key == key {
			return c
		}
	}
	n := &Node{Key: key, Kind: kind, DisplayName: name}
	parent.Children = append(parent.Children, n)
	b.byKey[key] = n
	return n
}

// placeGrouped attaches a container under its root group, inserting a
// mid-level service node when a service label was discovered. Containers
// with a root label but no service label become direct children of the
// root group.
func (b *forestBuilder) placeGrouped(obj RuntimeObject, rootKey string, rootKind NodeKind, rootName, service string, serviceKind NodeKind) {
	root := b.ensureRoot(rootKey, rootKind, rootName)
	parent := root
	if service != "" {
		parent = b.ensureChildGroup(root, rootKey+"/"+service, serviceKind, service)
	}
	b.attachContainer(parent, obj)
}

// placeService records a swarm service object as a mid-level (or root)
// group so the service shows up even with zero running tasks.
func (b *forestBuilder) placeService(obj RuntimeObject, stack string) {
	o := obj
	if stack != "" {
		root := b.ensureRoot("stack/"+stack, KindSwarmStack, stack)
		name := swarmServiceName(obj.Name, stack)
		n := b.ensureChildGroup(root, root.Key+"/"+name, KindSwarmService, name)
		n.Object = &o
		return
	}
	n := b.ensureRoot("service/"+obj.Name, KindSwarmService, obj.Name)
	n.Object = &o
}

func (b *forestBuilder) placeStandalone(obj RuntimeObject) {
	name := obj.Name
	if name == "" {
		name = shortID(obj.ID)
	}
	key := "container/" + name
	if _, ok := b.byKey[key]; ok {
		b.conflicts = append(b.conflicts, Conflict{ObjectID: obj.ID, ObjectName: obj.Name, Key: key})
		key = key + "#" + shortID(obj.ID)
	}
	o := obj
	n := &Node{
		Key:         key,
		Kind:        KindStandaloneContainer,
		DisplayName: name,
		State:       StateFromEngine(obj.State),
		Object:      &o,
	}
	b.roots[key] = n
	b.byKey[key] = n
}

func (b *forestBuilder) attachContainer(parent *Node, obj RuntimeObject) {
	name := obj.Name
	if name == "" {
		name = shortID(obj.ID)
	}
	key := parent.Key + "/" + name
	if _, ok := b.byKey[key]; ok {
		// Key uniqueness is enforced per level; disambiguate with the
		// object ID and record the collision.
		b.conflicts = append(b.conflicts, Conflict{ObjectID: obj.ID, ObjectName: obj.Name, Key: key})
		key = key + "#" + shortID(obj.ID)
	}
	o := obj
	n := &Node{
		Key:         key,
		Kind:        KindContainerInstance,
		DisplayName: name,
		State:       StateFromEngine(obj.State),
		Object:      &o,
	}
	parent.Children = append(parent.Children, n)
	b.byKey[key] = n
}

// finish sorts the forest for deterministic output.
func (b *forestBuilder) finish() Forest {
	forest := make(Forest, 0, len(b.roots))
	for _, n := range b.roots {
		forest = append(forest, n)
	}
	var sortTree func(n *Node)
	sortTree = func(n *Node) {
		sortNodes(n.Children)
		for _, c := range n.Children {
			sortTree(c)
		}
	}
	sortNodes(forest)
	for _, n := range forest {
		sortTree(n)
	}
	return forest
}
