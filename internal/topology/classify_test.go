package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func container(id, name, state string, labels map[string]string) RuntimeObject {
	return RuntimeObject{
		ID:     id,
		Kind:   ObjectContainer,
		Name:   name,
		State:  state,
		Labels: labels,
	}
}

func TestClassifyStandaloneContainer(t *testing.T) {
	c := NewClassifier(PreferSwarm)
	forest, conflicts := c.Classify([]RuntimeObject{
		container("abc123", "redis", "running", nil),
	})

	require.Len(t, forest, 1)
	assert.Empty(t, conflicts)
	assert.Equal(t, "container/redis", forest[0].Key)
	assert.Equal(t, KindStandaloneContainer, forest[0].Kind)
	assert.Equal(t, StateRunning, forest[0].State)
	assert.Empty(t, forest[0].Children)
}

func TestClassifyComposeProject(t *testing.T) {
	objects := []RuntimeObject{
		container("c1", "shop-web-1", "running", map[string]string{
			LabelComposeProject: "shop",
			LabelComposeService: "web",
		}),
		container("c2", "shop-web-2", "exited", map[string]string{
			LabelComposeProject: "shop",
			LabelComposeService: "web",
		}),
		container("c3", "shop-db-1", "running", map[string]string{
			LabelComposeProject: "shop",
			LabelComposeService: "db",
		}),
	}

	forest, conflicts := NewClassifier(PreferSwarm).Classify(objects)

	require.Len(t, forest, 1)
	assert.Empty(t, conflicts)

	root := forest[0]
	assert.Equal(t, "project/shop", root.Key)
	assert.Equal(t, KindComposeProject, root.Kind)
	require.Len(t, root.Children, 2)

	// Children sorted by key: db before web.
	db, web := root.Children[0], root.Children[1]
	assert.Equal(t, "project/shop/db", db.Key)
	assert.Equal(t, "project/shop/web", web.Key)
	require.Len(t, web.Children, 2)
	assert.Equal(t, "project/shop/web/shop-web-1", web.Children[0].Key)

	// 1 of 2 web replicas running -> degraded service, degraded project.
	assert.Equal(t, StateDegraded, web.State)
	assert.Equal(t, StateRunning, db.State)
	assert.Equal(t, StateDegraded, root.State)
}

func TestClassifySwarmStack(t *testing.T) {
	objects := []RuntimeObject{
		container("t1", "mon_prometheus.1.xyz", "running", map[string]string{
			LabelSwarmStack:   "mon",
			LabelSwarmService: "mon_prometheus",
		}),
	}

	forest, conflicts := NewClassifier(PreferSwarm).Classify(objects)

	require.Len(t, forest, 1)
	assert.Empty(t, conflicts)
	assert.Equal(t, "stack/mon", forest[0].Key)
	assert.Equal(t, KindSwarmStack, forest[0].Kind)

	require.Len(t, forest[0].Children, 1)
	svc := forest[0].Children[0]
	assert.Equal(t, "stack/mon/prometheus", svc.Key)
	assert.Equal(t, "prometheus", svc.DisplayName)
	assert.Equal(t, KindSwarmService, svc.Kind)
	require.Len(t, svc.Children, 1)
}

func TestClassifyServiceObjectWithoutTasks(t *testing.T) {
	// A swarm service with zero running tasks must still appear, stopped.
	objects := []RuntimeObject{
		{
			ID:     "svc1",
			Kind:   ObjectService,
			Name:   "mon_grafana",
			Labels: map[string]string{LabelSwarmStack: "mon"},
		},
	}

	forest, _ := NewClassifier(PreferSwarm).Classify(objects)

	require.Len(t, forest, 1)
	require.Len(t, forest[0].Children, 1)
	svc := forest[0].Children[0]
	assert.Equal(t, "stack/mon/grafana", svc.Key)
	assert.Equal(t, StateStopped, svc.State)
}

func TestClassifyGroupedWithoutServiceLabel(t *testing.T) {
	// Project label but no service label: direct child of the root group,
	// no synthetic service layer.
	objects := []RuntimeObject{
		container("c1", "helper", "running", map[string]string{
			LabelComposeProject: "shop",
		}),
	}

	forest, _ := NewClassifier(PreferSwarm).Classify(objects)

	require.Len(t, forest, 1)
	require.Len(t, forest[0].Children, 1)
	assert.Equal(t, "project/shop/helper", forest[0].Children[0].Key)
	assert.Equal(t, KindContainerInstance, forest[0].Children[0].Kind)
}

func TestClassifyPrecedence(t *testing.T) {
	both := map[string]string{
		LabelSwarmStack:     "S",
		LabelSwarmService:   "S_app",
		LabelComposeProject: "P",
		LabelComposeService: "app",
	}

	tests := []struct {
		name         string
		prefer       Precedence
		wantRootKey  string
		wantRootKind NodeKind
	}{
		{name: "swarm wins by default", prefer: PreferSwarm, wantRootKey: "stack/S", wantRootKind: KindSwarmStack},
		{name: "compose wins when configured", prefer: PreferCompose, wantRootKey: "project/P", wantRootKind: KindComposeProject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forest, conflicts := NewClassifier(tt.prefer).Classify([]RuntimeObject{
				container("c1", "app.1.abc", "running", both),
			})

			require.Len(t, forest, 1)
			assert.Equal(t, tt.wantRootKey, forest[0].Key)
			assert.Equal(t, tt.wantRootKind, forest[0].Kind)

			// The dual-ownership condition is surfaced exactly once.
			require.Len(t, conflicts, 1)
			assert.Equal(t, "S", conflicts[0].Stack)
			assert.Equal(t, "P", conflicts[0].Project)
		})
	}
}

func TestClassifyStacklessSwarmService(t *testing.T) {
	objects := []RuntimeObject{
		container("t1", "lonely.1.abc", "running", map[string]string{
			LabelSwarmService: "lonely",
		}),
	}

	forest, _ := NewClassifier(PreferSwarm).Classify(objects)

	require.Len(t, forest, 1)
	assert.Equal(t, "service/lonely", forest[0].Key)
	assert.Equal(t, KindSwarmService, forest[0].Kind)
	require.Len(t, forest[0].Children, 1)
}

func TestClassifyDuplicateKeyConflict(t *testing.T) {
	objects := []RuntimeObject{
		container("aaaaaaaaaaaaaaaa", "web", "running", map[string]string{LabelComposeProject: "p", LabelComposeService: "s"}),
		container("bbbbbbbbbbbbbbbb", "web", "running", map[string]string{LabelComposeProject: "p", LabelComposeService: "s"}),
	}

	forest, conflicts := NewClassifier(PreferSwarm).Classify(objects)

	require.Len(t, conflicts, 1)
	assert.Equal(t, "project/p/s/web", conflicts[0].Key)

	svc := forest.Find("project/p/s")
	require.NotNil(t, svc)
	require.Len(t, svc.Children, 2)
	assert.NotEqual(t, svc.Children[0].Key, svc.Children[1].Key)
}

func TestClassifyIdempotence(t *testing.T) {
	objects := []RuntimeObject{
		container("c1", "a", "running", map[string]string{LabelComposeProject: "p", LabelComposeService: "web"}),
		container("c2", "b", "exited", map[string]string{LabelSwarmStack: "s", LabelSwarmService: "s_api"}),
		container("c3", "c", "running", nil),
	}

	c := NewClassifier(PreferSwarm)
	first, _ := c.Classify(objects)
	second, _ := c.Classify(objects)

	var firstKeys, secondKeys []string
	first.Walk(func(n *Node) bool { firstKeys = append(firstKeys, n.Key); return true })
	second.Walk(func(n *Node) bool { secondKeys = append(secondKeys, n.Key); return true })

	assert.Equal(t, firstKeys, secondKeys)
}

func TestParsePrecedence(t *testing.T) {
	assert.Equal(t, PreferSwarm, ParsePrecedence("swarm"))
	assert.Equal(t, PreferSwarm, ParsePrecedence(""))
	assert.Equal(t, PreferSwarm, ParsePrecedence("garbage"))
	assert.Equal(t, PreferCompose, ParsePrecedence("compose"))
	assert.Equal(t, PreferCompose, ParsePrecedence("Compose"))
}
