package daemon

import (
	"context"
	"fmt"
	"testing"

	"github.com/harunnryd/hanko/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockComponent struct {
	name         string
	dependencies []string
	initCalled   bool
	startCalled  bool
	stopCalled   bool
	initError    error
	startError   error
	stopError    error
	healthResult *ComponentHealth
}

func newMockComponent(name string, dependencies []string) *mockComponent {
	return &mockComponent{
		name:         name,
		dependencies: dependencies,
		healthResult: &ComponentHealth{Name: name, Healthy: true},
	}
}

func (m *mockComponent) Name() string           { return m.name }
func (m *mockComponent) Dependencies() []string { return m.dependencies }

func (m *mockComponent) Init(ctx context.Context) error {
	m.initCalled = true
	return m.initError
}

func (m *mockComponent) Start(ctx context.Context) error {
	m.startCalled = true
	return m.startError
}

func (m *mockComponent) Stop(ctx context.Context) error {
	m.stopCalled = true
	return m.stopError
}

func (m *mockComponent) Health(ctx context.Context) (*ComponentHealth, error) {
	return m.healthResult, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Port = 8080
	cfg.Store.Path = t.TempDir()
	return cfg
}

func TestNewDaemonRequiresConfig(t *testing.T) {
	_, err := NewDaemon(nil)
	assert.Error(t, err)

	d, err := NewDaemon(testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, StatusStarting, d.Health())
}

func TestResolveInitOrderFollowsDependencies(t *testing.T) {
	d, err := NewDaemon(testConfig(t))
	require.NoError(t, err)

	store := newMockComponent("ApprovalStore", nil)
	engine := newMockComponent("Engine", []string{"ApprovalStore"})
	ingress := newMockComponent("Ingress", []string{"ApprovalStore", "Engine"})

	// Registered out of order on purpose.
	d.AddComponent(ingress)
	d.AddComponent(engine)
	d.AddComponent(store)

	order, err := d.resolveInitOrder()
	require.NoError(t, err)

	pos := make(map[string]int)
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["ApprovalStore"], pos["Engine"])
	assert.Less(t, pos["Engine"], pos["Ingress"])
}

func TestResolveInitOrderDetectsCycle(t *testing.T) {
	d, err := NewDaemon(testConfig(t))
	require.NoError(t, err)

	a := newMockComponent("A", []string{"B"})
	b := newMockComponent("B", []string{"A"})
	d.AddComponent(a)
	d.AddComponent(b)

	_, err = d.resolveInitOrder()
	assert.ErrorContains(t, err, "circular dependency")
}

func TestValidateDependenciesRejectsUnknown(t *testing.T) {
	d, err := NewDaemon(testConfig(t))
	require.NoError(t, err)

	d.AddComponent(newMockComponent("Engine", []string{"Missing"}))

	err = d.validateDependencies()
	assert.ErrorContains(t, err, "Missing")
}

func TestInitializeComponentsStopsOnFailure(t *testing.T) {
	d, err := NewDaemon(testConfig(t))
	require.NoError(t, err)

	store := newMockComponent("ApprovalStore", nil)
	engine := newMockComponent("Engine", []string{"ApprovalStore"})
	engine.initError = fmt.Errorf("boom")
	ingress := newMockComponent("Ingress", []string{"Engine"})

	d.AddComponent(store)
	d.AddComponent(engine)
	d.AddComponent(ingress)

	err = d.initializeComponents(context.Background())
	require.Error(t, err)
	assert.True(t, store.initCalled)
	assert.True(t, engine.initCalled)
	assert.False(t, ingress.initCalled)
}

func TestShutdownReversesRegistrationOrder(t *testing.T) {
	d, err := NewDaemon(testConfig(t))
	require.NoError(t, err)

	first := newMockComponent("First", nil)
	second := newMockComponent("Second", nil)
	d.AddComponent(first)
	d.AddComponent(second)

	// shutdownOrder is maintained as reverse of registration.
	assert.Equal(t, []string{"Second", "First"}, d.shutdownOrder)

	require.NoError(t, d.shutdownComponents(context.Background()))
	assert.True(t, first.stopCalled)
	assert.True(t, second.stopCalled)
	assert.Equal(t, StatusStopped, d.Health())
}

func TestComponentHealthAggregation(t *testing.T) {
	d, err := NewDaemon(testConfig(t))
	require.NoError(t, err)

	healthy := newMockComponent("Healthy", nil)
	sick := newMockComponent("Sick", nil)
	sick.healthResult = &ComponentHealth{Name: "Sick", Healthy: false, Error: fmt.Errorf("down")}

	d.AddComponent(healthy)
	d.AddComponent(sick)

	healths := d.ComponentHealth()
	require.Len(t, healths, 2)
	assert.True(t, healths["Healthy"].Healthy)
	assert.False(t, healths["Sick"].Healthy)
}
