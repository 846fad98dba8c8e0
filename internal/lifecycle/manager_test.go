package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func component(j *journal, name string, startErr, stopErr error) *Func {
	return &Func{
		ComponentName: name,
		OnStart: func(context.Context) error {
			j.add("start " + name)
			return startErr
		},
		OnStop: func(context.Context) error {
			j.add("stop " + name)
			return stopErr
		},
	}
}

func TestManagerOrder(t *testing.T) {
	j := &journal{}
	m := NewManager()

	tracing := component(j, "tracing", nil, nil)
	container := component(j, "container", nil, nil)
	server := component(j, "metrics", nil, nil)
	watcher := component(j, "watcher", nil, nil)

	require.NoError(t, m.Register(tracing))
	require.NoError(t, m.Register(container, tracing))
	require.NoError(t, m.Register(server))
	require.NoError(t, m.Register(watcher, container))

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.IsRunning(watcher))
	require.NoError(t, m.Stop(context.Background()))
	assert.False(t, m.IsRunning(watcher))

	assert.Equal(t, []string{
		"start tracing", "start container", "start metrics", "start watcher",
		"stop watcher", "stop metrics", "stop container", "stop tracing",
	}, j.list())
}

func TestManagerRegisterValidation(t *testing.T) {
	j := &journal{}
	m := NewManager()
	a := component(j, "a", nil, nil)

	assert.Error(t, m.Register(nil))
	assert.Error(t, m.Register(&Func{}))
	assert.Error(t, m.Register(a, component(j, "unregistered", nil, nil)))
	require.NoError(t, m.Register(a))
	assert.Error(t, m.Register(a))
}

func TestManagerStartRollback(t *testing.T) {
	j := &journal{}
	m := NewManager()
	boom := errors.New("boom")

	a := component(j, "a", nil, nil)
	b := component(j, "b", boom, nil)
	c := component(j, "c", nil, nil)
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b, a))
	require.NoError(t, m.Register(c, b))

	err := m.Start(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to start b")

	assert.Equal(t, []string{"start a", "start b", "stop a"}, j.list())
	assert.False(t, m.IsRunning(a))
}

func TestManagerStopCollectsErrors(t *testing.T) {
	j := &journal{}
	m := NewManager()
	first := errors.New("first")
	second := errors.New("second")

	require.NoError(t, m.Register(component(j, "a", nil, first)))
	require.NoError(t, m.Register(component(j, "b", nil, nil)))
	require.NoError(t, m.Register(component(j, "c", nil, second)))
	require.NoError(t, m.Start(context.Background()))

	err := m.Stop(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Equal(t, []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"}, j.list())

	// a second stop has nothing left to do
	require.NoError(t, m.Stop(context.Background()))
}
