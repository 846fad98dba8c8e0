package furnace

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/codeunit"
	"github.com/forge/furnace-sub000/internal/events"
	"github.com/forge/furnace-sub000/internal/repository"
	"github.com/forge/furnace-sub000/internal/versions"
)

func id(s string) addon.ID {
	parsed, err := addon.ParseID(s)
	if err != nil {
		panic(err)
	}
	return parsed
}

func dep(name, rng string) addon.DependencyEntry {
	r, err := versions.ParseRange(rng)
	if err != nil {
		panic(err)
	}
	return addon.DependencyEntry{Name: name, Range: r}
}

func exported(e addon.DependencyEntry) addon.DependencyEntry {
	e.Exported = true
	return e
}

func optional(e addon.DependencyEntry) addon.DependencyEntry {
	e.Optional = true
	return e
}

// recorder keeps an ordered log of lifecycle events.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// index returns the position of event, or -1.
func (r *recorder) index(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e == event {
			return i
		}
	}
	return -1
}

type recordingListener struct {
	events.NopListener
	rec *recorder
}

func (l *recordingListener) BeforeStart(context.Context) error {
	l.rec.add("before-start")
	return nil
}

func (l *recordingListener) AfterStart(context.Context) error {
	l.rec.add("after-start")
	return nil
}

func (l *recordingListener) BeforeStop(context.Context) error {
	l.rec.add("before-stop")
	return nil
}

func (l *recordingListener) AfterStop(context.Context) error {
	l.rec.add("after-stop")
	return nil
}

func (l *recordingListener) BeforeConfigurationScan(context.Context) error {
	l.rec.add("before-scan")
	return nil
}

func (l *recordingListener) AfterConfigurationScan(context.Context) error {
	l.rec.add("after-scan")
	return nil
}

func (l *recordingListener) PostStartup(_ context.Context, id addon.ID) error {
	l.rec.add("post:" + id.String())
	return nil
}

func (l *recordingListener) PreShutdown(_ context.Context, id addon.ID) error {
	l.rec.add("pre:" + id.String())
	return nil
}

// behavior controls the code unit of one test addon.
type behavior struct {
	startErr error
	stopErr  error
	block    chan struct{}
	delay    time.Duration
	services map[string]any

	starts atomic.Int32
	stops  atomic.Int32
}

type fixture struct {
	t        *testing.T
	f        *Furnace
	repo     *repository.Memory
	registry *codeunit.FactoryRegistry
	rec      *recorder

	mu        sync.Mutex
	behaviors map[string]*behavior
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	fx := &fixture{
		t:         t,
		repo:      repository.NewMemory("local"),
		registry:  codeunit.NewFactoryRegistry(),
		rec:       &recorder{},
		behaviors: make(map[string]*behavior),
	}
	opts.Provider = codeunit.NewFactoryProvider(fx.registry)
	if opts.StartTimeout == 0 {
		opts.StartTimeout = 5 * time.Second
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = 5 * time.Second
	}
	if opts.Workers == 0 {
		opts.Workers = 4
	}

	f, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, f.AddRepository(fx.repo))
	f.AddListener(&recordingListener{rec: fx.rec})
	fx.f = f
	t.Cleanup(func() { _ = f.Stop(context.Background()) })
	return fx
}

// deploy deploys and enables s ("name:version") in the local repository.
func (fx *fixture) deploy(s string, deps ...addon.DependencyEntry) *behavior {
	fx.t.Helper()
	return fx.deployTo(fx.repo, s, deps...)
}

func (fx *fixture) deployTo(repo *repository.Memory, s string, deps ...addon.DependencyEntry) *behavior {
	fx.t.Helper()
	b := fx.behavior(id(s))
	require.NoError(fx.t, repo.DeployEnabled(id(s), deps...))
	return b
}

func (fx *fixture) behavior(i addon.ID) *behavior {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	b, ok := fx.behaviors[i.String()]
	if !ok {
		b = &behavior{}
		fx.behaviors[i.String()] = b
	}
	if _, registered := fx.registry.Get(i.Name); !registered {
		require.NoError(fx.t, fx.registry.Register(i.Name, fx.factory))
	}
	return b
}

func (fx *fixture) factory(_ context.Context, _ string, i addon.ID, _ []string) (codeunit.Unit, error) {
	b := fx.behavior(i)
	name := i.String()
	return &codeunit.Funcs{
		OnStart: func(ctx context.Context) error {
			fx.rec.add("start:" + name)
			b.starts.Add(1)
			if b.delay > 0 {
				time.Sleep(b.delay)
			}
			if b.block != nil {
				select {
				case <-b.block:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return b.startErr
		},
		OnStop: func(context.Context) error {
			fx.rec.add("stop:" + name)
			b.stops.Add(1)
			return b.stopErr
		},
		Provides: b.services,
	}, nil
}

func (fx *fixture) start() {
	fx.t.Helper()
	require.NoError(fx.t, fx.f.Start(context.Background()))
}

func (fx *fixture) update() {
	fx.t.Helper()
	require.NoError(fx.t, fx.f.ForceUpdate(context.Background()))
}

func (fx *fixture) addon(s string) *Addon {
	fx.t.Helper()
	a, err := fx.f.Registry().Addon(context.Background(), id(s))
	require.NoError(fx.t, err)
	return a
}

func (fx *fixture) status(a *Addon) addon.Status {
	fx.t.Helper()
	s, err := a.Status(context.Background())
	require.NoError(fx.t, err)
	return s
}

func (fx *fixture) waitStarted(s string) {
	fx.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(fx.t, fx.addon(s).WaitUntilStarted(ctx))
}

func (fx *fixture) ids(view *View, filters ...addon.Filter) []string {
	fx.t.Helper()
	addons, err := view.Addons(context.Background(), filters...)
	require.NoError(fx.t, err)
	out := make([]string, 0, len(addons))
	for _, a := range addons {
		out = append(out, a.ID().String())
	}
	return out
}

// logBuffer is a log sink safe to read while start tasks write to it.
type logBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
