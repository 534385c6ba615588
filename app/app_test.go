package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/scaffold"
	"github.com/GoCodeAlone/scaffold/controller"
	"github.com/GoCodeAlone/scaffold/scheduler"
)

type mockLogger struct {
	mu    sync.Mutex
	infos []string
}

func (l *mockLogger) Debug(msg string, args ...interface{}) {}

func (l *mockLogger) Info(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *mockLogger) Warn(msg string, args ...interface{})  {}
func (l *mockLogger) Error(msg string, args ...interface{}) {}

type pingController struct{}

func (c *pingController) Name() string  { return "ping" }
func (c *pingController) Route() string { return "/ping" }

func (c *pingController) Handlers() []controller.Handler {
	return []controller.Handler{
		{
			Method: scaffold.MethodGet,
			Path:   "/",
			Func: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("pong"))
			},
		},
	}
}

func testConfig() *scaffold.Config {
	cfg := scaffold.NewConfig()
	// Port 0 keeps test listeners from colliding.
	cfg.Listen = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2
	return cfg
}

// startApp runs the full startup sequence and arranges teardown.
func startApp(t *testing.T, a *Application) {
	t.Helper()
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx)
	})
}

func TestStartServesControllers(t *testing.T) {
	a := New(testConfig(), &mockLogger{})
	require.NoError(t, a.Controllers().Register(&pingController{}))
	startApp(t, a)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestStartWithoutControllersFails(t *testing.T) {
	a := New(testConfig(), &mockLogger{})
	err := a.Start(context.Background())
	assert.ErrorIs(t, err, controller.ErrNoControllers)
}

func TestDoubleStart(t *testing.T) {
	a := New(testConfig(), &mockLogger{})
	require.NoError(t, a.Controllers().Register(&pingController{}))
	startApp(t, a)

	assert.ErrorIs(t, a.Start(context.Background()), ErrAlreadyStarted)
}

func TestRoutesEndpoint(t *testing.T) {
	a := New(testConfig(), &mockLogger{})
	require.NoError(t, a.Controllers().Register(&pingController{}))
	startApp(t, a)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/__routes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var routes []scaffold.RegisteredRoute
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &routes))
	require.Len(t, routes, 1)
	assert.Equal(t, scaffold.MethodGet, routes[0].Method)
	assert.Equal(t, "/ping", routes[0].Path)
	assert.Equal(t, "ping", routes[0].Source)
}

func TestMetricsEndpoint(t *testing.T) {
	a := New(testConfig(), &mockLogger{})
	require.NoError(t, a.Controllers().Register(&pingController{}))
	startApp(t, a)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scaffold_routes")
}

func TestHookPhaseOrderDuringStart(t *testing.T) {
	a := New(testConfig(), &mockLogger{})
	require.NoError(t, a.Controllers().Register(&pingController{}))

	var phases []scaffold.HookPhase
	for _, phase := range []scaffold.HookPhase{
		scaffold.PhaseInitialize,
		scaffold.PhaseStartup,
		scaffold.PhasePreInit,
		scaffold.PhaseCustomMiddleware,
		scaffold.PhasePostInit,
	} {
		phase := phase
		require.NoError(t, a.Hooks().On(phase, func(ctx context.Context, hctx *scaffold.HookContext) error {
			phases = append(phases, phase)
			return nil
		}))
	}

	startApp(t, a)

	assert.Equal(t, []scaffold.HookPhase{
		scaffold.PhaseInitialize,
		scaffold.PhaseStartup,
		scaffold.PhasePreInit,
		scaffold.PhaseCustomMiddleware,
		scaffold.PhasePostInit,
	}, phases)
}

func TestStopEmitsShutdownHook(t *testing.T) {
	a := New(testConfig(), &mockLogger{})
	require.NoError(t, a.Controllers().Register(&pingController{}))

	var shutdownRan bool
	require.NoError(t, a.Hooks().On(scaffold.PhaseShutdown, func(ctx context.Context, hctx *scaffold.HookContext) error {
		shutdownRan = true
		return nil
	}))

	require.NoError(t, a.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))
	assert.True(t, shutdownRan)
}

func TestSchedulerRegisteredAsService(t *testing.T) {
	a := New(testConfig(), &mockLogger{})
	require.NoError(t, a.Controllers().Register(&pingController{}))
	startApp(t, a)

	svc, err := a.Services().Get(SchedulerServiceName)
	require.NoError(t, err)
	assert.Same(t, a.Scheduler(), svc)
}

func TestSchedulerJobsBoundAtStartup(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Jobs = []scaffold.JobConfig{
		{Name: "cleanup", Cron: "@hourly", Module: "cleanup"},
	}

	a := New(cfg, &mockLogger{})
	require.NoError(t, a.Controllers().Register(&pingController{}))
	a.RegisterJobModule("cleanup", scheduler.JobFunc(func(ctx context.Context, options map[string]any) error {
		return nil
	}))
	startApp(t, a)

	assert.True(t, a.Scheduler().HasTask("cleanup"))
}

func TestSchedulerUnknownModuleIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Jobs = []scaffold.JobConfig{
		{Name: "cleanup", Cron: "@hourly", Module: "ghost"},
	}

	a := New(cfg, &mockLogger{})
	require.NoError(t, a.Controllers().Register(&pingController{}))

	err := a.Start(context.Background())
	assert.ErrorIs(t, err, ErrUnknownJobModule)
}

func TestStandaloneSchedulerWithClusterIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Mode = scaffold.SchedulerModeStandalone
	cfg.Cluster.Enabled = true

	a := New(cfg, &mockLogger{})
	require.NoError(t, a.Controllers().Register(&pingController{}))

	err := a.Start(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerClusterConflict)
}

func TestAttachedSchedulerWithClusterIsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Mode = scaffold.SchedulerModeAttached
	cfg.Cluster.Enabled = true
	cfg.Scheduler.Jobs = []scaffold.JobConfig{
		{Name: "cleanup", Cron: "@hourly", Module: "cleanup"},
	}

	a := New(cfg, &mockLogger{})
	require.NoError(t, a.Controllers().Register(&pingController{}))
	// The module is never resolved because the scheduler is disabled.
	startApp(t, a)

	assert.False(t, a.Scheduler().HasTask("cleanup"))
}

func TestEndToEndBasicAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Basic.Enabled = true
	cfg.Auth.Basic.Users = scaffold.UserTable{"alice": "secret"}

	a := New(cfg, &mockLogger{})
	require.NoError(t, a.Controllers().Register(&securedController{}))
	startApp(t, a)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.SetBasicAuth("alice", "secret")
	rec = httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type securedController struct{}

func (c *securedController) Name() string  { return "private" }
func (c *securedController) Route() string { return "/private" }

func (c *securedController) Handlers() []controller.Handler {
	return []controller.Handler{
		{
			Method: scaffold.MethodGet,
			Path:   "/",
			Secure: "basic",
			Func: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
		},
	}
}
