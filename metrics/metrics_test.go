package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreIndependent(t *testing.T) {
	// Two collectors in one process must not collide on registration.
	a := New()
	b := New()

	a.AuthFailure("invalid_credentials")
	assert.Equal(t, float64(1), testutil.ToFloat64(a.AuthFailures.WithLabelValues("invalid_credentials")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.AuthFailures.WithLabelValues("invalid_credentials")))
}

func TestCollectorHelpers(t *testing.T) {
	c := New()

	c.SetRoutes("GET", "jwt", 4)
	c.SetConflicts(2)
	c.SetServices(7)
	c.JobRun("cleanup", "success")
	c.JobSkip("cleanup", "running")

	assert.Equal(t, float64(4), testutil.ToFloat64(c.Routes.WithLabelValues("GET", "jwt")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.RouteConflicts))
	assert.Equal(t, float64(7), testutil.ToFloat64(c.Services))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.SchedulerRuns.WithLabelValues("cleanup", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.SchedulerSkips.WithLabelValues("cleanup", "running")))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.SetRoutes("GET", "none", 1)
		c.SetConflicts(0)
		c.SetServices(0)
		c.AuthFailure("policy")
		c.JobRun("job", "success")
		c.JobSkip("job", "running")
	})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.SetConflicts(3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scaffold_route_conflicts 3")
}
