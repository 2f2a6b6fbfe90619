package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatguard/middleware/ratelimit/domain"
	"chatguard/middleware/ratelimit/infra"
)

func TestResetHandler_ClearsCounters(t *testing.T) {
	lim := infra.NewFixedWindow(time.Minute)
	require.True(t, lim.Allow("ip1_auth", 1))
	require.False(t, lim.Allow("ip1_auth", 1))

	h := RequireBearer("s3cret")(ResetHandler(lim, nil))

	r := httptest.NewRequest(http.MethodPost, "http://example/admin/ratelimit/reset", nil)
	r.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, lim.Len())
	assert.True(t, lim.Allow("ip1_auth", 1))
}

func TestResetHandler_RejectsWrongTokenAndMethod(t *testing.T) {
	lim := infra.NewFixedWindow(time.Minute)
	lim.Allow("k", 1)
	h := RequireBearer("s3cret")(ResetHandler(lim, nil))

	for _, auth := range []string{"", "Bearer nope", "s3cret", "Basic s3cret"} {
		r := httptest.NewRequest(http.MethodPost, "http://example/", nil)
		if auth != "" {
			r.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code, auth)
	}

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	assert.Equal(t, 1, lim.Len(), "counters untouched")
}

func TestRequireBearer_EmptyTokenDisablesCheck(t *testing.T) {
	h := RequireBearer("")(ResetHandler(infra.NewFixedWindow(time.Minute), nil))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "http://example/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestInspectHandler(t *testing.T) {
	lim := infra.NewFixedWindow(time.Minute)
	lim.Allow("ip1_auth", 5)
	lim.Allow("ip1_auth", 5)
	h := InspectHandler(lim)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/?client=ip1&class=auth", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Key           string `json:"key"`
		Count         int    `json:"count"`
		WindowSeconds int    `json:"window_seconds"`
		TrackedKeys   int    `json:"tracked_keys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ip1_auth", body.Key)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, 60, body.WindowSeconds)
	assert.Equal(t, 1, body.TrackedKeys)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/?key=ip2_auth", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInspectHandler_UnsupportedLimiter(t *testing.T) {
	w := httptest.NewRecorder()
	InspectHandler(infra.NewTokenBucket(time.Minute)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/?key=k", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestStatsHandler(t *testing.T) {
	mem := infra.NewMemoryStatsStore()
	require.NoError(t, mem.Record(context.Background(), domain.StatsEvent{Class: domain.ClassSensitive, Allowed: false, Method: "POST", Path: "/auth/signin"}))

	w := httptest.NewRecorder()
	StatsHandler(mem, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Total   infra.Counters            `json:"total"`
		ByClass map[string]infra.Counters `json:"by_class"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.Total.Denied)
	assert.Equal(t, int64(1), body.ByClass["auth"].Denied)

	w = httptest.NewRecorder()
	StatsHandler(nil, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type staticTotals struct {
	c   infra.Counters
	err error
}

func (s staticTotals) Total(context.Context) (infra.Counters, error) { return s.c, s.err }

func TestStatsHandler_IncludesSharedTotals(t *testing.T) {
	mem := infra.NewMemoryStatsStore()

	w := httptest.NewRecorder()
	StatsHandler(mem, staticTotals{c: infra.Counters{Allowed: 40, Denied: 2}}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Shared infra.Counters `json:"shared_total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, infra.Counters{Allowed: 40, Denied: 2}, body.Shared)

	w = httptest.NewRecorder()
	StatsHandler(mem, staticTotals{err: errors.New("redis down")}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"shared_error":"redis down"`)
}
