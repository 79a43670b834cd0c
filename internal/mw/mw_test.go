package mw

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	return w
}

func TestCache_ServesAndInvalidates(t *testing.T) {
	store := NewResponseStore(cache.New(time.Minute, 10*time.Minute))
	t.Cleanup(store.Flush)

	hits := 0
	r := gin.New()
	r.Use(Invalidate(store))
	r.GET("/rooms", Cache(store, time.Minute), func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.POST("/rooms", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.POST("/fail", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.POST("/unavailable", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	w := perform(r, http.MethodGet, "/rooms", nil)
	assert.Equal(t, "MISS", w.Header().Get(CacheStatusHeader))
	assert.JSONEq(t, `{"hits":1}`, w.Body.String())

	w = perform(r, http.MethodGet, "/rooms", nil)
	assert.Equal(t, "HIT", w.Header().Get(CacheStatusHeader))
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"hits":1}`, w.Body.String())

	// A rejected write leaves the cache alone.
	perform(r, http.MethodPost, "/fail", nil)
	w = perform(r, http.MethodGet, "/rooms", nil)
	assert.JSONEq(t, `{"hits":1}`, w.Body.String())

	perform(r, http.MethodPost, "/rooms", nil)
	w = perform(r, http.MethodGet, "/rooms", nil)
	assert.Equal(t, "MISS", w.Header().Get(CacheStatusHeader))
	assert.JSONEq(t, `{"hits":2}`, w.Body.String())

	// A failed commit may still have applied.
	perform(r, http.MethodPost, "/unavailable", nil)
	w = perform(r, http.MethodGet, "/rooms", nil)
	assert.Equal(t, "MISS", w.Header().Get(CacheStatusHeader))
	assert.JSONEq(t, `{"hits":3}`, w.Body.String())
}

func TestCache_WriteDuringReadIsNotMasked(t *testing.T) {
	store := NewResponseStore(cache.New(time.Minute, 10*time.Minute))

	var occupancy atomic.Int64
	read := make(chan struct{}, 1)
	release := make(chan struct{})

	r := gin.New()
	r.Use(Invalidate(store))
	r.GET("/rooms", Cache(store, time.Minute), func(c *gin.Context) {
		seen := occupancy.Load()
		if c.Query("hold") != "" {
			read <- struct{}{}
			<-release
		}
		c.JSON(http.StatusOK, gin.H{"occupancy": seen})
	})
	r.POST("/registrations", func(c *gin.Context) {
		occupancy.Add(1)
		c.Status(http.StatusCreated)
	})

	// The read finishes after the write has been committed and invalidated.
	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- perform(r, http.MethodGet, "/rooms?hold=1", nil) }()
	<-read
	require.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/registrations", nil).Code)
	close(release)
	stale := <-done
	assert.JSONEq(t, `{"occupancy":0}`, stale.Body.String())

	w := perform(r, http.MethodGet, "/rooms?hold=1", nil)
	assert.Equal(t, "MISS", w.Header().Get(CacheStatusHeader))
	assert.JSONEq(t, `{"occupancy":1}`, w.Body.String())
	assert.Equal(t, 1, store.ItemCount())
}

func TestCache_SkipsErrors(t *testing.T) {
	store := NewResponseStore(cache.New(time.Minute, 10*time.Minute))

	r := gin.New()
	r.GET("/missing", Cache(store, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	perform(r, http.MethodGet, "/missing", nil)
	assert.Zero(t, store.ItemCount())
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2, "X-Real-IP"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := http.Header{"X-Real-Ip": {"10.0.0.1"}}
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/", first).Code)
	}
	w := perform(r, http.MethodGet, "/", first)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":{"kind":"rate_limited","message":"too many requests"}}`, w.Body.String())

	// Another client has its own bucket.
	second := http.Header{"X-Real-Ip": {"10.0.0.2, 172.16.0.1"}}
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/", second).Code)
}

func TestIPRateLimiter_ReusesLimiter(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)
	assert.Same(t, l.GetLimiter("a"), l.GetLimiter("a"))
	assert.Same(t, l.GetLimiter("b"), l.AddIP("b"))
	assert.NotSame(t, l.GetLimiter("a"), l.GetLimiter("b"))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seen string
	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/boom", func(c *gin.Context) {
		seen = RequestID(c)
		c.Status(http.StatusInternalServerError)
	})

	w := perform(r, http.MethodGet, "/boom", nil)
	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, seen)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, id, entry["request_id"])
	assert.Equal(t, float64(http.StatusInternalServerError), entry["status"])

	// An incoming ID is propagated.
	w = perform(r, http.MethodGet, "/boom", http.Header{RequestIDHeader: {"upstream-1"}})
	assert.Equal(t, "upstream-1", w.Header().Get(RequestIDHeader))
}
