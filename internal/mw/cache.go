package mw

import (
	"bytes"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// CacheStatusHeader reports whether a response came from the cache.
const CacheStatusHeader = "X-Cache"

// ResponseStore holds cached responses together with a generation counter
// that Invalidate advances. A response computed during an older generation
// is never stored.
type ResponseStore struct {
	*cache.Cache

	mu         sync.Mutex
	generation atomic.Uint64
}

// NewResponseStore wraps c for use by Cache and Invalidate.
func NewResponseStore(c *cache.Cache) *ResponseStore {
	return &ResponseStore{Cache: c}
}

func (s *ResponseStore) setIfCurrent(key string, resp cachedResponse, d time.Duration, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation.Load() != generation {
		return
	}
	s.Set(key, resp, d)
}

func (s *ResponseStore) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation.Add(1)
	s.Flush()
}

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache is a middleware for in-memory caching of GET requests.
func Cache(store *ResponseStore, duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if resp, found := store.Get(key); found {
			cached := resp.(cachedResponse)
			for k, v := range cached.headers {
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set(CacheStatusHeader, "HIT")
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		// Read before the handler runs, so a write committed while it runs
		// keeps its response out of the cache.
		generation := store.generation.Load()

		c.Writer.Header().Set(CacheStatusHeader, "MISS")
		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		// Only cache successful responses
		if blw.Status() >= 200 && blw.Status() < 300 {
			headers := blw.Header().Clone()
			headers.Del(CacheStatusHeader)
			headers.Del(RequestIDHeader)
			response := cachedResponse{
				status:  blw.Status(),
				headers: headers,
				body:    blw.body.Bytes(),
			}
			store.setIfCurrent(key, response, duration, generation)
		}
	}
}

// Invalidate drops every cached response after a mutation that was not
// rejected with a 4xx. A 5xx may follow a commit whose outcome is unknown.
// Occupancy is shared between rooms and registrations, so a single write can
// stale any cached listing.
func Invalidate(store *ResponseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		if status := c.Writer.Status(); status < 400 || status >= 500 {
			store.invalidate()
		}
	}
}
