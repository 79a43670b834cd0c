package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel-allocation-backend/config"
)

var testStudents = []Student{
	{ID: 42, FirstName: "Asha", LastName: "Rao", RollNumber: "CS-042", Program: "B.Tech"},
	{ID: 7, FirstName: "Arjun", LastName: "Mehta", RollNumber: "ME-007", Program: "B.Tech"},
}

// newDirectoryServer mocks the upstream directory and counts requests.
func newDirectoryServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /students", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("X-Api-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var resp searchResponse
		if r.URL.Query().Get("q") == "ar" {
			resp.Data.Items = testStudents
			resp.Data.Total = len(testStudents)
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /students/{id}", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		for _, s := range testStudents {
			if r.PathValue("id") == strconv.FormatInt(s.ID, 10) {
				json.NewEncoder(w).Encode(lookupResponse{Data: s})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, url string, ttl time.Duration) *Client {
	t.Helper()
	c, err := NewClient(config.DirectoryConfig{
		URL:      url + "/students",
		Headers:  map[string]string{"X-Api-Key": "secret"},
		Timeout:  5 * time.Second,
		CacheTTL: ttl,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestClient_Search(t *testing.T) {
	var hits atomic.Int32
	server := newDirectoryServer(t, &hits)
	c := newTestClient(t, server.URL, time.Minute)
	ctx := context.Background()

	students, err := c.Search(ctx, " ar ")
	require.NoError(t, err)
	assert.Equal(t, testStudents, students)

	// Served from cache the second time.
	_, err = c.Search(ctx, "AR")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	students, err = c.Search(ctx, "zz")
	require.NoError(t, err)
	assert.Empty(t, students)
	assert.NotNil(t, students)
}

func TestClient_Lookup(t *testing.T) {
	var hits atomic.Int32
	server := newDirectoryServer(t, &hits)
	c := newTestClient(t, server.URL, 0)
	ctx := context.Background()

	s, err := c.Lookup(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "CS-042", s.RollNumber)

	_, err = c.Lookup(ctx, 99)
	assert.ErrorIs(t, err, ErrStudentNotFound)

	exists, err := c.Exists(ctx, 7)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.Exists(ctx, 99)
	require.NoError(t, err)
	assert.False(t, exists)

	// Caching is disabled with a zero TTL.
	_, err = c.Lookup(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int32(5), hits.Load())
}

func TestClient_UpstreamFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/students" {
			w.Write([]byte("<html>maintenance</html>"))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	c := newTestClient(t, server.URL, time.Minute)
	ctx := context.Background()

	_, err := c.Search(ctx, "ar")
	assert.ErrorContains(t, err, "failed to unmarshal response")

	_, err = c.Exists(ctx, 42)
	assert.ErrorContains(t, err, "non-200 status code: 502")
	assert.NotErrorIs(t, err, ErrStudentNotFound)
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(config.DirectoryConfig{URL: "students"}, nil)
	assert.Error(t, err)
}
