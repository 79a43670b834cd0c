package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/patrickmn/go-cache"

	"hostel-allocation-backend/config"
)

// ErrStudentNotFound is returned by Lookup when the directory has no such
// student.
var ErrStudentNotFound = errors.New("student not found")

// Student is a directory entry as shown in the registration form.
type Student struct {
	ID         int64  `json:"id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	RollNumber string `json:"rollNumber"`
	Program    string `json:"program"`
}

// searchResponse models the top-level structure of the directory's search
// response.
type searchResponse struct {
	Code int `json:"code"`
	Data struct {
		Total int       `json:"total"`
		Items []Student `json:"items"`
	} `json:"data"`
}

type lookupResponse struct {
	Code int     `json:"code"`
	Data Student `json:"data"`
}

// Client queries the upstream student directory. Responses are cached for
// the configured TTL.
type Client struct {
	cfg    config.DirectoryConfig
	base   *url.URL
	client *http.Client
	cache  *cache.Cache
	logger *slog.Logger
}

// NewClient creates a directory client from cfg.
func NewClient(cfg config.DirectoryConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "directory")

	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid directory url %q", cfg.URL)
	}

	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.Warn("invalid proxy url; directory requests will not use a proxy", "proxy", cfg.HTTPProxy, "error", err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	c := &Client{
		cfg:  cfg,
		base: base,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger: logger,
	}
	if cfg.CacheTTL > 0 {
		c.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return c, nil
}

// Search returns the students matching query by name or roll number.
func (c *Client) Search(ctx context.Context, query string) ([]Student, error) {
	query = strings.TrimSpace(query)
	cacheKey := "search:" + strings.ToLower(query)
	if cached, ok := c.cached(cacheKey); ok {
		return cached.([]Student), nil
	}

	u := *c.base
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	var resp searchResponse
	if _, err := c.get(ctx, u.String(), &resp); err != nil {
		return nil, err
	}
	students := resp.Data.Items
	if students == nil {
		students = []Student{}
	}

	c.store(cacheKey, students)
	return students, nil
}

// Lookup fetches a single student by id.
func (c *Client) Lookup(ctx context.Context, id int64) (Student, error) {
	cacheKey := "student:" + strconv.FormatInt(id, 10)
	if cached, ok := c.cached(cacheKey); ok {
		return cached.(Student), nil
	}

	u := c.base.JoinPath(strconv.FormatInt(id, 10))
	var resp lookupResponse
	status, err := c.get(ctx, u.String(), &resp)
	if status == http.StatusNotFound {
		return Student{}, ErrStudentNotFound
	}
	if err != nil {
		return Student{}, err
	}

	c.store(cacheKey, resp.Data)
	return resp.Data, nil
}

// Exists reports whether the directory knows the student.
func (c *Client) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := c.Lookup(ctx, id)
	if errors.Is(err, ErrStudentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range c.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Debug("undecodable directory response", "url", rawURL, "body", string(body))
		return resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return resp.StatusCode, nil
}

func (c *Client) cached(key string) (any, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

func (c *Client) store(key string, value any) {
	if c.cache == nil {
		return
	}
	c.cache.SetDefault(key, value)
}
