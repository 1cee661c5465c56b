package nocodb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/acme/outbound-dialer/internal/config"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
)

const (
	defaultPageSize  = 200
	defaultBatchSize = 10
)

// Client is a thin NocoDB v2 records API client.
type Client struct {
	baseURL   string
	token     string
	pageSize  int
	batchSize int
	http      *http.Client
}

// NewClient builds a client from store configuration.
func NewClient(cfg config.NocoDBConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	batch := cfg.BatchSize
	if batch <= 0 || batch > defaultBatchSize {
		batch = defaultBatchSize
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		pageSize:  pageSize,
		batchSize: batch,
		http:      &http.Client{Timeout: timeout},
	}
}

// StatusError is a non-2xx response from the records API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nocodb: http %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps well-known statuses onto domain sentinels.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return apperrors.ErrNotFound
	case http.StatusTooManyRequests:
		return apperrors.ErrQuotaExceeded
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return apperrors.ErrUnavailable
	default:
		return nil
	}
}

// Query describes a records listing.
type Query struct {
	Where  string
	Sort   string
	Fields []string
	// Limit caps the total rows returned across pages; zero reads everything.
	Limit int
}

type pageInfo struct {
	IsLastPage bool `json:"isLastPage"`
}

type listResponse struct {
	List     []Record `json:"list"`
	PageInfo pageInfo `json:"pageInfo"`
}

// List reads every page matching q. Paging stops on a short page or when
// the server reports the last page.
func (c *Client) List(ctx context.Context, table string, q Query) ([]Record, error) {
	var out []Record
	offset := 0
	for {
		size := c.pageSize
		if q.Limit > 0 && q.Limit-len(out) < size {
			size = q.Limit - len(out)
		}

		params := url.Values{}
		params.Set("limit", strconv.Itoa(size))
		params.Set("offset", strconv.Itoa(offset))
		if q.Where != "" {
			params.Set("where", q.Where)
		}
		if q.Sort != "" {
			params.Set("sort", q.Sort)
		}
		if len(q.Fields) > 0 {
			params.Set("fields", strings.Join(q.Fields, ","))
		}

		var page listResponse
		if err := c.do(ctx, http.MethodGet, c.recordsPath(table)+"?"+params.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("nocodb: list %s: %w", table, err)
		}
		out = append(out, page.List...)

		if len(page.List) < size || page.PageInfo.IsLastPage {
			return out, nil
		}
		if q.Limit > 0 && len(out) >= q.Limit {
			return out, nil
		}
		offset += len(page.List)
	}
}

// Get reads a single record by primary key.
func (c *Client) Get(ctx context.Context, table, id string) (Record, error) {
	var rec Record
	if err := c.do(ctx, http.MethodGet, c.recordsPath(table)+"/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, fmt.Errorf("nocodb: get %s/%s: %w", table, id, err)
	}
	return rec, nil
}

// Update patches rows in batches. Each row must carry the table's primary key.
func (c *Client) Update(ctx context.Context, table string, rows []Record) error {
	for start := 0; start < len(rows); start += c.batchSize {
		end := min(start+c.batchSize, len(rows))
		if err := c.do(ctx, http.MethodPatch, c.recordsPath(table), rows[start:end], nil); err != nil {
			return fmt.Errorf("nocodb: update %s: %w", table, err)
		}
	}
	return nil
}

// Create inserts rows in batches and returns the created records.
func (c *Client) Create(ctx context.Context, table string, rows []Record) ([]Record, error) {
	var created []Record
	for start := 0; start < len(rows); start += c.batchSize {
		end := min(start+c.batchSize, len(rows))
		var resp []Record
		if err := c.do(ctx, http.MethodPost, c.recordsPath(table), rows[start:end], &resp); err != nil {
			return nil, fmt.Errorf("nocodb: create %s: %w", table, err)
		}
		created = append(created, resp...)
	}
	return created, nil
}

func (c *Client) recordsPath(table string) string {
	return "/" + url.PathEscape(table) + "/records"
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("xc-token", c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
