package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ledger-dashboard/internal/job"
	"github.com/ledger-dashboard/internal/service"
)

// apiClient talks to a running ledger dashboard server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is the server's error envelope.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body io.Reader, dest interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var e apiError
		if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
			return fmt.Errorf("%s (%d): %s", e.Error.Code, resp.StatusCode, e.Error.Message)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *apiClient) transactions(ctx context.Context, query url.Values) (*service.QueryResult, error) {
	var out service.QueryResult
	if err := c.do(ctx, http.MethodGet, "/api/transactions", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) dashboard(ctx context.Context) (*service.DashboardStats, error) {
	var out service.DashboardStats
	if err := c.do(ctx, http.MethodGet, "/api/analytics/dashboard", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) clear(ctx context.Context) (int64, error) {
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/transactions", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func (c *apiClient) reprocess(ctx context.Context, walletID int64, importID string) (*service.ReprocessResult, error) {
	q := url.Values{}
	if importID != "" {
		q.Set("importId", importID)
	}
	var out service.ReprocessResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/wallets/%d/reprocess", walletID), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) startImport(ctx context.Context, req job.ImportRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}
	var out struct {
		ImportID string `json:"importId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/import", nil, bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	return out.ImportID, nil
}

func (c *apiClient) progress(ctx context.Context, id string) (*job.Snapshot, error) {
	var out job.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/import/"+url.PathEscape(id)+"/progress", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
