// Package registry talks to the cluster registry: node registration for
// request routing, and the shared configuration document the cluster pushes
// to every tile server.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// NodeInfo describes one tile server to the registry.
type NodeInfo struct {
	ID   string `json:"id"`
	Host string `json:"host"`
	Port uint   `json:"port"`
}

// configDoc is the registry's config response: the document plus a version
// that advances on every change.
type configDoc struct {
	Version int64           `json:"version"`
	Config  json.RawMessage `json:"config"`
}

const requestTimeout = 5 * time.Second

// Client is a thin HTTP JSON client for a single registry host.
type Client struct {
	base string
	http *http.Client
}

func NewClient(host string) *Client {
	base := host
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: requestTimeout},
	}
}

// Register announces the node. The registry replaces any previous record with
// the same id.
func (c *Client) Register(ctx context.Context, node NodeInfo) error {
	return c.post(ctx, "/nodes/register", node)
}

// Unregister withdraws the node from routing.
func (c *Client) Unregister(ctx context.Context, node NodeInfo) error {
	return c.post(ctx, "/nodes/unregister", node)
}

// FetchConfig returns the raw configuration document and its version.
func (c *Client) FetchConfig(ctx context.Context) ([]byte, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/config", nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("registry config: http %d", resp.StatusCode)
	}
	var doc configDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, 0, fmt.Errorf("registry config: %w", err)
	}
	return doc.Config, doc.Version, nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("registry %s: http %d", path, resp.StatusCode)
	}
	return nil
}
