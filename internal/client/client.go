// internal/client/client.go
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"lvcs/internal/api"
	"lvcs/internal/errors"
	"lvcs/internal/history"
)

// Client talks to the read-only history API served by the lvcs server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

type Health struct {
	Status   string `json:"status"`
	Revision int    `json:"revision"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) Revisions(ctx context.Context) ([]history.Revision, error) {
	var revs []history.Revision
	if err := c.get(ctx, "/api/revisions", nil, &revs); err != nil {
		return nil, err
	}
	return revs, nil
}

// Tree fetches the tree at rev, or the subtree at path when it is not empty.
func (c *Client) Tree(ctx context.Context, rev int, path string) (*api.Node, error) {
	q := url.Values{}
	if path != "" {
		q.Set("path", path)
	}
	var n api.Node
	if err := c.get(ctx, "/api/revisions/"+strconv.Itoa(rev)+"/tree", q, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) History(ctx context.Context, path string) ([]api.ChangeView, error) {
	var views []api.ChangeView
	if err := c.get(ctx, "/api/history", url.Values{"path": {path}}, &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.IOFailure("requesting "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Error bodies carry the server-side error kind
		var remote errors.Error
		if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil || remote.Type == "" {
			return fmt.Errorf("unexpected status: %s", resp.Status)
		}
		return &remote
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Malformed("decoding %s response: %v", path, err)
	}
	return nil
}
