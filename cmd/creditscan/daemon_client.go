package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"creditscan/internal/config"
	"creditscan/internal/store"
)

// errDaemonUnreachable wraps failures to reach a running daemon.
var errDaemonUnreachable = errors.New("daemon api unreachable")

const daemonRequestTimeout = 10 * time.Second

// daemonClient talks to the daemon API used while the daemon holds the store lock.
type daemonClient struct {
	base   string
	client *http.Client
}

func newDaemonClient(cfg *config.Config) *daemonClient {
	return &daemonClient{
		base:   "http://" + strings.TrimSpace(cfg.Paths.APIBind),
		client: &http.Client{Timeout: daemonRequestTimeout},
	}
}

func (c *daemonClient) get(ctx context.Context, path string, query url.Values, into any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, into)
}

func (c *daemonClient) post(ctx context.Context, path string, payload any, into any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, into)
}

func (c *daemonClient) do(req *http.Request, into any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errDaemonUnreachable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read daemon response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon %s %s: %s", req.Method, req.URL.Path, apiErr.Error)
		}
		return fmt.Errorf("daemon %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if into == nil {
		return nil
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}

// withStoreOrDaemon runs local against the store, or remote when the daemon
// holds the store lock.
func withStoreOrDaemon(cfg *config.Config, local func(*store.Store) error, remote func(*daemonClient) error) error {
	st, err := store.Open(cfg)
	if err == nil {
		defer st.Close()
		return local(st)
	}
	if !errors.Is(err, store.ErrLocked) {
		return err
	}
	if remoteErr := remote(newDaemonClient(cfg)); remoteErr != nil {
		return fmt.Errorf("%w; %v", err, remoteErr)
	}
	return nil
}
