// Package client talks to a twaps server
package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/kjk/twaps/httputil"
	"github.com/kjk/twaps/server"
	"github.com/kjk/twaps/twapstore"
)

// ErrNotFound and ErrStoreUninitialized are the same errors twapstore returns
var (
	ErrNotFound           = twapstore.ErrNotFound
	ErrStoreUninitialized = twapstore.ErrStoreUninitialized
)

type Client struct {
	ServerURL  string
	HTTPClient *http.Client
}

// New creates a client for server at serverURL e.g. "http://localhost:8080"
func New(serverURL string) *Client {
	return &Client{
		ServerURL:  httputil.NormalizeServerURL(serverURL),
		HTTPClient: httputil.NewDefaultTimeoutClient(),
	}
}

func (c *Client) req(path string) *requests.Builder {
	uri := httputil.JoinURL(c.ServerURL, path)
	return requests.URL(uri).Client(c.HTTPClient)
}

// Ping returns nil if the server is up
func (c *Client) Ping(ctx context.Context) error {
	var s string
	err := c.req("/").ToString(&s).Fetch(ctx)
	if err != nil {
		return err
	}
	if s != "It works!" {
		return fmt.Errorf("unexpected response from '%s': '%s'", c.ServerURL, s)
	}
	return nil
}

// Push upserts rec, returns the url reported by the server
func (c *Client) Push(ctx context.Context, rec twapstore.Record) (string, error) {
	var res server.PushResponse
	err := c.req("/api/twaps").
		BodyJSON(&rec).
		CheckStatus(http.StatusCreated).
		ToJSON(&res).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("pushing '%s': %w", rec.URL, err)
	}
	return res.URL, nil
}

// Fetch returns source of twap with a given url, with line breaks decoded
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	var s string
	err := c.req("/twap").
		Post().
		BodyBytes([]byte(url)).
		ContentType("text/plain; charset=utf-8").
		ToString(&s).
		Fetch(ctx)
	if requests.HasStatusErr(err, http.StatusNotFound) {
		return "", ErrStoreUninitialized
	}
	if err != nil {
		return "", fmt.Errorf("fetching '%s': %w", url, err)
	}
	// the server reports a miss as a regular response
	if s == server.NotFoundText(url) {
		return "", ErrNotFound
	}
	return s, nil
}

func (c *Client) List(ctx context.Context) ([]twapstore.Record, error) {
	var records []twapstore.Record
	err := c.req("/api/twaps").ToJSON(&records).Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Delete returns false if there was no twap with this url
// and ErrStoreUninitialized if nothing was pushed yet
func (c *Client) Delete(ctx context.Context, url string) (bool, error) {
	var errRes server.ErrorResponse
	err := c.req("/api/twaps").
		Delete().
		BodyBytes([]byte(url)).
		ContentType("text/plain; charset=utf-8").
		AddValidator(requests.ValidatorHandler(
			requests.CheckStatus(http.StatusNoContent),
			requests.ToJSON(&errRes),
		)).
		Fetch(ctx)
	if requests.HasStatusErr(err, http.StatusNotFound) {
		if errRes.Reason == server.UninitializedReason {
			return false, ErrStoreUninitialized
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting '%s': %w", url, err)
	}
	return true, nil
}
