// Copyright 2024 The bitpool authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package jsonrpc implements a minimal JSON-RPC 2.0 client on top of the
// bitpool connection pool. It covers what Bitcoin Core's RPC interface
// needs: HTTP POST transport, monotonically increasing request IDs, typed
// server errors, and basic or cookie-file authentication.
package jsonrpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bitpool/bitpool"
	"github.com/bitpool/bitpool/request"
)

// Request is a JSON-RPC 2.0 request object.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      uint64          `json:"id"`
}

// Response is a JSON-RPC 2.0 response object.
type Response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     uint64          `json:"id"`
}

// RPCError is an error object returned by the server.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc: server error %d: %s", e.Code, e.Message)
}

// AuthFunc supplies credentials for a request. It is consulted on every
// call, so implementations may rotate credentials (see CookieAuth).
type AuthFunc func() (username, password string, err error)

// BasicAuth returns an AuthFunc with fixed credentials.
func BasicAuth(username, password string) AuthFunc {
	return func() (string, string, error) {
		return username, password, nil
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithAuth authenticates every request using credentials from auth.
func WithAuth(auth AuthFunc) Option {
	return func(c *Client) {
		c.auth = auth
	}
}

// WithTimeout bounds each call, from connecting to reading the last
// response byte.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client issues JSON-RPC calls to a single URL through a pooled transport.
// It is safe for concurrent use.
type Client struct {
	pool    *bitpool.Client
	url     string
	auth    AuthFunc
	timeout time.Duration
	nonce   atomic.Uint64
}

// NewClient returns a Client sending calls to url via pool.
func NewClient(pool *bitpool.Client, url string, opts ...Option) *Client {
	c := &Client{pool: pool, url: url}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes method with params (marshaled as the JSON-RPC params value,
// typically a positional array) and unmarshals the result into result when
// result is non-nil. Server-reported failures are returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	var rawParams json.RawMessage
	if params != nil {
		var err error
		rawParams, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("jsonrpc: marshal params for %s: %w", method, err)
		}
	}
	id := c.nonce.Add(1)
	body, err := json.Marshal(Request{JSONRPC: "2.0", Method: method, Params: rawParams, ID: id})
	if err != nil {
		return fmt.Errorf("jsonrpc: marshal request for %s: %w", method, err)
	}

	req := request.Post(c.url, body).WithHeader("Content-Type", "application/json")
	if c.timeout > 0 {
		req.WithTimeout(c.timeout)
	}
	if c.auth != nil {
		username, password, err := c.auth()
		if err != nil {
			return fmt.Errorf("jsonrpc: obtain credentials: %w", err)
		}
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		req.WithHeader("Authorization", "Basic "+credentials)
	}

	log.Tracef("Calling %s (id %d)", method, id)
	httpResp, err := c.pool.Send(ctx, req)
	if err != nil {
		return err
	}

	// Bitcoin Core reports RPC-level failures with non-200 statuses but
	// still carries a JSON-RPC body; decode first, fall back to the status.
	var resp Response
	if err := json.Unmarshal(httpResp.Body(), &resp); err != nil {
		if httpResp.StatusCode != http.StatusOK {
			return fmt.Errorf("jsonrpc: %s: http status %s", method, httpResp.Status)
		}
		return fmt.Errorf("jsonrpc: %s: decode response: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if resp.ID != id {
		return fmt.Errorf("jsonrpc: %s: response id %d does not match request id %d", method, resp.ID, id)
	}
	if result == nil || len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("jsonrpc: %s: decode result: %w", method, err)
	}
	return nil
}
