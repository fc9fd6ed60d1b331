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

// Package rpc provides typed access to a subset of Bitcoin Core's JSON-RPC
// methods. Version differences are handled with an explicit dispatch table
// rather than per-version client types: each method declares the server
// version range that accepts it, and calls outside that range fail with
// ErrUnsupportedVersion before touching the network.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitpool/bitpool/jsonrpc"
)

// Version is a Bitcoin Core major version, e.g. V17 for the 0.17.x series.
type Version int

// Supported Bitcoin Core major versions.
const (
	V17 Version = 17
	V18 Version = 18
	V19 Version = 19
	V20 Version = 20
	V21 Version = 21
	V22 Version = 22
	V23 Version = 23
	V24 Version = 24
	V25 Version = 25
	V26 Version = 26
	V27 Version = 27
	V28 Version = 28
)

func (v Version) String() string {
	return fmt.Sprintf("v%d", int(v))
}

// ErrUnsupportedVersion is returned when a method is not available on the
// server version the client was configured for.
var ErrUnsupportedVersion = errors.New("rpc: method not supported by server version")

// methodSpec describes one logical RPC method and the server versions that
// accept it. A zero max means the method is still supported.
type methodSpec struct {
	min Version
	max Version
}

// methods is the dispatch table. Wire names double as table keys; the
// original per-version duplication collapses into version ranges here.
var methods = map[string]methodSpec{
	"getbestblockhash":   {min: V17},
	"getblock":           {min: V17},
	"getblockcount":      {min: V17},
	"getblockhash":       {min: V17},
	"getblockheader":     {min: V17},
	"getnetworkinfo":     {min: V17},
	"getrawmempool":      {min: V17},
	"getrawtransaction":  {min: V17},
	"sendrawtransaction": {min: V17},
	"getblockfilter":     {min: V19},
	"getdeploymentinfo":  {min: V23},
}

// Client issues typed RPC calls for one server version.
type Client struct {
	rpc     *jsonrpc.Client
	version Version
}

// NewClient returns a Client speaking to a server of the given version via
// rpc.
func NewClient(rpc *jsonrpc.Client, version Version) *Client {
	return &Client{rpc: rpc, version: version}
}

// Version returns the server version the client was configured for.
func (c *Client) Version() Version {
	return c.version
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	spec, ok := methods[method]
	if !ok {
		return fmt.Errorf("rpc: unknown method %q", method)
	}
	if c.version < spec.min || (spec.max != 0 && c.version > spec.max) {
		return fmt.Errorf("%w: %s requires %s or later, client is %s",
			ErrUnsupportedVersion, method, spec.min, c.version)
	}
	return c.rpc.Call(ctx, method, params, result)
}
