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

package bitpool

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/bitpool/bitpool/certstore"
	"github.com/bitpool/bitpool/conn"
	"github.com/bitpool/bitpool/internal"
	"github.com/bitpool/bitpool/tlsconn"
)

//nolint:gochecknoglobals
var defaultDialer = &net.Dialer{
	Timeout:   30 * time.Second,
	KeepAlive: 30 * time.Second,
}

// ConnectionKey identifies an endpoint reachable by a pooled connection.
// Two requests are pool-equivalent iff their keys are equal.
type ConnectionKey struct {
	Host   string
	Port   uint16
	Secure bool
}

func (k ConnectionKey) String() string {
	scheme := "http"
	if k.Secure {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(k.Host, strconv.Itoa(int(k.Port)))
}

type clientConfig struct {
	capacity    int
	connector   tlsconn.Connector
	dial        conn.DialFunc
	idleTimeout time.Duration
	clock       internal.Clock
}

func (cfg *clientConfig) applyDefaults() {
	if cfg.capacity < 1 {
		cfg.capacity = 1
	}
	if cfg.dial == nil {
		cfg.dial = defaultDialer.DialContext
	}
	if cfg.clock == nil {
		cfg.clock = internal.NewRealClock()
	}
}

// New returns a Client with the default trust store (OS-native roots plus
// the embedded well-known CA bundle) that caches up to capacity connections.
// When the cache is full, the oldest-inserted connection is evicted.
func New(capacity int) *Client {
	store, _ := certstore.New(nil)
	return newClient(clientConfig{
		capacity:  capacity,
		connector: tlsconn.New(tlsconn.DefaultBackend(), store.WithRootCertificates()),
	})
}

// NewBuilder returns a builder for a Client. The zero builder produces a
// client equivalent to New(1).
func NewBuilder() *ClientBuilder {
	return &ClientBuilder{
		capacity: 1,
		backend:  tlsconn.DefaultBackend(),
	}
}

// ClientBuilder assembles the configuration for a Client. All methods
// return the builder for chaining; Build performs the construction.
type ClientBuilder struct {
	capacity    int
	certs       [][]byte
	backend     tlsconn.Backend
	dial        conn.DialFunc
	idleTimeout time.Duration
	clock       internal.Clock
}

// WithRootCertificate adds a DER-encoded root certificate to the client's
// trust store. The bytes are copied, so the caller may pass a slice, a
// sliced array, or any other byte-sequence representation and reuse the
// backing storage afterwards. The bytes are validated at Build time.
func (b *ClientBuilder) WithRootCertificate(der []byte) *ClientBuilder {
	owned := make([]byte, len(der))
	copy(owned, der)
	b.certs = append(b.certs, owned)
	return b
}

// WithCapacity sets the maximum number of cached connections.
func (b *ClientBuilder) WithCapacity(capacity int) *ClientBuilder {
	b.capacity = capacity
	return b
}

// WithTLSBackend selects which linked TLS implementation performs
// handshakes. If not called, tlsconn.DefaultBackend is used.
func (b *ClientBuilder) WithTLSBackend(backend tlsconn.Backend) *ClientBuilder {
	b.backend = backend
	return b
}

// WithDialer configures the function used to establish raw transport
// connections. If not called, a default [net.Dialer] with a 30-second dial
// timeout and 30-second TCP keep-alive is used.
func (b *ClientBuilder) WithDialer(dial conn.DialFunc) *ClientBuilder {
	b.dial = dial
	return b
}

// WithIdleTimeout evicts pooled connections that have gone unused for the
// given duration. If zero (the default), idle connections are kept until
// evicted by capacity pressure or the client is closed.
func (b *ClientBuilder) WithIdleTimeout(d time.Duration) *ClientBuilder {
	b.idleTimeout = d
	return b
}

// withClock overrides the clock driving idle eviction. Used by tests.
func (b *ClientBuilder) withClock(clock internal.Clock) *ClientBuilder {
	b.clock = clock
	return b
}

// Build constructs the Client. It fails if any certificate supplied via
// WithRootCertificate is not valid DER.
func (b *ClientBuilder) Build() (*Client, error) {
	store, err := certstore.New(nil)
	if err != nil {
		return nil, err
	}
	for _, der := range b.certs {
		if err := store.AppendCertificate(der); err != nil {
			return nil, err
		}
	}
	return newClient(clientConfig{
		capacity:    b.capacity,
		connector:   tlsconn.New(b.backend, store.WithRootCertificates()),
		dial:        b.dial,
		idleTimeout: b.idleTimeout,
		clock:       b.clock,
	}), nil
}

func newClient(cfg clientConfig) *Client {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		conns:  map[ConnectionKey]*poolEntry{},
	}
}
