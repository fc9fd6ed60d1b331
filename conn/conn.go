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

// Package conn provides the reusable transport primitive managed by the
// bitpool connection pool. A [Conn] is one established stream to one
// endpoint, plain TCP or TLS, that handles HTTP/1.1 exchanges one at a time.
//
// Conns are shared between the pool and in-flight callers through reference
// counting: the pool holds one reference for the cached entry and every
// caller holds one for the duration of its exchange. The underlying socket
// is closed when the last reference is released, so evicting a connection
// from the pool never tears it down under a caller still using it.
package conn

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitpool/bitpool/request"
	"github.com/bitpool/bitpool/tlsconn"
)

// DialFunc establishes raw transport connections.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Conn is a single established transport.
type Conn struct {
	addr   string
	secure bool

	raw net.Conn
	br  *bufio.Reader

	// sendMu serializes exchanges; HTTP/1.1 cannot interleave them.
	sendMu sync.Mutex

	refs      atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// Dial opens a transport to host:port and, if secure, performs the TLS
// handshake via connector. The returned connection carries one reference,
// owned by the caller.
func Dial(ctx context.Context, host string, port uint16, secure bool, dial DialFunc, connector tlsconn.Connector) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	raw, err := dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("conn: dial %s: %w", addr, err)
	}
	if secure {
		secured, err := connector.WrapContext(ctx, raw, host)
		if err != nil {
			_ = raw.Close()
			return nil, err
		}
		raw = secured
	}
	log.Debugf("Established connection to %s (secure=%v)", addr, secure)
	c := &Conn{
		addr:   addr,
		secure: secure,
		raw:    raw,
		br:     bufio.NewReader(raw),
	}
	c.refs.Store(1)
	return c, nil
}

// Addr returns the remote "host:port" this connection is established to.
func (c *Conn) Addr() string {
	return c.addr
}

// Secure reports whether the transport is TLS-wrapped.
func (c *Conn) Secure() bool {
	return c.secure
}

// Retain adds a reference to the connection. Every Retain must be paired
// with a Release.
func (c *Conn) Retain() {
	c.refs.Add(1)
}

// Release drops a reference. The underlying transport is closed when the
// last reference is released; the close error, if any, is returned to the
// releaser of that last reference.
func (c *Conn) Release() error {
	refs := c.refs.Add(-1)
	if refs > 0 {
		return nil
	}
	if refs < 0 {
		log.Errorf("Connection to %s released more times than retained", c.addr)
		return nil
	}
	c.closeOnce.Do(func() {
		log.Debugf("Closing connection to %s", c.addr)
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}

// Send writes one request and reads its complete response. Exchanges are
// serialized internally; concurrent callers take turns. The effective
// deadline is the earlier of the request's own deadline and ctx's.
func (c *Conn) Send(ctx context.Context, preq *request.ParsedRequest) (*request.Response, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	deadline := preq.Deadline()
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	if err := c.raw.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("conn: set deadline on %s: %w", c.addr, err)
	}
	defer func() {
		_ = c.raw.SetDeadline(time.Time{})
	}()

	if err := preq.WriteWire(c.raw); err != nil {
		return nil, fmt.Errorf("conn: write request to %s: %w", c.addr, err)
	}
	resp, err := request.ReadResponse(c.br, preq)
	if err != nil {
		return nil, fmt.Errorf("conn: %s: %w", c.addr, err)
	}
	return resp, nil
}
