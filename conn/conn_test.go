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

package conn

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/bitpool/bitpool/request"
)

// startServer runs an HTTP/1.1 server on loopback that echoes the request
// path and returns its port.
func startServer(t *testing.T) uint16 {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "path=%s", r.URL.Path)
		}),
	}
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(func() {
		_ = server.Close()
	})
	return uint16(listener.Addr().(*net.TCPAddr).Port)
}

// trackedConn flags when the underlying transport is closed.
type trackedConn struct {
	net.Conn
	closed *atomic.Bool
}

func (c *trackedConn) Close() error {
	c.closed.Store(true)
	return c.Conn.Close()
}

func trackingDialer(closed *atomic.Bool) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		var d net.Dialer
		raw, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &trackedConn{Conn: raw, closed: closed}, nil
	}
}

func parsedGet(t *testing.T, url string) *request.ParsedRequest {
	t.Helper()
	parsed, err := request.Parse(request.Get(url))
	require.NoError(t, err)
	return parsed
}

func TestDialAndSend(t *testing.T) {
	t.Parallel()

	port := startServer(t)
	ctx := context.Background()
	var d net.Dialer
	cn, err := Dial(ctx, "127.0.0.1", port, false, d.DialContext, nil)
	require.NoError(t, err)
	defer func() {
		_ = cn.Release()
	}()

	require.Equal(t, net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))), cn.Addr())
	require.False(t, cn.Secure())

	url := fmt.Sprintf("http://127.0.0.1:%d", port)
	resp, err := cn.Send(ctx, parsedGet(t, url+"/first"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "path=/first", resp.BodyString())

	// The same transport must be reusable for the next exchange.
	resp, err = cn.Send(ctx, parsedGet(t, url+"/second"))
	require.NoError(t, err)
	require.Equal(t, "path=/second", resp.BodyString())
}

func TestDialFailure(t *testing.T) {
	t.Parallel()

	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, fmt.Errorf("no route to %s", addr)
	}
	_, err := Dial(context.Background(), "127.0.0.1", 1, false, dial, nil)
	require.ErrorContains(t, err, "no route")
}

func TestRetainRelease(t *testing.T) {
	t.Parallel()

	port := startServer(t)
	var closed atomic.Bool
	cn, err := Dial(context.Background(), "127.0.0.1", port, false, trackingDialer(&closed), nil)
	require.NoError(t, err)

	cn.Retain()
	require.NoError(t, cn.Release())
	require.False(t, closed.Load())

	require.NoError(t, cn.Release())
	require.True(t, closed.Load())
}

func TestConcurrentSendsAreSerialized(t *testing.T) {
	t.Parallel()

	port := startServer(t)
	ctx := context.Background()
	var d net.Dialer
	cn, err := Dial(ctx, "127.0.0.1", port, false, d.DialContext, nil)
	require.NoError(t, err)
	defer func() {
		_ = cn.Release()
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/echo", port)
	var group errgroup.Group
	var start sync.WaitGroup
	start.Add(4)
	for i := 0; i < 4; i++ {
		group.Go(func() error {
			start.Done()
			start.Wait()
			resp, err := cn.Send(ctx, parsedGet(t, url))
			if err != nil {
				return err
			}
			if resp.BodyString() != "path=/echo" {
				return fmt.Errorf("unexpected body %q", resp.BodyString())
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
}

func TestSendDeadline(t *testing.T) {
	t.Parallel()

	// A server that accepts but never responds.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = listener.Close()
	})
	var accepted []net.Conn
	var acceptedMu sync.Mutex
	go func() {
		for {
			c, err := listener.Accept()
			if err != nil {
				return
			}
			acceptedMu.Lock()
			accepted = append(accepted, c)
			acceptedMu.Unlock()
		}
	}()
	t.Cleanup(func() {
		acceptedMu.Lock()
		defer acceptedMu.Unlock()
		for _, c := range accepted {
			_ = c.Close()
		}
	})
	port := uint16(listener.Addr().(*net.TCPAddr).Port)

	ctx := context.Background()
	var d net.Dialer
	cn, err := Dial(ctx, "127.0.0.1", port, false, d.DialContext, nil)
	require.NoError(t, err)
	defer func() {
		_ = cn.Release()
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/", port)
	parsed, err := request.Parse(request.Get(url).WithTimeout(50 * time.Millisecond))
	require.NoError(t, err)
	_, err = cn.Send(ctx, parsed)
	require.Error(t, err)
}
