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

package tlsconn

import (
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bitpool/bitpool/certstore"
	"github.com/bitpool/bitpool/internal/testcert"
)

var backends = map[string]Backend{
	"std":  BackendStd,
	"utls": BackendUTLS,
}

// startTLSServer listens on loopback, completes one server-side handshake per
// accepted connection, and closes it. Returns the listener address.
func startTLSServer(t *testing.T, leaf tls.Certificate) string {
	t.Helper()
	listener, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{leaf},
		MinVersion:   tls.VersionTLS12,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = listener.Close()
	})
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				_ = conn.(*tls.Conn).Handshake()
				_ = conn.Close()
			}()
		}
	}()
	return listener.Addr().String()
}

func TestWrapTrustedPeer(t *testing.T) {
	t.Parallel()

	authority, err := testcert.New()
	require.NoError(t, err)
	addr := startTLSServer(t, authority.Leaf)

	store, err := certstore.New(authority.CADER)
	require.NoError(t, err)

	for name, backend := range backends {
		backend := backend
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			connector := New(backend, store)
			raw, err := net.Dial("tcp", addr)
			require.NoError(t, err)
			conn, err := connector.Wrap(raw, "127.0.0.1")
			require.NoError(t, err)
			require.NoError(t, conn.Close())
		})
	}
}

func TestWrapUntrustedPeer(t *testing.T) {
	t.Parallel()

	serverAuthority, err := testcert.New()
	require.NoError(t, err)
	otherAuthority, err := testcert.New()
	require.NoError(t, err)
	addr := startTLSServer(t, serverAuthority.Leaf)

	// The store trusts a different authority, so chain validation must fail.
	store, err := certstore.New(otherAuthority.CADER)
	require.NoError(t, err)

	for name, backend := range backends {
		backend := backend
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			connector := New(backend, store)
			raw, err := net.Dial("tcp", addr)
			require.NoError(t, err)
			defer func() {
				_ = raw.Close()
			}()
			_, err = connector.Wrap(raw, "127.0.0.1")
			require.Error(t, err)
			var handshakeErr *HandshakeError
			require.ErrorAs(t, err, &handshakeErr)
			require.Equal(t, "127.0.0.1", handshakeErr.Host)
			require.NotErrorIs(t, err, ErrBackendContract)
		})
	}
}

func TestWrapInvalidServerName(t *testing.T) {
	t.Parallel()

	for name, backend := range backends {
		backend := backend
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			connector := New(backend, nil)
			for _, host := range []string{"", "exa mple.com", "host..name"} {
				_, err := connector.Wrap(nil, host)
				require.ErrorIs(t, err, ErrInvalidHostname, "host %q", host)
			}
		})
	}
}

func TestWrapBackendContractViolation(t *testing.T) {
	t.Parallel()

	for name, backend := range backends {
		backend := backend
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			client, server := net.Pipe()
			defer func() {
				_ = client.Close()
				_ = server.Close()
			}()
			// A deadline already in the past makes the blocking handshake
			// surface os.ErrDeadlineExceeded, which Wrap must classify as a
			// contract violation rather than an ordinary handshake failure.
			require.NoError(t, client.SetDeadline(time.Now().Add(-time.Second)))
			connector := New(backend, nil)
			_, err := connector.Wrap(client, "localhost")
			require.ErrorIs(t, err, ErrBackendContract)
		})
	}
}

func TestDefaultBackend(t *testing.T) {
	t.Parallel()

	require.Equal(t, BackendStd, DefaultBackend())

	// New without an explicit choice must build the crypto/tls connector.
	_, ok := New(DefaultBackend(), nil).(*stdConnector)
	require.True(t, ok)
	_, ok = New(BackendUTLS, nil).(*utlsConnector)
	require.True(t, ok)
}

func TestBackendString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "std", BackendStd.String())
	require.Equal(t, "utls", BackendUTLS.String())
}
