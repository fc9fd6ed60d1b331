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
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bitpool/bitpool/certstore"
	"github.com/bitpool/bitpool/internal/testcert"
	"github.com/bitpool/bitpool/request"
	"github.com/bitpool/bitpool/tlsconn"
)

// startTLSTestServer runs an HTTPS server presenting leaf on loopback.
func startTLSTestServer(t *testing.T, leaf tls.Certificate) *testServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}),
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{leaf},
			MinVersion:   tls.VersionTLS12,
		},
	}
	go func() {
		_ = server.ServeTLS(listener, "", "")
	}()
	t.Cleanup(func() {
		_ = server.Close()
	})
	port := uint16(listener.Addr().(*net.TCPAddr).Port)
	return &testServer{
		url: fmt.Sprintf("https://127.0.0.1:%d/", port),
		key: ConnectionKey{Host: "127.0.0.1", Port: port, Secure: true},
	}
}

func TestTLSRoundTrip(t *testing.T) {
	t.Parallel()

	authority, err := testcert.New()
	require.NoError(t, err)
	server := startTLSTestServer(t, authority.Leaf)

	for name, backend := range map[string]tlsconn.Backend{
		"std":  tlsconn.BackendStd,
		"utls": tlsconn.BackendUTLS,
	} {
		backend := backend
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			client, err := NewBuilder().
				WithCapacity(2).
				WithRootCertificate(authority.CADER).
				WithTLSBackend(backend).
				Build()
			require.NoError(t, err)
			t.Cleanup(func() {
				_ = client.Close()
			})

			sendOK(t, client, server.url)
			require.Equal(t, 1, poolSize(client))

			// Second exchange reuses the pooled TLS connection.
			sendOK(t, client, server.url)
			require.Equal(t, 1, poolSize(client))
		})
	}
}

// A handshake failure against one host must not disturb pooled connections
// to other hosts on the same client.
func TestUntrustedPeerDoesNotAffectOthers(t *testing.T) {
	t.Parallel()

	trusted, err := testcert.New()
	require.NoError(t, err)
	untrusted, err := testcert.New()
	require.NoError(t, err)
	goodServer := startTLSTestServer(t, trusted.Leaf)
	badServer := startTLSTestServer(t, untrusted.Leaf)

	client, err := NewBuilder().
		WithCapacity(4).
		WithRootCertificate(trusted.CADER).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})

	sendOK(t, client, goodServer.url)

	_, err = client.Send(context.Background(), request.Get(badServer.url))
	require.Error(t, err)
	var handshakeErr *tlsconn.HandshakeError
	require.ErrorAs(t, err, &handshakeErr)

	// The failed handshake was never cached; the trusted host still is.
	keys := poolKeys(client)
	require.True(t, keys[goodServer.key])
	require.False(t, keys[badServer.key])

	// And the trusted host keeps working.
	sendOK(t, client, goodServer.url)
}

func TestBuilderRejectsMalformedCertificate(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder().
		WithRootCertificate([]byte("definitely not DER")).
		Build()
	require.ErrorIs(t, err, certstore.ErrInvalidCertificate)
}

func TestBuilderCopiesCertificateBytes(t *testing.T) {
	t.Parallel()

	authority, err := testcert.New()
	require.NoError(t, err)
	der := append([]byte(nil), authority.CADER...)

	builder := NewBuilder().WithRootCertificate(der)
	// Clobbering the caller's buffer after the fact must not corrupt the
	// staged certificate.
	for i := range der {
		der[i] = 0
	}
	_, err = builder.Build()
	require.NoError(t, err)
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	client := New(3)
	t.Cleanup(func() {
		_ = client.Close()
	})
	require.Equal(t, 3, client.cfg.capacity)
	require.NotNil(t, client.cfg.connector)
	require.NotNil(t, client.cfg.dial)

	// Capacity is clamped to at least one connection.
	clamped := New(0)
	t.Cleanup(func() {
		_ = clamped.Close()
	})
	require.Equal(t, 1, clamped.cfg.capacity)
}

func TestSendRejectsBadRequests(t *testing.T) {
	t.Parallel()

	client := New(1)
	t.Cleanup(func() {
		_ = client.Close()
	})
	_, err := client.Send(context.Background(), request.Get("ftp://example.com"))
	require.Error(t, err)
	_, err = client.Send(context.Background(), request.Get("http://"))
	require.Error(t, err)
}
