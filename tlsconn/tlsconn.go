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

// Package tlsconn performs TLS handshakes over already-established streams.
//
// Two interchangeable backends implement the [Connector] interface: one
// built on the standard library's crypto/tls and one built on
// refraction-networking/utls. Which backend a client uses is an ordinary
// construction-time choice made with [New]; there is no link-time or
// runtime switching. Both backends are always linked, and when no explicit
// choice is made the standard-library backend takes precedence (see
// [DefaultBackend]).
//
// Every connector owns its handshake configuration, built exactly once from
// the [certstore.Store] it was constructed with. Connectors never share
// process-wide mutable state, so two clients with different trust stores
// cannot observe each other's configuration.
package tlsconn

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/net/idna"

	"github.com/bitpool/bitpool/certstore"
)

var (
	// ErrInvalidHostname is returned when a hostname is not a syntactically
	// valid server-name reference for TLS.
	ErrInvalidHostname = errors.New("tlsconn: invalid server name")

	// ErrBackendContract is returned when a backend violates the
	// blocking-socket contract, e.g. by reporting a would-block or deadline
	// condition on a handshake that was given no deadline. This indicates a
	// programming error, not a condition callers should retry.
	ErrBackendContract = errors.New("tlsconn: backend contract violation")
)

// HandshakeError reports a failed TLS negotiation, including chain
// validation failures against the configured trust store.
type HandshakeError struct {
	Host string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("tlsconn: handshake with %s: %v", e.Host, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// Backend identifies one of the linked TLS implementations.
type Backend int

const (
	// BackendStd is the crypto/tls implementation.
	BackendStd Backend = iota
	// BackendUTLS is the refraction-networking/utls implementation.
	BackendUTLS
)

func (b Backend) String() string {
	switch b {
	case BackendStd:
		return "std"
	case BackendUTLS:
		return "utls"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// DefaultBackend returns the backend used when a caller does not choose one
// explicitly. Both backends are linked into every build; the standard-library
// backend takes precedence.
func DefaultBackend() Backend {
	return BackendStd
}

// Connector wraps raw byte streams in TLS.
//
// A Connector is safe for concurrent use; its configuration is immutable
// after construction.
type Connector interface {
	// Wrap performs a blocking handshake with the peer at the other end of
	// rawConn, verifying the peer's certificate chain against host. On
	// success it returns the encrypted stream; rawConn must not be used
	// directly afterwards.
	Wrap(rawConn net.Conn, host string) (net.Conn, error)

	// WrapContext is Wrap bounded by ctx. Cancellation aborts the handshake
	// and leaves rawConn in an undefined state; callers should close it.
	WrapContext(ctx context.Context, rawConn net.Conn, host string) (net.Conn, error)
}

// New returns a Connector for the given backend, trusting the roots in
// store. A nil store means the backend's zero trust configuration (which
// rejects every chain); callers normally pass a store derived with
// certstore.Store.WithRootCertificates.
func New(backend Backend, store *certstore.Store) Connector {
	switch backend {
	case BackendUTLS:
		return newUTLSConnector(store)
	default:
		return newStdConnector(store)
	}
}

func contractViolation(host string, err error) error {
	log.Criticalf("TLS backend reported a deadline on a blocking handshake with %s: %v", host, err)
	return fmt.Errorf("%w: %v", ErrBackendContract, err)
}

// validateServerName checks that host is usable as a TLS server-name
// reference: either an IP literal or a hostname that survives IDNA lookup
// mapping. It returns the name to present in the handshake.
func validateServerName(host string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrInvalidHostname)
	}
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidHostname, host, err)
	}
	return ascii, nil
}
