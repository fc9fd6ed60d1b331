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
	"context"
	"crypto/tls"
	"errors"
	"net"
	"os"

	"github.com/bitpool/bitpool/certstore"
)

// stdConnector implements Connector on crypto/tls.
type stdConnector struct {
	config *tls.Config
}

func newStdConnector(store *certstore.Store) *stdConnector {
	config := &tls.Config{MinVersion: tls.VersionTLS12}
	if store != nil {
		config.RootCAs = store.Pool()
	}
	return &stdConnector{config: config}
}

func (c *stdConnector) Wrap(rawConn net.Conn, host string) (net.Conn, error) {
	conn, err := c.WrapContext(context.Background(), rawConn, host)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		// A blocking handshake was given no deadline, so the backend must
		// not report one expiring.
		return nil, contractViolation(host, err)
	}
	return conn, err
}

func (c *stdConnector) WrapContext(ctx context.Context, rawConn net.Conn, host string) (net.Conn, error) {
	serverName, err := validateServerName(host)
	if err != nil {
		return nil, err
	}
	log.Tracef("Establishing TLS session with %s (std backend)", host)
	config := c.config.Clone()
	config.ServerName = serverName
	conn := tls.Client(rawConn, config)
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, &HandshakeError{Host: host, Err: err}
	}
	return conn, nil
}
