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
	"errors"
	"net"
	"os"

	utls "github.com/refraction-networking/utls"

	"github.com/bitpool/bitpool/certstore"
)

// utlsConnector implements Connector on refraction-networking/utls.
type utlsConnector struct {
	config *utls.Config
}

func newUTLSConnector(store *certstore.Store) *utlsConnector {
	config := &utls.Config{MinVersion: utls.VersionTLS12}
	if store != nil {
		config.RootCAs = store.Pool()
	}
	return &utlsConnector{config: config}
}

func (c *utlsConnector) Wrap(rawConn net.Conn, host string) (net.Conn, error) {
	conn, err := c.WrapContext(context.Background(), rawConn, host)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		// Same contract as the std backend: no deadline was set, so none
		// may expire.
		return nil, contractViolation(host, err)
	}
	return conn, err
}

func (c *utlsConnector) WrapContext(ctx context.Context, rawConn net.Conn, host string) (net.Conn, error) {
	serverName, err := validateServerName(host)
	if err != nil {
		return nil, err
	}
	log.Tracef("Establishing TLS session with %s (utls backend)", host)
	config := c.config.Clone()
	config.ServerName = serverName
	conn := utls.Client(rawConn, config)
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, &HandshakeError{Host: host, Err: err}
	}
	return conn, nil
}
