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

// Package certstore assembles the set of root certificates a client trusts
// when validating TLS peers. A store collects trust anchors from up to three
// sources: caller-supplied DER certificates, the operating system's native
// trust store, and a compiled-in bundle of well-known certificate
// authorities (the Mozilla CA list). Trust stores are sets, so overlap
// between sources is harmless.
//
// A store is assembled before the owning client is built and must not be
// modified afterwards. The resulting [x509.CertPool] is read-only and safe
// to share across every handshake the client performs.
package certstore

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/breml/rootcerts/embedded"
)

// ErrInvalidCertificate is returned when caller-supplied bytes cannot be
// parsed as a DER-encoded X.509 certificate.
var ErrInvalidCertificate = errors.New("certstore: invalid DER certificate")

// Store is a collection of trusted root certificates.
type Store struct {
	custom          []*x509.Certificate
	includeDefaults bool
}

// New builds a store and, if der is non-nil, appends it as a trust anchor.
// The bytes are parsed immediately, so a malformed certificate is reported
// here rather than at handshake time.
func New(der []byte) (*Store, error) {
	s := &Store{}
	if der != nil {
		if err := s.AppendCertificate(der); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AppendCertificate parses der and adds it to the store's trust anchors.
// It returns an error wrapping ErrInvalidCertificate if the bytes are not a
// valid DER certificate. It never panics on malformed input.
func (s *Store) AppendCertificate(der []byte) error {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	s.custom = append(s.custom, cert)
	return nil
}

// WithRootCertificates returns a store that, in addition to any
// caller-supplied certificates, trusts the OS-native certificate store and
// the embedded well-known CA bundle. The OS probe is best-effort: unreadable
// system stores are tolerated and the embedded bundle is used regardless.
func (s *Store) WithRootCertificates() *Store {
	custom := make([]*x509.Certificate, len(s.custom))
	copy(custom, s.custom)
	return &Store{custom: custom, includeDefaults: true}
}

// Pool assembles the trust anchors into an [x509.CertPool]. Caller-supplied
// certificates are always included; OS-native and embedded roots are added
// when the store was derived via WithRootCertificates.
func (s *Store) Pool() *x509.CertPool {
	var pool *x509.CertPool
	if s.includeDefaults {
		sys, err := x509.SystemCertPool()
		if err != nil {
			// Nothing to do differently if the system store cannot be
			// probed; the embedded bundle still applies.
			log.Debugf("System certificate store unavailable: %v", err)
			pool = x509.NewCertPool()
		} else {
			pool = sys
		}
		if !pool.AppendCertsFromPEM([]byte(embedded.MozillaCACertificatesPEM())) {
			log.Warnf("Embedded CA bundle yielded no certificates")
		}
	} else {
		pool = x509.NewCertPool()
	}
	for _, cert := range s.custom {
		pool.AddCert(cert)
	}
	return pool
}
