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

package certstore

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bitpool/bitpool/internal/testcert"
)

func TestNewEmpty(t *testing.T) {
	t.Parallel()

	store, err := New(nil)
	require.NoError(t, err)
	require.True(t, store.Pool().Equal(x509.NewCertPool()))
}

func TestNewWithCertificate(t *testing.T) {
	t.Parallel()

	authority, err := testcert.New()
	require.NoError(t, err)

	store, err := New(authority.CADER)
	require.NoError(t, err)
	require.False(t, store.Pool().Equal(x509.NewCertPool()))
}

func TestMalformedDER(t *testing.T) {
	t.Parallel()

	_, err := New([]byte{0x01, 0x02, 0x03})
	require.ErrorIs(t, err, ErrInvalidCertificate)

	store, err := New(nil)
	require.NoError(t, err)
	err = store.AppendCertificate([]byte("not a certificate"))
	require.ErrorIs(t, err, ErrInvalidCertificate)
	// The failed append must not have polluted the store.
	require.True(t, store.Pool().Equal(x509.NewCertPool()))
}

// TestByteRepresentations checks that the trust outcome does not depend on
// how the DER bytes were produced: a plain slice, a defensive copy, and a
// full-capacity reslice must all behave identically.
func TestByteRepresentations(t *testing.T) {
	t.Parallel()

	authority, err := testcert.New()
	require.NoError(t, err)
	der := authority.CADER

	representations := map[string][]byte{
		"slice":  der,
		"copy":   append([]byte(nil), der...),
		"capped": der[:len(der):len(der)],
	}
	var pools []*x509.CertPool
	for name, b := range representations {
		store, err := New(b)
		require.NoError(t, err, name)
		pools = append(pools, store.Pool())
	}
	for i := 1; i < len(pools); i++ {
		require.True(t, pools[0].Equal(pools[i]))
	}
}

func TestWithRootCertificatesKeepsCustomAnchors(t *testing.T) {
	t.Parallel()

	authority, err := testcert.New()
	require.NoError(t, err)

	store, err := New(authority.CADER)
	require.NoError(t, err)
	pool := store.WithRootCertificates().Pool()

	leaf, err := x509.ParseCertificate(authority.Leaf.Certificate[0])
	require.NoError(t, err)
	_, err = leaf.Verify(x509.VerifyOptions{Roots: pool})
	require.NoError(t, err)
}

func TestWithRootCertificatesDoesNotMutateReceiver(t *testing.T) {
	t.Parallel()

	store, err := New(nil)
	require.NoError(t, err)
	derived := store.WithRootCertificates()

	require.True(t, store.Pool().Equal(x509.NewCertPool()))
	require.False(t, derived.Pool().Equal(x509.NewCertPool()))
}
