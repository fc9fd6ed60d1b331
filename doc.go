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

// Package bitpool provides a pooled, TLS-capable HTTP client designed for
// talking to Bitcoin Core's JSON-RPC interface, though nothing in it is
// specific to Bitcoin. It turns a stream of outbound requests into a bounded
// set of reused, authenticated transport connections that are safe to share
// across concurrent goroutines.
//
// A [Client] caches at most one live connection per endpoint, where an
// endpoint is identified by a [ConnectionKey] (host, port, and whether TLS
// is required). The cache is capacity-bounded: when a new endpoint would
// exceed the capacity, the oldest-inserted surviving entry is evicted.
// Eviction is based on time of insertion into the pool, not time of last
// use; a cache hit does not promote an entry.
//
// Basic use:
//
//	client := bitpool.New(10) // cache up to 10 connections
//	resp, err := client.Send(ctx, request.Get("https://example.com"))
//
// Custom trust roots and the TLS backend are configured through the builder:
//
//	client, err := bitpool.NewBuilder().
//		WithRootCertificate(certDER).
//		WithCapacity(4).
//		Build()
//
// Each client owns its TLS configuration outright; two clients with
// different trust stores never share handshake state.
//
// The client performs no retries and no backoff. Transport, certificate,
// and handshake failures propagate to the caller of Send, and a failed
// connection attempt is never cached, so the endpoint stays eligible for a
// fresh attempt on the next call. Higher-level retry policy belongs to the
// caller. HTTP/2, redirects, and proxying are out of scope.
package bitpool
