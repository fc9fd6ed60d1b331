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

// Package request models outbound HTTP requests and their responses for the
// pooled client. A [Request] is a plain description of an exchange; [Parse]
// resolves it into a [ParsedRequest], which exposes the endpoint identity the
// connection pool keys on and knows how to serialize itself onto a raw
// transport. Responses are consumed fully into memory so the transport is
// immediately reusable for the next exchange.
package request

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Request describes an outbound HTTP request before parsing.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Get returns a GET request for the given URL.
func Get(url string) *Request {
	return &Request{Method: http.MethodGet, URL: url}
}

// Post returns a POST request for the given URL carrying body.
func Post(url string, body []byte) *Request {
	return &Request{Method: http.MethodPost, URL: url, Body: body}
}

// WithHeader sets a header on the request and returns it for chaining.
func (r *Request) WithHeader(key, value string) *Request {
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Header.Set(key, value)
	return r
}

// WithTimeout bounds the whole exchange, from connecting to reading the last
// response byte, and returns the request for chaining.
func (r *Request) WithTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// ParsedRequest is a Request resolved into wire form. It is created fresh
// for every send and never outlives the exchange.
type ParsedRequest struct {
	host     string
	port     uint16
	secure   bool
	deadline time.Time
	httpReq  *http.Request
}

// Parse validates req's URL and resolves the endpoint identity and deadline.
func Parse(req *Request) (*ParsedRequest, error) {
	parsedURL, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("request: parse url: %w", err)
	}
	var secure bool
	switch parsedURL.Scheme {
	case "http":
	case "https":
		secure = true
	default:
		return nil, fmt.Errorf("request: unsupported scheme %q", parsedURL.Scheme)
	}
	host := parsedURL.Hostname()
	if host == "" {
		return nil, errors.New("request: missing host")
	}
	port := uint16(80)
	if secure {
		port = 443
	}
	if p := parsedURL.Port(); p != "" {
		parsedPort, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("request: invalid port %q: %w", p, err)
		}
		port = uint16(parsedPort)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body *bytes.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	var httpReq *http.Request
	if body != nil {
		httpReq, err = http.NewRequest(method, req.URL, body)
	} else {
		httpReq, err = http.NewRequest(method, req.URL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("request: build request: %w", err)
	}
	for key, values := range req.Header {
		httpReq.Header[key] = values
	}

	var deadline time.Time
	if req.Timeout > 0 {
		deadline = time.Now().Add(req.Timeout)
	}
	return &ParsedRequest{
		host:     host,
		port:     port,
		secure:   secure,
		deadline: deadline,
		httpReq:  httpReq,
	}, nil
}

// ConnectionParams returns the endpoint identity this request must be sent
// to. Two requests with equal parameters may share a pooled connection.
func (p *ParsedRequest) ConnectionParams() (host string, port uint16, secure bool) {
	return p.host, p.port, p.secure
}

// Deadline returns the absolute deadline for the exchange, or the zero time
// if the request carries none.
func (p *ParsedRequest) Deadline() time.Time {
	return p.deadline
}
