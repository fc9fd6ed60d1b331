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

package request

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
)

// Response is a fully-consumed HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header

	body           []byte
	closeRequested bool
}

// Body returns the response body bytes.
func (r *Response) Body() []byte {
	return r.body
}

// BodyString returns the response body as a string.
func (r *Response) BodyString() string {
	return string(r.body)
}

// CloseRequested reports whether the server asked for the underlying
// transport to be torn down after this exchange ("Connection: close" or an
// HTTP/1.0 response without keep-alive).
func (r *Response) CloseRequested() bool {
	return r.closeRequested
}

// WriteWire serializes the request in HTTP/1.1 wire form onto w. A
// ParsedRequest may be written at most once; its body reader is consumed.
func (p *ParsedRequest) WriteWire(w io.Writer) error {
	return p.httpReq.Write(w)
}

// ReadResponse reads and fully consumes one HTTP response for p from br.
func ReadResponse(br *bufio.Reader, p *ParsedRequest) (*Response, error) {
	httpResp, err := http.ReadResponse(br, p.httpReq)
	if err != nil {
		return nil, fmt.Errorf("request: read response: %w", err)
	}
	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("request: read response body: %w", err)
	}
	return &Response{
		StatusCode:     httpResp.StatusCode,
		Status:         httpResp.Status,
		Header:         httpResp.Header,
		body:           body,
		closeRequested: httpResp.Close,
	}, nil
}
