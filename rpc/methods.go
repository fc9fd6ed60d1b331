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

package rpc

import "context"

// GetBlockCount returns the height of the most-work fully-validated chain.
func (c *Client) GetBlockCount(ctx context.Context) (int64, error) {
	var count int64
	err := c.call(ctx, "getblockcount", nil, &count)
	return count, err
}

// GetBestBlockHash returns the hash of the chain tip, hex encoded.
func (c *Client) GetBestBlockHash(ctx context.Context) (string, error) {
	var hash string
	err := c.call(ctx, "getbestblockhash", nil, &hash)
	return hash, err
}

// GetBlockHash returns the hash of the block at the given height.
func (c *Client) GetBlockHash(ctx context.Context, height int64) (string, error) {
	var hash string
	err := c.call(ctx, "getblockhash", []any{height}, &hash)
	return hash, err
}

// BlockHeader is the verbose getblockheader result.
type BlockHeader struct {
	Hash          string  `json:"hash"`
	Confirmations int64   `json:"confirmations"`
	Height        int64   `json:"height"`
	Version       int32   `json:"version"`
	MerkleRoot    string  `json:"merkleroot"`
	Time          int64   `json:"time"`
	MedianTime    int64   `json:"mediantime"`
	Nonce         uint32  `json:"nonce"`
	Bits          string  `json:"bits"`
	Difficulty    float64 `json:"difficulty"`
	PreviousHash  string  `json:"previousblockhash"`
	NextHash      string  `json:"nextblockhash"`
}

// GetBlockHeader returns the verbose header of the block with the given hash.
func (c *Client) GetBlockHeader(ctx context.Context, hash string) (*BlockHeader, error) {
	var header BlockHeader
	if err := c.call(ctx, "getblockheader", []any{hash, true}, &header); err != nil {
		return nil, err
	}
	return &header, nil
}

// GetBlockHeaderHex returns the serialized header of the block with the
// given hash, hex encoded.
func (c *Client) GetBlockHeaderHex(ctx context.Context, hash string) (string, error) {
	var raw string
	err := c.call(ctx, "getblockheader", []any{hash, false}, &raw)
	return raw, err
}

// Block is the verbosity-1 getblock result.
type Block struct {
	Hash          string   `json:"hash"`
	Confirmations int64    `json:"confirmations"`
	Size          int32    `json:"size"`
	Weight        int32    `json:"weight"`
	Height        int64    `json:"height"`
	Version       int32    `json:"version"`
	MerkleRoot    string   `json:"merkleroot"`
	Tx            []string `json:"tx"`
	Time          int64    `json:"time"`
	MedianTime    int64    `json:"mediantime"`
	Nonce         uint32   `json:"nonce"`
	Bits          string   `json:"bits"`
	Difficulty    float64  `json:"difficulty"`
	PreviousHash  string   `json:"previousblockhash"`
	NextHash      string   `json:"nextblockhash"`
}

// GetBlock returns the block with the given hash, decoded.
func (c *Client) GetBlock(ctx context.Context, hash string) (*Block, error) {
	var block Block
	if err := c.call(ctx, "getblock", []any{hash, 1}, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// GetBlockHex returns the serialized block with the given hash, hex encoded.
func (c *Client) GetBlockHex(ctx context.Context, hash string) (string, error) {
	var raw string
	err := c.call(ctx, "getblock", []any{hash, 0}, &raw)
	return raw, err
}

// GetRawMempool returns the txids of all transactions in the mempool.
func (c *Client) GetRawMempool(ctx context.Context) ([]string, error) {
	var txids []string
	err := c.call(ctx, "getrawmempool", nil, &txids)
	return txids, err
}

// NetworkInfo is the getnetworkinfo result. Only fields stable across the
// supported version range are decoded.
type NetworkInfo struct {
	Version         int64   `json:"version"`
	Subversion      string  `json:"subversion"`
	ProtocolVersion int64   `json:"protocolversion"`
	Connections     int64   `json:"connections"`
	RelayFee        float64 `json:"relayfee"`
}

// GetNetworkInfo returns information about the node's P2P networking state.
func (c *Client) GetNetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	var info NetworkInfo
	if err := c.call(ctx, "getnetworkinfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetRawTransaction returns the serialized transaction with the given txid,
// hex encoded.
func (c *Client) GetRawTransaction(ctx context.Context, txid string) (string, error) {
	var raw string
	err := c.call(ctx, "getrawtransaction", []any{txid}, &raw)
	return raw, err
}

// SendRawTransaction submits a serialized, hex-encoded transaction and
// returns its txid.
func (c *Client) SendRawTransaction(ctx context.Context, rawHex string) (string, error) {
	var txid string
	err := c.call(ctx, "sendrawtransaction", []any{rawHex}, &txid)
	return txid, err
}

// BlockFilter is the getblockfilter result (BIP 157 basic filters).
type BlockFilter struct {
	Filter string `json:"filter"`
	Header string `json:"header"`
}

// GetBlockFilter returns the BIP 157 filter for the block with the given
// hash. Requires Bitcoin Core v19 or later.
func (c *Client) GetBlockFilter(ctx context.Context, hash string) (*BlockFilter, error) {
	var filter BlockFilter
	if err := c.call(ctx, "getblockfilter", []any{hash, "basic"}, &filter); err != nil {
		return nil, err
	}
	return &filter, nil
}

// Deployment is the status of one softfork deployment.
type Deployment struct {
	Type   string `json:"type"`
	Height int64  `json:"height"`
	Active bool   `json:"active"`
}

// DeploymentInfo is the getdeploymentinfo result.
type DeploymentInfo struct {
	Hash        string                `json:"hash"`
	Height      int64                 `json:"height"`
	Deployments map[string]Deployment `json:"deployments"`
}

// GetDeploymentInfo returns softfork deployment statuses at the chain tip.
// Requires Bitcoin Core v23 or later.
func (c *Client) GetDeploymentInfo(ctx context.Context) (*DeploymentInfo, error) {
	var info DeploymentInfo
	if err := c.call(ctx, "getdeploymentinfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
