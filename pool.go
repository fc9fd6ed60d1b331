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
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bitpool/bitpool/conn"
	"github.com/bitpool/bitpool/request"
)

// Client is a connection-pooling HTTP client. It caches at most one live
// connection per ConnectionKey, bounded by the configured capacity, and is
// safe for concurrent use.
//
// The pool's shared state is guarded by a single short-held mutex. No
// network I/O, TLS handshake, or request exchange ever runs while the lock
// is held; the lock covers only constant-time map and queue operations.
type Client struct {
	cfg    clientConfig
	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[ConnectionKey]*poolEntry
	// order holds insertions oldest first. An element may be stale (its
	// entry was removed out of band); stale elements are discarded when
	// they reach the front.
	order  []orderedEntry
	closed bool
}

// orderedEntry pairs a key with the exact entry inserted under it. Eviction
// compares identity, not just the key: a key removed out of band and later
// re-inserted must not inherit the old element's queue position.
type orderedEntry struct {
	key   ConnectionKey
	entry *poolEntry
}

type poolEntry struct {
	cn *conn.Conn
	// activity and stop are nil unless idle eviction is enabled.
	activity chan struct{}
	stop     chan struct{}
}

// Send dispatches one request: it derives the request's ConnectionKey,
// obtains the pooled connection for it (establishing and caching one on a
// miss), performs the exchange, and returns the response. Errors propagate
// as-is; Send never retries.
func (c *Client) Send(ctx context.Context, req *request.Request) (*request.Response, error) {
	preq, err := request.Parse(req)
	if err != nil {
		return nil, err
	}
	host, port, secure := preq.ConnectionParams()
	key := ConnectionKey{Host: host, Port: port, Secure: secure}

	cn, err := c.get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer cn.Release()

	resp, err := cn.Send(ctx, preq)
	if err != nil {
		// A failed exchange leaves an HTTP/1.1 stream in an unknown state;
		// drop the entry so the next call establishes a fresh connection.
		c.evict(key, cn)
		return nil, err
	}
	if resp.CloseRequested() {
		log.Debugf("Server requested close for %v; evicting", key)
		c.evict(key, cn)
	}
	return resp, nil
}

// Close releases every pooled connection and rejects subsequent sends.
// Connections still retained by in-flight callers are torn down when those
// callers release them.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	entries := make([]*poolEntry, 0, len(c.conns))
	for _, entry := range c.conns {
		entries = append(entries, entry)
	}
	c.conns = map[ConnectionKey]*poolEntry{}
	c.order = nil
	c.mu.Unlock()

	c.cancel()
	grp, _ := errgroup.WithContext(context.Background())
	for _, entry := range entries {
		entry := entry
		grp.Go(func() error {
			if entry.stop != nil {
				close(entry.stop)
			}
			return entry.cn.Release()
		})
	}
	return grp.Wait()
}

// get returns a retained connection for key, building one if the pool has
// no entry. The caller must Release the returned connection when done.
func (c *Client) get(ctx context.Context, key ConnectionKey) (*conn.Conn, error) {
	// Fast path: reuse the canonical connection.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	if entry, ok := c.conns[key]; ok {
		entry.cn.Retain()
		touch(entry)
		c.mu.Unlock()
		return entry.cn, nil
	}
	c.mu.Unlock()

	// Miss: build outside the lock. The dial and handshake must never block
	// callers working with other keys. A failed build is not cached; the key
	// stays eligible for another attempt on the next call.
	log.Debugf("Pool miss for %v; establishing connection", key)
	built, err := conn.Dial(ctx, key.Host, key.Port, key.Secure, c.cfg.dial, c.cfg.connector)
	if err != nil {
		return nil, err
	}

	// Insert-or-reconcile: a concurrent caller for the same key may have
	// won the race while we were handshaking.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = built.Release()
		return nil, ErrClientClosed
	}
	if entry, ok := c.conns[key]; ok {
		entry.cn.Retain()
		touch(entry)
		c.mu.Unlock()
		log.Debugf("Lost insert race for %v; discarding duplicate connection", key)
		_ = built.Release() // gracefully closes the duplicate
		return entry.cn, nil
	}
	// The pool takes over the builder's reference; retain one for the caller.
	entry := c.insertLocked(key, built)
	var evicted *poolEntry
	if len(c.conns) > c.cfg.capacity {
		evicted = c.evictOldestLocked()
	}
	entry.cn.Retain()
	c.mu.Unlock()

	if evicted != nil {
		// Teardown happens via the refcount: a connection still in use by
		// another caller survives its eviction until released.
		_ = evicted.cn.Release()
	}
	return entry.cn, nil
}

// insertLocked adds a new canonical connection for key and starts its idle
// watcher if idle eviction is enabled.
func (c *Client) insertLocked(key ConnectionKey, built *conn.Conn) *poolEntry {
	entry := &poolEntry{cn: built}
	if c.cfg.idleTimeout > 0 {
		entry.activity = make(chan struct{}, 1)
		entry.stop = make(chan struct{})
		go c.closeWhenIdle(key, entry)
	}
	c.conns[key] = entry
	c.order = append(c.order, orderedEntry{key: key, entry: entry})
	return entry
}

// evictOldestLocked removes the oldest-inserted surviving entry and returns
// it. Stale elements at the front of the queue are discarded.
func (c *Client) evictOldestLocked() *poolEntry {
	for len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		entry, ok := c.conns[oldest.key]
		if !ok || entry != oldest.entry {
			continue
		}
		delete(c.conns, oldest.key)
		if entry.stop != nil {
			close(entry.stop)
		}
		log.Debugf("Capacity %d exceeded; evicting oldest connection %v", c.cfg.capacity, oldest.key)
		return entry
	}
	return nil
}

// evict removes key's entry iff it still maps to target, releasing the
// pool's reference. The entry's queue element goes stale and is skipped by
// the identity check when it reaches the front.
func (c *Client) evict(key ConnectionKey, target *conn.Conn) {
	c.mu.Lock()
	entry, ok := c.conns[key]
	if !ok || entry.cn != target {
		c.mu.Unlock()
		return
	}
	delete(c.conns, key)
	if entry.stop != nil {
		close(entry.stop)
	}
	c.mu.Unlock()
	_ = entry.cn.Release()
}

// touch records activity on an entry so the idle watcher pushes its timer
// out. Non-blocking; called with the pool lock held.
func touch(entry *poolEntry) {
	if entry.activity == nil {
		return
	}
	select {
	case entry.activity <- struct{}{}:
	default:
	}
}

// closeWhenIdle evicts the entry for key once it has seen no activity for
// the configured idle timeout. It exits when the entry is removed by any
// other path or the client closes.
func (c *Client) closeWhenIdle(key ConnectionKey, entry *poolEntry) {
	timer := c.cfg.clock.NewTimer(c.cfg.idleTimeout)
	defer timer.Stop()
	for {
		select {
		case <-timer.Chan():
			if c.tryRemoveIdle(key, entry) {
				log.Debugf("Evicting idle connection %v", key)
				_ = entry.cn.Release()
				return
			}
			// Concurrent activity beat the timer; go around again.
			timer.Reset(c.cfg.idleTimeout)
		case <-entry.activity:
			if !timer.Stop() {
				// The timer fired concurrently with the activity; drain
				// the stale tick so the reset starts clean.
				select {
				case <-timer.Chan():
				default:
				}
			}
			timer.Reset(c.cfg.idleTimeout)
		case <-entry.stop:
			return
		case <-c.ctx.Done():
			return
		}
	}
}

// tryRemoveIdle removes key's entry if it is still current and saw no
// activity since the idle timer fired.
func (c *Client) tryRemoveIdle(key ConnectionKey, entry *poolEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-check activity under the lock to avoid racing a concurrent get.
	select {
	case <-entry.activity:
		return false
	default:
	}
	current, ok := c.conns[key]
	if !ok || current != entry {
		return false
	}
	delete(c.conns, key)
	return true
}
