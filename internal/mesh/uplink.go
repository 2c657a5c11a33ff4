// ============================================================================
// Aegis MeshUplink - client connection to the external service mesh
// ============================================================================
//
// Package: internal/mesh
// Purpose: the process's one outbound connection to an external
// WebSocket mesh server (the server itself is out of scope, only this
// client is ours). Resolves and caches the mesh hostname, connects
// lazily on first publish, and reconnects on a 1s retry loop without
// ever blocking a caller's Publish beyond one connection attempt.
//
// Grounded on gorilla/websocket usage in the retrieved
// maumercado-task-queue-go and loonghao-webhook_bridge examples; the
// lazy-reconnect/retry-loop shape follows a peer-connection cache:
// resolve once, dial lazily, retry on a fixed interval in the
// background.
//
// ============================================================================

package mesh

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aegis-run/poolrt/pkg/types"
)

var log = slog.Default()

// HandshakeFrame is the literal first text frame the mesh server
// expects from every client before anything else crosses the socket.
const HandshakeFrame = "webswitch"

// RetryInterval is how often Uplink retries a failed connection in
// the background once a Publish has triggered one.
const RetryInterval = time.Second

// Uplink is the MeshUplink (C5): one connection at a time to a
// configured mesh server address, reconnected lazily.
type Uplink struct {
	addr      string
	clientID  string
	dialer    websocket.Dialer
	onMessage func(types.BroadcastMessage)

	mu           sync.Mutex
	resolvedHost string
	conn         *websocket.Conn
	retrying     bool
	closed       bool
	stopRetry    chan struct{}

	pendingMu sync.Mutex
	// pending holds, per event name, the most recent message a failed
	// Publish could not deliver. It is flushed once the retry loop
	// re-establishes a connection.
	pending map[string]types.BroadcastMessage
}

// NewUplink builds an Uplink targeting addr (a ws:// or wss:// URL).
// onMessage is invoked, from the read loop's own goroutine, for every
// frame the mesh server forwards to this client.
func NewUplink(addr string, onMessage func(types.BroadcastMessage)) *Uplink {
	return &Uplink{
		addr:      addr,
		clientID:  uuid.NewString(),
		dialer:    websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		onMessage: onMessage,
		pending:   make(map[string]types.BroadcastMessage),
	}
}

// ResetAddress drops the cached resolved host and the current
// connection, forcing the next Publish to re-resolve and redial.
func (u *Uplink) ResetAddress() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.resolvedHost = ""
	if u.conn != nil {
		_ = u.conn.Close()
		u.conn = nil
	}
}

// Close permanently shuts the uplink down.
func (u *Uplink) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	if u.stopRetry != nil {
		close(u.stopRetry)
		u.stopRetry = nil
	}
	if u.conn != nil {
		err := u.conn.Close()
		u.conn = nil
		return err
	}
	return nil
}

func (u *Uplink) resolveHost() (string, error) {
	u.mu.Lock()
	if u.resolvedHost != "" {
		host := u.resolvedHost
		u.mu.Unlock()
		return host, nil
	}
	u.mu.Unlock()

	parsed, err := url.Parse(u.addr)
	if err != nil {
		return "", fmt.Errorf("mesh: parse address: %w", err)
	}
	ips, err := net.LookupHost(parsed.Hostname())
	if err != nil {
		return "", fmt.Errorf("mesh: resolve host: %w", err)
	}
	host := ips[0]
	if port := parsed.Port(); port != "" {
		host = net.JoinHostPort(host, port)
	}

	u.mu.Lock()
	u.resolvedHost = host
	u.mu.Unlock()
	return host, nil
}

func (u *Uplink) ensureConn() (*websocket.Conn, error) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil, fmt.Errorf("mesh: uplink closed")
	}
	if u.conn != nil {
		conn := u.conn
		u.mu.Unlock()
		return conn, nil
	}
	u.mu.Unlock()

	host, err := u.resolveHost()
	if err != nil {
		return nil, err
	}

	dialURL, err := url.Parse(u.addr)
	if err != nil {
		return nil, fmt.Errorf("mesh: parse address: %w", err)
	}
	dialURL.Host = host

	conn, _, err := u.dialer.Dial(dialURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("mesh: dial: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(HandshakeFrame)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mesh: handshake: %w", err)
	}

	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()

	go u.readLoop(conn)
	return conn, nil
}

func (u *Uplink) readLoop(conn *websocket.Conn) {
	defer func() {
		u.mu.Lock()
		if u.conn == conn {
			u.conn = nil
		}
		u.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Info("mesh: connection lost", "error", err)
			return
		}
		var msg types.BroadcastMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Error("mesh: malformed frame", "error", err)
			continue
		}
		if u.onMessage != nil {
			u.onMessage(msg)
		}
	}
}

// Publish sends msg over the mesh, connecting first if necessary. A
// failed connection attempt or write queues msg (keyed by eventName,
// so only the latest message for a given event survives) and schedules
// a background retry of the connection, returning the error immediately
// rather than blocking the caller. The retry loop resends every queued
// message as soon as the connection is back up, so a Publish that
// raced the very first dial is not silently lost.
func (u *Uplink) Publish(eventName string, msg types.BroadcastMessage) error {
	conn, err := u.ensureConn()
	if err != nil {
		u.queuePending(eventName, msg)
		u.startRetryLoop()
		return err
	}

	if err := u.sendOn(conn, msg); err != nil {
		u.queuePending(eventName, msg)
		u.startRetryLoop()
		return err
	}
	return nil
}

func (u *Uplink) sendOn(conn *websocket.Conn, msg types.BroadcastMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mesh: marshal: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn != conn {
		return fmt.Errorf("mesh: connection replaced mid-publish")
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func (u *Uplink) queuePending(eventName string, msg types.BroadcastMessage) {
	u.pendingMu.Lock()
	u.pending[eventName] = msg
	u.pendingMu.Unlock()
}

// flushPendingOn resends every queued message over conn, draining the
// pending set first so a message that fails to resend is re-queued
// rather than lost between the two steps.
func (u *Uplink) flushPendingOn(conn *websocket.Conn) {
	u.pendingMu.Lock()
	pending := u.pending
	u.pending = make(map[string]types.BroadcastMessage, len(pending))
	u.pendingMu.Unlock()

	for eventName, msg := range pending {
		if err := u.sendOn(conn, msg); err != nil {
			log.Error("mesh: failed to resend queued publish after reconnect", "event", eventName, "error", err)
			u.queuePending(eventName, msg)
		}
	}
}

func (u *Uplink) startRetryLoop() {
	u.mu.Lock()
	if u.retrying || u.closed {
		u.mu.Unlock()
		return
	}
	u.retrying = true
	stop := make(chan struct{})
	u.stopRetry = stop
	u.mu.Unlock()

	go func() {
		defer func() {
			u.mu.Lock()
			u.retrying = false
			u.mu.Unlock()
		}()

		ticker := time.NewTicker(RetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if conn, err := u.ensureConn(); err == nil {
					u.flushPendingOn(conn)
					return
				}
			}
		}
	}()
}
