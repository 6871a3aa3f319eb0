// Package transport owns the TCP+TLS listen socket and the per-connection
// line-framing primitives: buffered read until newline, and a write path
// serialised by a per-socket mutex so two goroutines racing to notify the
// same connection never interleave partial lines.
package transport

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/VictorNagibator/Messenger/server/internal/config"
	"github.com/VictorNagibator/Messenger/server/internal/pkg/helpers"
)

// Conn wraps one accepted, TLS-wrapped connection with line framing and a
// serialised writer. It implements session.Conn.
type Conn struct {
	id      string
	raw     net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
	log     *helpers.Logger
}

// Wrap adopts an already-TLS-accepted net.Conn.
func Wrap(raw net.Conn) *Conn {
	id := uuid.NewString()
	log := helpers.NewLogger("transport").With("conn_id", id)
	log.Info("accepted connection", "remote_addr", raw.RemoteAddr().String())
	return &Conn{
		id:     id,
		raw:    raw,
		reader: bufio.NewReader(raw),
		log:    log,
	}
}

// ID returns the connection's correlation id, attached to every log line
// emitted about it.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address, for logging.
func (c *Conn) RemoteAddr() string { return c.raw.RemoteAddr().String() }

// ReadLine blocks until a full line is available, accumulating bytes across
// reads as needed. A trailing '\r' before the '\n' is stripped. A single
// underlying read may have produced zero, one, or many buffered lines;
// bufio.Reader already handles that accumulation for us.
func (c *Conn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		c.log.Debug("read line failed", "err", err)
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// WriteLine writes line plus a trailing '\n' atomically with respect to
// other WriteLine calls on the same connection. The full payload is
// written or a fatal error is returned to the caller.
func (c *Conn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := writeFull(c.raw, []byte(line+"\n")); err != nil {
		c.log.Debug("write line failed", "err", err)
		return err
	}
	return nil
}

// writeFull writes b in full, retrying on partial writes.
func writeFull(w net.Conn, b []byte) error {
	total := 0
	for total < len(b) {
		n, err := w.Write(b[total:])
		total += n
		if err != nil {
			return err
		}
	}
	return nil
}

// Close tears down the underlying socket.
func (c *Conn) Close() error {
	c.log.Debug("connection closed")
	return c.raw.Close()
}

// Listen opens a TLS-wrapped TCP listener on cfg's host/port, using the
// certificate and key named in tlsCfg. A key/certificate mismatch is
// returned as an error so the caller can treat it as a fatal boot
// condition.
func Listen(cfg config.ServerConfig, tlsCfg config.TLSConfig) (net.Listener, error) {
	cert, err := tls.LoadX509KeyPair(tlsCfg.CertPath, tlsCfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := tls.Listen("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	})
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return listener, nil
}
