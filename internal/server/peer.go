package server

import (
	"net"
	"sync"

	"github.com/eternalApril/mixedds/internal/memcache"
	"github.com/eternalApril/mixedds/internal/resp"
)

type decoder[T any] interface {
	Read() (T, error)
	Buffered() int
}

type encoder[T any] interface {
	Write(T) error
	Flush() error
}

// Peer represents a connected client.
// It wraps a network connection and provides synchronized methods for reading and writing protocol data
type Peer[Req, Resp any] struct {
	conn   net.Conn
	reader decoder[Req]
	writer encoder[Resp]
	mu     sync.Mutex
}

// NewRESPPeer initializes a RESP client peer from a network connection
func NewRESPPeer(conn net.Conn) *Peer[resp.Value, resp.Value] {
	return &Peer[resp.Value, resp.Value]{
		conn:   conn,
		reader: resp.NewDecoder(conn),
		writer: resp.NewEncoder(conn),
	}
}

// NewMemcachePeer initializes a memcache client peer from a network connection
func NewMemcachePeer(conn net.Conn) *Peer[memcache.Request, memcache.Response] {
	return &Peer[memcache.Request, memcache.Response]{
		conn:   conn,
		reader: memcache.NewDecoder(conn),
		writer: memcache.NewEncoder(conn),
	}
}

// Send encodes and writes a reply to the client.
// This method is thread-safe and can be called from multiple goroutines
func (p *Peer[Req, Resp]) Send(v Resp) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Write(v)
}

// ReadCommand reads and decodes the next request from the client's input stream
func (p *Peer[Req, Resp]) ReadCommand() (Req, error) {
	return p.reader.Read()
}

// Close terminates the underlying network connection
func (p *Peer[Req, Resp]) Close() error {
	return p.conn.Close()
}

// Flush sends all buffered data to the client
func (p *Peer[Req, Resp]) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Flush()
}

// InputBuffered returns the number of bytes that can be read from the current buffer
func (p *Peer[Req, Resp]) InputBuffered() int {
	return p.reader.Buffered()
}
