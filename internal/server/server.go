package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eternalApril/mixedds/internal/memcache"
	"github.com/eternalApril/mixedds/internal/metrics"
	"github.com/eternalApril/mixedds/internal/resp"
	"github.com/eternalApril/mixedds/internal/shard"
)

// ErrServerClosed is returned by the Serve methods after Shutdown
var ErrServerClosed = errors.New("server closed")

// Server accepts RESP and memcache connections and serves them from one shard pool
type Server struct {
	resp     *Engine
	memcache *MemcacheEngine
	logger   *zap.Logger

	mu        sync.Mutex
	closing   bool
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	wg        sync.WaitGroup
}

// New creates a server whose RESP and memcache engines share pool. A nil m discards metrics
func New(pool *shard.Pool, m metrics.Cache, logger *zap.Logger) *Server {
	if m == nil {
		m = metrics.Nop()
	}
	return &Server{
		resp:      NewEngine(pool, m, logger),
		memcache:  NewMemcacheEngine(pool, m, logger),
		logger:    logger,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[net.Conn]struct{}),
	}
}

// ServeRESP accepts RESP connections on ln until ln is closed or Shutdown is called
func (s *Server) ServeRESP(ln net.Listener) error {
	return s.serve(ln, s.handleRESP)
}

// ServeMemcache accepts memcache text protocol connections on ln until ln is closed or Shutdown is called
func (s *Server) ServeMemcache(ln net.Listener) error {
	return s.serve(ln, s.handleMemcache)
}

func (s *Server) serve(ln net.Listener, handle func(net.Conn)) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.listeners[ln] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.listeners, ln)
		s.mu.Unlock()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("Accept error", zap.Error(err))
			continue
		}

		if !s.track(conn) {
			conn.Close() //nolint:errcheck
			return ErrServerClosed
		}

		go func() {
			defer s.untrack(conn)
			handle(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown stops accepting connections and waits for the open ones to finish their current
// request. Connections still open when ctx is done are closed forcibly
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for ln := range s.listeners {
		ln.Close() //nolint:errcheck
	}
	// wake up connections blocked waiting for their next request
	for conn := range s.conns {
		conn.SetReadDeadline(time.Now()) //nolint:errcheck
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close() //nolint:errcheck
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// expectedReadError reports read errors that end a connection without being worth a warning
func (s *Server) expectedReadError(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || s.isClosing()
}

// handleRESP handles a RESP connection for a single user
func (s *Server) handleRESP(conn net.Conn) {
	log := s.logger
	if log.Core().Enabled(zap.DebugLevel) {
		log.Debug("client connected", zap.String("addr", conn.RemoteAddr().String()), zap.String("protocol", "resp"))
	}

	peer := NewRESPPeer(conn)
	defer func() {
		peer.Close() //nolint:errcheck
		// log connection close
		if log.Core().Enabled(zap.DebugLevel) {
			log.Debug("client disconnected", zap.String("addr", conn.RemoteAddr().String()))
		}
	}()

	for {
		cmdValue, err := peer.ReadCommand()
		if err != nil {
			if errors.Is(err, resp.ErrInvalidEnding) || errors.Is(err, resp.ErrInvalidLength) ||
				errors.Is(err, resp.ErrTooDeep) {
				_ = peer.Send(resp.MakeError("ERR Protocol error: " + err.Error()))
				_ = peer.Flush()
				return
			}
			if !s.expectedReadError(err) {
				log.Warn("read command failed", zap.Error(err))
			}
			return
		}

		var result resp.Value
		quit := false

		switch {
		case cmdValue.Type != resp.TypeArray:
			result = resp.MakeError("ERR Protocol error: expected an array of bulk strings")
		case len(cmdValue.Array) == 0:
			continue
		default:
			commandName := strings.ToUpper(string(cmdValue.Array[0].String))
			if commandName == "QUIT" {
				result, quit = resp.MakeSimpleString("OK"), true
				break
			}
			result = s.resp.Execute(commandName, cmdValue.Array[1:])
		}

		if err = peer.Send(result); err != nil {
			log.Error("error writing response", zap.Error(err))
			return
		}

		if quit || peer.InputBuffered() == 0 {
			if err := peer.Flush(); err != nil {
				return
			}
		}
		if quit {
			return
		}
	}
}

// handleMemcache handles a memcache text protocol connection for a single user
func (s *Server) handleMemcache(conn net.Conn) {
	log := s.logger
	if log.Core().Enabled(zap.DebugLevel) {
		log.Debug("client connected", zap.String("addr", conn.RemoteAddr().String()), zap.String("protocol", "memcache"))
	}

	peer := NewMemcachePeer(conn)
	defer func() {
		peer.Close() //nolint:errcheck
		if log.Core().Enabled(zap.DebugLevel) {
			log.Debug("client disconnected", zap.String("addr", conn.RemoteAddr().String()))
		}
	}()

	for {
		var result memcache.Response
		reply := true

		req, err := peer.ReadCommand()
		if err != nil {
			var clientErr *memcache.ClientError
			switch {
			case errors.Is(err, memcache.ErrUnknownCommand):
				result = memcache.MakeError()
			case errors.As(err, &clientErr):
				result = clientErr.Response()
			case errors.Is(err, memcache.ErrLineTooLong):
				// the rest of the line cannot be skipped reliably
				_ = peer.Send(memcache.MakeClientError("line too long"))
				_ = peer.Flush()
				return
			default:
				if !s.expectedReadError(err) {
					log.Warn("read command failed", zap.Error(err))
				}
				return
			}
		} else {
			if req.Command == "quit" {
				peer.Flush() //nolint:errcheck
				return
			}
			result = s.memcache.Execute(req)
			reply = !req.NoReply
		}

		if reply {
			if err = peer.Send(result); err != nil {
				log.Error("error writing response", zap.Error(err))
				return
			}
		}

		if peer.InputBuffered() == 0 {
			if err := peer.Flush(); err != nil {
				return
			}
		}
	}
}
