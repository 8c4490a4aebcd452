// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/gtool/lib/codec"
)

// ActionFunc processes a request-response action. raw is the complete
// CBOR request, including the "action" field; the handler decodes its
// own fields from it.
//
// A nil result produces {ok: true}. A non-nil result is CBOR-encoded
// into the response's "data" field. A returned error produces
// {ok: false, error: err.Error()}.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// StreamFunc owns the connection of a stream action after the server
// has acknowledged the request. It writes frames until ctx is done,
// the peer disconnects, or it decides to stop. The server closes conn
// when the function returns.
type StreamFunc func(ctx context.Context, raw []byte, conn net.Conn)

// Response is the envelope of every request-response reply and the
// first value written on a stream connection.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// SocketServer serves the CBOR protocol on a Unix socket. Register
// actions with Handle and HandleStream before calling Serve.
type SocketServer struct {
	socketPath string
	logger     *slog.Logger
	handlers   map[string]ActionFunc
	streams    map[string]StreamFunc
	ready      chan struct{}

	active sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SocketServer{
		socketPath: socketPath,
		logger:     logger,
		handlers:   make(map[string]ActionFunc),
		streams:    make(map[string]StreamFunc),
		ready:      make(chan struct{}),
	}
}

// Handle registers a request-response action. Panics on a duplicate
// action name.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	s.checkUnique(action)
	s.handlers[action] = handler
}

// HandleStream registers a stream action. Panics on a duplicate action
// name.
func (s *SocketServer) HandleStream(action string, handler StreamFunc) {
	s.checkUnique(action)
	s.streams[action] = handler
}

func (s *SocketServer) checkUnique(action string) {
	_, isAction := s.handlers[action]
	_, isStream := s.streams[action]
	if isAction || isStream {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
}

// Ready is closed once the socket is listening.
func (s *SocketServer) Ready() <-chan struct{} { return s.ready }

// Serve listens on the socket and dispatches connections until ctx is
// cancelled, then waits for active handlers to return. A stale socket
// file is removed before listening, and the socket file is removed on
// return. The socket is created with mode 0600.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		return fmt.Errorf("restricting socket mode: %w", err)
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.active.Wait()
	return nil
}

const (
	// readTimeout bounds the wait for the request after connecting.
	readTimeout = 30 * time.Second

	// writeTimeout bounds writing a reply envelope.
	writeTimeout = 10 * time.Second

	// maxRequestSize bounds one request. The largest request is a
	// worker spec upsert, a few kilobytes at most.
	maxRequestSize = 1024 * 1024
)

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	decoder := codec.NewDecoder(io.LimitReader(conn, maxRequestSize))
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	if stream, exists := s.streams[header.Action]; exists {
		// Frames the peer wrote behind the request may already sit in
		// the decoder's buffer; the handler reads them first.
		buffered := &bufferedConn{Conn: conn, reader: io.MultiReader(decoder.Buffered(), conn)}
		s.runStream(ctx, header.Action, stream, raw, buffered)
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		s.writeError(conn, err.Error())
		return
	}
	s.writeSuccess(conn, result)
}

// runStream acknowledges the request and hands the connection to the
// stream handler. The connection is closed when shutdown begins so a
// handler blocked writing to a stalled peer still returns.
func (s *SocketServer) runStream(ctx context.Context, action string, stream StreamFunc, raw codec.RawMessage, conn net.Conn) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{OK: true}); err != nil {
		s.logger.Debug("failed to acknowledge stream", "action", action, "error", err)
		return
	}
	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(streamCtx, func() {
		// Give the handler a moment to write a final frame.
		conn.SetDeadline(time.Now().Add(writeTimeout))
	})
	defer stop()

	s.logger.Debug("stream opened", "action", action)
	stream(streamCtx, []byte(raw), conn)
	s.logger.Debug("stream closed", "action", action)
}

// bufferedConn is a connection whose reads drain bytes the request
// decoder buffered before reaching the socket.
type bufferedConn struct {
	net.Conn
	reader io.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

func (s *SocketServer) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{OK: false, Error: message}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
