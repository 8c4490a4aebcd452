// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HTTPServer serves an http.Handler on a TCP listener and shuts it
// down gracefully when its context is cancelled.
type HTTPServer struct {
	address         string
	handler         http.Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration
	writeTimeout    time.Duration

	ready chan struct{}
	addr  net.Addr
}

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Address is the TCP listen address, e.g. "127.0.0.1:3000".
	// Required.
	Address string

	// Handler serves every request. Required.
	Handler http.Handler

	// ShutdownTimeout bounds the drain of in-flight requests. Zero
	// means 10 seconds. Open event streams end when their request
	// context is cancelled, which Shutdown does not do; callers
	// serving streams should tie them to the Serve context as well.
	ShutdownTimeout time.Duration

	// WriteTimeout is passed to http.Server. Zero disables it, which
	// long-lived event streams require.
	WriteTimeout time.Duration

	// Logger is required.
	Logger *slog.Logger
}

// NewHTTPServer validates config and returns a server. Panics on a
// missing required field.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	if config.Address == "" {
		panic("service.HTTPServer: Address is required")
	}
	if config.Handler == nil {
		panic("service.HTTPServer: Handler is required")
	}
	if config.Logger == nil {
		panic("service.HTTPServer: Logger is required")
	}
	timeout := config.ShutdownTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPServer{
		address:         config.Address,
		handler:         config.Handler,
		logger:          config.Logger,
		shutdownTimeout: timeout,
		writeTimeout:    config.WriteTimeout,
		ready:           make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *HTTPServer) Ready() <-chan struct{} { return s.ready }

// Addr is the bound address. Valid after Ready is closed.
func (s *HTTPServer) Addr() net.Addr { return s.addr }

// Serve blocks until ctx is cancelled or the server fails.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("http server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http server shutdown error", "error", err)
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// WriteJSON writes value as a JSON response with the given status.
func WriteJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(value); err != nil {
		// Headers are already sent; nothing useful can be reported.
		return
	}
}

// WriteError writes {"error": message} with the given status.
func WriteError(writer http.ResponseWriter, status int, message string) {
	WriteJSON(writer, status, map[string]string{"error": message})
}

// EventWriter writes a Server-Sent Events stream.
type EventWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

// NewEventWriter sends the event-stream headers. It fails when the
// ResponseWriter cannot flush, since buffered events would never
// reach the client.
func NewEventWriter(writer http.ResponseWriter) (*EventWriter, error) {
	flusher, ok := writer.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	header := writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &EventWriter{writer: writer, flusher: flusher}, nil
}

// Send writes one event whose data is value encoded as JSON. An empty
// name omits the event line, which clients receive as "message".
func (w *EventWriter) Send(name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if name != "" {
		if _, err := fmt.Fprintf(w.writer, "event: %s\n", name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", data); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}
