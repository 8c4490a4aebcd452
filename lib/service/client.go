// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net"
	"time"

	"github.com/bureau-foundation/gtool/lib/codec"
)

const (
	// dialTimeout covers only connecting to the socket.
	dialTimeout = 5 * time.Second

	// responseReadTimeout is the server's read plus write timeout, so
	// a slow handler is not cut off by the client first.
	responseReadTimeout = 45 * time.Second

	maxResponseSize = 16 * 1024 * 1024
)

// ServiceError is returned when the server replies with ok=false.
type ServiceError struct {
	Action  string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Client calls actions on a controller socket. Each call uses its own
// connection.
type Client struct {
	socketPath string
}

// NewClient returns a client for the socket at socketPath. No
// connection is made until the first call.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// SocketPath returns the socket the client dials.
func (c *Client) SocketPath() string { return c.socketPath }

// Call sends one request and decodes the reply's data into result
// (when both are non-nil). fields must not contain "action".
// A server-side failure is returned as *ServiceError; connection and
// decoding failures are plain errors.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	conn, err := c.open(ctx, action, fields)
	if err != nil {
		return err
	}
	defer conn.Close()

	// The server reads exactly one value; half-closing lets it see EOF
	// if it reads again.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return fmt.Errorf("calling %q on %s: reading response: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return &ServiceError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

// Stream is an open stream connection.
type Stream struct {
	conn    net.Conn
	decoder *codec.Decoder
}

// Stream opens a stream action. The returned Stream yields frames
// until the server closes the connection or Close is called; a
// cancelled ctx also closes it.
func (c *Client) Stream(ctx context.Context, action string, fields map[string]any) (*Stream, error) {
	conn, err := c.open(ctx, action, fields)
	if err != nil {
		return nil, err
	}

	decoder := codec.NewDecoder(conn)
	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := decoder.Decode(&response); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening stream %q on %s: %w", action, c.socketPath, err)
	}
	if !response.OK {
		conn.Close()
		return nil, &ServiceError{Action: action, Message: response.Error}
	}
	conn.SetReadDeadline(time.Time{})

	stream := &Stream{conn: conn, decoder: decoder}
	context.AfterFunc(ctx, func() { conn.Close() })
	return stream, nil
}

// Next decodes the next frame into target. It returns io.EOF when the
// server ended the stream.
func (s *Stream) Next(target any) error {
	return s.decoder.Decode(target)
}

// Send writes one frame to the server on the stream connection.
func (s *Stream) Send(value any) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	defer s.conn.SetWriteDeadline(time.Time{})
	return codec.NewEncoder(s.conn).Encode(value)
}

// Close ends the stream.
func (s *Stream) Close() error {
	return s.conn.Close()
}

func (c *Client) open(ctx context.Context, action string, fields map[string]any) (net.Conn, error) {
	request := make(map[string]any, len(fields)+1)
	maps.Copy(request, fields)
	request["action"] = action

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("calling %q: connecting to %s: %w", action, c.socketPath, err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		conn.Close()
		return nil, fmt.Errorf("calling %q: writing request: %w", action, err)
	}
	conn.SetWriteDeadline(time.Time{})
	return conn, nil
}
