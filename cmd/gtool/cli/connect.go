// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gtool/lib/config"
	"github.com/bureau-foundation/gtool/lib/service"
)

// SocketEnvVar overrides the default controller socket path.
const SocketEnvVar = "GTOOL_SOCKET"

// callTimeout bounds one request-response call.
const callTimeout = 30 * time.Second

// Connection carries the --socket flag.
type Connection struct {
	SocketPath string
}

// DefaultSocketPath returns GTOOL_SOCKET, else the socket path of the
// resolved controller config (GTOOL_CONFIG or the built-in default).
func DefaultSocketPath() string {
	if socket := os.Getenv(SocketEnvVar); socket != "" {
		return socket
	}
	cfg, err := config.Resolve("")
	if err != nil {
		return config.Default().SocketPath
	}
	return cfg.SocketPath
}

// AddFlags registers --socket.
func (c *Connection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.SocketPath, "socket", DefaultSocketPath(), "controller socket path (env "+SocketEnvVar+")")
}

// Client returns a client for the configured socket.
func (c *Connection) Client() *service.Client {
	return service.NewClient(c.SocketPath)
}

// CallContext bounds a request-response call.
func CallContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, callTimeout)
}

// DescribeDialError adds a hint when err means no controller is
// listening on the socket.
func DescribeDialError(err error) error {
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT) {
		return &hintError{err: err, hint: "is gtool-controller running? Set --socket or " + SocketEnvVar + " if it uses another socket."}
	}
	return err
}

type hintError struct {
	err  error
	hint string
}

func (e *hintError) Error() string {
	return strings.TrimSpace(e.err.Error()) + "\n" + e.hint
}

func (e *hintError) Unwrap() error { return e.err }
