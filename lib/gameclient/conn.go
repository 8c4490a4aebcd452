// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gameclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/bureau-foundation/gtool/lib/codec"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// DialTimeout bounds connection setup, including the SOCKS5 handshake.
const DialTimeout = 30 * time.Second

// eventBufferSize bounds how far the bridge can run ahead of the
// worker's event loop before the read loop blocks.
const eventBufferSize = 64

// ErrClosed is returned by actions after the connection has ended.
var ErrClosed = errors.New("game connection closed")

// Options configures Dial. Host and Username are required.
type Options struct {
	Host     string
	Port     int
	Username string
	Version  string
	Auth     string

	// Proxy routes the connection through a SOCKS5 proxy.
	Proxy *fleet.Proxy

	Logger *slog.Logger
}

// OptionsFromSpec derives dial options from a worker spec.
func OptionsFromSpec(spec fleet.WorkerSpec, logger *slog.Logger) Options {
	return Options{
		Host:     spec.Host,
		Port:     spec.EffectivePort(),
		Username: spec.Username,
		Version:  spec.Version,
		Auth:     spec.EffectiveAuth(),
		Proxy:    spec.Proxy,
		Logger:   logger,
	}
}

// action is a frame sent to the bridge.
type action struct {
	Op          string  `cbor:"op"`
	Username    string  `cbor:"username,omitempty"`
	Version     string  `cbor:"version,omitempty"`
	Auth        string  `cbor:"auth,omitempty"`
	Text        string  `cbor:"text,omitempty"`
	Control     Control `cbor:"control,omitempty"`
	Active      bool    `cbor:"active,omitempty"`
	Yaw         float64 `cbor:"yaw,omitempty"`
	Pitch       float64 `cbor:"pitch,omitempty"`
	Item        string  `cbor:"item,omitempty"`
	Destination string  `cbor:"destination,omitempty"`
	Reason      string  `cbor:"reason,omitempty"`
}

// frame is an event frame received from the bridge. Only the fields
// of its type are present.
type frame struct {
	Type      EventType              `cbor:"type"`
	Username  string                 `cbor:"username,omitempty"`
	Message   string                 `cbor:"message,omitempty"`
	Reason    string                 `cbor:"reason,omitempty"`
	Health    *float64               `cbor:"health,omitempty"`
	Food      *float64               `cbor:"food,omitempty"`
	Position  *fleet.Position        `cbor:"pos,omitempty"`
	OnGround  *bool                  `cbor:"onGround,omitempty"`
	Entities  *[]WorldEntity         `cbor:"entities,omitempty"`
	Inventory *[]fleet.InventoryItem `cbor:"inventory,omitempty"`
}

// Conn is a live bridge connection.
type Conn struct {
	conn   net.Conn
	logger *slog.Logger
	events chan Event

	writeMu sync.Mutex
	encoder *codec.Encoder

	mu     sync.Mutex
	world  World
	err    error
	closed bool
}

// Dial connects to the bridge at Host:Port, directly or through the
// configured SOCKS5 proxy, and sends the login action.
func Dial(ctx context.Context, options Options) (*Conn, error) {
	if options.Host == "" || options.Username == "" {
		return nil, errors.New("gameclient: Host and Username are required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	address := net.JoinHostPort(options.Host, strconv.Itoa(options.Port))

	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	netConn, err := dialContext(ctx, address, options.Proxy)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}

	conn := newConn(netConn, options.Logger)
	conn.world.Username = options.Username
	login := action{Op: "login", Username: options.Username, Version: options.Version, Auth: options.Auth}
	if err := conn.send(login); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("logging in to %s: %w", address, err)
	}
	go conn.readLoop()
	return conn, nil
}

func dialContext(ctx context.Context, address string, via *fleet.Proxy) (net.Conn, error) {
	direct := &net.Dialer{}
	if via == nil {
		return direct.DialContext(ctx, "tcp", address)
	}
	proxyAddress := net.JoinHostPort(via.Host, strconv.Itoa(via.Port))
	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, direct)
	if err != nil {
		return nil, fmt.Errorf("configuring SOCKS5 proxy %s: %w", proxyAddress, err)
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return dialer.Dial("tcp", address)
	}
	netConn, err := contextDialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("via SOCKS5 proxy %s: %w", proxyAddress, err)
	}
	return netConn, nil
}

func newConn(netConn net.Conn, logger *slog.Logger) *Conn {
	return &Conn{
		conn:    netConn,
		logger:  logger,
		events:  make(chan Event, eventBufferSize),
		encoder: codec.NewEncoder(netConn),
	}
}

// Events implements Client.
func (c *Conn) Events() <-chan Event { return c.events }

// Err implements Client.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// World implements Client.
func (c *Conn) World() World {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.world.Clone()
}

func (c *Conn) Chat(text string) error {
	return c.send(action{Op: "chat", Text: text})
}

func (c *Conn) SetControl(control Control, active bool) error {
	return c.send(action{Op: "control", Control: control, Active: active})
}

func (c *Conn) Look(yaw, pitch float64) error {
	return c.send(action{Op: "look", Yaw: yaw, Pitch: pitch})
}

func (c *Conn) Equip(item, destination string) error {
	return c.send(action{Op: "equip", Item: item, Destination: destination})
}

func (c *Conn) Consume() error {
	return c.send(action{Op: "consume"})
}

// Quit sends the quit action and closes the connection. The event
// stream then ends with a nil Err.
func (c *Conn) Quit(reason string) error {
	sendErr := c.send(action{Op: "quit", Reason: reason})
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	closeErr := c.conn.Close()
	if sendErr != nil && !errors.Is(sendErr, ErrClosed) {
		return sendErr
	}
	return closeErr
}

func (c *Conn) send(value action) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(DialTimeout))
	if err := c.encoder.Encode(value); err != nil {
		return fmt.Errorf("sending %s: %w", value.Op, err)
	}
	return nil
}

// readLoop decodes frames until the bridge disconnects, folding each
// into the world snapshot before publishing its event.
func (c *Conn) readLoop() {
	defer close(c.events)
	decoder := codec.NewDecoder(c.conn)
	for {
		var received frame
		if err := decoder.Decode(&received); err != nil {
			c.finish(err)
			return
		}
		event, publish := c.apply(received)
		if publish {
			c.events <- event
		}
	}
}

func (c *Conn) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	quit := c.closed
	c.closed = true
	c.conn.Close()
	switch {
	case quit:
		c.err = nil
	case errors.Is(err, io.EOF):
		c.err = errors.New("server closed the connection")
	default:
		c.err = err
	}
}

func (c *Conn) apply(received frame) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	event := Event{Type: received.Type, Username: received.Username, Message: received.Message, Reason: received.Reason}
	switch received.Type {
	case EventLogin:
		if received.Username != "" {
			c.world.Username = received.Username
		}
	case EventSpawn:
		c.world.Spawned = true
		if received.Position != nil {
			c.world.Position = *received.Position
		}
	case EventVitals:
		if received.Health != nil {
			c.world.Health = *received.Health
		}
		if received.Food != nil {
			c.world.Food = *received.Food
		}
		c.world.HasVitals = true
	case EventMove:
		if received.Position != nil {
			c.world.Position = *received.Position
		}
		if received.OnGround != nil {
			c.world.OnGround = *received.OnGround
		}
	case EventEntities:
		if received.Entities != nil {
			c.world.Entities = *received.Entities
		}
	case EventInventory:
		if received.Inventory != nil {
			c.world.Inventory = *received.Inventory
		}
	case EventChat, EventKicked:
	default:
		c.logger.Debug("ignoring unknown bridge frame", "type", received.Type)
		return Event{}, false
	}
	return event, true
}
