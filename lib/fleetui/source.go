// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleetui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/gtool/lib/clock"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
	"github.com/bureau-foundation/gtool/lib/service"
)

// ConnectionState describes the subscribe stream as the TUI shows it.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateLive         ConnectionState = "live"
	StateDisconnected ConnectionState = "disconnected"
)

// Reconnect backoff after the stream drops. It doubles per failed
// attempt and resets once a stream opens.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// Update is one item from a StreamSource: either a frame from the
// controller or a change in connection state. Err is set on
// StateDisconnected.
type Update struct {
	Event *fleet.Event
	State ConnectionState
	Err   error
}

// StreamSourceConfig configures a StreamSource.
type StreamSourceConfig struct {
	Client *service.Client

	// Tasks are task ids whose log lines the stream should carry.
	Tasks []string

	Clock  clock.Clock
	Logger *slog.Logger
}

// StreamSource keeps a subscribe stream open, reconnecting with
// backoff, and delivers what it reads on Updates.
type StreamSource struct {
	client  *service.Client
	tasks   []string
	clock   clock.Clock
	logger  *slog.Logger
	updates chan Update
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewStreamSource starts streaming in the background. Call Close to
// stop it.
func NewStreamSource(config StreamSourceConfig) *StreamSource {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	source := &StreamSource{
		client:  config.Client,
		tasks:   config.Tasks,
		clock:   config.Clock,
		logger:  config.Logger,
		updates: make(chan Update, 256),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go source.loop(ctx)
	return source
}

// Updates is closed after Close.
func (source *StreamSource) Updates() <-chan Update { return source.updates }

// Close stops the stream and waits for the background loop to exit.
func (source *StreamSource) Close() {
	source.cancel()
	<-source.done
}

func (source *StreamSource) loop(ctx context.Context) {
	defer close(source.done)
	defer close(source.updates)

	backoff := initialBackoff
	for {
		if !source.publish(ctx, Update{State: StateConnecting}) {
			return
		}
		opened, err := source.runStream(ctx)
		if ctx.Err() != nil {
			return
		}
		if opened {
			backoff = initialBackoff
		}
		source.logger.Warn("subscribe stream disconnected", "error", err, "backoff", backoff)
		if !source.publish(ctx, Update{State: StateDisconnected, Err: err}) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-source.clock.After(backoff):
		}
		if !opened {
			backoff = min(backoff*2, maxBackoff)
		}
	}
}

// runStream reads one stream until it ends. opened reports whether the
// controller accepted the subscription at all.
func (source *StreamSource) runStream(ctx context.Context) (opened bool, err error) {
	fields := map[string]any{}
	if len(source.tasks) > 0 {
		fields["tasks"] = source.tasks
	}
	stream, err := source.client.Stream(ctx, fleet.ActionSubscribe, fields)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	if !source.publish(ctx, Update{State: StateLive}) {
		return true, ctx.Err()
	}
	for {
		var event fleet.Event
		if err := stream.Next(&event); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return true, ctx.Err()
			}
			return true, fmt.Errorf("reading subscribe frame: %w", err)
		}
		if event.Type == fleet.EventHeartbeat {
			continue
		}
		if !source.publish(ctx, Update{Event: &event}) {
			return true, ctx.Err()
		}
	}
}

func (source *StreamSource) publish(ctx context.Context, update Update) bool {
	select {
	case source.updates <- update:
		return true
	case <-ctx.Done():
		return false
	}
}
