// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bureau-foundation/gtool/lib/codec"
)

// Sender is anything that can deliver a message to the other end of a
// stream. Channel implements it, and so does a supervised worker
// process.
type Sender interface {
	Send(message Message) error
}

// Channel is one end of an IPC stream. Send may be called from any
// goroutine; Receive must be called from a single reader.
type Channel struct {
	writeMu sync.Mutex
	encoder *codec.Encoder
	closer  io.Closer

	decoder *codec.Decoder
}

// NewChannel builds a Channel that reads from r and writes to w. When
// w is also an io.Closer, Close closes it, which signals EOF to the
// peer's reader.
func NewChannel(r io.Reader, w io.Writer) *Channel {
	channel := &Channel{
		encoder: codec.NewEncoder(w),
		decoder: codec.NewDecoder(r),
	}
	if closer, ok := w.(io.Closer); ok {
		channel.closer = closer
	}
	return channel
}

// Send writes one message. Writes are serialized so concurrent senders
// never interleave frames.
func (c *Channel) Send(message Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.encoder.Encode(message); err != nil {
		return fmt.Errorf("sending %s: %w", message.Type, err)
	}
	return nil
}

// SendPayload encodes payload and sends it as a message of the given
// type.
func (c *Channel) SendPayload(messageType MessageType, payload any) error {
	return SendPayload(c, messageType, payload)
}

// SendPayload encodes payload and sends it through sender.
func SendPayload(sender Sender, messageType MessageType, payload any) error {
	message, err := NewMessage(messageType, payload)
	if err != nil {
		return err
	}
	return sender.Send(message)
}

// Receive reads the next message. It returns io.EOF when the peer
// closed the stream cleanly. Any other error means the stream is
// corrupt and no further messages can be read.
func (c *Channel) Receive() (Message, error) {
	var message Message
	if err := c.decoder.Decode(&message); err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("reading message: %w", err)
	}
	if message.Type == "" {
		return Message{}, errors.New("reading message: frame has no type")
	}
	return message, nil
}

// Close closes the write side.
func (c *Channel) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
