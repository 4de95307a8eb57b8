/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrPropertyUnavailable is mpv's answer for properties with no value yet,
// such as duration before a file is loaded.
var ErrPropertyUnavailable = errors.New("mpv property unavailable")

type ipcCommand struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type ipcResponse struct {
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID int64           `json:"request_id"`
	Event     string          `json:"event"`
}

const (
	maxRetries  = 3
	retryDelay  = 100 * time.Millisecond
	callTimeout = time.Second
)

// client sends one JSON IPC command per connection.
type client struct {
	socketPath string

	mu     sync.Mutex
	nextID int64
}

func (c *client) command(ctx context.Context, args ...any) (json.RawMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		data, err := c.send(ctx, id, args)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, ErrPropertyUnavailable) {
			return nil, err
		}
		var mpvErr *commandError
		if errors.As(err, &mpvErr) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("mpv ipc failed after %d attempts: %w", maxRetries, lastErr)
}

type commandError struct {
	msg string
}

func (e *commandError) Error() string { return "mpv error: " + e.msg }

func (c *client) send(ctx context.Context, id int64, args []any) (json.RawMessage, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(callTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	payload, err := json.Marshal(ipcCommand{Command: args, RequestID: id})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	// mpv interleaves events with replies on every connection.
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		var resp ipcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
		if resp.Event != "" || resp.RequestID != id {
			continue
		}
		switch resp.Error {
		case "", "success":
			return resp.Data, nil
		case "property unavailable":
			return nil, ErrPropertyUnavailable
		default:
			return nil, &commandError{msg: resp.Error}
		}
	}
}

func (c *client) getFloat(ctx context.Context, name string) (float64, error) {
	data, err := c.command(ctx, "get_property", name)
	if err != nil {
		return 0, err
	}
	var v *float64
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, fmt.Errorf("decode %s: %w", name, err)
	}
	if v == nil {
		return 0, ErrPropertyUnavailable
	}
	return *v, nil
}

func (c *client) getBool(ctx context.Context, name string) (bool, error) {
	data, err := c.command(ctx, "get_property", name)
	if err != nil {
		return false, err
	}
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	if v == nil {
		return false, ErrPropertyUnavailable
	}
	return *v, nil
}

func (c *client) set(ctx context.Context, name string, value any) error {
	_, err := c.command(ctx, "set_property", name, value)
	return err
}
