// Package schedcli is the Go client library for the tollgate daemon socket.
// It provides typed wrappers for every schedule method plus a Listen loop
// that dispatches pushed decision updates to registered handlers.
package schedcli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/tollgate/tollgate/common"
)

type Client struct {
	mu   *sync.RWMutex
	d    *Dispatcher
	conn net.Conn
}

// NewClient connects to the daemon over the unix socket, falling back to
// TCP.
func NewClient() (*Client, error) {
	conn, err := dial()
	if err != nil {
		return nil, fmt.Errorf("error connecting to daemon: %w", err)
	}
	return &Client{
		conn: conn,
		mu:   &sync.RWMutex{},
		d:    &Dispatcher{},
	}, nil
}

// Close closes the daemon connection. The daemon treats this as the peer
// vanishing: every entry registered on this connection is removed.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Listen blocks reading pushed updates and dispatches them to registered
// handlers. Call Watch first so the daemon pushes to this connection.
func (c *Client) Listen() (err error) {
	defer c.conn.Close()
	for {
		c.mu.RLock()
		var buf []byte
		buf, err = read(c.conn)
		if err != nil {
			c.mu.RUnlock()
			err = fmt.Errorf("error reading: %w", err)
			return
		}
		err = c.d.process(buf)
		if err != nil {
			c.mu.RUnlock()
			if err == ErrDisconnect {
				break
			}
			err = fmt.Errorf("error processing: %w", err)
			return
		}
		c.mu.RUnlock()
	}
	return
}

func (c *Client) invoke(method common.Method, message any) (json.RawMessage, error) {
	// block the updates listener while invoking a method to retrieve the
	// response here instead
	c.mu.Lock()
	defer c.mu.Unlock()
	buf, err := json.Marshal(&Request{
		Method:  method,
		Message: message,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", method, err)
	}
	if err = write(c.conn, buf); err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", method, err)
	}
	buf, err = read(c.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", method, err)
	}
	var res Response
	if err = json.Unmarshal(buf, &res); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", method, err)
	}
	if !res.Ok {
		return nil, errors.New(res.Error)
	}
	return res.Update.Message, nil
}
