package remote

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/chazu/armature/pkg/codec"
	"github.com/chazu/armature/pkg/scene"
)

// DefaultCallTimeout bounds one request/response round trip.
const DefaultCallTimeout = 10 * time.Second

// CallError is a failure reported by the server. Transport failures are
// returned as plain errors instead.
type CallError struct {
	Action  string
	Code    string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("remote: %s: %s", e.Action, e.Message)
}

// Unwrap maps not_found failures onto scene.ErrNotFound.
func (e *CallError) Unwrap() error {
	if e.Code == CodeNotFound {
		return scene.ErrNotFound
	}
	return nil
}

// Client is a scene.Manager backed by a remote session. Each call opens
// its own connection.
type Client struct {
	socketPath string
	timeout    time.Duration
}

var (
	_ scene.Manager        = (*Client)(nil)
	_ scene.DriverResolver = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCallTimeout sets the per-call timeout.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient returns a client for the session listening on socketPath.
func NewClient(socketPath string, opts ...ClientOption) *Client {
	c := &Client{socketPath: socketPath, timeout: DefaultCallTimeout}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) call(req request, result any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("remote: %s: connecting to %s: %w", req.Action, c.socketPath, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := codec.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("remote: %s: writing request: %w", req.Action, err)
	}
	if unix, ok := conn.(*net.UnixConn); ok {
		unix.CloseWrite()
	}

	var resp Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxMessageSize)).Decode(&resp); err != nil {
		return fmt.Errorf("remote: %s: reading response: %w", req.Action, err)
	}
	if !resp.OK {
		return &CallError{Action: req.Action, Code: resp.Code, Message: resp.Error}
	}
	if result != nil && len(resp.Data) > 0 {
		if err := codec.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("remote: %s: decoding result: %w", req.Action, err)
		}
	}
	return nil
}

func (c *Client) Exists(id string) (bool, error) {
	var r existsResult
	err := c.call(request{Action: scene.OpExists, ID: id}, &r)
	return r.Exists, err
}

func (c *Client) ResolveName(id string) (string, error) {
	var r nameResult
	err := c.call(request{Action: scene.OpResolveName, ID: id}, &r)
	return r.Name, err
}

func (c *Client) Create(kind scene.Kind, name, parent string) (string, string, error) {
	var r createResult
	err := c.call(request{Action: scene.OpCreate, Kind: kind, Name: name, Parent: parent}, &r)
	return r.Name, r.ID, err
}

func (c *Client) Rename(oldName, newName string) (string, error) {
	var r nameResult
	err := c.call(request{Action: scene.OpRename, Name: oldName, NewName: newName}, &r)
	return r.Name, err
}

func (c *Client) Parent(name string) (string, error) {
	var r nameResult
	err := c.call(request{Action: scene.OpParent, Name: name}, &r)
	return r.Name, err
}

func (c *Client) ListChildren(name string) ([]string, error) {
	var r namesResult
	err := c.call(request{Action: scene.OpListChildren, Name: name}, &r)
	return r.Names, err
}

func (c *Client) Reparent(name, newParent string) error {
	return c.call(request{Action: scene.OpReparent, Name: name, Parent: newParent}, nil)
}

func (c *Client) SetAttribute(name, key string, value any) error {
	return c.call(request{Action: scene.OpSetAttribute, Name: name, Key: key, Value: value}, nil)
}

// GetAttribute returns the decoded value. Arrays arrive as []any and
// maps as map[string]any.
func (c *Client) GetAttribute(name, key string) (any, error) {
	var r valueResult
	err := c.call(request{Action: scene.OpGetAttribute, Name: name, Key: key}, &r)
	return r.Value, err
}

func (c *Client) Delete(name string) error {
	return c.call(request{Action: scene.OpDelete, Name: name}, nil)
}

func (c *Client) Save() error {
	return c.call(request{Action: scene.OpSave}, nil)
}

func (c *Client) LookupQualified(namespace, name string) (string, bool, error) {
	var r lookupResult
	err := c.call(request{Action: scene.OpLookup, Namespace: namespace, Name: name}, &r)
	return r.Name, r.Found, err
}
