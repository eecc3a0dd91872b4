// Package remote exposes a scene.Manager over a Unix socket so the
// reconciler can drive a live document owned by another process.
//
// The protocol is one CBOR request and one CBOR response per connection.
// Requests carry an "action" named after the Manager method; responses
// use the envelope {ok, error, code, data}. A code of "not_found" marks
// a failure the caller may treat as recoverable.
package remote

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

	"github.com/chazu/armature/pkg/codec"
	"github.com/chazu/armature/pkg/scene"
)

// CodeNotFound marks responses for names or identities that do not exist.
const CodeNotFound = "not_found"

const (
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
	maxMessageSize = 4 << 20
)

// request is the union of every action's fields.
type request struct {
	Action    string     `cbor:"action"`
	ID        string     `cbor:"id,omitempty"`
	Name      string     `cbor:"name,omitempty"`
	NewName   string     `cbor:"new_name,omitempty"`
	Parent    string     `cbor:"parent,omitempty"`
	Kind      scene.Kind `cbor:"kind,omitempty"`
	Key       string     `cbor:"key,omitempty"`
	Value     any        `cbor:"value"`
	Namespace string     `cbor:"namespace,omitempty"`
}

// Response is the envelope for every reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Code  string           `cbor:"code,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

type existsResult struct {
	Exists bool `cbor:"exists"`
}

type nameResult struct {
	Name string `cbor:"name"`
}

type createResult struct {
	Name string `cbor:"name"`
	ID   string `cbor:"id"`
}

type namesResult struct {
	Names []string `cbor:"names"`
}

type valueResult struct {
	Value any `cbor:"value"`
}

type lookupResult struct {
	Name  string `cbor:"name"`
	Found bool   `cbor:"found"`
}

type handlerFunc func(req request) (any, error)

// Server serves a Manager on a Unix socket. Requests are applied one at
// a time so the Manager sees the same serial call order a local caller
// would produce.
type Server struct {
	socketPath string
	manager    scene.Manager
	resolver   scene.DriverResolver
	logger     *slog.Logger
	handlers   map[string]handlerFunc

	dispatch sync.Mutex
	active   sync.WaitGroup
}

// NewServer returns a server for m. If m also resolves drivers, driver
// lookups are served too.
func NewServer(socketPath string, m scene.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		socketPath: socketPath,
		manager:    m,
		logger:     logger,
		handlers:   make(map[string]handlerFunc),
	}
	if r, ok := m.(scene.DriverResolver); ok {
		s.resolver = r
	}
	s.registerHandlers()
	return s
}

func (s *Server) handle(action string, h handlerFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("remote: duplicate handler for %q", action))
	}
	s.handlers[action] = h
}

func (s *Server) registerHandlers() {
	m := s.manager
	s.handle(scene.OpExists, func(req request) (any, error) {
		ok, err := m.Exists(req.ID)
		return existsResult{Exists: ok}, err
	})
	s.handle(scene.OpResolveName, func(req request) (any, error) {
		name, err := m.ResolveName(req.ID)
		return nameResult{Name: name}, err
	})
	s.handle(scene.OpCreate, func(req request) (any, error) {
		name, id, err := m.Create(req.Kind, req.Name, req.Parent)
		return createResult{Name: name, ID: id}, err
	})
	s.handle(scene.OpRename, func(req request) (any, error) {
		name, err := m.Rename(req.Name, req.NewName)
		return nameResult{Name: name}, err
	})
	s.handle(scene.OpParent, func(req request) (any, error) {
		name, err := m.Parent(req.Name)
		return nameResult{Name: name}, err
	})
	s.handle(scene.OpListChildren, func(req request) (any, error) {
		names, err := m.ListChildren(req.Name)
		return namesResult{Names: names}, err
	})
	s.handle(scene.OpReparent, func(req request) (any, error) {
		return nil, m.Reparent(req.Name, req.Parent)
	})
	s.handle(scene.OpSetAttribute, func(req request) (any, error) {
		return nil, m.SetAttribute(req.Name, req.Key, req.Value)
	})
	s.handle(scene.OpGetAttribute, func(req request) (any, error) {
		v, err := m.GetAttribute(req.Name, req.Key)
		return valueResult{Value: v}, err
	})
	s.handle(scene.OpDelete, func(req request) (any, error) {
		return nil, m.Delete(req.Name)
	})
	s.handle(scene.OpSave, func(req request) (any, error) {
		return nil, m.Save()
	})
	s.handle(scene.OpLookup, func(req request) (any, error) {
		if s.resolver == nil {
			return lookupResult{}, nil
		}
		name, found, err := s.resolver.LookupQualified(req.Namespace, req.Name)
		return lookupResult{Name: name, Found: found}, err
	})
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight requests. A stale socket file is removed first, and the
// socket is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remote: removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("remote: listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("scene session listening", "path", s.socketPath)

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
			s.serveConn(conn)
		}()
	}
	s.active.Wait()
	return nil
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var req request
	if err := codec.NewDecoder(io.LimitReader(conn, maxMessageSize)).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.reply(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if req.Action == "" {
		s.reply(conn, Response{Error: "missing required field: action"})
		return
	}
	h, ok := s.handlers[req.Action]
	if !ok {
		s.reply(conn, Response{Error: fmt.Sprintf("unknown action %q", req.Action)})
		return
	}

	s.dispatch.Lock()
	result, err := h(req)
	s.dispatch.Unlock()

	if err != nil {
		resp := Response{Error: err.Error()}
		if errors.Is(err, scene.ErrNotFound) {
			resp.Code = CodeNotFound
		}
		s.logger.Debug("action failed", "action", req.Action, "error", err)
		s.reply(conn, resp)
		return
	}
	resp := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.reply(conn, Response{Error: fmt.Sprintf("internal: encoding result: %v", err)})
			return
		}
		resp.Data = data
	}
	s.reply(conn, resp)
}

func (s *Server) reply(conn net.Conn, resp Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Debug("writing response failed", "error", err)
	}
}
