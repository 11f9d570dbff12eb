package mpd

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultWriteTimeout = 6 * time.Second

// Server accepts protocol clients and runs one connection handler each.
type Server struct {
	registry     *Registry
	notifier     *Notifier
	logger       *zap.Logger
	writeTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

func NewServer(registry *Registry, notifier *Notifier, logger *zap.Logger, writeTimeout time.Duration) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Server{
		registry:     registry,
		notifier:     notifier,
		logger:       logger,
		writeTimeout: writeTimeout,
		conns:        make(map[net.Conn]struct{}),
	}
}

// Listen binds addr. Serve must be called afterwards.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is done or the listener is closed.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("mpd: server is not listening")
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("accept error", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.track(nc, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(nc, false)
			newConn(s, nc).serve(ctx)
		}()
	}
}

func (s *Server) track(nc net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[nc] = struct{}{}
	} else {
		delete(s.conns, nc)
	}
}

// Close stops accepting and closes every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for nc := range s.conns {
		nc.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// dispatch runs one command line. Unknown verbs fall back to the
// introspection replies.
func (s *Server) dispatch(ctx context.Context, line string) (string, []string, error) {
	req, err := parseRequest(line)
	if err != nil {
		return req.Verb, nil, err
	}

	cmd, subsystems, ok := s.registry.Lookup(req.Verb)
	if !ok {
		return req.Verb, introspect(req.Verb, s.registry), nil
	}

	out, err := cmd.Execute(ctx, req)
	if err != nil {
		return req.Verb, nil, err
	}
	s.notifier.Notify(subsystems...)
	return req.Verb, out, nil
}
