// Package daemon implements the command server, its client and the
// detached daemon bootstrap.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

// Handler executes one parsed command. Only report returns a Report.
type Handler interface {
	Handle(cmd string, args []string) (*domain.Report, error)
}

// ServerConfig holds command server configuration.
type ServerConfig struct {
	SocketPath string // Unix datagram socket to bind
	BufferSize int    // Largest accepted datagram
}

// DefaultServerConfig returns default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		SocketPath: "/tmp/timetracker.socket",
		BufferSize: 1024,
	}
}

// Server receives commands as datagrams of whitespace-separated tokens.
// Each datagram is handled on its own goroutine.
type Server struct {
	config  ServerConfig
	handler Handler
	logger  *zap.Logger

	conn     *net.UnixConn
	wg       sync.WaitGroup
	quit     chan struct{}
	quitOnce sync.Once
}

// NewServer creates a command server.
func NewServer(config ServerConfig, handler Handler, logger *zap.Logger) *Server {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultServerConfig().BufferSize
	}
	return &Server{
		config:  config,
		handler: handler,
		logger:  logger,
		quit:    make(chan struct{}),
	}
}

// Listen binds the socket, removing a stale socket file first.
func (s *Server) Listen() error {
	if err := os.Remove(s.config.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	addr := &net.UnixAddr{Name: s.config.SocketPath, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.config.SocketPath, err)
	}
	s.conn = conn
	s.logger.Info("command server listening", zap.String("socket", s.config.SocketPath))
	return nil
}

// Done is closed once a quit or exit command has been received.
func (s *Server) Done() <-chan struct{} {
	return s.quit
}

// Run serves datagrams until ctx is canceled or a quit command arrives.
// Listen must have been called.
func (s *Server) Run(ctx context.Context) error {
	if s.conn == nil {
		return errors.New("server is not listening")
	}

	closing := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-s.quit:
		}
		close(closing)
		s.conn.Close()
	}()

	defer func() {
		s.wg.Wait()
		if err := os.Remove(s.config.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove socket", zap.Error(err))
		}
		s.logger.Info("command server stopped")
	}()

	buf := make([]byte, s.config.BufferSize)
	for {
		n, addr, err := s.conn.ReadFromUnix(buf)
		if err != nil {
			select {
			case <-closing:
				return nil
			default:
				return fmt.Errorf("failed to read command: %w", err)
			}
		}
		if n == 0 {
			continue
		}
		data := string(buf[:n])
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(data, addr)
		}()
	}
}

func (s *Server) handle(data string, from *net.UnixAddr) {
	fields := strings.Fields(data)
	if len(fields) == 0 {
		return
	}
	cmd, args := fields[0], fields[1:]
	s.logger.Info("command received", zap.String("cmd", cmd), zap.Strings("args", args))

	if cmd == "quit" || cmd == "exit" {
		s.quitOnce.Do(func() { close(s.quit) })
		return
	}

	rep, err := s.handler.Handle(cmd, args)
	if err != nil {
		s.logger.Warn("command failed", zap.String("cmd", cmd), zap.Error(err))
	}
	if cmd != "report" || from == nil || from.Name == "" {
		return
	}

	reply := domain.Reply{OK: err == nil, Report: rep}
	if err != nil {
		reply.Error = err.Error()
	}
	s.reply(reply, from)
}

func (s *Server) reply(reply domain.Reply, to *net.UnixAddr) {
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("failed to encode reply", zap.Error(err))
		return
	}
	if _, err := s.conn.WriteToUnix(data, to); err != nil {
		s.logger.Debug("reply not delivered", zap.String("to", to.Name), zap.Error(err))
	}
}
