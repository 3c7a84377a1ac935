package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/borgmon/alarm-clock/pkg/engine"
	"github.com/borgmon/alarm-clock/pkg/trigger"
)

// staleCheckTimeout bounds the probe for a daemon already serving the socket.
const staleCheckTimeout = time.Second

// Handler executes commands. *engine.Engine implements it.
type Handler interface {
	OnUserAction(ctx context.Context, id int64, action trigger.Action) error
	Status(ctx context.Context) ([]engine.AlarmStatus, error)
	Sync(ctx context.Context, ids ...int64) error
}

// Server accepts client connections on a Unix socket.
type Server struct {
	path    string
	handler Handler
	log     zerolog.Logger

	wg sync.WaitGroup
}

// NewServer creates a Server for the socket at path.
func NewServer(path string, handler Handler, log zerolog.Logger) *Server {
	return &Server{
		path:    path,
		handler: handler,
		log:     log.With().Str("component", "control").Logger(),
	}
}

// Serve listens until ctx is done. A stale socket file left by a crashed
// daemon is replaced; a live one is an error.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if conn, err := net.DialTimeout("unix", s.path, staleCheckTimeout); err == nil {
		conn.Close()
		return fmt.Errorf("another daemon is listening on %s", s.path)
	}
	s.removeSocket()

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.path, err)
	}
	s.log.Info().Str("socket", s.path).Msg("[CONTROL] listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Warn().Err(err).Msg("[CONTROL] accept failed")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	s.removeSocket()
	return nil
}

func (s *Server) removeSocket() {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn().Err(err).Str("socket", s.path).Msg("[CONTROL] failed to remove socket file")
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var cmd Command
		resp := Response{}
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			resp.Error = fmt.Sprintf("bad command: %v", err)
		} else {
			resp = s.dispatch(ctx, cmd)
		}
		if err := enc.Encode(resp); err != nil {
			s.log.Debug().Err(err).Msg("[CONTROL] client went away")
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, cmd Command) Response {
	s.log.Debug().Str("cmd", cmd.Cmd).Int64("alarm_id", cmd.ID).Msg("[CONTROL] command")

	var err error
	resp := Response{}
	switch cmd.Cmd {
	case CmdPing:
	case CmdStatus:
		resp.Alarms, err = s.handler.Status(ctx)
	case CmdSync:
		ids := cmd.IDs
		if cmd.ID != 0 {
			ids = append(ids, cmd.ID)
		}
		err = s.handler.Sync(ctx, ids...)
	case CmdOff, CmdSnooze:
		if cmd.ID <= 0 {
			err = errors.New("missing alarm id")
			break
		}
		action := trigger.ActionTurnOff
		if cmd.Cmd == CmdSnooze {
			action = trigger.ActionSnooze
		}
		err = s.handler.OnUserAction(ctx, cmd.ID, action)
	default:
		err = fmt.Errorf("unknown command %q", cmd.Cmd)
	}

	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.OK = true
	return resp
}
