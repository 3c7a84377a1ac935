package control

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borgmon/alarm-clock/pkg/engine"
	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/timemath"
	"github.com/borgmon/alarm-clock/pkg/trigger"
)

type action struct {
	ID     int64
	Action trigger.Action
}

type fakeHandler struct {
	mu      sync.Mutex
	actions []action
	synced  [][]int64
	failOn  int64
}

func (h *fakeHandler) OnUserAction(_ context.Context, id int64, a trigger.Action) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id == h.failOn {
		return errors.New("alarm 13 not found")
	}
	h.actions = append(h.actions, action{id, a})
	return nil
}

func (h *fakeHandler) Status(context.Context) ([]engine.AlarmStatus, error) {
	rec := models.NewAlarmRecord(timemath.MustTimeOfDay(6, 45))
	rec.ID = 1
	at := time.Date(2025, time.March, 11, 6, 45, 0, 0, time.UTC)
	return []engine.AlarmStatus{{Alarm: rec, State: "armed", NextFire: &at}}, nil
}

func (h *fakeHandler) Sync(_ context.Context, ids ...int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.synced = append(h.synced, ids)
	return nil
}

func startServer(t *testing.T, h Handler) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "alarmd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "ctl.sock")

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(sock, h, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)
	return sock
}

func TestClientServerCommands(t *testing.T) {
	h := &fakeHandler{failOn: 13}
	sock := startServer(t, h)

	c, err := Connect(sock)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.SendCommand(Command{Cmd: CmdPing})
	require.NoError(t, err)

	_, err = c.SendCommand(Command{Cmd: CmdOff, ID: 4})
	require.NoError(t, err)
	_, err = c.SendCommand(Command{Cmd: CmdSnooze, ID: 5})
	require.NoError(t, err)
	assert.Equal(t, []action{{4, trigger.ActionTurnOff}, {5, trigger.ActionSnooze}}, h.actions)

	_, err = c.SendCommand(Command{Cmd: CmdSync, ID: 9})
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{9}}, h.synced)

	resp, err := c.SendCommand(Command{Cmd: CmdStatus})
	require.NoError(t, err)
	require.Len(t, resp.Alarms, 1)
	assert.Equal(t, "armed", resp.Alarms[0].State)
	assert.Equal(t, timemath.MustTimeOfDay(6, 45), resp.Alarms[0].Alarm.TimeOfDay)
	require.NotNil(t, resp.Alarms[0].NextFire)
}

func TestClientServerErrors(t *testing.T) {
	sock := startServer(t, &fakeHandler{failOn: 13})

	resp, err := Send(sock, Command{Cmd: CmdOff, ID: 13})
	require.Error(t, err)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "not found")

	_, err = Send(sock, Command{Cmd: CmdSnooze})
	assert.ErrorContains(t, err, "missing alarm id")

	_, err = Send(sock, Command{Cmd: "reboot"})
	assert.ErrorContains(t, err, "unknown command")
}

func TestServeRefusesLiveSocket(t *testing.T) {
	sock := startServer(t, &fakeHandler{})

	err := NewServer(sock, &fakeHandler{}, zerolog.Nop()).Serve(context.Background())
	assert.ErrorContains(t, err, "another daemon")
}

func TestServeReplacesStaleSocketFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "alarmd")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "ctl.sock")
	require.NoError(t, os.WriteFile(sock, nil, 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(sock, &fakeHandler{}, zerolog.Nop()).Serve(ctx) }()

	assert.Eventually(t, func() bool {
		_, err := Send(sock, Command{Cmd: CmdPing})
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	_, err = os.Stat(sock)
	assert.True(t, errors.Is(err, os.ErrNotExist), "socket removed on shutdown")
}

func TestConnectWithoutDaemon(t *testing.T) {
	_, err := Send(filepath.Join(t.TempDir(), "none.sock"), Command{Cmd: CmdPing})
	assert.Error(t, err)
}
