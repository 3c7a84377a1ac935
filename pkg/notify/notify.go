// Package notify shows alarm notifications on the daemon's console and log.
package notify

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/borgmon/alarm-clock/pkg/trigger"
)

// Console prints a banner per notification to out and logs it. It stands in
// for a platform full-screen notification on a headless host.
type Console struct {
	out           io.Writer
	log           zerolog.Logger
	snoozeMinutes int

	mu     sync.Mutex
	active map[int64]trigger.Notification
}

// NewConsole creates a Console. out may be nil to only log.
func NewConsole(out io.Writer, snoozeMinutes int, log zerolog.Logger) *Console {
	return &Console{
		out:           out,
		log:           log.With().Str("component", "notify").Logger(),
		snoozeMinutes: snoozeMinutes,
		active:        make(map[int64]trigger.Notification),
	}
}

// Notify shows n, replacing any notification with the same id.
func (c *Console) Notify(n trigger.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active[n.ID] = n

	labels := make([]string, 0, len(n.Actions))
	for _, a := range n.Actions {
		labels = append(labels, a.Label(c.snoozeMinutes))
	}

	c.log.Info().
		Int64("alarm_id", n.ID).
		Str("title", n.Title).
		Strs("actions", labels).
		Bool("full_screen", n.FullScreen).
		Dur("vibrate", total(n.Vibrate)).
		Msg("[NOTIFY] alarm notification")

	if c.out == nil {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\a\n*** %s ***  %s\n", n.Title, n.Body)
	for _, a := range n.Actions {
		fmt.Fprintf(&b, "    alarmd %s %d    # %s\n", a, n.ID, a.Label(c.snoozeMinutes))
	}
	_, err := io.WriteString(c.out, b.String())
	return err
}

// Cancel withdraws the notification for id. Unknown ids are ignored.
func (c *Console) Cancel(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[id]; !ok {
		return nil
	}
	delete(c.active, id)
	c.log.Info().Int64("alarm_id", id).Msg("[NOTIFY] notification dismissed")
	return nil
}

// Active returns the ids with a notification showing.
func (c *Console) Active() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]int64, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func total(pattern []time.Duration) time.Duration {
	var d time.Duration
	for _, p := range pattern {
		d += p
	}
	return d
}
