package settle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

var notifiable = map[string]syscall.Signal{
	"SIGHUP":   syscall.SIGHUP,
	"SIGINT":   syscall.SIGINT,
	"SIGTERM":  syscall.SIGTERM,
	"SIGUSR1":  syscall.SIGUSR1,
	"SIGUSR2":  syscall.SIGUSR2,
	"SIGWINCH": syscall.SIGWINCH,
	"SIGCONT":  syscall.SIGCONT,
}

// SignalName normalizes "usr1", "USR1" and "SIGUSR1" to "SIGUSR1".
func SignalName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	return name
}

// OSSignals is a Source of process signals. The Filter action names the
// signal (see SignalName); it is required.
type OSSignals struct {
	scope Scope
}

// NewOSSignals returns a Source for signals sent to this process.
func NewOSSignals() *OSSignals {
	return &OSSignals{scope: Scope(fmt.Sprintf("pid:%d", os.Getpid()))}
}

// Scope returns "pid:<pid>".
func (s *OSSignals) Scope() Scope {
	return s.scope
}

// Register starts intercepting the filter's signal. Until the handle is
// unregistered the signal's default action is suppressed.
func (s *OSSignals) Register(ctx context.Context, filter Filter, deliver func(Signal)) (Handle, error) {
	name := SignalName(filter.Action)
	sig, ok := notifiable[name]
	if !ok {
		return nil, fmt.Errorf("unsupported signal %q", filter.Action)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig)

	h := &osSignalHandle{ch: ch, stop: make(chan struct{})}
	go func() {
		for {
			select {
			case <-h.stop:
				return
			case <-ch:
				deliver(Signal{Action: filter.Action, Scope: s.scope, Time: time.Now()})
			}
		}
	}()
	return h, nil
}

type osSignalHandle struct {
	ch   chan os.Signal
	stop chan struct{}
	once sync.Once
}

func (h *osSignalHandle) Unregister() error {
	h.once.Do(func() {
		signal.Stop(h.ch)
		close(h.stop)
	})
	return nil
}
