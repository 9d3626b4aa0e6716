package systemd

import (
	"fmt"
	"net"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Listeners holds the systemd-activated sockets for the API and metrics
// endpoints. Fields are nil when the unit did not pass that socket.
type Listeners struct {
	HTTP      net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves socket-activated listeners by their
// FileDescriptorName. It returns an empty set outside socket activation.
// The passed descriptors are consumed once; each is closed after its
// listener is built.
func GetListeners() (*Listeners, error) {
	listeners := &Listeners{}

	named, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if len(named) == 0 {
		return listeners, nil
	}
	listeners.Activated = true

	if lns, ok := named["http"]; ok && len(lns) > 0 {
		listeners.HTTP = lns[0]
	}
	if lns, ok := named["metrics"]; ok && len(lns) > 0 {
		listeners.Metrics = lns[0]
	}

	return listeners, nil
}

// NotifyReady sends READY=1. It is a no-op when not running under systemd.
func NotifyReady() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		return fmt.Errorf("failed to send sd_notify: %w", err)
	}
	return nil
}

// NotifyStopping sends STOPPING=1.
func NotifyStopping() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("failed to send sd_notify stopping: %w", err)
	}
	return nil
}
