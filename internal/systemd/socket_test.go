package systemd

import (
	"os"
	"strconv"
	"testing"
)

func TestGetListenersWithoutActivation(t *testing.T) {
	tests := []struct {
		name string
		pid  string
		fds  string
	}{
		{"no environment", "", ""},
		{"other process", strconv.Itoa(os.Getpid() + 1), "2"},
		{"no descriptors", strconv.Itoa(os.Getpid()), "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LISTEN_PID", tt.pid)
			t.Setenv("LISTEN_FDS", tt.fds)

			ls, err := GetListeners()
			if err != nil {
				t.Fatalf("GetListeners: %v", err)
			}
			if ls.Activated || ls.HTTP != nil || ls.Metrics != nil {
				t.Fatalf("listeners = %+v, want none", ls)
			}
		})
	}
}

func TestNotifyOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	if err := NotifyReady(); err != nil {
		t.Fatalf("NotifyReady: %v", err)
	}
	if err := NotifyStopping(); err != nil {
		t.Fatalf("NotifyStopping: %v", err)
	}
}
