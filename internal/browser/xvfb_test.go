package browser

import (
	"strings"
	"testing"
	"time"
)

func TestDisplaySocketPath(t *testing.T) {
	d := &virtualDisplay{name: ":99"}
	if got, want := d.socketPath(), "/tmp/.X11-unix/X99"; got != want {
		t.Errorf("socketPath() = %q, want %q", got, want)
	}
}

func TestAwaitSocketTimesOut(t *testing.T) {
	// A display nothing is serving never produces a socket.
	d := &virtualDisplay{name: ":873921"}

	start := time.Now()
	err := d.awaitSocket(120 * time.Millisecond)
	if err == nil {
		t.Fatal("awaitSocket succeeded for an unserved display")
	}
	if !strings.Contains(err.Error(), d.name) {
		t.Errorf("error %q does not name the display", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("awaitSocket blocked %s past its timeout", elapsed)
	}
}
