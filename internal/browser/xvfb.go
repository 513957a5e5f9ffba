package browser

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// virtualDisplay is one Xvfb server. Headful Chrome needs a screen to render
// into; on a server there is none, so the manager runs its own.
type virtualDisplay struct {
	name string
	proc *exec.Cmd
}

const displayGeometry = "1920x1080x24"

// openDisplay spawns Xvfb on the named display and waits for its X socket,
// which Xvfb only creates once it accepts clients.
func openDisplay(name string, timeout time.Duration) (*virtualDisplay, error) {
	proc := exec.Command("Xvfb", name, "-screen", "0", displayGeometry, "-ac", "-nolisten", "tcp")
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("browser: xvfb: %w", err)
	}

	d := &virtualDisplay{name: name, proc: proc}
	if err := d.awaitSocket(timeout); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

func (d *virtualDisplay) socketPath() string {
	return "/tmp/.X11-unix/X" + strings.TrimPrefix(d.name, ":")
}

func (d *virtualDisplay) awaitSocket(timeout time.Duration) error {
	sock := d.socketPath()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(sock); err == nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("browser: xvfb: display %s not ready after %s", d.name, timeout)
}

func (d *virtualDisplay) pid() int {
	if d.proc.Process == nil {
		return 0
	}
	return d.proc.Process.Pid
}

// close kills Xvfb and reaps the process.
func (d *virtualDisplay) close() {
	if d.proc.Process == nil {
		return
	}
	d.proc.Process.Kill()
	d.proc.Wait()
}
