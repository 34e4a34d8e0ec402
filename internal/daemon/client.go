package daemon

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

// DefaultReplyTimeout bounds how long Send waits for a reply.
const DefaultReplyTimeout = 3 * time.Second

// maxReplySize fits a report with many per-class details.
const maxReplySize = 64 * 1024

// Send delivers one command to the daemon at socketPath. With wait set the
// datagram is sent from a bound temporary socket and the reply is returned;
// otherwise the reply is nil.
func Send(socketPath, cmd string, args []string, wait bool, timeout time.Duration) (*domain.Reply, error) {
	msg := strings.Join(append([]string{cmd}, args...), " ")
	if len(msg) > DefaultServerConfig().BufferSize {
		return nil, fmt.Errorf("command too long: %d bytes", len(msg))
	}
	raddr := &net.UnixAddr{Name: socketPath, Net: "unixgram"}

	if !wait {
		conn, err := net.DialUnix("unixgram", nil, raddr)
		if err != nil {
			return nil, fmt.Errorf("failed to reach daemon at %s: %w", socketPath, err)
		}
		defer conn.Close()
		if _, err := conn.Write([]byte(msg)); err != nil {
			return nil, fmt.Errorf("failed to send command: %w", err)
		}
		return nil, nil
	}

	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	dir, err := os.MkdirTemp("", "timetrack-")
	if err != nil {
		return nil, fmt.Errorf("failed to create reply socket directory: %w", err)
	}
	defer os.RemoveAll(dir)

	laddr := &net.UnixAddr{Name: filepath.Join(dir, "reply.sock"), Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind reply socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.WriteToUnix([]byte(msg), raddr); err != nil {
		return nil, fmt.Errorf("failed to reach daemon at %s: %w", socketPath, err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("failed to set reply deadline: %w", err)
	}

	buf := make([]byte, maxReplySize)
	n, _, err := conn.ReadFromUnix(buf)
	if err != nil {
		return nil, fmt.Errorf("no reply from daemon: %w", err)
	}
	var reply domain.Reply
	if err := json.Unmarshal(buf[:n], &reply); err != nil {
		return nil, fmt.Errorf("failed to parse reply: %w", err)
	}
	return &reply, nil
}
