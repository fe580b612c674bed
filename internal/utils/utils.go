package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/nightlyone/lockfile"
)

// ErrAgentNotRunning is returned when no live process holds the agent lock
var ErrAgentNotRunning = errors.New("agent is not running")

// ReadURLList reads one URL per line, skipping blank lines and # comments
func ReadURLList(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning url list: %w", err)
	}
	return urls, nil
}

// OpenSource opens a local file, "-" for stdin, or an http(s) address
func OpenSource(source string) (io.ReadCloser, error) {
	switch {
	case source == "-":
		return io.NopCloser(os.Stdin), nil
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		return download(source)
	default:
		return os.Open(source)
	}
}

// ReadSource reads everything OpenSource yields
func ReadSource(source string) ([]byte, error) {
	rc, err := OpenSource(source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// LoadURLList reads a URL list from any source OpenSource accepts
func LoadURLList(source string) ([]string, error) {
	rc, err := OpenSource(source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadURLList(rc)
}

func download(url string) (io.ReadCloser, error) {
	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download %s: HTTP %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// ProcessExists checks if a process with the given PID exists
func ProcessExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix systems, we need to send a signal to check if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// LockOwner returns the pid of the live process holding the lock at lockPath
func LockOwner(lockPath string) (int, error) {
	lock, err := lockfile.New(lockPath)
	if err != nil {
		return 0, err
	}
	proc, err := lock.GetOwner()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, lockfile.ErrDeadOwner) || errors.Is(err, lockfile.ErrInvalidPid) {
			return 0, ErrAgentNotRunning
		}
		return 0, err
	}
	if !ProcessExists(proc.Pid) {
		return 0, ErrAgentNotRunning
	}
	return proc.Pid, nil
}

// SignalAgent sends sig to the agent holding lockPath
func SignalAgent(lockPath string, sig syscall.Signal) error {
	pid, err := LockOwner(lockPath)
	if err != nil {
		return err
	}
	return syscall.Kill(pid, sig)
}
