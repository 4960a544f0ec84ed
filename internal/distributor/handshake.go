// Package distributor is the Distributor (C4): a long-running, single-
// threaded polling loop that submits QUEUED TaskInstances to a
// clusterdriver.Driver, logs backend ids, and triages stuck/dead instances
// (spec.md §4.3). Grounded on cuemby-warren's pkg/worker.Worker for the
// ticker-loop/stopCh shape, generalized from container heartbeats to
// TaskInstance batches.
package distributor

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
)

// aliveMarker and shutdownMarker are the literal stderr lines the
// Distributor emits so a parent process can distinguish a healthy
// start from a timeout without matching at byte 0 — arbitrary warnings may
// precede ALIVE on the same stream (spec.md §4.3 Startup protocol).
const (
	aliveMarker    = "ALIVE"
	shutdownMarker = "SHUTDOWN"
)

// SignalAlive writes the startup handshake marker to w (the process's
// stderr) once the Distributor has finished initializing.
func SignalAlive(w io.Writer) error {
	_, err := io.WriteString(w, aliveMarker+"\n")
	return err
}

// SignalShutdown writes the shutdown marker to w before the process exits.
func SignalShutdown(w io.Writer) error {
	_, err := io.WriteString(w, shutdownMarker+"\n")
	return err
}

// WaitForAlive scans r (the subprocess's stderr) line by line until it sees
// aliveMarker or timeout elapses, returning
// jobmonerrors.DistributorStartupTimeout on expiry. It is the parent-side
// half of the handshake; nothing in this module spawns a Distributor
// subprocess, so it has no caller here.
func WaitForAlive(ctx context.Context, r io.Reader, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return jobmonerrors.DistributorStartupTimeout("distributor did not signal ALIVE before startup timeout")
		case line, ok := <-lines:
			if !ok {
				return jobmonerrors.DistributorStartupTimeout("distributor stderr closed before signaling ALIVE")
			}
			if line == aliveMarker {
				return nil
			}
		}
	}
}
