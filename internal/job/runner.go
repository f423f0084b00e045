package job

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ledger-dashboard/internal/adapter"
	"github.com/ledger-dashboard/internal/artifact"
	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/logging"
)

// EventKind classifies a fetcher output event.
type EventKind int

const (
	EventProgress EventKind = iota
	EventDone
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventDone:
		return "done"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one typed signal from a fetch run. Asset is set when a single asset failed
// and the run carried on with the rest.
type Event struct {
	Kind  EventKind
	Text  string
	Asset string
}

const assetFailurePrefix = "Failed to fetch "

// ParseLine maps one line of fetcher stdout to an event. Lines that carry no signal return false.
func ParseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "Fetching page"):
		return Event{Kind: EventProgress, Text: line}, true
	case strings.HasPrefix(line, "Done:"):
		return Event{Kind: EventDone, Text: line}, true
	case strings.HasPrefix(line, assetFailurePrefix):
		rest := strings.TrimPrefix(line, assetFailurePrefix)
		symbol, _, _ := strings.Cut(rest, ":")
		return Event{Kind: EventFailed, Text: line, Asset: strings.TrimSpace(symbol)}, true
	default:
		return Event{}, false
	}
}

// FetchRunner runs one fetch and returns the artifacts it produced.
type FetchRunner interface {
	Run(ctx context.Context, cfg *adapter.FetchConfig, onEvent func(Event)) ([]artifact.Artifact, error)
}

// configFileName is written into the job work directory next to the artifacts.
const configFileName = "fetch-config.json"

// maxDiagnostic bounds how much stderr is kept for the job error.
const maxDiagnostic = 4096

// ExecRunner launches the fetcher executable as a subprocess.
type ExecRunner struct {
	Bin  string
	Args []string // prepended before "-config <path>"
	Env  []string // appended to the inherited environment
}

// NewExecRunner creates a runner for the executable at bin.
func NewExecRunner(bin string) *ExecRunner {
	return &ExecRunner{Bin: bin}
}

// Run writes cfg into cfg.OutputDir, launches the fetcher and streams its stdout as events.
// A non-zero exit or launch failure is a fetch error carrying the captured stderr.
func (r *ExecRunner) Run(ctx context.Context, cfg *adapter.FetchConfig, onEvent func(Event)) ([]artifact.Artifact, error) {
	logger := logging.FromContext(ctx)

	configPath := filepath.Join(cfg.OutputDir, configFileName)
	if err := adapter.WriteFetchConfig(configPath, cfg); err != nil {
		return nil, apperrors.NewFetchError("failed to prepare fetch config", err)
	}

	args := append(append([]string(nil), r.Args...), "-config", configPath)
	cmd := exec.CommandContext(ctx, r.Bin, args...) // #nosec G204 - binary comes from configuration
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.NewFetchError("failed to attach fetcher output", err)
	}
	stderr := &tailBuffer{limit: maxDiagnostic}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		onEvent(Event{Kind: EventFailed, Text: err.Error()})
		return nil, apperrors.NewFetchError(fmt.Sprintf("failed to launch fetcher %q: %v", r.Bin, err), err)
	}
	logger.WithField("pid", cmd.Process.Pid).Debug("Fetcher started")

	scanErr := forwardEvents(stdout, onEvent)
	waitErr := cmd.Wait()

	if waitErr != nil {
		diagnostic := strings.TrimSpace(stderr.String())
		if diagnostic == "" {
			diagnostic = waitErr.Error()
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			logger.WithFields(map[string]interface{}{
				"exitCode": exitErr.ExitCode(),
				"stderr":   diagnostic,
			}).Warn("Fetcher exited with failure")
		}
		onEvent(Event{Kind: EventFailed, Text: diagnostic})
		return nil, apperrors.NewFetchError(diagnostic, waitErr)
	}
	if scanErr != nil {
		logger.WithError(scanErr).Warn("Fetcher output stream ended early")
	}

	onEvent(Event{Kind: EventDone})
	arts, err := artifact.Discover(cfg.OutputDir, cfg.Address)
	if err != nil {
		return nil, apperrors.NewFetchError("failed to list fetch artifacts", err)
	}
	return arts, nil
}

// forwardEvents scans r line by line until EOF. Done markers in the stream are dropped;
// completion is signalled by the exit status. Per-asset failures are forwarded.
func forwardEvents(r io.Reader, onEvent func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ev, ok := ParseLine(scanner.Text()); ok && ev.Kind != EventDone {
			onEvent(ev)
		}
	}
	if err := scanner.Err(); err != nil {
		// Drain so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
