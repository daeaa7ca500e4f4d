// Package eventlog is the append-only record of tool-call events.
//
// Each session appends to its own <session>.jsonl file; events without a
// session go to events.jsonl. An append writes one complete JSON line and
// fsyncs before returning, so a crash can lose at most the event being
// written. Readers only ever consume complete lines.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/workgraph/internal/model"
	"github.com/roach88/workgraph/internal/observe"
)

const (
	// FileExt is the extension of every log file.
	FileExt = ".jsonl"
	// DefaultFile collects events that carry no session id.
	DefaultFile = "events" + FileExt
)

// FileFor returns the log file name for a session.
func FileFor(session string) string {
	if session == "" {
		return DefaultFile
	}
	return session + FileExt
}

// Log appends events under one directory.
//
// Appends within a process are serialized. Appends from other processes
// to different sessions never share a file; two processes appending to
// the same session rely on O_APPEND for whole-line writes.
type Log struct {
	mu    sync.Mutex
	dir   string
	clock model.Clock
	ids   model.IDGenerator
	log   *bolt.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithClock sets the clock used to stamp events without a timestamp.
func WithClock(c model.Clock) Option {
	return func(l *Log) { l.clock = c }
}

// WithIDGenerator sets the generator for event ids.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(l *Log) { l.ids = g }
}

// WithLogger sets the logger.
func WithLogger(lg *bolt.Logger) Option {
	return func(l *Log) { l.log = lg }
}

// Open prepares dir for appends, creating it if needed.
func Open(dir string, opts ...Option) (*Log, error) {
	l := &Log{
		dir:   dir,
		clock: model.SystemClock{},
		ids:   model.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = observe.OrDiscard(l.log)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}
	return l, nil
}

// Dir returns the log directory.
func (l *Log) Dir() string { return l.dir }

// Append validates ev, fills in a missing id and timestamp, and writes it
// as one line to its session file. The line is fsynced before Append
// returns. On any write failure the file is truncated back to its prior
// length and the error is returned; earlier events are never affected.
func (l *Log) Append(ctx context.Context, ev *Event) error {
	if ev.EventID == "" {
		ev.EventID = l.ids.Generate()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.clock.Now()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	if ev.FilePaths == nil {
		ev.FilePaths = []string{}
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	line = append(line, '\n')

	name := FileFor(ev.SessionID)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := appendLine(filepath.Join(l.dir, name), line); err != nil {
		l.log.Error().Str("file", name).Str("event", ev.EventID).Err(err).Msg("append failed")
		return fmt.Errorf("append to %s: %w", name, err)
	}

	observe.Inc(ctx, observe.Metrics().EventsAppended, attribute.String("tool", ev.Tool))
	l.log.Debug().Str("file", name).Str("event", ev.EventID).Msg("event appended")
	return nil
}

// appendLine writes line at the end of path and fsyncs. A previous writer
// that died mid-line leaves a torn tail; a newline is written first so the
// new event starts on a line of its own.
func appendLine(path string, line []byte) (err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	if size > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err != nil {
			return err
		}
		if last[0] != '\n' {
			line = append([]byte{'\n'}, line...)
		}
	}

	if _, err = f.Write(line); err == nil {
		err = f.Sync()
	}
	if err != nil {
		if terr := f.Truncate(size); terr != nil {
			return errors.Join(err, fmt.Errorf("truncate after failed append: %w", terr))
		}
		return err
	}
	return nil
}

// Files lists the log files in the directory in name order.
func (l *Log) Files() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list event log: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), FileExt) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}
