package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

// Checkpoint records a byte offset per log file.
//
// A checkpoint taken before reading bounds what a reader consumes, so
// events appended while a rebuild runs are left for the next one.
type Checkpoint map[string]int64

// Clone returns a copy of cp.
func (cp Checkpoint) Clone() Checkpoint {
	return maps.Clone(cp)
}

// Total returns the sum of all offsets.
func (cp Checkpoint) Total() int64 {
	var n int64
	for _, off := range cp {
		n += off
	}
	return n
}

// Behind reports whether other has data in any file past cp.
func (cp Checkpoint) Behind(other Checkpoint) bool {
	for file, off := range other {
		if off > cp[file] {
			return true
		}
	}
	return false
}

// Checkpoint returns the current size of every log file.
func (l *Log) Checkpoint() (Checkpoint, error) {
	files, err := l.Files()
	if err != nil {
		return nil, err
	}
	cp := make(Checkpoint, len(files))
	for _, name := range files {
		info, err := os.Stat(filepath.Join(l.dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		cp[name] = info.Size()
	}
	return cp, nil
}

// Batch is the result of reading the log up to a checkpoint.
type Batch struct {
	Events []Event
	// Offsets is where reading stopped in each file: the end of the last
	// complete line within the checkpoint.
	Offsets Checkpoint
	// Corrupt counts complete lines that did not decode to a valid event.
	Corrupt int
}

// ReadUpTo reads every complete line below the offsets in cp, file by file
// in name order. A partial trailing line is left unread. Lines that fail
// to decode or validate are skipped and counted in Batch.Corrupt.
func (l *Log) ReadUpTo(cp Checkpoint) (Batch, error) {
	b := Batch{Offsets: make(Checkpoint, len(cp))}
	for _, name := range slices.Sorted(maps.Keys(cp)) {
		events, consumed, corrupt, err := l.readFile(name, cp[name])
		if err != nil {
			return Batch{}, err
		}
		b.Events = append(b.Events, events...)
		b.Offsets[name] = consumed
		b.Corrupt += corrupt
	}
	return b, nil
}

// ReadAll reads every file to its current end.
func (l *Log) ReadAll() (Batch, error) {
	cp, err := l.Checkpoint()
	if err != nil {
		return Batch{}, err
	}
	return l.ReadUpTo(cp)
}

// Recent returns the last n events of a session in append order.
// n <= 0 returns every event.
func (l *Log) Recent(session string, n int) ([]Event, error) {
	events, _, _, err := l.readFile(FileFor(session), -1)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// readFile decodes complete lines of name within limit bytes. A negative
// limit reads to the end. A missing file reads as empty.
func (l *Log) readFile(name string, limit int64) (events []Event, consumed int64, corrupt int, err error) {
	f, err := os.Open(filepath.Join(l.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, 0, nil
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	var r io.Reader = f
	if limit >= 0 {
		r = io.LimitReader(f, limit)
	}
	br := bufio.NewReader(r)

	for lineNo := 1; ; lineNo++ {
		line, rerr := br.ReadBytes('\n')
		if rerr == io.EOF {
			// Anything left without a newline is a write in progress.
			return events, consumed, corrupt, nil
		}
		if rerr != nil {
			return nil, 0, 0, fmt.Errorf("read %s: %w", name, rerr)
		}
		consumed += int64(len(line))

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var ev Event
		if derr := json.Unmarshal(line, &ev); derr == nil {
			derr = ev.Validate()
			if derr == nil {
				events = append(events, ev)
				continue
			}
			l.log.Warn().Str("file", name).Int("line", lineNo).Err(derr).Msg("skipping invalid event")
		} else {
			l.log.Warn().Str("file", name).Int("line", lineNo).Err(derr).Msg("skipping corrupt line")
		}
		corrupt++
	}
}
