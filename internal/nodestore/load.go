package nodestore

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/workgraph/internal/codec"
	"github.com/roach88/workgraph/internal/model"
	"github.com/roach88/workgraph/internal/observe"
)

// LoadReport summarizes a bulk load.
type LoadReport struct {
	Loaded           int
	Skipped          []SkippedFile
	TempFilesRemoved int
}

// SkippedFile is a document that could not be loaded.
type SkippedFile struct {
	File string
	Err  error
}

type decoded struct {
	file string
	node model.Node
	err  error
}

// load decodes every document in parallel and publishes the results in
// file name order.
func (s *Store) load(ctx context.Context) error {
	ctx, span := observe.StartSpan(ctx, "nodestore.load")
	defer span.End()

	names, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list node directory: %w", err)
	}
	slices.Sort(names)

	var report LoadReport
	var docs []string
	for _, name := range names {
		switch {
		case isTempName(name):
			if err := s.fs.Remove(filepath.Join(s.dir, name)); err != nil {
				s.log.Warn().Str("file", name).Err(err).Msg("cannot remove stray temp file")
				continue
			}
			report.TempFilesRemoved++
		case strings.HasSuffix(name, codec.Extension):
			docs = append(docs, name)
		}
	}

	results := make([]decoded, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, name := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.decodeFile(name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load nodes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		if r.err != nil {
			report.Skipped = append(report.Skipped, SkippedFile{File: r.file, Err: r.err})
			observe.Inc(ctx, observe.Metrics().LoadSkipped)
			s.log.Warn().Str("file", r.file).Err(r.err).Msg("skipping unreadable node document")
			continue
		}
		s.nodes[r.node.ID] = r.node
		report.Loaded++
	}
	s.report = report
	s.log.Info().Int("loaded", report.Loaded).Int("skipped", len(report.Skipped)).Msg("node store loaded")
	return nil
}

func (s *Store) decodeFile(name string) decoded {
	data, err := s.fs.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return decoded{file: name, err: err}
	}
	n, err := codec.Unmarshal(data)
	if err != nil {
		return decoded{file: name, err: err}
	}
	if want := strings.TrimSuffix(name, codec.Extension); n.ID != want {
		return decoded{file: name, err: model.NewMalformed(n.ID, "document id does not match file name %s", name)}
	}
	return decoded{file: name, node: n}
}
