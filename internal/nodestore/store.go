package nodestore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/roach88/workgraph/internal/codec"
	"github.com/roach88/workgraph/internal/model"
	"github.com/roach88/workgraph/internal/observe"
)

// NodesDir is the directory under the store root that holds documents.
const NodesDir = "nodes"

// Store is the in-memory node map backed by one document per node.
//
// Every mutation writes or removes the node's document before the map is
// touched, so a failed write leaves both unchanged. Reads return deep
// copies. Store is safe for concurrent use within one process; separate
// processes writing the same root are not coordinated.
type Store struct {
	mu    sync.RWMutex
	dir   string
	nodes map[string]model.Node
	// gen counts applied mutations. Transactions use it to notice writes
	// made after Begin.
	gen uint64
	tx  *Tx

	fs      FS
	clock   model.Clock
	ids     model.IDGenerator
	log     *bolt.Logger
	workers int
	report  LoadReport
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp timestamps.
func WithClock(c model.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *bolt.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithFS replaces the file system. Tests use it to inject write failures.
func WithFS(fs FS) Option {
	return func(s *Store) { s.fs = fs }
}

// WithIDGenerator sets the generator for transaction ids.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithLoadWorkers bounds the number of documents decoded in parallel on
// Open. Values below 1 mean 1.
func WithLoadWorkers(n int) Option {
	return func(s *Store) { s.workers = max(n, 1) }
}

// Open loads every document under root/nodes, creating the directory if
// needed. Documents that fail to decode are skipped and listed in
// LoadReport; they never fail the Open.
func Open(ctx context.Context, root string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:     filepath.Join(root, NodesDir),
		nodes:   make(map[string]model.Node),
		fs:      OSFS{},
		clock:   model.SystemClock{},
		ids:     model.UUIDv7Generator{},
		workers: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = observe.OrDiscard(s.log)

	if err := s.fs.MkdirAll(s.dir); err != nil {
		return nil, fmt.Errorf("create node directory: %w", err)
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the directory holding node documents.
func (s *Store) Dir() string {
	return s.dir
}

// LoadReport describes what Open found on disk.
func (s *Store) LoadReport() LoadReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.report
	r.Skipped = slices.Clone(r.Skipped)
	return r
}

// Add stores n. It fails with DuplicateID when the id exists and
// overwrite is false.
func (s *Store) Add(n model.Node, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := n.Validate(); err != nil {
		return fmt.Errorf("add %s: %w", n.ID, err)
	}
	if _, ok := s.nodes[n.ID]; ok && !overwrite {
		return model.NewDuplicateID(n.ID)
	}
	return s.putLocked(n)
}

// Update replaces an existing node. It fails with NotFound when the id is
// absent. CreatedAt is kept from the stored node.
func (s *Store) Update(n model.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := n.Validate(); err != nil {
		return fmt.Errorf("update %s: %w", n.ID, err)
	}
	if _, ok := s.nodes[n.ID]; !ok {
		return model.NewNotFound(n.ID)
	}
	return s.putLocked(n)
}

// Delete removes a node and its document. It fails with NotFound when the
// id is absent.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return model.NewNotFound(id)
	}
	return s.removeLocked(id)
}

// Get returns a copy of the node with id.
func (s *Store) Get(id string) (model.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return model.Node{}, false
	}
	return n.Clone(), true
}

// Has reports whether id is stored.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// IDs returns every id in ascending order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.nodes)
}

// All yields copies of every node in id order. The id list is fixed when
// iteration starts; nodes deleted while iterating are skipped. Each call
// starts a fresh iteration.
func (s *Store) All() iter.Seq[model.Node] {
	return func(yield func(model.Node) bool) {
		for _, id := range s.IDs() {
			n, ok := s.Get(id)
			if !ok {
				continue
			}
			if !yield(n) {
				return
			}
		}
	}
}

// putLocked stamps, persists and publishes n. Caller holds s.mu.
func (s *Store) putLocked(n model.Node) error {
	n = n.Clone()
	now := s.clock.Now()
	prev, exists := s.nodes[n.ID]
	switch {
	case exists:
		n.CreatedAt = prev.CreatedAt
	case n.CreatedAt.IsZero():
		n.CreatedAt = now
	}
	n.UpdatedAt = latest(now, n.CreatedAt, prev.UpdatedAt)

	if err := s.writeDoc(n); err != nil {
		return err
	}
	s.nodes[n.ID] = n
	s.gen++
	return nil
}

// removeLocked deletes the document then the map entry. Caller holds s.mu.
func (s *Store) removeLocked(id string) error {
	if err := s.fs.Remove(s.path(id)); err != nil {
		return fmt.Errorf("remove document %s: %w", id, err)
	}
	delete(s.nodes, id)
	s.gen++
	return nil
}

// restoreLocked writes n exactly as given, without stamping. Used to put a
// pre-image back. Caller holds s.mu.
func (s *Store) restoreLocked(n model.Node) error {
	if err := s.writeDoc(n); err != nil {
		return err
	}
	s.nodes[n.ID] = n
	s.gen++
	return nil
}

func (s *Store) writeDoc(n model.Node) error {
	data, err := codec.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode %s: %w", n.ID, err)
	}
	if err := s.fs.WriteFile(s.path(n.ID), data); err != nil {
		return fmt.Errorf("write document %s: %w", n.ID, err)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, codec.FileName(id))
}

func latest(ts ...time.Time) time.Time {
	var out time.Time
	for _, t := range ts {
		if t.After(out) {
			out = t
		}
	}
	return out
}

func sortedIDs(m map[string]model.Node) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ErrTxActive is returned by Begin inside WithTx.
var ErrTxActive = errors.New("transaction already active")

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("transaction already finished")
