package nodestore

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/workgraph/internal/model"
	"github.com/roach88/workgraph/internal/observe"
)

type opKind int

const (
	opAdd opKind = iota
	opUpdate
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opAdd:
		return "add"
	case opUpdate:
		return "update"
	default:
		return "delete"
	}
}

type op struct {
	kind      opKind
	id        string
	node      model.Node
	overwrite bool
}

// Tx stages add, update and delete operations and applies them to the
// store as one unit on Commit.
//
// Commit first checks the whole batch against the store as it would look
// after each staged operation; a single invalid operation rejects the
// batch with TransactionAborted and nothing is written. If writing fails
// part way, every touched node is restored from the pre-image and the
// error is again TransactionAborted.
//
// A transaction left unfinished by its caller has no effect on the store.
// The next Begin supersedes it, after which its Commit and Rollback return
// ErrTxDone. Transactions do not nest: Begin inside WithTx fails with
// ErrTxActive.
type Tx struct {
	id   string
	s    *Store
	ops  []op
	pre  map[string]model.Node
	gen  uint64
	done bool
	// scoped is set for the transaction owned by WithTx.
	scoped bool
}

// Begin opens a transaction and captures the pre-image of the store.
// An open transaction started by an earlier Begin is superseded.
func (s *Store) Begin() (*Tx, error) {
	return s.begin(false)
}

func (s *Store) begin(scoped bool) (*Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.tx; prev != nil {
		if prev.scoped {
			return nil, ErrTxActive
		}
		prev.done = true
		s.log.Warn().Str("tx", prev.id).Int("ops", len(prev.ops)).Msg("abandoned transaction superseded")
	}
	tx := &Tx{
		id:     s.ids.Generate(),
		s:      s,
		pre:    cloneNodes(s.nodes),
		gen:    s.gen,
		scoped: scoped,
	}
	s.tx = tx
	s.log.Info().Str("tx", tx.id).Msg("transaction begin")
	return tx, nil
}

// ID returns the transaction id.
func (tx *Tx) ID() string {
	return tx.id
}

// Add stages an add. See Store.Add.
func (tx *Tx) Add(n model.Node, overwrite bool) *Tx {
	tx.ops = append(tx.ops, op{kind: opAdd, id: n.ID, node: n.Clone(), overwrite: overwrite})
	return tx
}

// Update stages a full replace. See Store.Update.
func (tx *Tx) Update(n model.Node) *Tx {
	tx.ops = append(tx.ops, op{kind: opUpdate, id: n.ID, node: n.Clone()})
	return tx
}

// Delete stages a removal. See Store.Delete.
func (tx *Tx) Delete(id string) *Tx {
	tx.ops = append(tx.ops, op{kind: opDelete, id: id})
	return tx
}

// Len returns the number of staged operations.
func (tx *Tx) Len() int {
	return len(tx.ops)
}

// Commit applies the staged operations in order.
func (tx *Tx) Commit() error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	s.tx = nil
	ctx := context.Background()

	if err := tx.check(); err != nil {
		observe.Inc(ctx, observe.Metrics().TxRollback, attribute.String("reason", "rejected"))
		s.log.Warn().Str("tx", tx.id).Err(err).Msg("transaction rejected")
		return model.NewTxAborted(err)
	}

	// Writes made outside the transaction since Begin are part of the
	// state to restore.
	if s.gen != tx.gen {
		tx.pre = cloneNodes(s.nodes)
	}

	touched := make(map[string]bool, len(tx.ops))
	for i, o := range tx.ops {
		touched[o.id] = true
		var err error
		switch o.kind {
		case opAdd, opUpdate:
			err = s.putLocked(o.node)
		case opDelete:
			err = s.removeLocked(o.id)
		}
		if err != nil {
			cause := fmt.Errorf("op %d (%s %s): %w", i, o.kind, o.id, err)
			if rerr := tx.restoreLocked(touched); rerr != nil {
				cause = errors.Join(cause, fmt.Errorf("restore pre-image: %w", rerr))
			}
			observe.Inc(ctx, observe.Metrics().TxRollback, attribute.String("reason", "apply"))
			s.log.Error().Str("tx", tx.id).Err(cause).Msg("transaction rolled back")
			return model.NewTxAborted(cause)
		}
	}

	observe.Inc(ctx, observe.Metrics().TxCommit)
	s.log.Info().Str("tx", tx.id).Int("ops", len(tx.ops)).Msg("transaction committed")
	return nil
}

// check validates every staged operation against a simulated id set.
// Caller holds s.mu.
func (tx *Tx) check() error {
	present := make(map[string]bool, len(tx.ops))
	exists := func(id string) bool {
		if p, ok := present[id]; ok {
			return p
		}
		_, ok := tx.s.nodes[id]
		return ok
	}

	for i, o := range tx.ops {
		var err error
		switch o.kind {
		case opAdd:
			if verr := o.node.Validate(); verr != nil {
				err = verr
			} else if exists(o.id) && !o.overwrite {
				err = model.NewDuplicateID(o.id)
			}
			present[o.id] = true
		case opUpdate:
			if verr := o.node.Validate(); verr != nil {
				err = verr
			} else if !exists(o.id) {
				err = model.NewNotFound(o.id)
			}
		case opDelete:
			if !exists(o.id) {
				err = model.NewNotFound(o.id)
			}
			present[o.id] = false
		}
		if err != nil {
			return fmt.Errorf("op %d (%s %s): %w", i, o.kind, o.id, err)
		}
	}
	return nil
}

// restoreLocked puts every touched id back to its pre-image.
func (tx *Tx) restoreLocked(touched map[string]bool) error {
	s := tx.s
	var errs []error
	for id := range touched {
		if n, ok := tx.pre[id]; ok {
			if err := s.restoreLocked(n.Clone()); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if _, ok := s.nodes[id]; ok {
			if err := s.removeLocked(id); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Rollback discards the staged operations. Nothing has been written, so
// the store is untouched.
func (tx *Tx) Rollback() error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	s.tx = nil
	observe.Inc(context.Background(), observe.Metrics().TxRollback, attribute.String("reason", "caller"))
	s.log.Info().Str("tx", tx.id).Msg("transaction rolled back by caller")
	return nil
}

// WithTx runs fn inside a transaction. fn's error or panic rolls the
// transaction back; otherwise it is committed.
func (s *Store) WithTx(fn func(tx *Tx) error) error {
	tx, err := s.begin(true)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return model.NewTxAborted(err)
	}
	return tx.Commit()
}

func cloneNodes(m map[string]model.Node) map[string]model.Node {
	out := maps.Clone(m)
	for id, n := range out {
		out[id] = n.Clone()
	}
	return out
}
