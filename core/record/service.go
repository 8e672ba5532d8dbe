package record

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kat-co/vala"

	"github.com/trezcool/recordbook/core"
)

// DefaultCollection is used by callers that do not scope records per session.
const DefaultCollection = "default"

var ErrNotFound = errors.New("record not found")

type (
	// Repository is the durable collaborator behind a Service.
	Repository interface {
		// QueryRecords returns every record of the collection, in any order.
		QueryRecords(ctx context.Context, collection string) ([]Record, error)
		CreateRecord(ctx context.Context, collection string, rec Record) error
		// UpdateRecord saves fields, flags and UpdatedAt. ErrNotFound if the record does not exist.
		UpdateRecord(ctx context.Context, collection string, rec Record) error
		// DeleteRecord is a no-op if the record does not exist.
		DeleteRecord(ctx context.Context, collection string, id int64) error
		DeleteCollection(ctx context.Context, collection string) error
	}

	// Service serves Stores keyed by collection (one per session), backed by a Repository.
	// Calls on the same collection are serialized; mutations are persisted before they become visible.
	Service struct {
		repo      Repository
		schema    Schema
		validator *Validator
		logger    core.Logger

		mu       sync.Mutex
		sessions map[string]*session
	}

	session struct {
		sync.Mutex
		store  *Store
		closed bool // set by EndSession; holders must fetch a fresh session
	}
)

func NewService(repo Repository, schema Schema, logger core.Logger, validator ...*Validator) *Service {
	vala.BeginValidation().Validate(
		vala.Not(vala.Equals(repo, nil, "repo")),
		vala.Not(vala.Equals(logger, nil, "logger")),
		vala.StringNotEmpty(schema.Name, "schema.Name"),
	).CheckAndPanic()

	v := defaultValidator
	if len(validator) > 0 && validator[0] != nil {
		v = validator[0]
	}
	return &Service{
		repo:      repo,
		schema:    schema,
		validator: v,
		logger:    logger,
		sessions:  make(map[string]*session),
	}
}

func (svc *Service) Schema() Schema { return svc.schema }

// lock returns the locked, open session of `collection`, registering an empty one if needed.
func (svc *Service) lock(collection string) *session {
	for {
		svc.mu.Lock()
		sess, ok := svc.sessions[collection]
		if !ok {
			sess = &session{}
			svc.sessions[collection] = sess
		}
		svc.mu.Unlock()

		sess.Lock()
		if !sess.closed {
			return sess
		}
		sess.Unlock()
	}
}

// session returns the locked session of `collection`, loading its records on first use.
// The caller must unlock it.
func (svc *Service) session(ctx context.Context, collection string) (*session, error) {
	sess := svc.lock(collection)
	if sess.store == nil {
		records, err := svc.repo.QueryRecords(ctx, collection)
		if err != nil {
			sess.Unlock()
			return nil, core.NewInfrastructureError("loading records", err)
		}
		store := NewStore(svc.schema, WithValidator(svc.validator))
		store.Load(records)
		sess.store = store
	}
	return sess, nil
}

// mutate runs `op` on a copy of the session store, persists the outcome, then commits the copy.
func (svc *Service) mutate(
	ctx context.Context,
	collection string,
	op func(*Store) (changed bool, persist func() error),
) (Snapshot, bool, error) {
	sess, err := svc.session(ctx, collection)
	if err != nil {
		return Snapshot{}, false, err
	}
	defer sess.Unlock()

	draft := sess.store.Clone()
	changed, persist := op(draft)
	if persist != nil {
		if err := persist(); err != nil {
			return Snapshot{}, false, err
		}
	}
	sess.store = draft
	return draft.List(), changed, nil
}

func (svc *Service) List(ctx context.Context, collection string) (Snapshot, error) {
	sess, err := svc.session(ctx, collection)
	if err != nil {
		return Snapshot{}, err
	}
	defer sess.Unlock()
	return sess.store.List(), nil
}

func (svc *Service) Check(fields Fields) error {
	return svc.validator.Check(svc.schema, fields)
}

func (svc *Service) Submit(ctx context.Context, collection string, fields Fields) (Snapshot, bool, error) {
	return svc.mutate(ctx, collection, func(st *Store) (bool, func() error) {
		_, editing := EditingID(st.Edit())
		rec, ok := st.Submit(fields)
		if !ok {
			return false, nil
		}
		if editing {
			return true, svc.persistUpdate(ctx, collection, rec)
		}
		return true, func() error {
			if err := svc.repo.CreateRecord(ctx, collection, rec); err != nil {
				return core.NewInfrastructureError("creating record", err)
			}
			return nil
		}
	})
}

func (svc *Service) Update(ctx context.Context, collection string, id int64, fields Fields) (Snapshot, bool, error) {
	return svc.mutate(ctx, collection, func(st *Store) (bool, func() error) {
		rec, ok := st.Update(id, fields)
		if !ok {
			return false, nil
		}
		return true, svc.persistUpdate(ctx, collection, rec)
	})
}

func (svc *Service) Delete(ctx context.Context, collection string, id int64) (Snapshot, bool, error) {
	return svc.mutate(ctx, collection, func(st *Store) (bool, func() error) {
		if !st.Delete(id) {
			return false, nil
		}
		return true, func() error {
			if err := svc.repo.DeleteRecord(ctx, collection, id); err != nil {
				return core.NewInfrastructureError("deleting record", err)
			}
			return nil
		}
	})
}

func (svc *Service) BeginEdit(ctx context.Context, collection string, id int64) (Snapshot, bool, error) {
	return svc.mutate(ctx, collection, func(st *Store) (bool, func() error) {
		return st.BeginEdit(id), nil
	})
}

func (svc *Service) CancelEdit(ctx context.Context, collection string) (Snapshot, bool, error) {
	return svc.mutate(ctx, collection, func(st *Store) (bool, func() error) {
		_, editing := EditingID(st.Edit())
		st.CancelEdit()
		return editing, nil
	})
}

func (svc *Service) ToggleVisible(ctx context.Context, collection string, id int64) (Snapshot, bool, error) {
	return svc.mutate(ctx, collection, func(st *Store) (bool, func() error) {
		rec, ok := st.ToggleVisible(id)
		if !ok {
			return false, nil
		}
		return true, svc.persistUpdate(ctx, collection, rec)
	})
}

func (svc *Service) ToggleCompleted(ctx context.Context, collection string, id int64) (Snapshot, bool, error) {
	return svc.mutate(ctx, collection, func(st *Store) (bool, func() error) {
		rec, ok := st.ToggleCompleted(id)
		if !ok {
			return false, nil
		}
		return true, svc.persistUpdate(ctx, collection, rec)
	})
}

// EndSession discards the cached store of `collection`; the next call reloads it from the repository.
// With drop set, the records are deleted from the repository as well.
func (svc *Service) EndSession(ctx context.Context, collection string, drop bool) error {
	// waits for in-flight calls; callers arriving meanwhile queue on the same lock
	sess := svc.lock(collection)
	defer sess.Unlock()

	if drop {
		if err := svc.repo.DeleteCollection(ctx, collection); err != nil {
			return core.NewInfrastructureError("dropping collection", err)
		}
	}
	sess.closed = true
	svc.mu.Lock()
	delete(svc.sessions, collection)
	svc.mu.Unlock()

	svc.logger.Debug(fmt.Sprintf("session ended: %s", collection))
	return nil
}

func (svc *Service) persistUpdate(ctx context.Context, collection string, rec Record) func() error {
	return func() error {
		if err := svc.repo.UpdateRecord(ctx, collection, rec); err != nil {
			return core.NewInfrastructureError("updating record", err)
		}
		return nil
	}
}
