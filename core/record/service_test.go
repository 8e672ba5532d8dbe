package record

import (
	"context"
	"errors"
	"log"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/recordbook/core"
)

var errConnRefused = errors.New("connection refused")

type stdLogger struct{ *log.Logger }

func (l stdLogger) Debug(msg string, _ ...interface{}) { l.Println(msg) }
func (l stdLogger) Info(msg string, _ ...interface{})  { l.Println(msg) }
func (l stdLogger) Warn(msg string, _ ...interface{})  { l.Println(msg) }
func (l stdLogger) Error(msg string, _ ...interface{}) { l.Println(msg) }
func (l stdLogger) Fatal(msg string, _ ...interface{}) { l.Fatalln(msg) }

// repoMock keeps records per collection and fails every call while `fail` is set.
type repoMock struct {
	sync.Mutex
	data  map[string]map[int64]Record
	fail  bool
	loads int
}

func newRepoMock() *repoMock {
	return &repoMock{data: make(map[string]map[int64]Record)}
}

func (r *repoMock) QueryRecords(_ context.Context, coll string) ([]Record, error) {
	r.Lock()
	defer r.Unlock()
	if r.fail {
		return nil, errConnRefused
	}
	r.loads++
	recs := make([]Record, 0, len(r.data[coll]))
	for _, rec := range r.data[coll] {
		recs = append(recs, rec.clone())
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

func (r *repoMock) CreateRecord(_ context.Context, coll string, rec Record) error {
	r.Lock()
	defer r.Unlock()
	if r.fail {
		return errConnRefused
	}
	if r.data[coll] == nil {
		r.data[coll] = make(map[int64]Record)
	}
	r.data[coll][rec.ID] = rec.clone()
	return nil
}

func (r *repoMock) UpdateRecord(_ context.Context, coll string, rec Record) error {
	r.Lock()
	defer r.Unlock()
	if r.fail {
		return errConnRefused
	}
	if _, ok := r.data[coll][rec.ID]; !ok {
		return ErrNotFound
	}
	r.data[coll][rec.ID] = rec.clone()
	return nil
}

func (r *repoMock) DeleteRecord(_ context.Context, coll string, id int64) error {
	r.Lock()
	defer r.Unlock()
	if r.fail {
		return errConnRefused
	}
	delete(r.data[coll], id)
	return nil
}

func (r *repoMock) DeleteCollection(_ context.Context, coll string) error {
	r.Lock()
	defer r.Unlock()
	if r.fail {
		return errConnRefused
	}
	delete(r.data, coll)
	return nil
}

func (r *repoMock) setFail(fail bool) {
	r.Lock()
	r.fail = fail
	r.Unlock()
}

func newTestService(repo Repository) *Service {
	return NewService(repo, ContactSchema, stdLogger{log.New(os.Stdout, "TEST : ", log.LstdFlags)})
}

func TestService_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := newRepoMock()
	svc := newTestService(repo)

	snap, changed, err := svc.Submit(ctx, DefaultCollection, contact("A", "B", "123"))
	require.NoError(t, err)
	require.True(t, changed)
	a := snap.Records[0]

	snap, changed, err = svc.Submit(ctx, DefaultCollection, contact("C", "D", "456"))
	require.NoError(t, err)
	require.True(t, changed)
	c := snap.Records[0]
	assert.Equal(t, []int64{c.ID, a.ID}, ids(snap))

	snap, changed, err = svc.Update(ctx, DefaultCollection, a.ID, contact("A2", "B2", "321"))
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, []int64{c.ID, a.ID}, ids(snap))
	assert.Equal(t, contact("A2", "B2", "321"), repo.data[DefaultCollection][a.ID].Fields, "persisted")

	_, changed, err = svc.ToggleVisible(ctx, DefaultCollection, c.ID)
	require.NoError(t, err)
	require.True(t, changed)
	assert.True(t, repo.data[DefaultCollection][c.ID].Visible)

	_, changed, err = svc.ToggleCompleted(ctx, DefaultCollection, c.ID)
	require.NoError(t, err)
	require.True(t, changed)
	assert.True(t, repo.data[DefaultCollection][c.ID].Completed)

	snap, changed, err = svc.Delete(ctx, DefaultCollection, a.ID)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, []int64{c.ID}, ids(snap))
	assert.Len(t, repo.data[DefaultCollection], 1)
}

func TestService_Noops(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newRepoMock())
	before, err := svc.List(ctx, DefaultCollection)
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() (Snapshot, bool, error)
	}{
		{name: "blank submit", call: func() (Snapshot, bool, error) { return svc.Submit(ctx, DefaultCollection, Fields{}) }},
		{name: "unknown update", call: func() (Snapshot, bool, error) { return svc.Update(ctx, DefaultCollection, 1, contact("A", "B", "1")) }},
		{name: "unknown delete", call: func() (Snapshot, bool, error) { return svc.Delete(ctx, DefaultCollection, 1) }},
		{name: "unknown edit", call: func() (Snapshot, bool, error) { return svc.BeginEdit(ctx, DefaultCollection, 1) }},
		{name: "idle cancel", call: func() (Snapshot, bool, error) { return svc.CancelEdit(ctx, DefaultCollection) }},
		{name: "unknown toggle visible", call: func() (Snapshot, bool, error) { return svc.ToggleVisible(ctx, DefaultCollection, 1) }},
		{name: "unknown toggle completed", call: func() (Snapshot, bool, error) { return svc.ToggleCompleted(ctx, DefaultCollection, 1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, changed, err := tt.call()
			assert.NoError(t, err)
			assert.False(t, changed)
			assert.Equal(t, before, snap)
		})
	}
}

func TestService_EditSession(t *testing.T) {
	ctx := context.Background()
	repo := newRepoMock()
	svc := newTestService(repo)

	snap, _, _ := svc.Submit(ctx, DefaultCollection, contact("A", "B", "123"))
	a := snap.Records[0]

	snap, changed, err := svc.BeginEdit(ctx, DefaultCollection, a.ID)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, Editing{ID: a.ID}, snap.Edit)
	assert.Equal(t, a.Fields, snap.Input)

	snap, _, err = svc.Submit(ctx, DefaultCollection, contact("X", "Y", "9"))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len(), "updated in place")
	assert.Equal(t, Idle{}, snap.Edit)
	assert.Equal(t, contact("X", "Y", "9"), repo.data[DefaultCollection][a.ID].Fields)

	_, _, _ = svc.BeginEdit(ctx, DefaultCollection, a.ID)
	snap, changed, err = svc.CancelEdit(ctx, DefaultCollection)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, Idle{}, snap.Edit)
	assert.Empty(t, snap.Input)
}

func TestService_InfrastructureErrorKeepsState(t *testing.T) {
	ctx := context.Background()
	repo := newRepoMock()
	svc := newTestService(repo)

	snap, _, _ := svc.Submit(ctx, DefaultCollection, contact("A", "B", "123"))
	a := snap.Records[0]
	before, _ := svc.List(ctx, DefaultCollection)

	repo.setFail(true)
	calls := map[string]func() error{
		"submit": func() error { _, _, err := svc.Submit(ctx, DefaultCollection, contact("C", "D", "1")); return err },
		"update": func() error { _, _, err := svc.Update(ctx, DefaultCollection, a.ID, contact("C", "D", "1")); return err },
		"delete": func() error { _, _, err := svc.Delete(ctx, DefaultCollection, a.ID); return err },
		"toggle": func() error { _, _, err := svc.ToggleVisible(ctx, DefaultCollection, a.ID); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Error(t, err)
			assert.True(t, core.IsInfrastructureError(err))
			assert.True(t, errors.Is(err, errConnRefused))

			after, err := svc.List(ctx, DefaultCollection) // cached, no repo call
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}

	repo.setFail(false)
	snap, changed, err := svc.Submit(ctx, DefaultCollection, contact("C", "D", "1"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, snap.Len())
}

func TestService_Sessions(t *testing.T) {
	ctx := context.Background()
	repo := newRepoMock()
	svc := newTestService(repo)

	_, _, _ = svc.Submit(ctx, "s1", contact("A", "B", "1"))
	_, _, _ = svc.Submit(ctx, "s2", contact("C", "D", "2"))
	_, _, _ = svc.Submit(ctx, "s2", contact("E", "F", "3"))

	s1, _ := svc.List(ctx, "s1")
	s2, _ := svc.List(ctx, "s2")
	assert.Equal(t, 1, s1.Len())
	assert.Equal(t, 2, s2.Len())

	// ending a session reloads from the repository
	loads := repo.loads
	require.NoError(t, svc.EndSession(ctx, "s2", false))
	s2, err := svc.List(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, 2, s2.Len())
	assert.Equal(t, loads+1, repo.loads)

	// dropping it deletes the records
	require.NoError(t, svc.EndSession(ctx, "s2", true))
	s2, err = svc.List(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, 0, s2.Len())
}

func TestService_LoadError(t *testing.T) {
	repo := newRepoMock()
	repo.setFail(true)
	svc := newTestService(repo)

	_, err := svc.List(context.Background(), DefaultCollection)
	require.Error(t, err)
	assert.True(t, core.IsInfrastructureError(err))

	repo.setFail(false)
	_, err = svc.List(context.Background(), DefaultCollection)
	assert.NoError(t, err)
}

func TestService_ConcurrentSubmits(t *testing.T) {
	ctx := context.Background()
	repo := newRepoMock()
	svc := newTestService(repo)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = svc.Submit(ctx, DefaultCollection, contact("A", "B", "1"))
		}()
	}
	wg.Wait()

	snap, err := svc.List(ctx, DefaultCollection)
	require.NoError(t, err)
	assert.Equal(t, 20, snap.Len())
	assert.Len(t, repo.data[DefaultCollection], 20, "ids are distinct")
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestNewService(t *testing.T) {
	tests := []struct {
		name      string
		repo      Repository
		logger    core.Logger
		wantPanic bool
	}{
		{name: "value logger", repo: newRepoMock(), logger: nopLogger{}},
		{name: "pointer logger", repo: newRepoMock(), logger: &nopLogger{}},
		{name: "nil logger", repo: newRepoMock(), wantPanic: true},
		{name: "nil repo", logger: nopLogger{}, wantPanic: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			build := func() { NewService(tt.repo, ContactSchema, tt.logger) }
			if tt.wantPanic {
				assert.Panics(t, build)
			} else {
				assert.NotPanics(t, build)
			}
		})
	}
}

func TestService_EndSessionClosesSession(t *testing.T) {
	ctx := context.Background()
	repo := newRepoMock()
	svc := NewService(repo, ContactSchema, nopLogger{})

	snap, _, _ := svc.Submit(ctx, "s1", contact("A", "B", "1"))
	a := snap.Records[0]
	svc.mu.Lock()
	old := svc.sessions["s1"]
	svc.mu.Unlock()

	require.NoError(t, svc.EndSession(ctx, "s1", true))
	old.Lock()
	assert.True(t, old.closed, "late holders of the old session are turned away")
	old.Unlock()

	snap, changed, err := svc.Submit(ctx, "s1", contact("C", "D", "2"))
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, 1, snap.Len())
	_, ok := snap.Get(a.ID)
	assert.False(t, ok, "dropped records stay dropped")
	assert.Len(t, repo.data["s1"], 1)
}

func TestService_EndSessionConcurrentSubmits(t *testing.T) {
	ctx := context.Background()
	repo := newRepoMock()
	svc := NewService(repo, ContactSchema, nopLogger{})
	_, _, _ = svc.Submit(ctx, "s1", contact("A", "B", "1"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = svc.Submit(ctx, "s1", contact("C", "D", "2"))
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.EndSession(ctx, "s1", true))
	}()
	wg.Wait()

	// whatever the interleaving, the cache agrees with the repository
	snap, err := svc.List(ctx, "s1")
	require.NoError(t, err)
	repo.Lock()
	stored := len(repo.data["s1"])
	repo.Unlock()
	assert.Equal(t, stored, snap.Len())
}
