package session_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/opal/connector"
	"github.com/Konsultn-Engineering/opal/session"

	_ "github.com/Konsultn-Engineering/opal/providers/sqlite"
)

// =========================================================================
// Test Data Structures
// =========================================================================

type Author struct {
	ID   uint64 `db:"id,pk,auto"`
	Name string `db:"name"`
}

type Article struct {
	ID     uint64   `db:"id,pk,auto"`
	Title  string   `db:"title"`
	Rev    uint64   `db:"rev,version"`
	Author *Author  `db:"author_id,ref"`
	Tags   []string `db:"tags,container"`
}

type Employee struct {
	ID      uint64    `db:"id,pk,auto"`
	Name    string    `db:"name"`
	Manager *Employee `db:"manager_id,ref"`
}

func openSession(t *testing.T, database string, models ...any) *session.Session {
	t.Helper()
	ctx := context.Background()

	c, err := connector.New("sqlite", connector.Config{Database: database})
	require.NoError(t, err)
	conn, err := c.Connect(ctx)
	require.NoError(t, err)

	s, err := session.New(ctx, conn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
		_ = conn.Close()
	})

	require.NoError(t, s.Migrate(ctx, models...))
	return s
}

func newTestSession(t *testing.T, models ...any) *session.Session {
	return openSession(t, ":memory:", models...)
}

// =========================================================================
// Round trips
// =========================================================================

func TestPersistFindRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{})

	a := &Author{Name: "ada"}
	require.NoError(t, s.Persist(ctx, a))
	assert.NotZero(t, a.ID, "engine-assigned id must be written back")

	var got Author
	require.NoError(t, s.Find(ctx, a.ID, &got))
	assert.Equal(t, a.Name, got.Name)
	assert.Equal(t, a.ID, got.ID)
}

func TestFindMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{})

	var got Author
	err := s.Find(ctx, uint64(999), &got)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestPersistDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{})

	require.NoError(t, s.Persist(ctx, &Author{ID: 7, Name: "first"}))
	err := s.Persist(ctx, &Author{ID: 7, Name: "second"})
	assert.ErrorIs(t, err, session.ErrAlreadyPersistent)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{})

	a := &Author{Name: "before"}
	require.NoError(t, s.Persist(ctx, a))

	a.Name = "after"
	require.NoError(t, s.Update(ctx, a))

	var got Author
	require.NoError(t, s.Find(ctx, a.ID, &got))
	assert.Equal(t, "after", got.Name)
}

func TestUpdateMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{})

	err := s.Update(ctx, &Author{ID: 123, Name: "ghost"})
	assert.ErrorIs(t, err, session.ErrNotPersistent)
}

func TestErase(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{})

	a := &Author{Name: "gone"}
	require.NoError(t, s.Persist(ctx, a))
	require.NoError(t, s.Erase(ctx, a))

	var got Author
	assert.ErrorIs(t, s.Find(ctx, a.ID, &got), session.ErrNotFound)
	assert.ErrorIs(t, s.Erase(ctx, a), session.ErrNotPersistent)
}

// =========================================================================
// Optimistic concurrency
// =========================================================================

func TestOptimisticVersioning(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{}, Article{})

	art := &Article{Title: "v1"}
	require.NoError(t, s.Persist(ctx, art))
	assert.Equal(t, uint64(1), art.Rev)

	art.Title = "v2"
	require.NoError(t, s.Update(ctx, art))
	assert.Equal(t, uint64(2), art.Rev)

	var got Article
	require.NoError(t, s.Find(ctx, art.ID, &got))
	assert.Equal(t, uint64(2), got.Rev)
	assert.Equal(t, "v2", got.Title)
}

func TestOptimisticUpdateConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{}, Article{})

	art := &Article{Title: "original"}
	require.NoError(t, s.Persist(ctx, art))

	stale := &Article{ID: art.ID, Title: "stale write", Rev: art.Rev}
	art.Title = "winner"
	require.NoError(t, s.Update(ctx, art))

	err := s.Update(ctx, stale)
	assert.ErrorIs(t, err, session.ErrObjectChanged)

	// The winner's state is intact.
	var got Article
	require.NoError(t, s.Find(ctx, art.ID, &got))
	assert.Equal(t, "winner", got.Title)
}

func TestOptimisticEraseConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{}, Article{})

	art := &Article{Title: "keep"}
	require.NoError(t, s.Persist(ctx, art))

	stale := &Article{ID: art.ID, Rev: art.Rev}
	art.Title = "moved on"
	require.NoError(t, s.Update(ctx, art))

	assert.ErrorIs(t, s.EraseVersioned(ctx, stale), session.ErrObjectChanged)

	// With the current version the erase goes through.
	require.NoError(t, s.EraseVersioned(ctx, art))
	var got Article
	assert.ErrorIs(t, s.Find(ctx, art.ID, &got), session.ErrNotFound)
}

func TestEraseIgnoresVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{}, Article{})

	art := &Article{Title: "any"}
	require.NoError(t, s.Persist(ctx, art))

	stale := &Article{ID: art.ID, Rev: 99}
	require.NoError(t, s.Erase(ctx, stale))

	var got Article
	assert.ErrorIs(t, s.Find(ctx, art.ID, &got), session.ErrNotFound)
}

func TestEraseVersionedRequiresVersionColumn(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{})

	err := s.EraseVersioned(ctx, &Author{ID: 1})
	assert.Error(t, err)
}

// =========================================================================
// Containers
// =========================================================================

func TestContainerRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{}, Article{})

	art := &Article{Title: "tagged", Tags: []string{"go", "sql", "orm"}}
	require.NoError(t, s.Persist(ctx, art))

	var got Article
	require.NoError(t, s.Find(ctx, art.ID, &got))
	assert.Equal(t, []string{"go", "sql", "orm"}, got.Tags)

	got.Tags = []string{"replaced"}
	require.NoError(t, s.Update(ctx, &got))

	var again Article
	require.NoError(t, s.Find(ctx, art.ID, &again))
	assert.Equal(t, []string{"replaced"}, again.Tags)
}

func TestContainerErasedWithObject(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{}, Article{})

	art := &Article{Title: "t", Tags: []string{"a", "b"}}
	require.NoError(t, s.Persist(ctx, art))
	require.NoError(t, s.Erase(ctx, art))

	// Reusing the id must not resurrect the old container rows.
	fresh := &Article{ID: art.ID, Title: "fresh"}
	require.NoError(t, s.Persist(ctx, fresh))

	var got Article
	require.NoError(t, s.Find(ctx, fresh.ID, &got))
	assert.Empty(t, got.Tags)
}

// =========================================================================
// Associations and delayed loading
// =========================================================================

func TestAssociationLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{}, Article{})

	author := &Author{Name: "grace"}
	require.NoError(t, s.Persist(ctx, author))
	art := &Article{Title: "with author", Author: author}
	require.NoError(t, s.Persist(ctx, art))

	var got Article
	require.NoError(t, s.Find(ctx, art.ID, &got))
	require.NotNil(t, got.Author)
	assert.Equal(t, "grace", got.Author.Name)
	// The author was persisted in this session, so the identity map
	// resolves the reference to the same object.
	assert.Same(t, author, got.Author)
}

func TestAssociationNull(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{}, Article{})

	art := &Article{Title: "orphan"}
	require.NoError(t, s.Persist(ctx, art))

	var got Article
	require.NoError(t, s.Find(ctx, art.ID, &got))
	assert.Nil(t, got.Author)
}

func TestAssociationCycle(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "cycle.db")

	// Two employees managing each other, written by one session.
	w := openSession(t, db, Employee{})
	e1 := &Employee{ID: 1, Name: "one"}
	e2 := &Employee{ID: 2, Name: "two"}
	require.NoError(t, w.Persist(ctx, e1))
	require.NoError(t, w.Persist(ctx, e2))
	e1.Manager = e2
	e2.Manager = e1
	require.NoError(t, w.Update(ctx, e1))
	require.NoError(t, w.Update(ctx, e2))
	require.NoError(t, w.Close())

	// A fresh session has an empty identity map, so loading one end
	// queues the other as a delayed load; the back reference must
	// resolve to the pending object and terminate the cycle.
	r := openSession(t, db, Employee{})
	var got Employee
	require.NoError(t, r.Find(ctx, uint64(1), &got))
	require.NotNil(t, got.Manager)
	assert.Equal(t, "two", got.Manager.Name)
	require.NotNil(t, got.Manager.Manager)
	assert.Same(t, &got, got.Manager.Manager)
}

func TestAssociationChainAcrossTypes(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "chain.db")

	w := openSession(t, db, Author{}, Article{})
	author := &Author{Name: "fresh load"}
	require.NoError(t, w.Persist(ctx, author))
	art := &Article{Title: "chained", Author: author}
	require.NoError(t, w.Persist(ctx, art))
	require.NoError(t, w.Close())

	// In a fresh session the author is not in the identity map, so this
	// exercises the delayed loader across contexts of different types.
	r := openSession(t, db, Author{}, Article{})
	var got Article
	require.NoError(t, r.Find(ctx, art.ID, &got))
	require.NotNil(t, got.Author)
	assert.Equal(t, "fresh load", got.Author.Name)
}

func TestSelfReference(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Employee{})

	boss := &Employee{ID: 10, Name: "boss"}
	require.NoError(t, s.Persist(ctx, boss))
	boss.Manager = boss
	require.NoError(t, s.Update(ctx, boss))

	var got Employee
	require.NoError(t, s.Find(ctx, uint64(10), &got))
	require.NotNil(t, got.Manager)
	assert.Same(t, &got, got.Manager)
}

// =========================================================================
// Validation
// =========================================================================

func TestEntityValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{})

	assert.Error(t, s.Persist(ctx, Author{}))
	assert.Error(t, s.Persist(ctx, nil))
	var a *Author
	assert.Error(t, s.Persist(ctx, a))
}

func TestCloseReleasesConnection(t *testing.T) {
	ctx := context.Background()

	c, err := connector.New("sqlite", connector.Config{Database: ":memory:"})
	require.NoError(t, err)
	conn, err := c.Connect(ctx)
	require.NoError(t, err)

	s, err := session.New(ctx, conn)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx, Author{}))
	require.NoError(t, s.Persist(ctx, &Author{Name: "n"}))

	// The session owns the database handle it was built from; closing
	// the session closes it too.
	require.NoError(t, s.Close())
	assert.Error(t, conn.Health(ctx))
}

func TestIDCoercion(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Author{})

	a := &Author{Name: "n"}
	require.NoError(t, s.Persist(ctx, a))

	// Plain int ids convert to the entity's uint64 id type.
	var got Author
	require.NoError(t, s.Find(ctx, int(a.ID), &got))
	assert.Equal(t, a.ID, got.ID)
}
