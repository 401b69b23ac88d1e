package dbs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/SpeedReach/surrealdb/dbs"
	"github.com/SpeedReach/surrealdb/kvs"
	"github.com/SpeedReach/surrealdb/sql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var owner = &sql.Options{Namespace: "test", Database: "test", Auth: sql.LevelOwner}

func executor(t *testing.T, path string) *dbs.Executor {
	ds, err := kvs.Open(context.Background(), path)
	require.NoError(t, err)

	t.Cleanup(func() {
		ds.Close()
	})

	return dbs.New(ds, zaptest.NewLogger(t))
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	e := executor(t, "mem://")

	responses, err := e.Query(ctx, owner, `
		INSERT INTO person (id, name) VALUES ('tobie', 'Tobie'), ('jaime', 'Jaime');
		UPDATE person SET company = 'surreal' WHERE id = 'tobie';
		SELECT * FROM person ORDER BY id DESC LIMIT 1;
	`)
	require.NoError(t, err)
	require.Len(t, responses, 3)
	require.Equal(t, []sql.Document{{"id": "tobie", "name": "Tobie", "company": "surreal"}}, responses[2].Result)
}

func TestThrowHasNoSideEffects(t *testing.T) {
	ctx := context.Background()

	for _, path := range []string{"mem://", "mvcc://" + uuid.New().String()} {
		t.Run(path, func(t *testing.T) {
			e := executor(t, path)

			_, err := e.Query(ctx, owner, "INSERT INTO person (id) VALUES ('tobie'); THROW 'Record does not exist'")
			require.Error(t, err)
			require.Equal(t, "Record does not exist", err.Error())

			var thrown *sql.ThrownError
			require.True(t, errors.As(err, &thrown))

			responses, err := e.Query(ctx, owner, "SELECT * FROM person")
			require.NoError(t, err)
			require.Equal(t, []sql.Document{}, responses[0].Result)
		})
	}
}

func TestFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	e := executor(t, "mem://")

	_, err := e.Query(ctx, owner, "INSERT INTO person (id) VALUES ('a')")
	require.NoError(t, err)

	_, err = e.Query(ctx, owner, "INSERT INTO person (id) VALUES ('b'); INSERT INTO person (id) VALUES ('a')")
	require.True(t, errors.Is(err, sql.ErrRecordExists))

	responses, err := e.Query(ctx, owner, "SELECT id FROM person")
	require.NoError(t, err)
	require.Equal(t, []sql.Document{{"id": "a"}}, responses[0].Result)
}

func TestPermissions(t *testing.T) {
	ctx := context.Background()
	e := executor(t, "mem://")
	viewer := &sql.Options{Namespace: "test", Database: "test", Auth: sql.LevelViewer}

	_, err := e.Query(ctx, viewer, "SELECT * FROM person")
	require.NoError(t, err)

	_, err = e.Query(ctx, viewer, "SELECT * FROM person; DELETE FROM person")
	require.Equal(t, sql.ErrNotAllowed, err)

	_, err = e.Query(ctx, &sql.Options{Auth: sql.LevelOwner}, "SELECT * FROM person")
	require.Equal(t, sql.ErrNsEmpty, err)
}

// racingStatement commits a conflicting write the first
// time it runs
type racingStatement struct {
	ds       *kvs.Datastore
	computed int
}

func (stmt *racingStatement) Writeable() bool {
	return true
}

func (stmt *racingStatement) Compute(ctx context.Context, opt *sql.Options, txn *kvs.Transaction, doc *sql.CursorDoc) (sql.Value, error) {
	stmt.computed++

	value, err := txn.Get(ctx, []byte("counter"))

	if err != nil {
		return nil, err
	}

	if stmt.computed == 1 {
		err := stmt.ds.Update(ctx, func(other *kvs.Transaction) error {
			return other.Set([]byte("counter"), []byte("racer"))
		})

		if err != nil {
			return nil, err
		}
	}

	return string(value), txn.Set([]byte("counter"), []byte("executor"))
}

func TestConflictsAreRetried(t *testing.T) {
	ctx := context.Background()
	ds, err := kvs.Open(ctx, "mvcc://"+uuid.New().String())
	require.NoError(t, err)
	defer ds.Close()

	stmt := &racingStatement{ds: ds}
	responses, err := dbs.New(ds, nil).Execute(ctx, owner, []sql.Statement{stmt})
	require.NoError(t, err)
	require.Equal(t, 2, stmt.computed)
	require.Equal(t, "racer", responses[0].Result)
}
