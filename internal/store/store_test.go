package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chandiniv1/secret-number-game/internal/fhe"
	"github.com/chandiniv1/secret-number-game/internal/game"
)

func openSQLStore(t *testing.T) game.Store {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	st := NewSQLStore(db)
	t.Cleanup(func() { st.Close() })
	return st
}

func backends(t *testing.T) map[string]game.Store {
	return map[string]game.Store{
		"memory": NewMemoryStore(),
		"sqlite": openSQLStore(t),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// Fresh store: no meta, zero player, unknown request.
			require.NoError(t, st.View(ctx, func(tx game.Tx) error {
				_, ok, err := tx.Meta()
				require.NoError(t, err)
				assert.False(t, ok)

				p, err := tx.Player("alice")
				require.NoError(t, err)
				assert.Equal(t, game.PlayerRecord{Player: "alice"}, p)

				_, ok, err = tx.Request("r1")
				require.NoError(t, err)
				assert.False(t, ok)
				return nil
			}))

			secret := fhe.InputHandle(fhe.KindUint8, []byte("secret"))
			eq := fhe.ComputedHandle(fhe.KindBool, "eq", secret, secret)
			require.NoError(t, st.Update(ctx, func(tx game.Tx) error {
				require.NoError(t, tx.PutMeta(game.Meta{Admin: "admin", Active: true, Secret: secret, Round: 1, UpdatedAt: at}))
				require.NoError(t, tx.PutPlayer(game.PlayerRecord{Player: "alice", TotalGuesses: 2, HasWon: true, UpdatedAt: at}))
				require.NoError(t, tx.PutRequest(game.PendingRequest{ID: "r1", Player: "alice", Round: 1, Handle: eq, CreatedAt: at}))
				return tx.PutRequest(game.PendingRequest{ID: "r2", Player: "alice", Round: 1, CreatedAt: at})
			}))

			require.NoError(t, st.View(ctx, func(tx game.Tx) error {
				m, ok, err := tx.Meta()
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, "admin", m.Admin)
				assert.True(t, m.Active)
				assert.Equal(t, secret, m.Secret)
				assert.Equal(t, uint64(1), m.Round)
				assert.True(t, at.Equal(m.UpdatedAt))

				p, err := tx.Player("alice")
				require.NoError(t, err)
				assert.Equal(t, uint64(2), p.TotalGuesses)
				assert.True(t, p.HasWon)
				assert.False(t, p.LastGuessCorrect)

				reqs, err := tx.RequestsByPlayer("alice", 0)
				require.NoError(t, err)
				require.Len(t, reqs, 2)
				assert.Equal(t, game.RequestID("r2"), reqs[0].ID)

				reqs, err = tx.RequestsByPlayer("alice", 1)
				require.NoError(t, err)
				assert.Len(t, reqs, 1)

				r, _, err := tx.Request("r1")
				require.NoError(t, err)
				assert.Equal(t, eq, r.Handle)

				open, err := tx.UnprocessedRequests()
				require.NoError(t, err)
				require.Len(t, open, 2)
				assert.Equal(t, game.RequestID("r1"), open[0].ID)
				assert.Equal(t, eq, open[0].Handle)
				return nil
			}))

			// Resolve r1.
			require.NoError(t, st.Update(ctx, func(tx game.Tx) error {
				r, ok, err := tx.Request("r1")
				require.NoError(t, err)
				require.True(t, ok)
				r.Processed, r.Correct, r.ResolvedAt = true, true, &at
				return tx.PutRequest(r)
			}))
			require.NoError(t, st.View(ctx, func(tx game.Tx) error {
				r, _, err := tx.Request("r1")
				require.NoError(t, err)
				assert.True(t, r.Processed)
				assert.True(t, r.Correct)
				require.NotNil(t, r.ResolvedAt)
				assert.True(t, at.Equal(*r.ResolvedAt))

				open, err := tx.UnprocessedRequests()
				require.NoError(t, err)
				require.Len(t, open, 1)
				assert.Equal(t, game.RequestID("r2"), open[0].ID)
				assert.True(t, open[0].Handle.IsZero())
				return nil
			}))
		})
	}
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := st.Update(ctx, func(tx game.Tx) error {
				require.NoError(t, tx.PutMeta(game.Meta{Admin: "admin", Active: true}))
				require.NoError(t, tx.PutPlayer(game.PlayerRecord{Player: "bob", TotalGuesses: 1}))
				require.NoError(t, tx.PutRequest(game.PendingRequest{ID: "x", Player: "bob"}))
				return boom
			})
			require.ErrorIs(t, err, boom)

			require.NoError(t, st.View(ctx, func(tx game.Tx) error {
				_, ok, err := tx.Meta()
				require.NoError(t, err)
				assert.False(t, ok)
				p, err := tx.Player("bob")
				require.NoError(t, err)
				assert.Zero(t, p.TotalGuesses)
				_, ok, err = tx.Request("x")
				require.NoError(t, err)
				assert.False(t, ok)
				return nil
			}))
		})
	}
}

func TestViewRejectsWrites(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := st.View(context.Background(), func(tx game.Tx) error {
				return tx.PutPlayer(game.PlayerRecord{Player: "p"})
			})
			require.ErrorIs(t, err, errReadOnly)
		})
	}
}

func TestSQLStoreRollsBackOnExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO players").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	st := NewSQLStore(db)
	err = st.Update(context.Background(), func(tx game.Tx) error {
		return tx.PutPlayer(game.PlayerRecord{Player: "alice", TotalGuesses: 1})
	})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCommitFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO game_meta").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("locked"))

	st := NewSQLStore(db)
	err = st.Update(context.Background(), func(tx game.Tx) error {
		return tx.PutMeta(game.Meta{Admin: "admin"})
	})
	require.ErrorContains(t, err, "commit")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM _migrations`).Scan(&n))
	assert.Equal(t, 5, n)
}
