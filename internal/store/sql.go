// internal/store/sql.go
//
// SQL implementation of game.Store.
// Every Update runs in one database transaction: the tx commits when fn
// returns nil and rolls back otherwise. Tables come from
// assets/migrations/001_game.sql.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chandiniv1/secret-number-game/internal/fhe"
	"github.com/chandiniv1/secret-number-game/internal/game"
)

type sqlStore struct {
	db *sql.DB
}

// NewSQLStore returns a game.Store over a migrated database.
func NewSQLStore(db *sql.DB) game.Store {
	return &sqlStore{db: db}
}

func (s *sqlStore) View(ctx context.Context, fn func(game.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	return fn(&sqlTx{ctx: ctx, tx: tx, readOnly: true})
}

func (s *sqlStore) Update(ctx context.Context, fn func(game.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&sqlTx{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *sqlStore) Close() error { return s.db.Close() }

type sqlTx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *sqlTx) Meta() (game.Meta, bool, error) {
	var (
		m       game.Meta
		active  int
		secret  string
		updated string
	)
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT admin, active, secret_handle, round, updated_at FROM game_meta WHERE id=1`,
	).Scan(&m.Admin, &active, &secret, &m.Round, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Meta{}, false, nil
	}
	if err != nil {
		return game.Meta{}, false, fmt.Errorf("select game_meta: %w", err)
	}
	m.Active = active != 0
	if secret != "" {
		if m.Secret, err = fhe.ParseHandle(secret); err != nil {
			return game.Meta{}, false, fmt.Errorf("game_meta.secret_handle: %w", err)
		}
	}
	m.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return m, true, nil
}

func (t *sqlTx) PutMeta(m game.Meta) error {
	if t.readOnly {
		return errReadOnly
	}
	secret := ""
	if !m.Secret.IsZero() {
		secret = m.Secret.String()
	}
	_, err := t.tx.ExecContext(t.ctx, `
        INSERT INTO game_meta (id, admin, active, secret_handle, round, updated_at)
        VALUES (1, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            admin=excluded.admin, active=excluded.active,
            secret_handle=excluded.secret_handle, round=excluded.round,
            updated_at=excluded.updated_at`,
		m.Admin, boolInt(m.Active), secret, m.Round, m.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert game_meta: %w", err)
	}
	return nil
}

func (t *sqlTx) Player(player string) (game.PlayerRecord, error) {
	r := game.PlayerRecord{Player: player}
	var (
		last, won int
		updated   string
	)
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT total_guesses, last_guess_correct, has_won, updated_at FROM players WHERE player=?`, player,
	).Scan(&r.TotalGuesses, &last, &won, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return r, nil
	}
	if err != nil {
		return game.PlayerRecord{}, fmt.Errorf("select player: %w", err)
	}
	r.LastGuessCorrect = last != 0
	r.HasWon = won != 0
	r.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return r, nil
}

func (t *sqlTx) PutPlayer(r game.PlayerRecord) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.ExecContext(t.ctx, `
        INSERT INTO players (player, total_guesses, last_guess_correct, has_won, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(player) DO UPDATE SET
            total_guesses=excluded.total_guesses,
            last_guess_correct=excluded.last_guess_correct,
            has_won=excluded.has_won, updated_at=excluded.updated_at`,
		r.Player, r.TotalGuesses, boolInt(r.LastGuessCorrect), boolInt(r.HasWon), r.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert player: %w", err)
	}
	return nil
}

const requestColumns = `id, player, round, handle, processed, correct, created_at, resolved_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (game.PendingRequest, error) {
	var (
		r                game.PendingRequest
		id, handle       string
		processed, right int
		created          string
		resolved         sql.NullString
	)
	if err := row.Scan(&id, &r.Player, &r.Round, &handle, &processed, &right, &created, &resolved); err != nil {
		return game.PendingRequest{}, err
	}
	r.ID = game.RequestID(id)
	if handle != "" {
		h, err := fhe.ParseHandle(handle)
		if err != nil {
			return game.PendingRequest{}, fmt.Errorf("requests.handle: %w", err)
		}
		r.Handle = h
	}
	r.Processed = processed != 0
	r.Correct = right != 0
	r.CreatedAt, _ = time.Parse(timeLayout, created)
	if resolved.Valid {
		if at, err := time.Parse(timeLayout, resolved.String); err == nil {
			r.ResolvedAt = &at
		}
	}
	return r, nil
}

func (t *sqlTx) Request(id game.RequestID) (game.PendingRequest, bool, error) {
	r, err := scanRequest(t.tx.QueryRowContext(t.ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id=?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return game.PendingRequest{}, false, nil
	}
	if err != nil {
		return game.PendingRequest{}, false, fmt.Errorf("select request: %w", err)
	}
	return r, true, nil
}

func (t *sqlTx) PutRequest(r game.PendingRequest) error {
	if t.readOnly {
		return errReadOnly
	}
	var resolved sql.NullString
	if r.ResolvedAt != nil {
		resolved = sql.NullString{String: r.ResolvedAt.UTC().Format(timeLayout), Valid: true}
	}
	handle := ""
	if !r.Handle.IsZero() {
		handle = r.Handle.String()
	}
	_, err := t.tx.ExecContext(t.ctx, `
        INSERT INTO requests (id, player, round, handle, processed, correct, created_at, resolved_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            processed=excluded.processed, correct=excluded.correct,
            resolved_at=excluded.resolved_at`,
		string(r.ID), r.Player, r.Round, handle, boolInt(r.Processed), boolInt(r.Correct),
		r.CreatedAt.UTC().Format(timeLayout), resolved,
	)
	if err != nil {
		return fmt.Errorf("upsert request: %w", err)
	}
	return nil
}

func (t *sqlTx) RequestsByPlayer(player string, limit int) ([]game.PendingRequest, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+requestColumns+` FROM requests WHERE player=? ORDER BY seq DESC LIMIT ?`, player, limit)
	if err != nil {
		return nil, fmt.Errorf("select requests: %w", err)
	}
	return scanRequests(rows)
}

func (t *sqlTx) UnprocessedRequests() ([]game.PendingRequest, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+requestColumns+` FROM requests WHERE processed=0 ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("select unprocessed requests: %w", err)
	}
	return scanRequests(rows)
}

func scanRequests(rows *sql.Rows) ([]game.PendingRequest, error) {
	defer rows.Close()

	var out []game.PendingRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
