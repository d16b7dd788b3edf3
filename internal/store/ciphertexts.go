package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chandiniv1/secret-number-game/internal/fhe"
)

type ciphertextStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewCiphertextStore returns an fhe.Store over the ciphertexts and acl tables.
func NewCiphertextStore(db *sql.DB) fhe.Store {
	return &ciphertextStore{db: db, now: time.Now}
}

func (s *ciphertextStore) Put(ctx context.Context, h fhe.Handle, rec fhe.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ciphertexts (handle, kind, ciphertext, created_at) VALUES (?, ?, ?, ?)`,
		h.String(), int(rec.Kind), rec.Ciphertext, s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert ciphertext: %w", err)
	}
	return nil
}

func (s *ciphertextStore) Get(ctx context.Context, h fhe.Handle) (fhe.Record, error) {
	var (
		kind int
		ct   []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, ciphertext FROM ciphertexts WHERE handle=?`, h.String(),
	).Scan(&kind, &ct)
	if errors.Is(err, sql.ErrNoRows) {
		return fhe.Record{}, fhe.ErrUnknownHandle
	}
	if err != nil {
		return fhe.Record{}, fmt.Errorf("select ciphertext: %w", err)
	}
	return fhe.Record{Kind: fhe.Kind(kind), Ciphertext: ct}, nil
}

func (s *ciphertextStore) Grant(ctx context.Context, h fhe.Handle, grantee string) error {
	res, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO acl (handle, grantee)
        SELECT handle, ? FROM ciphertexts WHERE handle=?`,
		grantee, h.String(),
	)
	if err != nil {
		return fmt.Errorf("insert acl: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// Nothing inserted: either already granted or the handle is unknown.
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM ciphertexts WHERE handle=?`, h.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fhe.ErrUnknownHandle
	}
	return err
}

func (s *ciphertextStore) Allowed(ctx context.Context, h fhe.Handle, grantee string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM acl WHERE handle=? AND grantee=?`, h.String(), grantee,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select acl: %w", err)
	}
	return true, nil
}
