package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	ErrUsuarioNotFound = errors.New("usuario not found")
	ErrUsuarioExists   = errors.New("usuario already registered")
)

// Store bundles the account tables and the pedido repository over one pool.
type Store struct {
	db      *sqlx.DB
	Pedidos *PedidoRepository
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db, Pedidos: NewPedidoRepository(db)}
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUsuario inserts a new account. Logins are stored lower-cased.
func (s *Store) CreateUsuario(ctx context.Context, u Usuario) (Usuario, error) {
	u.Login = strings.ToLower(strings.TrimSpace(u.Login))
	if u.Papel == "" {
		u.Papel = "operador"
	}
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO usuarios (nome, usuario, senha_hash, papel)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (usuario) DO NOTHING
		RETURNING id
	`), u.Nome, u.Login, u.SenhaHash, u.Papel).Scan(&u.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return Usuario{}, ErrUsuarioExists
	}
	if err != nil {
		return Usuario{}, fmt.Errorf("insert usuario: %w", err)
	}
	return s.GetUsuarioByID(ctx, u.ID)
}

func (s *Store) GetUsuarioByLogin(ctx context.Context, login string) (Usuario, error) {
	var u Usuario
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`
		SELECT id, nome, usuario, senha_hash, papel, created_at
		FROM usuarios WHERE usuario = ?
	`), strings.ToLower(strings.TrimSpace(login)))
	if errors.Is(err, sql.ErrNoRows) {
		return Usuario{}, ErrUsuarioNotFound
	}
	if err != nil {
		return Usuario{}, fmt.Errorf("lookup usuario: %w", err)
	}
	return u, nil
}

func (s *Store) GetUsuarioByID(ctx context.Context, id int64) (Usuario, error) {
	var u Usuario
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`
		SELECT id, nome, usuario, senha_hash, papel, created_at
		FROM usuarios WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Usuario{}, ErrUsuarioNotFound
	}
	if err != nil {
		return Usuario{}, fmt.Errorf("lookup usuario: %w", err)
	}
	return u, nil
}

func (s *Store) SetPapel(ctx context.Context, login, papel string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE usuarios SET papel = ? WHERE usuario = ?`),
		papel, strings.ToLower(strings.TrimSpace(login)))
	if err != nil {
		return fmt.Errorf("update papel: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrUsuarioNotFound
	}
	return nil
}

// RevokeToken records a token id until its natural expiry and prunes
// entries that already expired.
func (s *Store) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	now := time.Now().UTC().Truncate(time.Second)
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM tokens_revogados WHERE expira_em < ?`), now); err != nil {
		return fmt.Errorf("prune revoked tokens: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO tokens_revogados (jti, expira_em) VALUES (?, ?)
		ON CONFLICT (jti) DO NOTHING
	`), jti, expiresAt.UTC().Truncate(time.Second)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Store) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(`
		SELECT COUNT(1) FROM tokens_revogados WHERE jti = ? AND expira_em >= ?
	`), jti, time.Now().UTC().Truncate(time.Second))
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return count > 0, nil
}
