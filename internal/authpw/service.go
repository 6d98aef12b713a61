// Package authpw provides login/password accounts for the pedidos API.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"pedidos/api/internal/rbac"
	"pedidos/api/internal/store"
)

const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid usuario or senha")
	ErrMissingFields      = errors.New("nome, usuario and senha are required")
	ErrWeakPassword       = fmt.Errorf("senha must be at least %d characters", MinPasswordLength)
)

// Service provides login/password authentication
type Service struct {
	store UserStore
	cost  int
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUsuarioByLogin(ctx context.Context, login string) (store.Usuario, error)
	CreateUsuario(ctx context.Context, u store.Usuario) (store.Usuario, error)
}

func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// WithCost returns a copy hashing with the given bcrypt cost. Tests use
// bcrypt.MinCost to stay fast.
func (s *Service) WithCost(cost int) *Service {
	clone := *s
	clone.cost = cost
	return &clone
}

type SignUpRequest struct {
	Nome    string
	Usuario string
	Senha   string
	// Papel defaults to operador.
	Papel string
}

// SignUp creates a new account. Duplicate logins return store.ErrUsuarioExists.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.Usuario, error) {
	nome := strings.TrimSpace(req.Nome)
	login := strings.ToLower(strings.TrimSpace(req.Usuario))
	if nome == "" || login == "" || req.Senha == "" {
		return store.Usuario{}, ErrMissingFields
	}
	if len(req.Senha) < MinPasswordLength {
		return store.Usuario{}, ErrWeakPassword
	}

	papel := rbac.RoleOperador
	if req.Papel != "" {
		papel = rbac.Normalize(req.Papel)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Senha), s.cost)
	if err != nil {
		return store.Usuario{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.store.CreateUsuario(ctx, store.Usuario{
		Nome:      nome,
		Login:     login,
		SenhaHash: string(hash),
		Papel:     string(papel),
	})
	if err != nil {
		return store.Usuario{}, err
	}
	return created, nil
}

type SignInRequest struct {
	Usuario string
	Senha   string
}

// SignIn checks the password and returns the account. Unknown logins and
// wrong passwords both return ErrInvalidCredentials.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.Usuario, error) {
	if strings.TrimSpace(req.Usuario) == "" || req.Senha == "" {
		return store.Usuario{}, ErrInvalidCredentials
	}

	u, err := s.store.GetUsuarioByLogin(ctx, req.Usuario)
	if errors.Is(err, store.ErrUsuarioNotFound) {
		return store.Usuario{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.Usuario{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.SenhaHash), []byte(req.Senha)); err != nil {
		return store.Usuario{}, ErrInvalidCredentials
	}
	return u, nil
}
