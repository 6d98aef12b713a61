package app

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pedidos/api/internal/auth"
	"pedidos/api/internal/authpw"
	"pedidos/api/internal/config"
	"pedidos/api/internal/pagination"
	"pedidos/api/internal/pedido"
	"pedidos/api/internal/rbac"
	"pedidos/api/internal/search"
	"pedidos/api/internal/store"
	"pedidos/api/internal/util"
)

const maxIdempotencyKeyLength = 200

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Usuario   store.Usuario
}

type pedidoStore interface {
	Create(ctx context.Context, ownerID int64, in pedido.Input, idempotencyKey string) (store.CreateResult, error)
	Get(ctx context.Context, ownerID, id int64) (pedido.Aggregate, error)
	Update(ctx context.Context, ownerID, id int64, in pedido.Input) (int, error)
	Delete(ctx context.Context, ownerID, id int64) error
	List(ctx context.Context, ownerID int64, params pagination.Params) (pagination.Page[pedido.ListItem], error)
}

type dataStore interface {
	authpw.UserStore
	GetUsuarioByID(ctx context.Context, id int64) (store.Usuario, error)
	Ping(ctx context.Context) error
}

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

type Option func(*Service)

// WithPasswords replaces the password service, e.g. with a cheaper bcrypt cost.
func WithPasswords(passwords *authpw.Service) Option {
	return func(s *Service) { s.passwords = passwords }
}

// WithReadinessCheck adds a named dependency to /api/ready.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Service) { s.checks[name] = check }
}

type Service struct {
	cfg       config.Config
	store     dataStore
	pedidos   pedidoStore
	guard     *auth.Guard
	passwords *authpw.Service
	search    *search.Service
	pageOpts  pagination.Options
	tracer    trace.Tracer
	checks    map[string]ReadinessCheck
}

// New wires the service. revocations keeps logged-out tokens; searchSvc may be nil.
func New(cfg config.Config, st *store.Store, revocations auth.RevocationList, searchSvc *search.Service, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		store:     st,
		pedidos:   st.Pedidos,
		guard:     auth.NewGuard([]byte(cfg.JWTSecret), revocations),
		passwords: authpw.NewService(st),
		search:    searchSvc,
		pageOpts:  pagination.Options{DefaultLimit: cfg.PageLimitDefault, MaxLimit: cfg.PageLimitMax},
		tracer:    otel.Tracer("pedidos/api/internal/app"),
		checks:    map[string]ReadinessCheck{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if searchSvc != nil {
		searchSvc.Start(s.pedidos.Get)
	}
	return s
}

func (s *Service) Register(ctx context.Context, nome, usuario, senha string) (store.Usuario, error) {
	if !s.cfg.AllowRegistration {
		return store.Usuario{}, domainError(http.StatusForbidden, "REGISTRATION_DISABLED", "Cadastro desabilitado", nil)
	}
	ctx, span := s.tracer.Start(ctx, "usuarios.register")
	u, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{Nome: nome, Usuario: usuario, Senha: senha})
	endSpan(span, err)
	return u, err
}

func (s *Service) Login(ctx context.Context, usuario, senha string) (Session, error) {
	ctx, span := s.tracer.Start(ctx, "usuarios.login")
	defer span.End()

	u, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Usuario: usuario, Senha: senha})
	if err != nil {
		recordError(span, err)
		return Session{}, err
	}
	return s.IssueSession(u)
}

// IssueSession signs an access token for u.
func (s *Service) IssueSession(u store.Usuario) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   strconv.FormatInt(u.ID, 10),
		Name:  u.Login,
		Role:  u.Papel,
		JTI:   util.NewID("jti"),
		Exp:   expiresAt.Unix(),
		Issue: now.Unix(),
	})
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: time.Unix(expiresAt.Unix(), 0), Usuario: u}, nil
}

func (s *Service) Authenticate(ctx context.Context, header string) (auth.Identity, error) {
	return s.guard.Authenticate(ctx, header)
}

func (s *Service) Logout(ctx context.Context, id auth.Identity) error {
	return s.guard.Revoke(ctx, id)
}

func (s *Service) List(ctx context.Context, id auth.Identity, query url.Values) (pagination.Page[pedido.ListItem], error) {
	params, err := pagination.Parse(query, s.pageOpts)
	if err != nil {
		return pagination.Page[pedido.ListItem]{}, err
	}

	ctx, span := s.startSpan(ctx, "pedidos.list", id)
	span.SetAttributes(attribute.Int("page", params.Page), attribute.Int("limit", params.Limit))
	page, err := s.pedidos.List(ctx, id.UsuarioID, params)
	endSpan(span, err)
	return page, err
}

func (s *Service) Get(ctx context.Context, id auth.Identity, pedidoID int64) (pedido.Aggregate, error) {
	ctx, span := s.startSpan(ctx, "pedidos.get", id, attribute.Int64("pedido.id", pedidoID))
	agg, err := s.pedidos.Get(ctx, id.UsuarioID, pedidoID)
	endSpan(span, err)
	return agg, err
}

func (s *Service) Participantes(ctx context.Context, id auth.Identity, pedidoID int64) ([]pedido.Participante, error) {
	agg, err := s.Get(ctx, id, pedidoID)
	if err != nil {
		return nil, err
	}
	return agg.Participantes, nil
}

func (s *Service) Protocolos(ctx context.Context, id auth.Identity, pedidoID int64) ([]pedido.Protocolo, error) {
	agg, err := s.Get(ctx, id, pedidoID)
	if err != nil {
		return nil, err
	}
	return agg.Protocolos, nil
}

func (s *Service) Create(ctx context.Context, id auth.Identity, in pedido.Input, idempotencyKey string) (store.CreateResult, error) {
	if err := s.requireWrite(ctx, id); err != nil {
		return store.CreateResult{}, err
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if len(idempotencyKey) > maxIdempotencyKeyLength {
		return store.CreateResult{}, validationError("Idempotency-Key", "must have at most 200 characters")
	}

	ctx, span := s.startSpan(ctx, "pedidos.create", id)
	result, err := s.pedidos.Create(ctx, id.UsuarioID, in, idempotencyKey)
	if err == nil {
		span.SetAttributes(attribute.Int64("pedido.id", result.ID), attribute.Bool("idempotent.replayed", result.Replayed))
	}
	endSpan(span, err)
	if err != nil {
		return store.CreateResult{}, err
	}
	if !result.Replayed {
		s.index(id, result.ID)
	}
	return result, nil
}

// Update replaces the pedido. ifMatch, from the If-Match header, takes the
// place of the body versao; sending both with different values is rejected.
func (s *Service) Update(ctx context.Context, id auth.Identity, pedidoID int64, in pedido.Input, ifMatch *int) (int, error) {
	if err := s.requireWrite(ctx, id); err != nil {
		return 0, err
	}
	if ifMatch != nil {
		if in.Versao != nil && *in.Versao != *ifMatch {
			return 0, validationError("versao", "does not match If-Match")
		}
		in.Versao = ifMatch
	}

	ctx, span := s.startSpan(ctx, "pedidos.update", id, attribute.Int64("pedido.id", pedidoID))
	versao, err := s.pedidos.Update(ctx, id.UsuarioID, pedidoID, in)
	endSpan(span, err)
	if err != nil {
		return 0, err
	}
	s.index(id, pedidoID)
	return versao, nil
}

func (s *Service) Delete(ctx context.Context, id auth.Identity, pedidoID int64) error {
	if err := s.requireWrite(ctx, id); err != nil {
		return err
	}
	ctx, span := s.startSpan(ctx, "pedidos.delete", id, attribute.Int64("pedido.id", pedidoID))
	err := s.pedidos.Delete(ctx, id.UsuarioID, pedidoID)
	endSpan(span, err)
	if err != nil {
		return err
	}
	s.index(id, pedidoID)
	return nil
}

func (s *Service) Search(ctx context.Context, id auth.Identity, text string, limit, offset int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, validationError("q", "is required")
	}
	if limit <= 0 {
		limit = s.pageOpts.DefaultLimit
	}
	if s.pageOpts.MaxLimit > 0 && limit > s.pageOpts.MaxLimit {
		limit = s.pageOpts.MaxLimit
	}
	if offset < 0 {
		return search.Response{}, validationError("offset", "must be >= 0")
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}

	ctx, span := s.startSpan(ctx, "pedidos.search", id, attribute.String("search.backend", s.search.Backend()))
	resp, err := s.search.Search(ctx, search.Query{Text: text, UsuarioID: id.UsuarioID, Limit: limit, Offset: offset})
	endSpan(span, err)
	return resp, err
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Readiness runs every registered dependency check.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	results := make(map[string]error, len(s.checks))
	for name, check := range s.checks {
		results[name] = check(ctx)
	}
	return results
}

// SearchBackend names the engine serving searches, or "" without search.
func (s *Service) SearchBackend() string {
	if s.search == nil {
		return ""
	}
	return s.search.Backend()
}

// index schedules the pedido to be read again and pushed to the search
// index. The write already committed, so failures are only logged there.
func (s *Service) index(id auth.Identity, pedidoID int64) {
	if s.search != nil {
		s.search.Refresh(id.UsuarioID, pedidoID)
	}
}

// requireWrite checks the papel stored for the caller rather than the one in
// the token, so a demotion applies to tokens issued before it.
func (s *Service) requireWrite(ctx context.Context, id auth.Identity) error {
	u, err := s.store.GetUsuarioByID(ctx, id.UsuarioID)
	if errors.Is(err, store.ErrUsuarioNotFound) {
		return errForbidden
	}
	if err != nil {
		return err
	}
	if !rbac.Can(rbac.Normalize(u.Papel), rbac.ActionWrite) {
		return errForbidden
	}
	return nil
}

func (s *Service) startSpan(ctx context.Context, name string, id auth.Identity, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	span.SetAttributes(append(attrs, attribute.Int64("usuario.id", id.UsuarioID))...)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		recordError(span, err)
	}
	span.End()
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
