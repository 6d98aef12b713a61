package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pedidos/api/internal/authpw"
	"pedidos/api/internal/config"
	"pedidos/api/internal/search"
	"pedidos/api/internal/store"
)

type testEnv struct {
	server  *HTTPServer
	service *Service
	store   *store.Store
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:         "test-secret",
		AccessTTL:         time.Hour,
		CORSOrigin:        "*",
		PageLimitDefault:  10,
		PageLimitMax:      100,
		AllowRegistration: true,
	}
}

func newTestEnv(t *testing.T, cfg config.Config, opts ...Option) testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	st := store.New(db)
	opts = append([]Option{WithPasswords(authpw.NewService(st).WithCost(bcrypt.MinCost))}, opts...)
	svc := New(cfg, st, st, search.NewService(nil, search.NewSQLSearch(db)), opts...)
	return testEnv{server: NewHTTPServer(svc, cfg.CORSOrigin), service: svc, store: st}
}

func (e testEnv) do(t *testing.T, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

// tokenFor creates a usuario with the given papel and returns a signed token.
func (e testEnv) tokenFor(t *testing.T, login, papel string) string {
	t.Helper()
	u, err := e.store.CreateUsuario(context.Background(), store.Usuario{Nome: login, Login: login, SenhaHash: "x", Papel: papel})
	if err != nil {
		t.Fatalf("create usuario %s: %v", login, err)
	}
	session, err := e.service.IssueSession(u)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return session.Token
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func pedidoBody(numero string, participantes ...string) map[string]any {
	items := make([]map[string]any, 0, len(participantes))
	for _, nome := range participantes {
		items = append(items, map[string]any{
			"qualificacao":  "ADQUIRENTE",
			"nome":          nome,
			"tipoDocumento": "CPF",
			"cpf":           "529.982.247-25",
		})
	}
	return map[string]any{
		"numeroPedido":   numero,
		"dataPedido":     "2024-03-15",
		"matricula":      "4455",
		"resultadoOnus":  "NEGATIVA",
		"numFolhas":      3,
		"numImagens":     6,
		"tipoCertidao":   "ARIRJ",
		"codigoCertidao": "ABC-123",
		"participantes":  items,
		"protocolos":     []map[string]any{{"observacao": "protocolo de " + numero}},
	}
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var items []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
		t.Fatalf("parse list %q: %v", rr.Body.String(), err)
	}
	return items
}
