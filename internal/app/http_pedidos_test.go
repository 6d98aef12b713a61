package app

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func createPedido(t *testing.T, env testEnv, token string, body any, headers map[string]string) int64 {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/api/pedidos", token, body, headers)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decode(t, rr)
	id, ok := payload["pedidoId"].(float64)
	if !ok || id <= 0 || payload["versao"] != float64(1) {
		t.Fatalf("unexpected create response: %v", payload)
	}
	return int64(id)
}

func TestPedidoLifecycle(t *testing.T) {
	env := newTestEnv(t, testConfig())
	token := env.tokenFor(t, "ana", "operador")

	id := createPedido(t, env, token, pedidoBody("1001", "joão da silva", "maria"), nil)
	path := fmt.Sprintf("/api/pedidos/%d", id)

	rr := env.do(t, http.MethodGet, path, token, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}
	if etag := rr.Header().Get("ETag"); etag != `"1"` {
		t.Fatalf("expected ETag \"1\", got %q", etag)
	}
	agg := decode(t, rr)
	header := agg["pedido"].(map[string]any)
	if header["numeroPedido"] != "1001" || header["dataPedido"] != "2024-03-15" || header["codigoCertidao"] != "ABC-123" {
		t.Fatalf("unexpected pedido: %v", header)
	}
	participantes := agg["participantes"].([]any)
	if len(participantes) != 2 {
		t.Fatalf("expected 2 participantes, got %v", participantes)
	}
	first := participantes[0].(map[string]any)
	if first["nome"] != "JOÃO DA SILVA" || first["cpf"] != "529.982.247-25" {
		t.Fatalf("unexpected participante: %v", first)
	}

	// Replace with one participante and no protocolos.
	update := pedidoBody("1001", "carla")
	update["protocolos"] = []any{}
	update["tipoCertidao"] = "BALCÃO"
	rr = env.do(t, http.MethodPut, path, token, update, map[string]string{"If-Match": `"1"`})
	if rr.Code != http.StatusOK || decode(t, rr)["versao"] != float64(2) {
		t.Fatalf("update: expected 200 versao 2, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, path+"/participantes", token, nil, nil)
	var names []string
	for _, item := range decodeList(t, rr) {
		names = append(names, item["nome"].(string))
	}
	if len(names) != 1 || names[0] != "CARLA" {
		t.Fatalf("expected exactly [CARLA], got %v", names)
	}
	rr = env.do(t, http.MethodGet, path+"/protocolos", token, nil, nil)
	if got := decodeList(t, rr); len(got) != 0 {
		t.Fatalf("expected no protocolos, got %v", got)
	}

	rr = env.do(t, http.MethodGet, path, token, nil, nil)
	header = decode(t, rr)["pedido"].(map[string]any)
	if header["codigoCertidao"] != "" {
		t.Fatalf("codigoCertidao must be cleared for BALCÃO, got %v", header["codigoCertidao"])
	}

	// Stale version.
	rr = env.do(t, http.MethodPut, path, token, update, map[string]string{"If-Match": "1"})
	if rr.Code != http.StatusConflict || decode(t, rr)["code"] != "VERSION_CONFLICT" {
		t.Fatalf("stale update: expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodDelete, path, token, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rr.Code)
	}
	for _, p := range []string{path, path + "/participantes", path + "/protocolos"} {
		if rr := env.do(t, http.MethodGet, p, token, nil, nil); rr.Code != http.StatusNotFound {
			t.Fatalf("%s after delete: expected 404, got %d", p, rr.Code)
		}
	}
	if rr := env.do(t, http.MethodDelete, path, token, nil, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rr.Code)
	}
}

func TestCreateValidationErrors(t *testing.T) {
	env := newTestEnv(t, testConfig())
	token := env.tokenFor(t, "ana", "operador")

	missing := pedidoBody("", "ana")
	delete(missing, "dataPedido")
	badCPF := pedidoBody("1002", "ana")
	badCPF["participantes"] = []map[string]any{{"nome": "ana", "tipoDocumento": "CPF", "cpf": "123"}}
	noCode := pedidoBody("1003", "ana")
	noCode["codigoCertidao"] = ""

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{name: "missing numero", body: missing, field: "numeroPedido"},
		{name: "missing data", body: missing, field: "dataPedido"},
		{name: "short cpf", body: badCPF, field: "participantes[0].cpf"},
		{name: "code-bearing tipo without code", body: noCode, field: "codigoCertidao"},
		{name: "unknown field", body: `{"numeroPedido":"1","bogus":true}`, field: "body"},
		{name: "bad date", body: `{"numeroPedido":"1","dataPedido":"15/03/2024"}`, field: "body"},
		{name: "empty body", body: "", field: "body"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/pedidos", token, tc.body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
			}
			payload := decode(t, rr)
			details, _ := payload["details"].(map[string]any)
			if payload["code"] != "VALIDATION_ERROR" || details[tc.field] == nil {
				t.Fatalf("expected VALIDATION_ERROR on %s, got %v", tc.field, payload)
			}
		})
	}

	rr := env.do(t, http.MethodGet, "/api/pedidos", token, nil, nil)
	if total := decode(t, rr)["pagination"].(map[string]any)["total"]; total != float64(0) {
		t.Fatalf("rejected creates must not write, total=%v", total)
	}
}

func TestListPagination(t *testing.T) {
	env := newTestEnv(t, testConfig())
	token := env.tokenFor(t, "ana", "operador")
	other := env.tokenFor(t, "beto", "operador")

	for i := 1; i <= 12; i++ {
		createPedido(t, env, token, pedidoBody(fmt.Sprint(i), "ana"), nil)
	}
	createPedido(t, env, other, pedidoBody("999", "beto"), nil)

	rr := env.do(t, http.MethodGet, "/pedidos?page=2&limit=5", token, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
	page := decode(t, rr)
	meta := page["pagination"].(map[string]any)
	if meta["total"] != float64(12) || meta["totalPages"] != float64(3) || meta["hasNext"] != true || meta["hasPrev"] != true {
		t.Fatalf("unexpected pagination: %v", meta)
	}
	items := page["items"].([]any)
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	firstItem := items[0].(map[string]any)
	if firstItem["numeroPedido"] != "7" || firstItem["participantesCount"] != float64(1) || firstItem["protocolosCount"] != float64(1) {
		t.Fatalf("expected newest-first window starting at 7, got %v", firstItem)
	}

	rr = env.do(t, http.MethodGet, "/api/pedidos?page=9", token, nil, nil)
	if got := decode(t, rr)["items"].([]any); rr.Code != http.StatusOK || len(got) != 0 {
		t.Fatalf("page beyond the end: expected empty 200, got %d %v", rr.Code, got)
	}

	rr = env.do(t, http.MethodGet, "/api/pedidos?limit=1000", token, nil, nil)
	if limit := decode(t, rr)["pagination"].(map[string]any)["limit"]; limit != float64(100) {
		t.Fatalf("expected limit clamped to 100, got %v", limit)
	}

	for _, query := range []string{"page=0", "limit=0", "page=abc", "limit=-3"} {
		rr := env.do(t, http.MethodGet, "/api/pedidos?"+query, token, nil, nil)
		if rr.Code != http.StatusBadRequest || decode(t, rr)["code"] != "VALIDATION_ERROR" {
			t.Fatalf("%s: expected 400 VALIDATION_ERROR, got %d", query, rr.Code)
		}
	}
}

func TestPedidosAreOwnerScoped(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ana := env.tokenFor(t, "ana", "operador")
	beto := env.tokenFor(t, "beto", "operador")

	id := createPedido(t, env, ana, pedidoBody("1001", "ana"), nil)
	path := fmt.Sprintf("/api/pedidos/%d", id)

	if rr := env.do(t, http.MethodGet, path, beto, nil, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign get: expected 404, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPut, path, beto, pedidoBody("1", "x"), nil); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign update: expected 404, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, path, beto, nil, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign delete: expected 404, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, path, ana, nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("owner get after foreign attempts: expected 200, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/pedidos/abc", ana, nil, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("non-numeric id: expected 404, got %d", rr.Code)
	}
}

func TestLeitorCannotWrite(t *testing.T) {
	env := newTestEnv(t, testConfig())
	operador := env.tokenFor(t, "ana", "operador")
	leitor := env.tokenFor(t, "lia", "leitor")
	createPedido(t, env, operador, pedidoBody("1001", "ana"), nil)

	tests := []struct {
		method string
		path   string
		body   any
	}{
		{method: http.MethodPost, path: "/api/pedidos", body: pedidoBody("1", "x")},
		{method: http.MethodPut, path: "/api/pedidos/1", body: pedidoBody("1", "x")},
		{method: http.MethodDelete, path: "/api/pedidos/1"},
	}
	for _, tc := range tests {
		rr := env.do(t, tc.method, tc.path, leitor, tc.body, nil)
		if rr.Code != http.StatusForbidden || decode(t, rr)["code"] != "FORBIDDEN" {
			t.Fatalf("%s %s: expected 403 FORBIDDEN, got %d", tc.method, tc.path, rr.Code)
		}
	}
	if rr := env.do(t, http.MethodGet, "/api/pedidos", leitor, nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("leitor list: expected 200, got %d", rr.Code)
	}
}

func TestPapelChangeAppliesToIssuedTokens(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testConfig())
	token := env.tokenFor(t, "ana", "operador")
	id := createPedido(t, env, token, pedidoBody("1001", "ana"), nil)

	if err := env.store.SetPapel(ctx, "ana", "leitor"); err != nil {
		t.Fatalf("set papel: %v", err)
	}
	rr := env.do(t, http.MethodDelete, fmt.Sprintf("/api/pedidos/%d", id), token, nil, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("demoted token: expected 403, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, fmt.Sprintf("/api/pedidos/%d", id), token, nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("demoted token can still read: expected 200, got %d", rr.Code)
	}

	if err := env.store.SetPapel(ctx, "ana", "admin"); err != nil {
		t.Fatalf("set papel: %v", err)
	}
	rr = env.do(t, http.MethodDelete, fmt.Sprintf("/api/pedidos/%d", id), token, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("promoted token: expected 200, got %d", rr.Code)
	}
}

func TestIdempotentCreate(t *testing.T) {
	env := newTestEnv(t, testConfig())
	token := env.tokenFor(t, "ana", "operador")
	headers := map[string]string{"Idempotency-Key": "draft-1"}

	id := createPedido(t, env, token, pedidoBody("1001", "ana"), headers)

	rr := env.do(t, http.MethodPost, "/api/pedidos", token, pedidoBody("1001", "ana"), headers)
	if rr.Code != http.StatusOK || rr.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("replay: expected 200 with replay header, got %d %v", rr.Code, rr.Header())
	}
	if got := decode(t, rr)["pedidoId"]; got != float64(id) {
		t.Fatalf("replay must return the first pedido %d, got %v", id, got)
	}

	rr = env.do(t, http.MethodGet, "/api/pedidos", token, nil, nil)
	if total := decode(t, rr)["pagination"].(map[string]any)["total"]; total != float64(1) {
		t.Fatalf("expected a single pedido, total=%v", total)
	}
}

func TestUpdateVersionHeaders(t *testing.T) {
	env := newTestEnv(t, testConfig())
	token := env.tokenFor(t, "ana", "operador")
	id := createPedido(t, env, token, pedidoBody("1001", "ana"), nil)
	path := fmt.Sprintf("/api/pedidos/%d", id)

	body := pedidoBody("1001", "ana")
	body["versao"] = 1
	rr := env.do(t, http.MethodPut, path, token, body, map[string]string{"If-Match": "2"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("mismatched body and header: expected 400, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, path, token, body, map[string]string{"If-Match": "banana"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad If-Match: expected 400, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, path, token, body, nil)
	if rr.Code != http.StatusOK || rr.Header().Get("ETag") != `"2"` {
		t.Fatalf("body versao: expected 200 with ETag \"2\", got %d %v", rr.Code, rr.Header())
	}

	delete(body, "versao")
	rr = env.do(t, http.MethodPut, path, token, body, nil)
	if rr.Code != http.StatusOK || decode(t, rr)["versao"] != float64(3) {
		t.Fatalf("unconditional update: expected versao 3, got %d", rr.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig())
	token := env.tokenFor(t, "ana", "operador")
	id := createPedido(t, env, token, pedidoBody("1001", "joão conceição"), nil)
	createPedido(t, env, token, pedidoBody("1002", "maria"), nil)

	rr := env.do(t, http.MethodGet, "/api/pedidos/busca?q=Joao", token, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	resp := decode(t, rr)
	results := resp["results"].([]any)
	if resp["total"] != float64(1) || len(results) != 1 || results[0].(map[string]any)["pedidoId"] != float64(id) {
		t.Fatalf("unexpected search response: %v", resp)
	}

	if rr := env.do(t, http.MethodGet, "/api/pedidos/busca", token, nil, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing q: expected 400, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/pedidos/busca?q=x&limit=abc", token, nil, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", rr.Code)
	}
}

func TestUnknownRoutesAndMethods(t *testing.T) {
	env := newTestEnv(t, testConfig())
	token := env.tokenFor(t, "ana", "operador")

	if rr := env.do(t, http.MethodGet, "/api/nada", token, nil, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown route: expected 404, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPatch, "/api/pedidos", token, nil, nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PATCH list: expected 405, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/pedidos/1/participantes", token, nil, nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("child POST: expected 405, got %d", rr.Code)
	}
}
