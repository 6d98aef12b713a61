package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pedidos/api/internal/auth"
	"pedidos/api/internal/pedido"
	"pedidos/api/internal/util"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Every route answers with and without the /api prefix.
	path := r.URL.Path
	if path == "/api" || strings.HasPrefix(path, "/api/") {
		path = strings.TrimPrefix(path, "/api")
	}
	parts := splitPath(path)
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[0] {
	case "health":
		if len(parts) == 1 && isRead(r) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	case "ready":
		if len(parts) == 1 && isRead(r) {
			s.handleReady(w, r)
			return
		}
	case "register":
		if len(parts) == 1 && r.Method == http.MethodPost {
			s.handleRegister(w, r)
			return
		}
	case "login":
		if len(parts) == 1 && r.Method == http.MethodPost {
			s.handleLogin(w, r)
			return
		}
	case "session":
		if len(parts) == 1 && r.Method == http.MethodGet {
			s.handleSession(w, r)
			return
		}
	case "logout":
		if len(parts) == 1 && r.Method == http.MethodPost {
			s.handleLogout(w, r)
			return
		}
	case "pedidos":
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		s.handlePedidos(w, r, identity, parts[1:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	for name, err := range s.service.Readiness(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	if backend := s.service.SearchBackend(); backend != "" {
		checks["search"] = map[string]any{"status": "ok", "backend": backend}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Nome    string `json:"nome"`
		Usuario string `json:"usuario"`
		Senha   string `json:"senha"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBodyError(w, err)
		return
	}

	u, err := s.service.Register(r.Context(), body.Nome, body.Usuario, body.Senha)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   "Usuário criado com sucesso",
		"usuarioId": u.ID,
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Usuario string `json:"usuario"`
		Senha   string `json:"senha"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBodyError(w, err)
		return
	}

	session, err := s.service.Login(r.Context(), body.Usuario, body.Senha)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     session.Token,
		"expiresAt": session.ExpiresAt.UTC().Format(time.RFC3339),
		"usuario":   session.Usuario.Login,
		"papel":     session.Usuario.Papel,
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"usuario":   identity.Usuario,
		"usuarioId": identity.UsuarioID,
		"papel":     identity.Papel,
		"expiresAt": identity.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	if err := s.service.Logout(r.Context(), identity); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handlePedidos(w http.ResponseWriter, r *http.Request, identity auth.Identity, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			page, err := s.service.List(r.Context(), identity, r.URL.Query())
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, page)
		case http.MethodPost:
			s.handleCreate(w, r, identity)
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	if parts[0] == "busca" && len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		s.handleSearch(w, r, identity)
		return
	}

	pedidoID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || pedidoID <= 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Pedido não encontrado", nil)
		return
	}

	if len(parts) == 2 {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		switch parts[1] {
		case "participantes":
			items, err := s.service.Participantes(r.Context(), identity, pedidoID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, items)
		case "protocolos":
			items, err := s.service.Protocolos(r.Context(), identity, pedidoID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, items)
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}
	if len(parts) > 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch r.Method {
	case http.MethodGet:
		agg, err := s.service.Get(r.Context(), identity, pedidoID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.Header().Set("ETag", strconv.Quote(strconv.Itoa(agg.Pedido.Versao)))
		writeJSON(w, http.StatusOK, agg)
	case http.MethodPut:
		s.handleUpdate(w, r, identity, pedidoID)
	case http.MethodDelete:
		if err := s.service.Delete(r.Context(), identity, pedidoID); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Pedido excluído com sucesso"})
	default:
		writeMethodNotAllowed(w)
	}
}

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	var in pedido.Input
	if err := decodeBody(r, &in); err != nil {
		writeBodyError(w, err)
		return
	}

	result, err := s.service.Create(r.Context(), identity, in, r.Header.Get("Idempotency-Key"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
		w.Header().Set("Idempotent-Replayed", "true")
	}
	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(result.Versao)))
	writeJSON(w, status, map[string]any{
		"message":  "Pedido criado com sucesso",
		"pedidoId": result.ID,
		"versao":   result.Versao,
	})
}

func (s *HTTPServer) handleUpdate(w http.ResponseWriter, r *http.Request, identity auth.Identity, pedidoID int64) {
	ifMatch, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", map[string]string{"If-Match": err.Error()})
		return
	}

	var in pedido.Input
	if err := decodeBody(r, &in); err != nil {
		writeBodyError(w, err)
		return
	}

	versao, err := s.service.Update(r.Context(), identity, pedidoID, in, ifMatch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(versao)))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Pedido atualizado com sucesso",
		"versao":  versao,
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	query := r.URL.Query()
	limit, err := optionalInt(query.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", map[string]string{"limit": err.Error()})
		return
	}
	offset, err := optionalInt(query.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", map[string]string{"offset": err.Error()})
		return
	}

	resp, err := s.service.Search(r.Context(), identity, query.Get("q"), limit, offset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, err := s.service.Authenticate(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		var authn *auth.AuthenticationError
		var authz *auth.AuthorizationError
		if errors.As(err, &authn) || errors.As(err, &authz) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return auth.Identity{}, false
		}
		log.Printf(`{"request_id":"%s","error":"session lookup failed: %v"}`, requestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return auth.Identity{}, false
	}
	if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
		info.usuarioID = identity.UsuarioID
	}
	return identity, true
}

// writeServiceError maps err and logs server-side failures with the request id.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf(`{"request_id":"%s","code":"%s","error":%q}`, requestID(r.Context()), code, err.Error())
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("pedidos/api/internal/app/http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = util.NewID("")
		}
		info := &requestInfo{id: id}
		ctx := context.WithValue(r.Context(), requestInfoKey{}, info)
		ctx, span := tracer.Start(ctx, "http.request")
		defer span.End()
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
			attribute.String("http.request_id", id),
			attribute.Int("http.status_code", writer.status),
		)
		if writer.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(writer.status))
		}

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d,"usuario_id":%d}`,
			id,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
			info.usuarioID,
		)
	})
}

type requestInfoKey struct{}

// requestInfo is filled in while the request is served and read back by
// the log line.
type requestInfo struct {
	id        string
	usuarioID int64
}

func requestID(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		return info.id
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, Idempotency-Key, If-Match")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "ETag, Idempotent-Replayed, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

type bodyError struct {
	reason string
}

func (e *bodyError) Error() string { return e.reason }

func writeBodyError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", map[string]string{"body": err.Error()})
}

// decodeBody reads exactly one JSON object. Unknown fields are rejected.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return &bodyError{reason: "request body is required"}
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return &bodyError{reason: "request body is required"}
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &bodyError{reason: fmt.Sprintf("%s has the wrong type", typeErr.Field)}
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &bodyError{reason: "invalid JSON body"}
		}
		// Unknown fields and errors from custom decoders such as dates.
		return &bodyError{reason: strings.TrimPrefix(err.Error(), "json: ")}
	}
	if decoder.More() {
		return &bodyError{reason: "body must contain a single JSON object"}
	}
	return nil
}

// parseIfMatch accepts 3, "3" and W/"3". An empty header means no precondition.
func parseIfMatch(header string) (*int, error) {
	value := strings.TrimSpace(header)
	if value == "" {
		return nil, nil
	}
	value = strings.TrimPrefix(value, "W/")
	value = strings.Trim(value, `"`)
	versao, err := strconv.Atoi(value)
	if err != nil || versao < 1 {
		return nil, errors.New("must be a positive version number")
	}
	return &versao, nil
}

func optionalInt(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	return n, nil
}

func isRead(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
