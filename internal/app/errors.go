package app

import (
	"errors"
	"fmt"
	"net/http"

	"pedidos/api/internal/auth"
	"pedidos/api/internal/authpw"
	"pedidos/api/internal/pagination"
	"pedidos/api/internal/pedido"
	"pedidos/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(field, reason string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", map[string]string{field: reason})
}

var errForbidden = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)

// mapError turns service errors into the response status, code, message and
// details. Storage failures never leak their text to the client.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var validation *pedido.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", validation.Fields
	}
	if errors.Is(err, pagination.ErrInvalidParams) {
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil
	}

	var authn *auth.AuthenticationError
	var authz *auth.AuthorizationError
	if errors.As(err, &authn) || errors.As(err, &authz) ||
		errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}

	switch {
	case errors.Is(err, pedido.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Pedido não encontrado", nil
	case errors.Is(err, pedido.ErrVersionConflict):
		return http.StatusConflict, "VERSION_CONFLICT", "Pedido foi alterado por outra requisição; recarregue antes de salvar", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Usuário ou senha inválidos", nil
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrWeakPassword):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, store.ErrUsuarioExists):
		return http.StatusConflict, "USUARIO_EXISTS", "Usuário já cadastrado", nil
	case errors.Is(err, store.ErrUsuarioNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}

	var reused *pedido.IdempotencyKeyReusedError
	if errors.As(err, &reused) {
		return http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED",
			"Idempotency-Key já usada para outro conteúdo; aplique as alterações como edição do pedido criado",
			map[string]any{"pedidoId": reused.PedidoID, "versao": reused.Versao}
	}

	var partial *pedido.PartialWriteError
	if errors.As(err, &partial) {
		details := map[string]any{}
		if partial.PedidoID != 0 {
			details["pedidoId"] = partial.PedidoID
		}
		return http.StatusInternalServerError, "PARTIAL_WRITE", "Resultado da gravação desconhecido; recarregue o pedido antes de tentar novamente", details
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
