package repository

import "errors"

// ErrNotFound se devuelve cuando la sesion o el resultado no existe.
var ErrNotFound = errors.New("not found")

// DefaultHistoryLimit y MaxHistoryLimit acotan los listados de historial.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// ClampLimit normaliza el limite pedido por el cliente.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
