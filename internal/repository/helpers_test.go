package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(fmt.Errorf("обёртка: %w", &pgconn.PgError{Code: "23505"})) {
		t.Error("23505 должна считаться нарушением уникальности")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("23503 (foreign key) не нарушение уникальности")
	}
	if isUniqueViolation(errors.New("прочая ошибка")) {
		t.Error("обычная ошибка не нарушение уникальности")
	}
}

func TestNotFoundOr(t *testing.T) {
	if err := notFoundOr(pgx.ErrNoRows, "контекст"); !errors.Is(err, ErrNotFound) {
		t.Errorf("pgx.ErrNoRows → %v, ожидался ErrNotFound", err)
	}
	if err := notFoundOr(&pgconn.PgError{Code: "22P02"}, "контекст"); !errors.Is(err, ErrNotFound) {
		t.Errorf("22P02 → %v, ожидался ErrNotFound", err)
	}

	base := errors.New("соединение разорвано")
	err := notFoundOr(base, "контекст")
	if errors.Is(err, ErrNotFound) {
		t.Error("инфраструктурная ошибка не должна превращаться в ErrNotFound")
	}
	if !errors.Is(err, base) {
		t.Error("исходная ошибка должна сохраняться в цепочке")
	}
}

func TestIsUUID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"6ba7b810-9dad-11d1-80b4-00c04fd430c8", true},
		{"", false},
		{"not-a-uuid", false},
		{"ABCD1234", false},
	}
	for _, tt := range tests {
		if got := isUUID(tt.in); got != tt.want {
			t.Errorf("isUUID(%q) = %v, ожидалось %v", tt.in, got, tt.want)
		}
	}
}
