// Пакет codegen — генерация коротких кодов сессий, удобных для ручного ввода.
// Код: 8 символов из [A-Z0-9], равномерно из криптографического источника.
package codegen

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	// Alphabet — допустимые символы кода.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Length — длина кода.
	Length = 8
)

// CodeChecker проверяет, занят ли код какой-либо сессией.
type CodeChecker interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// Generator выдаёт коды, не занятые на момент проверки.
// Окончательную уникальность гарантирует ограничение UNIQUE в хранилище.
type Generator struct {
	checker CodeChecker
	random  io.Reader
}

// New создаёт генератор поверх crypto/rand.
func New(checker CodeChecker) *Generator {
	return &Generator{checker: checker, random: rand.Reader}
}

// Generate возвращает свободный код. Повторяет попытки при коллизии
// без ограничения числа; останавливается только на ошибке проверки
// или отмене контекста.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code, err := Random(g.random)
		if err != nil {
			return "", err
		}

		exists, err := g.checker.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("проверка уникальности кода: %w", err)
		}
		if !exists {
			return code, nil
		}
		collisionsTotal.Inc()
	}
}

// Random возвращает случайный код без проверки уникальности.
func Random(src io.Reader) (string, error) {
	maxIdx := big.NewInt(int64(len(Alphabet)))

	var b strings.Builder
	b.Grow(Length)
	for range Length {
		n, err := rand.Int(src, maxIdx)
		if err != nil {
			return "", fmt.Errorf("чтение случайных данных: %w", err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Normalize приводит введённый пользователем код к каноническому виду.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid сообщает, соответствует ли код формату.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
