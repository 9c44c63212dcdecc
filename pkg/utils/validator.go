package utils

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// validator.go - валидация данных
//
// Назначение:
// Проверка корректности входящих сигналов до записи в хранилище.
//
// Функции:
// - ValidateSymbol / NormalizeSymbol: формат символа (BTCUSDT)
// - ValidatePrice: цена конечна и > 0
// - ValidateSignalTime: непустая метка времени
// - ParseSymbolList: разбор списка разрешенных символов из конфигурации
//
// Возвращает error с описанием проблемы или nil

// Ошибки валидации
var (
	ErrInvalidSymbol = errors.New("invalid symbol format")
	ErrInvalidPrice  = errors.New("price must be a finite number greater than 0")
	ErrInvalidTime   = errors.New("signal time is required")
)

// Символ после нормализации: латиница и цифры, 2..30 символов
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,30}$`)

// ValidateSymbol проверяет формат торгового символа.
// Допускаются разделители "-", "_", "/" (удаляются при нормализации).
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSymbol)
	}
	if strings.ContainsAny(symbol, " \t\n") {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidSymbol, symbol)
	}
	if !symbolPattern.MatchString(NormalizeSymbol(symbol)) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return nil
}

// NormalizeSymbol приводит символ к виду BTCUSDT
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.NewReplacer("-", "", "_", "", "/", "").Replace(s)
}

// ValidatePrice проверяет, что цена конечна и положительна
func ValidatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// ValidateSignalTime проверяет, что метка времени задана
func ValidateSignalTime(t time.Time) error {
	if t.IsZero() {
		return ErrInvalidTime
	}
	return nil
}

// ParseSymbolList разбирает список вида "BTCUSDT, ethusdt,,SOL-USDT".
// Пустые элементы пропускаются, дубликаты удаляются, порядок сохраняется.
func ParseSymbolList(raw string) []string {
	seen := make(map[string]struct{})
	result := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		s := NormalizeSymbol(part)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		result = append(result, s)
	}
	return result
}

// ============================================================
// Накопление ошибок
// ============================================================

// FieldError - ошибка валидации конкретного поля
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors - набор ошибок валидации
type ValidationErrors []FieldError

// Add добавляет ошибку поля
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// AddError добавляет ошибку, если она не nil
func (v *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	v.Add(field, err.Error())
}

// HasErrors возвращает true, если есть хотя бы одна ошибка
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}
