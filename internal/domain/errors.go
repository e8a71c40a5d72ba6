package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind discriminates ledger failures. Callers branch on the kind, never on message text.
type ErrorKind string

const (
	KindInsufficientBalance ErrorKind = "INSUFFICIENT_BALANCE"
	KindAlreadyProcessed    ErrorKind = "ALREADY_PROCESSED"
	KindAmountMismatch      ErrorKind = "AMOUNT_MISMATCH"
	KindCurrencyMismatch    ErrorKind = "CURRENCY_MISMATCH"
	KindUnsupportedProvider ErrorKind = "UNSUPPORTED_PROVIDER"
	KindUnsupportedCurrency ErrorKind = "UNSUPPORTED_CURRENCY"
	KindSecurityViolation   ErrorKind = "SECURITY_VIOLATION"
	KindTransient           ErrorKind = "TRANSIENT"
	KindMethodNotFound      ErrorKind = "METHOD_NOT_FOUND"
	KindMethodDisabled      ErrorKind = "METHOD_DISABLED"
	KindAmountOutOfLimits   ErrorKind = "AMOUNT_OUT_OF_LIMITS"
	KindTransactionNotFound ErrorKind = "TRANSACTION_NOT_FOUND"
	KindInvalidTransition   ErrorKind = "INVALID_TRANSITION"
	KindInvalidRequest      ErrorKind = "INVALID_REQUEST"
)

// LedgerError carries a kind plus structured context instead of an error hierarchy.
type LedgerError struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]any
	Err     error
}

func (e *LedgerError) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(e.Kind)))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Fields[k])
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *LedgerError) Unwrap() error { return e.Err }

// Is matches any LedgerError of the same kind, so sentinels work with errors.Is.
func (e *LedgerError) Is(target error) bool {
	var t *LedgerError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a LedgerError. fields are alternating key/value pairs.
func NewError(kind ErrorKind, msg string, fields ...any) *LedgerError {
	e := &LedgerError{Kind: kind, Message: msg}
	if len(fields) > 0 {
		e.Fields = make(map[string]any, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			key, ok := fields[i].(string)
			if !ok {
				key = fmt.Sprint(fields[i])
			}
			e.Fields[key] = fields[i+1]
		}
	}
	return e
}

// WrapError attaches a cause to a new LedgerError.
func WrapError(kind ErrorKind, msg string, cause error, fields ...any) *LedgerError {
	e := NewError(kind, msg, fields...)
	e.Err = cause
	return e
}

// KindOf returns the kind of the first LedgerError in the chain, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsDomainError reports whether err is a caller-facing validation/domain error:
// anything tagged except security and transient failures.
func IsDomainError(err error) bool {
	switch KindOf(err) {
	case "", KindSecurityViolation, KindTransient:
		return false
	default:
		return true
	}
}

var (
	ErrInsufficientBalance = &LedgerError{Kind: KindInsufficientBalance}
	ErrAlreadyProcessed    = &LedgerError{Kind: KindAlreadyProcessed}
	ErrAmountMismatch      = &LedgerError{Kind: KindAmountMismatch}
	ErrCurrencyMismatch    = &LedgerError{Kind: KindCurrencyMismatch}
	ErrUnsupportedProvider = &LedgerError{Kind: KindUnsupportedProvider}
	ErrUnsupportedCurrency = &LedgerError{Kind: KindUnsupportedCurrency}
	ErrSecurityViolation   = &LedgerError{Kind: KindSecurityViolation}
	ErrTransient           = &LedgerError{Kind: KindTransient}
	ErrMethodNotFound      = &LedgerError{Kind: KindMethodNotFound}
	ErrMethodDisabled      = &LedgerError{Kind: KindMethodDisabled}
	ErrAmountOutOfLimits   = &LedgerError{Kind: KindAmountOutOfLimits}
	ErrTransactionNotFound = &LedgerError{Kind: KindTransactionNotFound}
	ErrInvalidTransition   = &LedgerError{Kind: KindInvalidTransition}
	ErrInvalidRequest      = &LedgerError{Kind: KindInvalidRequest}
)

// ErrStoreConflict is returned by optimistic stores when a concurrent writer won; the unit is retried.
var ErrStoreConflict = errors.New("ledger store: concurrent modification")
