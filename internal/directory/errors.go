package directory

import (
	"errors"
	"fmt"

	"github.com/roach88/lutwrap/internal/ir"
)

// ProgramError is a rejection raised by the directory program.
type ProgramError struct {
	// Code identifies the rejection.
	Code ProgramErrorCode

	// Message is a human-readable description.
	Message string

	// Table is the affected table, if any.
	Table ir.Address

	// Details contains additional context.
	Details map[string]string
}

// ProgramErrorCode categorizes directory program rejections.
type ProgramErrorCode string

const (
	ErrCodeTableAlreadyExists      ProgramErrorCode = "TABLE_ALREADY_EXISTS"
	ErrCodeSlotNotRecent           ProgramErrorCode = "SLOT_NOT_RECENT"
	ErrCodeTableNotFound           ProgramErrorCode = "TABLE_NOT_FOUND"
	ErrCodeIncorrectAuthority      ProgramErrorCode = "INCORRECT_AUTHORITY"
	ErrCodeMissingSignature        ProgramErrorCode = "MISSING_SIGNATURE"
	ErrCodeTableDeactivated        ProgramErrorCode = "TABLE_DEACTIVATED"
	ErrCodeTableAlreadyDeactivated ProgramErrorCode = "TABLE_ALREADY_DEACTIVATED"
	ErrCodeTableNotDeactivated     ProgramErrorCode = "TABLE_NOT_DEACTIVATED"
	ErrCodeDeactivationCooldown    ProgramErrorCode = "DEACTIVATION_COOLDOWN"
	ErrCodeMaxAddressesExceeded    ProgramErrorCode = "MAX_ADDRESSES_EXCEEDED"
	ErrCodeEmptyExtension          ProgramErrorCode = "EMPTY_EXTENSION"
	ErrCodeInvalidTableData        ProgramErrorCode = "INVALID_TABLE_DATA"
)

// Error implements the error interface.
func (e *ProgramError) Error() string {
	if !e.Table.IsZero() {
		return fmt.Sprintf("%s: %s (table=%s)", e.Code, e.Message, e.Table)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newProgramError(code ProgramErrorCode, table ir.Address, format string, args ...any) *ProgramError {
	return &ProgramError{Code: code, Message: fmt.Sprintf(format, args...), Table: table}
}

// CodeOf returns the ProgramErrorCode of err, or "" if err is not a
// ProgramError.
func CodeOf(err error) ProgramErrorCode {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsProgramError reports whether err is a directory program rejection.
func IsProgramError(err error) bool {
	var pe *ProgramError
	return errors.As(err, &pe)
}

// IsNotFound reports whether err says the table does not exist.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeTableNotFound
}

// IsCooldown reports whether err is a close attempted inside the
// deactivation cooldown.
func IsCooldown(err error) bool {
	return CodeOf(err) == ErrCodeDeactivationCooldown
}
