package engine

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/roach88/lutwrap/internal/directory"
	"github.com/roach88/lutwrap/internal/ir"
)

// Stable text codes carried by every engine error.
const (
	CodeInvalidLookupTable  = "INVALID_LOOKUP_TABLE"
	CodeNotReady            = "LUT_NOT_READY"
	CodeMaxEntriesExceeded  = "MAX_ENTRIES_EXCEEDED"
	CodeNoNewEntries        = "NO_NEW_ENTRIES"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeDelegatedCallFailed = "DELEGATED_CALL_FAILED"
	CodeRecordExists        = "RECORD_EXISTS"
	CodeRecordNotFound      = "RECORD_NOT_FOUND"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInternal            = "INTERNAL"
)

func newEngineError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return goerrors.New(message, category).
		WithCode(httpStatus(category)).
		WithTextCode(textCode)
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errInvalidLookupTable(expected, got ir.Address) *goerrors.Error {
	return newEngineError(
		fmt.Sprintf("lookup table %s does not match derived address %s", got, expected),
		goerrors.CategoryBadInput, CodeInvalidLookupTable,
	).WithMetadata(map[string]any{
		"expected": expected.String(),
		"got":      got.String(),
	})
}

func errNotReady(rec ir.Record, now ir.Slot, cooldown uint64) *goerrors.Error {
	return newEngineError(
		fmt.Sprintf("record %s is cooling down until slot %d", rec.Address, rec.ReadyAt(cooldown)),
		goerrors.CategoryRateLimit, CodeNotReady,
	).WithMetadata(map[string]any{
		"ready_at":        uint64(rec.ReadyAt(cooldown)),
		"slots_remaining": rec.SlotsUntilReady(now, cooldown),
	})
}

func errMaxEntries(current, adding, limit int) *goerrors.Error {
	return newEngineError(
		fmt.Sprintf("adding %d entries to %d would exceed the maximum of %d", adding, current, limit),
		goerrors.CategoryConflict, CodeMaxEntriesExceeded,
	).WithMetadata(map[string]any{
		"current": current,
		"adding":  adding,
		"max":     limit,
	})
}

func errNoNewEntries(requested int) *goerrors.Error {
	return newEngineError(
		fmt.Sprintf("all %d entries are already in the table", requested),
		goerrors.CategoryConflict, CodeNoNewEntries,
	)
}

func errUnauthorized(message string) *goerrors.Error {
	return newEngineError(message, goerrors.CategoryAuthz, CodeUnauthorized)
}

func errRecordExists(addr ir.Address) *goerrors.Error {
	return newEngineError(
		fmt.Sprintf("record %s already exists", addr),
		goerrors.CategoryConflict, CodeRecordExists,
	)
}

func errRecordNotFound(addr ir.Address) *goerrors.Error {
	return newEngineError(
		fmt.Sprintf("record %s not found", addr),
		goerrors.CategoryNotFound, CodeRecordNotFound,
	)
}

func errInvalidRequest(format string, args ...any) *goerrors.Error {
	return newEngineError(fmt.Sprintf(format, args...), goerrors.CategoryBadInput, CodeInvalidRequest)
}

// errDelegated wraps a directory program rejection.
func errDelegated(call string, source error) *goerrors.Error {
	err := goerrors.Wrap(source, goerrors.CategoryExternal, fmt.Sprintf("directory %s failed: %v", call, source)).
		WithCode(http.StatusBadGateway).
		WithTextCode(CodeDelegatedCallFailed)
	meta := map[string]any{"call": call}
	if code := directory.CodeOf(source); code != "" {
		meta["directory_code"] = string(code)
	}
	return err.WithMetadata(meta)
}

// errInternal wraps err unless it already carries an engine envelope.
func errInternal(message string, source error) error {
	var rich *goerrors.Error
	if goerrors.As(source, &rich) {
		return source
	}
	return goerrors.Wrap(source, goerrors.CategoryInternal, fmt.Sprintf("%s: %v", message, source)).
		WithCode(http.StatusInternalServerError).
		WithTextCode(CodeInternal)
}

// ErrorCode returns the text code of err, CodeInternal for errors without
// an envelope, or "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.TextCode != "" {
		return rich.TextCode
	}
	return CodeInternal
}

// ErrorMetadata returns the metadata attached to err, if any.
func ErrorMetadata(err error) map[string]any {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Metadata
	}
	return nil
}

// IsNotReady reports whether err is a cooldown rejection.
func IsNotReady(err error) bool { return ErrorCode(err) == CodeNotReady }

// IsUnauthorized reports whether err is an owner or table mismatch.
func IsUnauthorized(err error) bool { return ErrorCode(err) == CodeUnauthorized }

// IsNoNewEntries reports whether err is an all-duplicate extend.
func IsNoNewEntries(err error) bool { return ErrorCode(err) == CodeNoNewEntries }

// IsCapacityExceeded reports whether err is a capacity rejection.
func IsCapacityExceeded(err error) bool { return ErrorCode(err) == CodeMaxEntriesExceeded }

// IsDelegatedFailure reports whether the directory program rejected a call.
func IsDelegatedFailure(err error) bool { return ErrorCode(err) == CodeDelegatedCallFailed }

// IsNotFound reports whether err is a missing record.
func IsNotFound(err error) bool { return ErrorCode(err) == CodeRecordNotFound }
