// Package errors provides coded, structured errors for Karta.
// Codes follow an area.op.reason layout so callers can branch on the
// trailing reason without string matching on messages.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreNodeNotFound     Code = "store.node.not_found"
	CodeStoreEdgeNotFound     Code = "store.edge.not_found"
	CodeStoreDatabaseFailure  Code = "store.database.failure"
	CodeStoreInvalidInput     Code = "store.invalid_input"
	CodeStoreConflict         Code = "store.conflict"
	CodeStoreProtected        Code = "store.node.forbidden"
	CodeStoreBackendUnsupport Code = "store.backend.unsupported"

	CodeCoordsInvalidInput Code = "coords.convert.invalid_input"

	CodeEngineResolveNotFound  Code = "engine.switch.resolve.not_found"
	CodeEngineLoadFailure      Code = "engine.switch.load.failure"
	CodeEngineSaveFailure      Code = "engine.context.save.failure"
	CodeEngineNoActiveContext  Code = "engine.context.inactive.not_found"
	CodeEngineViewNodeNotFound Code = "engine.viewnode.not_found"
	CodeEngineValidateInvalid  Code = "engine.validate.invalid_input"
	CodeEngineValidateConflict Code = "engine.validate.conflict"
	CodeEngineValidateDenied   Code = "engine.validate.forbidden"
	CodeEngineHistoryEmpty     Code = "engine.history.empty.not_found"

	CodeSettingsReadFailure  Code = "settings.read.failure"
	CodeSettingsWriteFailure Code = "settings.write.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeCLIInputInvalid  Code = "cli.input.invalid"
	CodeCLIExportFailure Code = "cli.export.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldNodeID(value string) Attr {
	return Field("node_id", value)
}

func FieldContextID(value string) Attr {
	return Field("context_id", value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf returns the deepest code in the chain, or "" for uncoded errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	switch code := oopsErr.Code().(type) {
	case Code:
		return code
	case string:
		return Code(code)
	case nil:
		return ""
	default:
		return Code(fmt.Sprintf("%v", code))
	}
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value"
}

func IsForbidden(err error) bool {
	return reason(CodeOf(err)) == "forbidden"
}

// Is re-exports the standard library helper so callers only need one
// errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}
	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
