package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code is a stable error code carried across layer boundaries
type Code string

const (
	CodeInit            Code = "INIT"
	CodeShutdownTimeout Code = "SHUTDOWN_TIMEOUT"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeAuthBlocked     Code = "AUTH_BLOCKED"
	CodeSessionExpired  Code = "SESSION_EXPIRED"
	CodeConnection      Code = "CONNECTION"
	CodeHandling        Code = "HANDLING"
	CodeNotFound        Code = "NOT_FOUND"
	CodeContainerOp     Code = "CONTAINER_OP"
	CodeImageOp         Code = "IMAGE_OP"
	CodeCallbackInvalid Code = "CALLBACK_INVALID"
	CodeQRCode          Code = "QRCODE"
)

// Error is the single error type crossing the handler boundary. It carries
// a stable code, the failed operation, a metadata map for log context, and
// the wrapped cause.
type Error struct {
	Code Code
	Op   string
	Meta map[string]string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if len(e.Meta) > 0 {
		keys := make([]string, 0, len(e.Meta))
		for k := range e.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Meta[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code so callers can compare against sentinel-style targets:
// errors.Is(err, &Error{Code: CodeNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds an Error. Trailing kv pairs populate Meta; an odd tail key is
// stored with an empty value.
func New(code Code, op string, cause error, kv ...string) *Error {
	e := &Error{Code: code, Op: op, Err: cause}
	if len(kv) > 0 {
		e.Meta = make(map[string]string, (len(kv)+1)/2)
		for i := 0; i < len(kv); i += 2 {
			if i+1 < len(kv) {
				e.Meta[kv[i]] = kv[i+1]
			} else {
				e.Meta[kv[i]] = ""
			}
		}
	}
	return e
}

// CodeOf extracts the code from err, walking the wrap chain.
// Returns an empty code when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err (anywhere in its chain) carries code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// MetaOf returns the metadata map from err, or nil.
func MetaOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Meta
	}
	return nil
}
