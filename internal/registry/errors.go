package registry

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes registry failures.
type ErrorCode string

const (
	// CodeCorrupt means the registry file could not be parsed or failed
	// schema validation. Treated as an empty registry.
	CodeCorrupt ErrorCode = "REGISTRY_CORRUPT"

	// CodeReadFailed means the registry file exists but could not be read.
	CodeReadFailed ErrorCode = "REGISTRY_READ_FAILED"

	// CodeWriteFailed means persisting the registry failed. The mirror was
	// not updated.
	CodeWriteFailed ErrorCode = "REGISTRY_WRITE_FAILED"
)

// Error is a registry failure with its category and file path.
type Error struct {
	Code ErrorCode
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCorrupt reports whether err is a RegistryCorrupt condition.
func IsCorrupt(err error) bool {
	return hasCode(err, CodeCorrupt)
}

// IsWriteFailed reports whether err is a RegistryWriteFailed condition.
func IsWriteFailed(err error) bool {
	return hasCode(err, CodeWriteFailed)
}

func hasCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}
