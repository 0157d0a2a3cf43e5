package vault

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing asset name or version.
type NotFoundError struct {
	Name    string
	Version int64 // 0 means "any version"
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("asset %q version %d not found", e.Name, e.Version)
	}
	return fmt.Sprintf("asset %q not found", e.Name)
}

// IsNotFound returns true if the error is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// SchemaConflictError reports a strict-mode write whose schema does not
// match the latest stored version. Only raised when the caller explicitly
// requests schema enforcement; by default schema drift across versions is
// permitted.
type SchemaConflictError struct {
	Name string
	Want Schema // schema of the latest stored version
	Got  Schema // schema of the rejected write
}

// Error implements the error interface.
func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("schema conflict on asset %q: stored %v, write %v", e.Name, e.Want, e.Got)
}

// IsSchemaConflict returns true if the error is (or wraps) a SchemaConflictError.
func IsSchemaConflict(err error) bool {
	var sce *SchemaConflictError
	return errors.As(err, &sce)
}
