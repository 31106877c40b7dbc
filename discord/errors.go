package discord

import (
	"errors"
	"fmt"
)

// Platform error codes this module makes decisions on.
const (
	CodeUnknownGuild       = 10004
	CodeUnknownMember      = 10007
	CodeMissingPermissions = 50013
)

// APIError is a platform error with its numeric code preserved, so callers
// can branch on permission failures versus gone targets versus everything
// else.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api error %d: %s", e.Code, e.Message)
}

// IsPermissionDenied reports whether err is the platform's
// insufficient-permission failure (role hierarchy, missing permission bit).
func IsPermissionDenied(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == CodeMissingPermissions
}

// IsUnknownTarget reports whether err means the member or guild no longer
// exists from the platform's point of view.
func IsUnknownTarget(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Code == CodeUnknownMember || ae.Code == CodeUnknownGuild
}
