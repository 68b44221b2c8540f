package report

import (
	"errors"
	"fmt"
)

var (
	ErrReportNotFound = errors.New("scheduled report not found")
	ErrForbidden      = errors.New("only administrators can manage scheduled reports")
	ErrUnknownReport  = errors.New("unknown report type")
	ErrNoRenderer     = errors.New("no renderer for format")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
