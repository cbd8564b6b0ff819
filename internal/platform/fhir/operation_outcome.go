package fhir

import (
	"errors"
	"fmt"
)

// OperationOutcome severity levels.
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes used by this server.
const (
	IssueTypeInvalid      = "invalid"
	IssueTypeRequired     = "required"
	IssueTypeValue        = "value"
	IssueTypeNotFound     = "not-found"
	IssueTypeProcessing   = "processing"
	IssueTypeSecurity     = "security"
	IssueTypeLogin        = "login"
	IssueTypeThrottled    = "throttled"
	IssueTypeTimeout      = "timeout"
	IssueTypeNotSupported = "not-supported"
	IssueTypeException    = "exception"
)

// InvalidSearchParamOutcome reports a search parameter value that could not
// be parsed. The raw value and reason are taken from err when it is an
// InvalidDateParamError.
func InvalidSearchParamOutcome(param string, err error) *OperationOutcome {
	diagnostics := err.Error()
	var invalid *InvalidDateParamError
	if errors.As(err, &invalid) {
		diagnostics = fmt.Sprintf("%s=%s: %s", param, invalid.Value, invalid.Reason)
	}
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    IssueSeverityError,
				Code:        IssueTypeValue,
				Diagnostics: diagnostics,
				Expression:  []string{param},
			},
		},
	}
}

// InternalErrorOutcome creates an OperationOutcome for internal server errors.
func InternalErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityFatal, IssueTypeException, diagnostics)
}
