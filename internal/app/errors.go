package app

import "fmt"

// DomainError carries a user-visible chat failure (locked room, rate limit,
// refused redaction) with its HTTP status; mapError passes it through
// unchanged, everything else becomes a 500.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
