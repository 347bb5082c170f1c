package app

import "fmt"

// DomainError is a forum rule violation that maps straight onto the HTTP
// envelope: Status becomes the response code, Code/Message/Details fill
// the error body. Anything that is not a DomainError surfaces as a 500.
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
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}
