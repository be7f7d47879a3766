package carrier

import "fmt"

// AuthError reports a credential rejection by the remote service: a failed
// login, or a second consecutive 401 after the automatic re-authentication.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorization rejected (status %d): %s", e.Status, e.Body)
}

// RequestError reports a non-2xx response that was not identified as an
// authorization failure.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed (status %d): %s", e.Status, e.Body)
}

// NotFoundError reports expected document structure that was missing, such
// as an absent zone or activity section. Retrying does not help; the
// document will not change shape on its own.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return e.What + " not found"
}
