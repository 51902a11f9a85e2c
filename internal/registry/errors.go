package registry

import (
	"errors"
	"net/http"
)

// RemoteError is a non-2xx response from the registry.
type RemoteError struct {
	Op         string // list, create, update or delete
	StatusCode int
	Body       string // response body text, trimmed
}

// Error returns the registry's own message. When the response had no body
// the HTTP status text is used instead.
func (e *RemoteError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return "registry " + e.Op + " failed"
}

// IsNotFound reports whether err is a registry 404.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}

// AsRemote returns the RemoteError inside err, if any.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
