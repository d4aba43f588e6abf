package resolve

import (
	"errors"
	"fmt"
	"strings"
)

// RemoteProtocolError indicates that an endpoint was reachable but did not
// process the manifest request successfully. The raw response body is
// embedded so the server's own explanation reaches the user.
type RemoteProtocolError struct {
	URL        string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *RemoteProtocolError) Error() string {
	return fmt.Sprintf("the server at %s didn't process the request properly (status %d): %s", e.URL, e.StatusCode, e.Body)
}

// InputError indicates that no identifier was provided and none could be
// inferred. KnownNames lists the instance names the directory reported, as
// a hint for the caller.
type InputError struct {
	KnownNames []string
}

// Error implements the error interface.
func (e *InputError) Error() string {
	return fmt.Sprintf("provide an application name, id or url. Found [%s]", strings.Join(e.KnownNames, ", "))
}

// NotReadyError indicates that the matched instance exists but has no
// network address assigned yet. Callers wanting resilience should poll
// around this error; the resolver itself never retries.
type NotReadyError struct {
	Ref string
}

// Error implements the error interface.
func (e *NotReadyError) Error() string {
	return fmt.Sprintf("the application %q is starting. Try again in a few moments", e.Ref)
}

// IsRemoteProtocolError checks if an error is a remote protocol failure.
func IsRemoteProtocolError(err error) bool {
	var rpe *RemoteProtocolError
	return errors.As(err, &rpe)
}

// IsInputError checks if an error is a missing-identifier failure.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// IsNotReadyError checks if an error means the instance is still starting.
func IsNotReadyError(err error) bool {
	var nre *NotReadyError
	return errors.As(err, &nre)
}
