package retailcrm

import (
	"errors"
	"fmt"
)

var ErrUnknownDictionary = errors.New("unknown dictionary")

// RemoteFetchError is returned when a CRM request fails. Status is zero for
// transport failures; Body holds the raw error payload when one was received.
type RemoteFetchError struct {
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *RemoteFetchError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("retailcrm %s: status %d: %s", e.Endpoint, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("retailcrm %s: status %d", e.Endpoint, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("retailcrm %s: %v", e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("retailcrm %s: request failed: %s", e.Endpoint, e.Body)
	}
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}
