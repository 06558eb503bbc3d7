package repositories

import "errors"

// ErrMirrorUnavailable wraps any failure to read from the mirror store.
var ErrMirrorUnavailable = errors.New("mirror store unavailable")
