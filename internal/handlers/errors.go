package handlers

import (
	"errors"

	"github.com/prudhvinik1/retailpulse/internal/retailcrm"
	"github.com/prudhvinik1/retailpulse/internal/services"
)

var errMirrorDisabled = errors.New("sync requires DATABASE_URL; the mirror is not configured")

// toolError maps a service error to the payload returned to tool callers.
// Remote failures keep their HTTP status and response body.
func toolError(err error) ErrorDetail {
	detail := ErrorDetail{Code: errorCode(err), Message: err.Error()}

	var fetchErr *retailcrm.RemoteFetchError
	if errors.As(err, &fetchErr) {
		detail.Status = fetchErr.Status
		if fetchErr.Body != "" {
			detail.Details = fetchErr.Body
		}
	}
	return detail
}

func errorCode(err error) string {
	var (
		fetchErr *retailcrm.RemoteFetchError
		failure  *services.SyncFailure
	)
	switch {
	case errors.Is(err, services.ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, services.ErrUnknownGroupBy):
		return "unknown_group_by"
	case errors.Is(err, services.ErrUnknownFilterField):
		return "unknown_filter_field"
	case errors.Is(err, services.ErrUnknownMetric):
		return "unknown_metric"
	case errors.Is(err, services.ErrInvalidFilterValue):
		return "invalid_filter_value"
	case errors.Is(err, services.ErrUnknownEntity):
		return "unknown_entity"
	case errors.Is(err, services.ErrSyncInProgress):
		return "sync_in_progress"
	case errors.Is(err, services.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, retailcrm.ErrUnknownDictionary):
		return "unknown_dictionary"
	case errors.Is(err, errMirrorDisabled):
		return "mirror_disabled"
	case errors.As(err, &failure):
		return "sync_failed"
	case errors.As(err, &fetchErr):
		return "remote_fetch_failed"
	}
	return "internal_error"
}
