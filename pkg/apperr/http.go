package apperr

import "net/http"

// HTTPStatus maps an error kind to the status code the request layer
// reports. Unknown errors are treated as internal.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case AuthorizationDenied:
		return http.StatusForbidden
	case LockConflict:
		return http.StatusLocked
	case StateConflict:
		return http.StatusConflict
	case StorageError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
