package app

import (
	"errors"
	"net/http"

	"schsync/internal/fault"
)

var faultStatus = map[string]int{
	fault.InvalidParams:      http.StatusBadRequest,
	fault.InvalidIR:          http.StatusUnprocessableEntity,
	fault.DuplicateID:        http.StatusUnprocessableEntity,
	fault.PinNotFound:        http.StatusUnprocessableEntity,
	fault.AmbiguousPin:       http.StatusUnprocessableEntity,
	fault.NotFound:           http.StatusNotFound,
	fault.NoActiveDocument:   http.StatusConflict,
	fault.NotInSchematicPage: http.StatusConflict,
	fault.PlaceFailed:        http.StatusBadGateway,
	fault.CreateFailed:       http.StatusBadGateway,
	fault.WireCreateFailed:   http.StatusBadGateway,
	fault.SourceUnavailable:  http.StatusBadGateway,
	fault.BridgeDisconnected: http.StatusServiceUnavailable,
	fault.Timeout:            http.StatusGatewayTimeout,
	fault.NotSupported:       http.StatusNotImplemented,
	fault.StorageWriteFailed: http.StatusInternalServerError,
	fault.StorageReadFailed:  http.StatusServiceUnavailable,
}

func mapError(err error) (status int, code, message string, details any) {
	var f *fault.Fault
	if errors.As(err, &f) {
		status, ok := faultStatus[f.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		return status, f.Code, f.Message, f.Details
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
