package handle

import (
	"net/http"

	"menulens/api/internal/menu/types"
)

type errorBody struct {
	Error   types.Kind `json:"error"`
	Message string     `json:"message"`
}

// StatusFor maps an error kind to the HTTP status returned to clients.
func StatusFor(kind types.Kind) int {
	switch kind {
	case types.KindEmptyInput, types.KindInvalidInput:
		return http.StatusBadRequest
	case types.KindUpstreamTransport, types.KindUpstreamFormat, types.KindNoUsableResult, types.KindImageLookup:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handle) writeError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	code := StatusFor(kind)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		// internal details stay in the log
		msg = "scan failed"
	}
	h.log.Warn("request failed", "kind", kind, "status", code, "error", err)
	writeJSON(w, code, errorBody{Error: kind, Message: msg})
}
