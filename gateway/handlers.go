package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/orderflow/backbone/common/apperr"
)

func writeAppErr(w http.ResponseWriter, err *apperr.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
