package response

import (
	"encoding/json"
	"net/http"
)

type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// NoStore writes data and tells every intermediary not to keep a copy.
func NoStore(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Cache-Control", "no-store")
	JSON(w, http.StatusOK, data)
}

func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

func OK(w http.ResponseWriter) {
	JSON(w, http.StatusOK, Ack{OK: true})
}

func Error(w http.ResponseWriter, statusCode int, err string) {
	JSON(w, statusCode, Ack{OK: false, Error: err})
}

func BadRequest(w http.ResponseWriter, err string) {
	Error(w, http.StatusBadRequest, err)
}

func Unauthorized(w http.ResponseWriter, err string) {
	Error(w, http.StatusUnauthorized, err)
}

func TooManyRequests(w http.ResponseWriter, err string) {
	Error(w, http.StatusTooManyRequests, err)
}

func InternalError(w http.ResponseWriter, err string) {
	Error(w, http.StatusInternalServerError, err)
}

func ServiceUnavailable(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusServiceUnavailable, data)
}
