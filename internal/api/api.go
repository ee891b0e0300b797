// Package api holds the JSON request/response plumbing shared by handlers.
package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
)

type errorBody struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, errorBody{Error: err.Error()})
}

var errBadBody = errors.New("api: malformed request body")

func ReadJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return errBadBody
	}
	return nil
}
