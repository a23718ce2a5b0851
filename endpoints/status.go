package endpoints

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// NewStatusEndpoint returns a handler which writes the given response when the app is ready to serve requests.
// An empty response answers 204 No Content.
func NewStatusEndpoint(response string) httprouter.Handle {
	if response == "" {
		return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
			w.WriteHeader(http.StatusNoContent)
		}
	}

	responseBytes := []byte(response)
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Write(responseBytes)
	}
}
