package httpapp

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"
)

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	return json.NewDecoder(body).Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail logs the underlying cause and answers with the route's static
// message. Clients never see err.
func fail(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg(msg)
	writeError(w, status, msg)
}
