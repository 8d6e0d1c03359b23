package handlers

import "net/http"

// HandleHealth answers "ok" while the server is up, whether or not a run is
// in progress.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}
