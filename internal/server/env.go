package server

import (
	"encoding/json"
	"net/http"
)

// RuntimeEnv is the client configuration a build tool would otherwise inline
// at build time.
type RuntimeEnv struct {
	APIBaseURL string `json:"apiBaseUrl"`
}

// envJSGlobal is the window property env.js assigns.
const envJSGlobal = "window.__APP_CONFIG__"

// EnvJSHandler serves the runtime env as a script so the page can load it
// with a plain <script> tag before the application bundle.
func EnvJSHandler(apiBaseURL func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// json.Marshal escapes <, > and & so the value cannot close the script.
		data, err := json.Marshal(RuntimeEnv{APIBaseURL: apiBaseURL()})
		if err != nil {
			writeJSONError(w, r, http.StatusInternalServerError, "failed to encode runtime env")
			return
		}
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Write([]byte(envJSGlobal + " = "))
		w.Write(data)
		w.Write([]byte(";\n"))
	}
}

// EnvJSONHandler serves the runtime env as JSON.
func EnvJSONHandler(apiBaseURL func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, r, http.StatusOK, RuntimeEnv{APIBaseURL: apiBaseURL()})
	}
}
