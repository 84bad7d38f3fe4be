package api

import (
	"net/http"
)

func NewRouter(h *APIHandler) http.Handler {

	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", h.HandleCreateSession)

	mux.HandleFunc("GET /sessions/{id}", h.HandleGetSession)

	mux.HandleFunc("PUT /sessions/{id}/file", h.HandleUploadFile)

	mux.HandleFunc("POST /sessions/{id}/import", h.HandleImportFile)

	mux.HandleFunc("POST /sessions/{id}/prompt", h.HandlePrompt)

	mux.HandleFunc("DELETE /sessions/{id}", h.HandleDeleteSession)

	mux.HandleFunc("GET /healthz", h.HandleHealth)

	return mux
}
