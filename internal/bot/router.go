package bot

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the webhook HTTP surface. The secret path segment is
// the shared secret registered with Telegram's setWebhook; requests with
// any other value are rejected without processing.
func NewRouter(h *Handler, secret string, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Post("/webhook/{secret}", func(w http.ResponseWriter, req *http.Request) {
		got := chi.URLParam(req, "secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		var upd Update
		if err := json.NewDecoder(req.Body).Decode(&upd); err != nil {
			log.Warn("failed to decode update", "error", err)
			// Malformed payloads are acknowledged so Telegram does not
			// retry them forever.
			w.WriteHeader(http.StatusOK)
			return
		}

		if err := h.HandleUpdate(req.Context(), &upd); err != nil {
			log.Error("failed to handle update", "update_id", upd.UpdateID, "error", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	return r
}
