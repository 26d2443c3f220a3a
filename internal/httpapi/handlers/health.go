package handlers

import (
	"context"
	"net/http"
	"time"

	"pdfbot/internal/httpkit"
)

// Health reports liveness; ?deep=true also loads the queue document.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]any{
		"status":  "ok",
		"service": "pdfbot",
	}

	if r.URL.Query().Get("deep") == "true" {
		check := h.checkQueue(ctx)
		health["checks"] = map[string]any{
			"queue":   check,
			"storage": map[string]any{"status": "ok", "provider": h.storageName},
		}
		if check["status"] != "ok" {
			health["status"] = "degraded"
			h.log.FromContext(ctx).Warn("health check degraded", "queue", check)
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) checkQueue(ctx context.Context) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	busy, err := h.engine.IsBusy(checkCtx)
	if err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	} else {
		result["busy"] = busy
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
