package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"store-gateway/internal/observability"
)

// CleanupStore is the repository surface the cron endpoint needs.
type CleanupStore interface {
	DeleteStaleSignInAttempts(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
	RepairBanLabels(ctx context.Context, batchSize int) (int64, error)
}

type CleanupResult struct {
	DeletedSignInAttempts int64 `json:"deleted_sign_in_attempts"`
	RepairedBanLabels     int64 `json:"repaired_ban_labels"`
}

type CleanupHandler struct {
	store            CleanupStore
	logger           *observability.Logger
	cronSecret       string
	attemptRetention time.Duration
	batchSize        int
}

func NewCleanupHandler(
	store CleanupStore,
	logger *observability.Logger,
	cronSecret string,
	attemptRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		store:            store,
		logger:           logger,
		cronSecret:       strings.TrimSpace(cronSecret),
		attemptRetention: attemptRetention,
		batchSize:        batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	retention := h.attemptRetention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-retention)

	deletedAttempts, err := h.store.DeleteStaleSignInAttempts(r.Context(), cutoff, h.batchSize)
	if err != nil {
		h.logger.Error("maintenance_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	repairedLabels, err := h.store.RepairBanLabels(r.Context(), h.batchSize)
	if err != nil {
		h.logger.Error("maintenance_label_repair_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	result := CleanupResult{
		DeletedSignInAttempts: deletedAttempts,
		RepairedBanLabels:     repairedLabels,
	}

	h.logger.Info("maintenance_cleanup_completed", map[string]any{
		"deleted_sign_in_attempts": result.DeletedSignInAttempts,
		"repaired_ban_labels":      result.RepairedBanLabels,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
