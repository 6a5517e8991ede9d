package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"remindbot/internal/models"

	"github.com/sirupsen/logrus"
)

const processTimeout = 30 * time.Second

// MessageProcessor handles one decoded Telegram update.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, update *models.Update)
}

// WebhookHandler acknowledges Telegram immediately and processes the update
// in the background.
func WebhookHandler(processor MessageProcessor, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		update, err := ParseTelegramRequest(r)
		if err != nil {
			logger.WithError(err).Error("Error parsing request")
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)

		go func() {
			defer cancel()
			processor.ProcessMessage(ctx, update)
		}()

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// ParseTelegramRequest decodes an incoming webhook body into an Update.
func ParseTelegramRequest(r *http.Request) (*models.Update, error) {
	var update models.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		return nil, err
	}
	return &update, nil
}

// HealthHandler reports 503 until ready returns true.
func HealthHandler(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
