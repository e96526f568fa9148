// Package notify forwards resync progress to an external notification server.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Notifier posts sync status changes to NOTIFY_URL. With an empty URL every
// call is a no-op.
type Notifier struct {
	serverURL  string
	httpClient *http.Client
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewNotifier(serverURL string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		serverURL: serverURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// NotifySync sends a sync status notification (async, non-blocking)
func (n *Notifier) NotifySync(userID, status, message string) {
	if n.serverURL == "" {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		payload := map[string]interface{}{
			"type":    "bookmark_sync",
			"user_id": userID,
			"status":  status,
			"message": message,
			"sent_at": time.Now().UTC(),
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := n.send(ctx, "/notify/bookmark-sync", payload); err != nil {
			n.logger.Warn("[Notifier] failed to send sync notification",
				"user_id", userID,
				"status", status,
				"error", err,
			)
		}
	}()
}

// Wait blocks until in-flight notifications are sent.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) send(ctx context.Context, endpoint string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.serverURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
