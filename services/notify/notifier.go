package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const notificationTitle = "StockAlert"

// Dispatcher delivers a push notification to a set of users
type Dispatcher interface {
	Send(message string, users []string) error
}

// PushNotifier delivers notifications through an Alertzy-compatible push
// endpoint. Multiple recipients are addressed in one call by joining their
// account keys.
type PushNotifier struct {
	url         string
	accountKeys map[string]string
	httpClient  *http.Client
}

// NewPushNotifier creates a notifier for the given push endpoint.
// accountKeys maps user ids to their push account keys.
func NewPushNotifier(url string, accountKeys map[string]string) *PushNotifier {
	return &PushNotifier{
		url:         url,
		accountKeys: accountKeys,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type pushPayload struct {
	AccountKey string `json:"accountKey"`
	Title      string `json:"title"`
	Message    string `json:"message"`
}

// Send delivers one message to every listed user in a single call
func (n *PushNotifier) Send(message string, users []string) error {
	keys := make([]string, 0, len(users))
	for _, userID := range users {
		key, ok := n.accountKeys[userID]
		if !ok || key == "" {
			return fmt.Errorf("no account key configured for user %s", userID)
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return fmt.Errorf("no recipients for notification")
	}

	payload := pushPayload{
		AccountKey: strings.Join(keys, "_"),
		Title:      notificationTitle,
		Message:    message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification payload: %w", err)
	}

	resp, err := n.httpClient.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
