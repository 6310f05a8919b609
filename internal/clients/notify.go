package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Tani1964/DelphiX/internal/model"
)

// AlertNotifier dispatches SOS alerts to an SMS/email relay webhook. With no
// webhook configured it degrades to logging the alert, so escalation always
// has somewhere to record the attempt.
type AlertNotifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewAlertNotifier(webhookURL string, timeout time.Duration) *AlertNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AlertNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type alertPayload struct {
	Kind      string `json:"kind"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	PlaceID   string `json:"placeId,omitempty"`
	SentAt    string `json:"sentAt"`
}

func (n *AlertNotifier) NotifyContact(ctx context.Context, contact model.EmergencyContact, session model.SOSSession) error {
	if n.webhookURL == "" {
		log.Printf("sos alert: notifying %s at %s", contact.Name, contact.Phone)
		return nil
	}
	return n.send(ctx, alertPayload{
		Kind:      "emergency_contact",
		SessionID: session.ID.String(),
		UserID:    session.UserID,
		Name:      contact.Name,
		Phone:     contact.Phone,
		SentAt:    time.Now().UTC().Format(time.RFC3339),
	})
}

func (n *AlertNotifier) NotifyFacility(ctx context.Context, facility model.Hospital, session model.SOSSession) error {
	if n.webhookURL == "" {
		log.Printf("sos alert: notifying %s", facility.Name)
		return nil
	}
	return n.send(ctx, alertPayload{
		Kind:      "facility",
		SessionID: session.ID.String(),
		UserID:    session.UserID,
		Name:      facility.Name,
		PlaceID:   facility.PlaceID,
		SentAt:    time.Now().UTC().Format(time.RFC3339),
	})
}

func (n *AlertNotifier) send(ctx context.Context, payload alertPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}
