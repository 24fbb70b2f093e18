package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"firebase.google.com/go/v4/messaging"

	"trackmybus/internal/types"
)

// FirebaseNotifier pushes activity changes to the FCM topic of the vehicle,
// which parent devices subscribe to.
type FirebaseNotifier struct {
	client *messaging.Client
}

var _ Notifier = (*FirebaseNotifier)(nil)

func NewFirebaseNotifier(client *messaging.Client) *FirebaseNotifier {
	return &FirebaseNotifier{client: client}
}

func (n *FirebaseNotifier) ActivityChanged(ctx context.Context, vehicleID types.ID, active bool) error {
	msg := activityMessage(vehicleID, active)
	messageID, err := n.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending FCM to topic %s: %w", msg.Topic, err)
	}
	slog.Info("FCM sent", "vehicle", vehicleID, "active", active, "message_id", messageID)
	return nil
}

func activityMessage(vehicleID types.ID, active bool) *messaging.Message {
	title, body := "Bus tracking stopped", fmt.Sprintf("Bus %s is no longer sharing its location", vehicleID)
	if active {
		title, body = "Bus is on the way", fmt.Sprintf("Bus %s started sharing its location", vehicleID)
	}
	return &messaging.Message{
		Topic: Topic(vehicleID),
		Data: map[string]string{
			"type":       "vehicle_activity",
			"vehicle_id": string(vehicleID),
			"active":     strconv.FormatBool(active),
		},
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}

// Topic is the FCM topic for a vehicle. Characters FCM does not accept in
// topic names are replaced with '_'.
func Topic(vehicleID types.ID) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.' || r == '~' || r == '%':
			return r
		}
		return '_'
	}, string(vehicleID))
	return "vehicle_" + clean
}
