package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// PushSender delivers device pushes. FCMService is the production sender.
type PushSender interface {
	SendToUser(ctx context.Context, token, notifType, title, body string, data map[string]interface{}) error
	SendDataOnly(ctx context.Context, token string, data map[string]string) error
}

// FCMService sends push notifications via Firebase Cloud Messaging.
type FCMService struct {
	client *messaging.Client
}

// NewFCMService creates an FCM service. Returns nil if Firebase is not configured.
func NewFCMService(serviceAccountPath string) *FCMService {
	if serviceAccountPath == "" {
		return nil
	}
	ctx := context.Background()
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		log.Printf("[FCM] init firebase app: %v", err)
		return nil
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		log.Printf("[FCM] messaging client: %v", err)
		return nil
	}
	return &FCMService{client: client}
}

func (s *FCMService) send(ctx context.Context, msg *messaging.Message) error {
	if s == nil || s.client == nil || msg.Token == "" {
		return nil
	}
	if _, err := s.client.Send(ctx, msg); err != nil {
		log.Printf("[FCM] send: %v", err)
		return err
	}
	return nil
}

// SendToUser sends a visible notification. Data values are stringified
// since FCM only carries string values.
func (s *FCMService) SendToUser(ctx context.Context, token, notifType, title, body string, data map[string]interface{}) error {
	return s.send(ctx, &messaging.Message{
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         stringifyData(notifType, data),
		Token:        token,
		Android: &messaging.AndroidConfig{
			Priority:     "high",
			Notification: &messaging.AndroidNotification{Sound: "default"},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
		},
	})
}

// SendDataOnly sends a silent push with no notification block, so the app's
// background handler runs even when it is not in the foreground. Incoming
// calls use it to raise the native call screen.
func (s *FCMService) SendDataOnly(ctx context.Context, token string, data map[string]string) error {
	return s.send(ctx, &messaging.Message{
		Data:    data,
		Token:   token,
		Android: &messaging.AndroidConfig{Priority: "high"},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{ContentAvailable: true}},
		},
	})
}

func stringifyData(notifType string, data map[string]interface{}) map[string]string {
	out := map[string]string{"type": notifType}
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case uint, int, int64:
			out[k] = fmt.Sprintf("%d", val)
		case float64:
			out[k] = fmt.Sprintf("%g", val)
		default:
			b, _ := json.Marshal(v)
			out[k] = string(b)
		}
	}
	return out
}
