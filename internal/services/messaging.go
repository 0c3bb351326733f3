package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
)

// Message is a push notification addressed to a single device.
type Message struct {
	Title       string
	Body        string
	ClickAction string
	Data        map[string]string
}

// Sender delivers push notifications.
type Sender interface {
	SendToDevice(ctx context.Context, token string, msg Message) error
}

var ErrNoToken = errors.New("device registration token is empty")

// FCMSender delivers through Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
}

func NewFCMSender(ctx context.Context, projectID string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging client: %w", err)
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) SendToDevice(ctx context.Context, token string, msg Message) error {
	if token == "" {
		return ErrNoToken
	}
	m := &messaging.Message{
		Token: token,
		Data:  msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
	}
	if msg.ClickAction != "" {
		m.Android = &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{ClickAction: msg.ClickAction},
		}
	}
	id, err := s.client.Send(ctx, m)
	if err != nil {
		return fmt.Errorf("send push notification: %w", err)
	}
	slog.Debug("push notification sent", "message_id", id)
	return nil
}

// LogSender only logs what would have been sent. It is used when push
// delivery is disabled.
type LogSender struct{}

func (LogSender) SendToDevice(ctx context.Context, token string, msg Message) error {
	if token == "" {
		return ErrNoToken
	}
	slog.Info("push notification (not delivered)", "title", msg.Title, "body", msg.Body, "data", msg.Data)
	return nil
}
