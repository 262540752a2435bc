package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/superpool/walletauth/ports"
)

// LoginEvent represents a successful authentication
type LoginEvent struct {
	Address   string `json:"address"`
	SessionID string `json:"session_id"`
}

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Address string `json:"address"`
	TokenID string `json:"token_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher   message.Publisher
	loginTopic  string
	logoutTopic string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher:   publisher,
		loginTopic:  "walletauth.login",
		logoutTopic: "walletauth.logout",
	}
}

// PublishLogin publishes a login event
func (p *WatermillPublisher) PublishLogin(ctx context.Context, address string, sessionID string) error {
	return p.publish(p.loginTopic, sessionID, LoginEvent{
		Address:   address,
		SessionID: sessionID,
	})
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, tokenID string) error {
	return p.publish(p.logoutTopic, tokenID, LogoutEvent{
		Address: address,
		TokenID: tokenID,
	})
}

func (p *WatermillPublisher) publish(topic, id string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
