package messaging

import (
	"fmt"

	"botvac-bridge/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscriber MQTT 구독 관리자
type Subscriber struct {
	client Client
	router *Router
}

// NewSubscriber 새 구독자 생성
func NewSubscriber(client Client, router *Router) *Subscriber {
	return &Subscriber{client: client, router: router}
}

// SubscribeAll 모든 필요한 토픽 구독
func (s *Subscriber) SubscribeAll() error {
	subscriptions := []struct {
		topic       string
		description string
	}{
		{topic: CommandTopic(s.router.prefix), description: "Robot Commands"},
		{topic: InvalidateTopic(s.router.prefix), description: "Session Invalidation"},
	}

	for _, sub := range subscriptions {
		if err := s.client.Subscribe(sub.topic, 1, s.handleMessage); err != nil {
			utils.Logger.Errorf("❌ SUBSCRIPTION FAILED: %s - %v", sub.topic, err)
			return fmt.Errorf("failed to subscribe to %s: %w", sub.topic, err)
		}
		utils.Logger.Infof("✅ SUBSCRIPTION SUCCESS: %s (%s)", sub.topic, sub.description)
	}
	return nil
}

// handleMessage 수신된 메시지를 라우터에 전달
func (s *Subscriber) handleMessage(client mqtt.Client, msg mqtt.Message) {
	utils.Logger.Debugf("📨 MESSAGE RECEIVED Topic: %s", msg.Topic())
	s.router.RouteMessage(client, msg)
}
