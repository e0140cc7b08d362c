package messaging

import (
	"fmt"
	"time"

	"botvac-bridge/internal/config"
	"botvac-bridge/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client MQTT 클라이언트 인터페이스
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
	Subscribe(topic string, qos byte, callback MessageHandler) error
	Disconnect(quiesce uint)
	IsConnected() bool
}

// MessageHandler 원시 메시지 처리 함수, 브로커 콜백 밖에서 주입되면 client는 nil
type MessageHandler func(client mqtt.Client, msg mqtt.Message)

// MQTTClient MQTT 클라이언트 구현체
type MQTTClient struct {
	client mqtt.Client
	config *config.Config
}

// NewMQTTClient 새 MQTT 클라이언트 생성
func NewMQTTClient(cfg *config.Config) (*MQTTClient, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	// 재연결 시 구독은 브로커 세션이 복원
	opts.SetCleanSession(false)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		utils.Logger.Infof("MQTT client connected to %s", cfg.MQTTBroker)
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		utils.Logger.Errorf("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	utils.Logger.Infof("✅ MQTT Client CREATED (client id %s)", cfg.MQTTClientID)
	return &MQTTClient{client: client, config: cfg}, nil
}

// Publish 메시지 발행
func (c *MQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	utils.Logger.Debugf("📤 MQTT SENDING Topic: %s, QoS: %d, Retained: %v", topic, qos, retained)

	token := c.client.Publish(topic, qos, retained, payload)
	if token.Wait() && token.Error() != nil {
		utils.Logger.Errorf("❌ MQTT SEND FAILED: %s - %v", topic, token.Error())
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}
	return nil
}

// Subscribe 토픽 구독
func (c *MQTTClient) Subscribe(topic string, qos byte, callback MessageHandler) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	token := c.client.Subscribe(topic, qos, mqtt.MessageHandler(callback))
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Disconnect 연결 해제
func (c *MQTTClient) Disconnect(quiesce uint) {
	if c.client.IsConnected() {
		c.client.Disconnect(quiesce)
		utils.Logger.Info("MQTT client disconnected")
	}
}

func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnected()
}
