package messaging

import (
	"botvac-bridge/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// CommandHandler 명령 처리 인터페이스
type CommandHandler interface {
	HandleCommand(serial string, payload []byte)
}

// SessionHandler 세션 캐시 처리 인터페이스
type SessionHandler interface {
	Invalidate(serial string)
}

// Router 메시지 라우터
type Router struct {
	prefix         string
	commandHandler CommandHandler
	sessionHandler SessionHandler
}

// NewRouter 새 메시지 라우터 생성
func NewRouter(prefix string, commandHandler CommandHandler, sessionHandler SessionHandler) *Router {
	return &Router{
		prefix:         prefix,
		commandHandler: commandHandler,
		sessionHandler: sessionHandler,
	}
}

// RouteMessage 토픽에 따라 메시지 라우팅
func (r *Router) RouteMessage(client mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	serial, kind, ok := ParseTopic(r.prefix, topic)
	if !ok {
		utils.Logger.Warnf("Unhandled topic: %s", topic)
		return
	}

	switch kind {
	case suffixCommand:
		r.commandHandler.HandleCommand(serial, msg.Payload())
	case suffixInvalidate:
		if r.sessionHandler != nil {
			utils.ForRobot(serial).Info("Dropping cached session on request")
			r.sessionHandler.Invalidate(serial)
		}
	default:
		utils.Logger.Warnf("Unhandled topic: %s", topic)
	}
}
