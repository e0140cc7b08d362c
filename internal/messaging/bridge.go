package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"botvac-bridge/internal/command"
	"botvac-bridge/internal/utils"

	"github.com/google/uuid"
)

// Dispatcher runs bridge requests.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request) command.Result
}

// Bridge turns command messages into dispatcher calls and publishes results.
// Each message is handled on its own goroutine so a slow robot does not block
// the MQTT callback.
type Bridge struct {
	client     Client
	dispatcher Dispatcher
	prefix     string
	timeout    time.Duration

	ctx context.Context
	wg  sync.WaitGroup
}

// NewBridge returns a bridge that dispatches under ctx and replies
// through client.
func NewBridge(ctx context.Context, client Client, dispatcher Dispatcher, prefix string, timeout time.Duration) *Bridge {
	return &Bridge{
		client:     client,
		dispatcher: dispatcher,
		prefix:     prefix,
		timeout:    timeout,
		ctx:        ctx,
	}
}

// HandleCommand implements CommandHandler.
func (b *Bridge) HandleCommand(serial string, payload []byte) {
	data := append([]byte(nil), payload...)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.Process(serial, data)
	}()
}

// Process handles one command message synchronously and returns the
// published result.
func (b *Bridge) Process(serial string, payload []byte) command.Result {
	var req command.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		res := command.Result{
			ID:        uuid.NewString(),
			Serial:    serial,
			Status:    command.StateFailed,
			Error:     "malformed command: " + err.Error(),
			Timestamp: time.Now(),
		}
		b.publish(res)
		return res
	}
	req.Serial = serial
	req.Source = command.SourceMQTT

	ctx := b.ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(b.ctx, b.timeout)
		defer cancel()
	}

	res := b.dispatcher.Dispatch(ctx, req)
	b.publish(res)
	return res
}

func (b *Bridge) publish(res command.Result) {
	body, err := json.Marshal(res)
	if err != nil {
		utils.ForRobot(res.Serial).Errorf("Failed to encode result %s: %v", res.ID, err)
		return
	}
	if err := b.client.Publish(ResponseTopic(b.prefix, res.Serial), 1, false, body); err != nil {
		utils.ForRobot(res.Serial).Errorf("Failed to publish result %s: %v", res.ID, err)
	}
}

// Wait blocks until in-flight messages are done.
func (b *Bridge) Wait() {
	b.wg.Wait()
}
