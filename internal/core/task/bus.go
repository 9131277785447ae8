package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/caselink/voice-call-service/internal/domain"
	"github.com/caselink/voice-call-service/pkg/logger"
	pkgredis "github.com/caselink/voice-call-service/pkg/redis"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type identifies a kind of background work.
type Type string

const (
	// TypeAnalyzeRecording asks a worker to run the recording pipeline for
	// an ended call.
	TypeAnalyzeRecording Type = "analyze_recording"
)

// Task is one unit of background work.
type Task struct {
	ID        string       `json:"id"`
	Type      Type         `json:"type"`
	CallID    string       `json:"call_id"`
	Payload   domain.JSONB `json:"payload,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Handler consumes one task. A returned error is logged; tasks are not
// redelivered automatically.
type Handler func(ctx context.Context, t *Task) error

// Bus decouples task producers from workers. The in-process bus serves a
// single instance; the Redis bus fans tasks out across instances.
type Bus interface {
	Publish(ctx context.Context, t *Task) error
	Subscribe(taskType Type, h Handler)
}

func prepare(t *Task) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
}

// InProcessBus dispatches tasks to handlers in goroutines within the same
// process.
type InProcessBus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
}

// NewInProcessBus creates an empty in-process bus.
func NewInProcessBus() *InProcessBus {
	return &InProcessBus{handlers: make(map[Type][]Handler)}
}

// Subscribe registers h for taskType.
func (b *InProcessBus) Subscribe(taskType Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[taskType] = append(b.handlers[taskType], h)
}

// Publish dispatches t to every registered handler asynchronously.
func (b *InProcessBus) Publish(_ context.Context, t *Task) error {
	prepare(t)

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[t.Type]))
	copy(handlers, b.handlers[t.Type])
	b.mu.RUnlock()

	if len(handlers) == 0 {
		logger.Base().Warn("no handler for task type", zap.String("task_type", string(t.Type)))
		return nil
	}
	for _, h := range handlers {
		go runHandler(h, t)
	}
	return nil
}

func runHandler(h Handler, t *Task) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := h(ctx, t); err != nil {
		logger.Base().Error("task handler failed",
			zap.String("task_id", t.ID),
			zap.String("task_type", string(t.Type)),
			zap.String("call_id", t.CallID),
			zap.Error(err))
	}
}

const redisTaskChannel = "callsvc_tasks"

// RedisBus publishes tasks over Redis pub/sub so any instance can pick one
// up.
type RedisBus struct {
	redis pkgredis.RedisServiceInterface

	mu       sync.RWMutex
	handlers map[Type][]Handler
	started  bool
}

// NewRedisBus creates a Redis-backed bus.
func NewRedisBus(svc pkgredis.RedisServiceInterface) *RedisBus {
	return &RedisBus{
		redis:    svc,
		handlers: make(map[Type][]Handler),
	}
}

// Subscribe registers h for taskType and starts the Redis subscription on
// first use.
func (b *RedisBus) Subscribe(taskType Type, h Handler) {
	b.mu.Lock()
	b.handlers[taskType] = append(b.handlers[taskType], h)
	needStart := !b.started
	b.started = true
	b.mu.Unlock()

	if needStart {
		if err := b.redis.Subscribe(context.Background(), redisTaskChannel, b.dispatch); err != nil {
			logger.Base().Error("failed to subscribe to task channel", zap.Error(err))
		}
	}
}

// Publish serializes t onto the shared task channel.
func (b *RedisBus) Publish(ctx context.Context, t *Task) error {
	prepare(t)
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := b.redis.Publish(ctx, redisTaskChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}
	return nil
}

func (b *RedisBus) dispatch(message string) {
	var t Task
	if err := json.Unmarshal([]byte(message), &t); err != nil {
		logger.Base().Error("failed to decode task message", zap.Error(err))
		return
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[t.Type]))
	copy(handlers, b.handlers[t.Type])
	b.mu.RUnlock()

	for _, h := range handlers {
		go runHandler(h, &t)
	}
}
