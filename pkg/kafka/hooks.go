package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"EconPulse/pkg/logger"
)

// ConsumerHook runs around every handler attempt. An error from
// BeforeHandle skips the handler and counts as a failed attempt.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// HookError classifies errors produced by hooks or recovered panics.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *HookError) Unwrap() error { return e.Err }

// HookFuncs adapts plain functions to ConsumerHook. Nil functions are no-ops.
type HookFuncs struct {
	Before func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error)
	After  func(context.Context, string, kafka.Message, []byte, error)
	Err    func(context.Context, string, kafka.Message, []byte, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	if h.Before == nil {
		return ctx, km, data, nil
	}
	return h.Before(ctx, topic, km, data)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.After != nil {
		h.After(ctx, topic, km, data, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, km, data, err)
	}
}

// MaxPayloadHook rejects messages larger than limit bytes before decoding.
func MaxPayloadHook(limit int) ConsumerHook {
	return HookFuncs{
		Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			if limit > 0 && len(data) > limit {
				return ctx, km, data, &HookError{Code: "ERR_TOO_LARGE", Err: fmt.Errorf("%d bytes on %s", len(data), topic)}
			}
			return ctx, km, data, nil
		},
	}
}

// DebugHook logs every handled message at debug level.
func DebugHook(l *logger.Logger) ConsumerHook {
	return HookFuncs{
		After: func(_ context.Context, topic string, km kafka.Message, data []byte, err error) {
			l.Debug("kafka message handled",
				logger.String("topic", topic),
				logger.Int64("offset", km.Offset),
				logger.Int("bytes", len(data)),
				logger.Bool("ok", err == nil),
			)
		},
	}
}

// ChainHooks runs hooks in order for BeforeHandle and OnError, and in
// reverse order for AfterHandle.
func ChainHooks(hooks ...ConsumerHook) ConsumerHook {
	return hookChain(hooks)
}

type hookChain []ConsumerHook

func (c hookChain) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	var err error
	for _, h := range c {
		if ctx, km, data, err = h.BeforeHandle(ctx, topic, km, data); err != nil {
			return ctx, km, data, err
		}
	}
	return ctx, km, data, nil
}

func (c hookChain) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].AfterHandle(ctx, topic, km, data, err)
	}
}

func (c hookChain) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for _, h := range c {
		h.OnError(ctx, topic, km, data, err)
	}
}
