package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/ghnotify/internal/slack"
)

// ErrDeliveryDeadline は次の送信枠がサイクルの期限より後になることを表す。
var ErrDeliveryDeadline = errors.New("next delivery slot is past the cycle deadline")

// MessageSender はメッセージを送信する。*slack.WebhookSender が満たす。
type MessageSender interface {
	Send(ctx context.Context, msg slack.Message) error
}

// Dispatcher は送信間隔を空けながらメッセージを1件ずつ送信する。
// 再送は行わない。
type Dispatcher struct {
	sender  MessageSender
	limiter *rate.Limiter
}

// NewDispatcher はDispatcherを生成する。
// minIntervalは送信間の最小間隔で、0以下の場合は間隔を空けない。
func NewDispatcher(sender MessageSender, minInterval time.Duration) *Dispatcher {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Dispatcher{
		sender:  sender,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Deliver は送信枠が空くまで待ってからメッセージを送信する。
// 待機中にctxがキャンセルされた場合はctxのエラーを、期限までに送信枠が空かない場合は
// ErrDeliveryDeadlineを返す。どちらの場合も送信は行わない。
func (d *Dispatcher) Deliver(ctx context.Context, msg slack.Message) error {
	if err := d.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrDeliveryDeadline, err)
	}
	return d.sender.Send(ctx, msg)
}
