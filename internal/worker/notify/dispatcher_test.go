package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/ghnotify/internal/slack"
)

func TestNewDispatcher_ReturnsNonNil(t *testing.T) {
	if NewDispatcher(&mockSender{}, time.Second) == nil {
		t.Fatal("NewDispatcher は nil を返してはならない")
	}
}

func TestDispatcher_Deliver_SendsMessage(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(sender, 0)

	msg := slack.Message{Blocks: []slack.Block{slack.HeaderBlock("hello")}}
	if err := d.Deliver(context.Background(), msg); err != nil {
		t.Fatalf("Deliver() がエラーを返した: %v", err)
	}
	if got := sender.messages(); len(got) != 1 || got[0].Blocks[0].Text.Text != "hello" {
		t.Errorf("送信されたメッセージ = %+v", got)
	}
}

func TestDispatcher_Deliver_ReturnsSenderError(t *testing.T) {
	sendErr := &slack.DeliveryError{StatusCode: 500, Body: "oops"}
	sender := &mockSender{
		sendFunc: func(ctx context.Context, msg slack.Message) error { return sendErr },
	}
	d := NewDispatcher(sender, 0)

	err := d.Deliver(context.Background(), slack.Message{})
	if !errors.Is(err, sendErr) {
		t.Errorf("err = %v, want %v", err, sendErr)
	}
}

func TestDispatcher_Deliver_SpacesSends(t *testing.T) {
	sender := &mockSender{}
	interval := 50 * time.Millisecond
	d := NewDispatcher(sender, interval)

	for i := 0; i < 3; i++ {
		if err := d.Deliver(context.Background(), slack.Message{}); err != nil {
			t.Fatalf("Deliver() がエラーを返した: %v", err)
		}
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sentAt) != 3 {
		t.Fatalf("送信回数 = %d, want 3", len(sender.sentAt))
	}
	// 初回はburstで即時、以降は間隔を空ける（タイマーの誤差を許容）
	for i := 1; i < len(sender.sentAt); i++ {
		gap := sender.sentAt[i].Sub(sender.sentAt[i-1])
		if gap < interval-10*time.Millisecond {
			t.Errorf("送信間隔[%d] = %v, want >= %v", i, gap, interval)
		}
	}
}

func TestDispatcher_Deliver_ZeroIntervalDoesNotWait(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(sender, 0)

	start := time.Now()
	for i := 0; i < 20; i++ {
		if err := d.Deliver(context.Background(), slack.Message{}); err != nil {
			t.Fatalf("Deliver() がエラーを返した: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("間隔0で待機が発生した: %v", elapsed)
	}
}

func TestDispatcher_Deliver_CancelledContext(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(sender, time.Hour)

	// 1件目でburstを消費する
	if err := d.Deliver(context.Background(), slack.Message{}); err != nil {
		t.Fatalf("Deliver() がエラーを返した: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Deliver(ctx, slack.Message{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if n := len(sender.messages()); n != 1 {
		t.Errorf("キャンセル後に送信された: 送信回数 = %d, want 1", n)
	}
}

func TestDispatcher_Deliver_SlotPastDeadline(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(sender, time.Hour)

	if err := d.Deliver(context.Background(), slack.Message{}); err != nil {
		t.Fatalf("Deliver() がエラーを返した: %v", err)
	}

	// 次の送信枠は1時間後なので期限内に送れない
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := d.Deliver(ctx, slack.Message{})
	if !errors.Is(err, ErrDeliveryDeadline) {
		t.Errorf("err = %v, want ErrDeliveryDeadline", err)
	}
	if n := len(sender.messages()); n != 1 {
		t.Errorf("送信回数 = %d, want 1", n)
	}
}
