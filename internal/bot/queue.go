package bot

import (
	"context"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// chatQueues serializes photo handling per chat. Receipts from the same
// chat are processed in the order they were submitted, while different
// chats run concurrently.
type chatQueues struct {
	size int

	mu     sync.Mutex
	queues map[int64]chan *tgbotapi.Message
}

func newChatQueues(size int) *chatQueues {
	return &chatQueues{
		size:   size,
		queues: make(map[int64]chan *tgbotapi.Message),
	}
}

// dispatch enqueues msg on its chat's queue, starting a worker for the
// chat on first use. It never blocks: when the queue is full it reports
// false and the caller tells the user to resend later.
func (q *chatQueues) dispatch(ctx context.Context, msg *tgbotapi.Message, handle func(context.Context, *tgbotapi.Message)) bool {
	q.mu.Lock()
	ch, ok := q.queues[msg.Chat.ID]
	if !ok {
		ch = make(chan *tgbotapi.Message, q.size)
		q.queues[msg.Chat.ID] = ch
		go q.worker(ctx, msg.Chat.ID, ch, handle)
	}
	q.mu.Unlock()

	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}

func (q *chatQueues) worker(ctx context.Context, chatID int64, ch <-chan *tgbotapi.Message, handle func(context.Context, *tgbotapi.Message)) {
	slog.Debug("starting chat worker", "chat_id", chatID)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			handle(ctx, msg)
		}
	}
}
