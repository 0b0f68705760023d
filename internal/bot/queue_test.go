package bot

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func chatMessage(chatID int64, messageID int) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: messageID,
		Chat:      &tgbotapi.Chat{ID: chatID},
	}
}

var _ = Describe("chatQueues", func() {
	var (
		queues *chatQueues
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		queues = newChatQueues(photoQueueSize)
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	It("should handle messages from one chat in submission order", func() {
		var mu sync.Mutex
		var handled []int
		done := make(chan struct{}, 3)
		handle := func(_ context.Context, msg *tgbotapi.Message) {
			mu.Lock()
			handled = append(handled, msg.MessageID)
			mu.Unlock()
			done <- struct{}{}
		}

		for i := 1; i <= 3; i++ {
			Expect(queues.dispatch(ctx, chatMessage(7, i), handle)).To(BeTrue())
		}
		for i := 0; i < 3; i++ {
			Eventually(done).Should(Receive())
		}

		mu.Lock()
		defer mu.Unlock()
		Expect(handled).To(Equal([]int{1, 2, 3}))
	})

	It("should not let one chat's backlog block another chat", func() {
		otherDone := make(chan struct{})
		blockedDone := make(chan struct{})

		blocked := func(_ context.Context, _ *tgbotapi.Message) {
			// Finishes only after the other chat's message got through.
			<-otherDone
			close(blockedDone)
		}
		other := func(_ context.Context, _ *tgbotapi.Message) {
			close(otherDone)
		}

		Expect(queues.dispatch(ctx, chatMessage(1, 1), blocked)).To(BeTrue())
		Expect(queues.dispatch(ctx, chatMessage(2, 1), other)).To(BeTrue())

		Eventually(blockedDone, time.Second).Should(BeClosed())
	})

	It("should refuse a message when the chat's queue is full", func() {
		queues = newChatQueues(1)
		started := make(chan struct{}, 2)
		release := make(chan struct{})
		handle := func(_ context.Context, _ *tgbotapi.Message) {
			started <- struct{}{}
			<-release
		}

		// First message occupies the worker, second fills the buffer.
		Expect(queues.dispatch(ctx, chatMessage(7, 1), handle)).To(BeTrue())
		Eventually(started).Should(Receive())
		Expect(queues.dispatch(ctx, chatMessage(7, 2), handle)).To(BeTrue())

		Expect(queues.dispatch(ctx, chatMessage(7, 3), handle)).To(BeFalse())
		close(release)
	})
})
