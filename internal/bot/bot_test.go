package bot

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"ledgerbot/internal/drive"
	"ledgerbot/internal/pipeline"
	"ledgerbot/internal/receipt"
	"ledgerbot/internal/scanning"
)

func TestBot(t *testing.T) {
	// Disable logging during tests
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Bot Suite")
}

var _ = Describe("errorReply", func() {
	It("should explain acquisition failures", func() {
		err := &AcquisitionError{Err: errors.New("404")}
		Expect(errorReply(err)).To(ContainSubstring("couldn't download"))
	})

	It("should explain extraction failures", func() {
		err := &scanning.ExtractionError{Err: errors.New("timeout")}
		Expect(errorReply(err)).To(ContainSubstring("receipt reader is unavailable"))
	})

	It("should explain normalization failures", func() {
		err := &receipt.NormalizationError{Err: errors.New("no JSON")}
		Expect(errorReply(err)).To(ContainSubstring("couldn't read that receipt"))
	})

	It("should explain sync failures", func() {
		err := &drive.SyncError{Op: "upload", Err: errors.New("503")}
		Expect(errorReply(err)).To(ContainSubstring("saving to your ledger failed"))
	})

	It("should explain skipped duplicates", func() {
		Expect(errorReply(pipeline.ErrDuplicate)).To(ContainSubstring("already in your ledger"))
	})

	It("should map wrapped stage errors too", func() {
		err := fmt.Errorf("processing: %w", &drive.SyncError{Op: "upload", Err: errors.New("503")})
		Expect(errorReply(err)).To(ContainSubstring("saving to your ledger failed"))
	})

	It("should have a generic fallback", func() {
		Expect(errorReply(errors.New("surprise"))).To(ContainSubstring("Something went wrong"))
	})
})

var _ = Describe("selectFile", func() {
	When("the message carries photo variants", func() {
		It("should pick the highest-resolution variant", func() {
			msg := &tgbotapi.Message{
				Photo: []tgbotapi.PhotoSize{
					{FileID: "small", Width: 90, Height: 120},
					{FileID: "large", Width: 900, Height: 1200},
					{FileID: "medium", Width: 320, Height: 400},
				},
			}
			fileID, contentType, err := selectFile(msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(fileID).To(Equal("large"))
			Expect(contentType).To(Equal("image/jpeg"))
		})
	})

	When("the message carries an image document", func() {
		It("should use the document's content type", func() {
			msg := &tgbotapi.Message{
				Document: &tgbotapi.Document{FileID: "doc-1", MimeType: "application/pdf"},
			}
			fileID, contentType, err := selectFile(msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(fileID).To(Equal("doc-1"))
			Expect(contentType).To(Equal("application/pdf"))
		})

		It("should reject unsupported document types", func() {
			msg := &tgbotapi.Message{
				Document: &tgbotapi.Document{FileID: "doc-1", MimeType: "text/plain"},
			}
			_, _, err := selectFile(msg)
			Expect(err).To(HaveOccurred())
		})
	})

	When("the message has no attachment", func() {
		It("should fail", func() {
			_, _, err := selectFile(&tgbotapi.Message{})
			Expect(err).To(HaveOccurred())
		})
	})
})
