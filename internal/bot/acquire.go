package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AcquisitionError indicates the submitted image could not be
// downloaded from the chat platform. The pipeline halts before any
// inference call is made.
type AcquisitionError struct {
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquiring receipt image: %v", e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// acquired holds one downloaded receipt image. The bytes live only for
// the duration of the pipeline run.
type acquired struct {
	data        []byte
	contentType string
	fileID      string
}

// acquire resolves the message's photo (or image/PDF document) to raw
// bytes. Photos come in multiple resolutions; the largest is used. The
// download is staged through a temp file which is removed on every
// exit path.
func (b *Bot) acquire(ctx context.Context, msg *tgbotapi.Message) (*acquired, error) {
	fileID, contentType, err := selectFile(msg)
	if err != nil {
		return nil, &AcquisitionError{Err: err}
	}

	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, &AcquisitionError{Err: fmt.Errorf("resolving file url: %w", err)}
	}

	data, err := b.download(ctx, url)
	if err != nil {
		return nil, &AcquisitionError{Err: err}
	}

	return &acquired{data: data, contentType: contentType, fileID: fileID}, nil
}

// selectFile picks the file reference to download. Telegram sends
// photo variants ordered by size, but we compare areas rather than
// trust the ordering.
func selectFile(msg *tgbotapi.Message) (fileID, contentType string, err error) {
	if len(msg.Photo) > 0 {
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		return best.FileID, "image/jpeg", nil
	}

	if doc := msg.Document; doc != nil {
		switch doc.MimeType {
		case "image/jpeg", "image/png", "image/gif", "image/heic", "image/heif", "application/pdf":
			return doc.FileID, doc.MimeType, nil
		}
		return "", "", fmt.Errorf("unsupported document type %q", doc.MimeType)
	}

	return "", "", fmt.Errorf("message contains no photo")
}

func (b *Bot) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading file: status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "ledgerbot-receipt-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing temp file: %w", err)
	}

	data, err := os.ReadFile(tmpName)
	if err != nil {
		return nil, fmt.Errorf("reading staged file: %w", err)
	}
	return data, nil
}
