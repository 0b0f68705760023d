package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GraphConfig configures a Graph store. BaseURL and TokenURL exist so
// tests can point the client at a fake server.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// DrivePath selects the drive, e.g. "me/drive" or "drives/<id>".
	DrivePath string

	BaseURL    string // default https://graph.microsoft.com/v1.0
	TokenURL   string // default derived from TenantID
	HTTPClient *http.Client
}

// Graph stores the ledger document in OneDrive through the Microsoft
// Graph API, authenticating with the OAuth2 client-credentials flow.
// The token is held only in memory and refreshed on demand.
type Graph struct {
	conf   *clientcredentials.Config
	client *http.Client

	baseURL   string
	drivePath string

	// tokenCtx backs the token source. The session outlives any one
	// request, so it must not be bound to a caller context: a canceled
	// publish would poison every later token refresh.
	tokenCtx context.Context

	mu     sync.Mutex
	tokens oauth2.TokenSource
}

// NewGraph creates a Graph store.
func NewGraph(cfg GraphConfig) (*Graph, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("graph client id and secret are required")
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		if cfg.TenantID == "" {
			return nil, fmt.Errorf("graph tenant id is required")
		}
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://graph.microsoft.com/v1.0"
	}
	drivePath := cfg.DrivePath
	if drivePath == "" {
		drivePath = "me/drive"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	return &Graph{
		conf: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		},
		client:    client,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		drivePath: strings.Trim(drivePath, "/"),
		tokenCtx:  context.WithValue(context.Background(), oauth2.HTTPClient, client),
	}, nil
}

// token returns the current access token, fetching one if needed.
// refresh discards the cached session so the next token call hits the
// token endpoint again.
func (g *Graph) token() (*oauth2.Token, error) {
	g.mu.Lock()
	if g.tokens == nil {
		g.tokens = g.conf.TokenSource(g.tokenCtx)
	}
	ts := g.tokens
	g.mu.Unlock()

	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("acquiring graph token: %w", err)
	}
	return tok, nil
}

func (g *Graph) refresh() {
	g.mu.Lock()
	g.tokens = nil
	g.mu.Unlock()
}

func (g *Graph) contentURL(name string) string {
	return fmt.Sprintf("%s/%s/root:/%s:/content", g.baseURL, g.drivePath, name)
}

// Upload replaces the remote document at name. A failed attempt gets
// exactly one retry with a refreshed session before reporting SyncError.
func (g *Graph) Upload(ctx context.Context, name string, data []byte) error {
	err := g.put(ctx, name, data)
	if err == nil {
		return nil
	}

	slog.Warn("ledger upload failed, refreshing session and retrying", "name", name, "error", err)
	g.refresh()
	if retryErr := g.put(ctx, name, data); retryErr != nil {
		return &SyncError{Op: "upload", Err: retryErr}
	}
	return nil
}

func (g *Graph) put(ctx context.Context, name string, data []byte) error {
	tok, err := g.token()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.contentURL(name), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating upload request: %w", err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Content-Type", xlsxContentType)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling graph API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph upload error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// Download fetches the current remote document. A missing document is
// ErrNotExist, not a SyncError: first-run state is expected.
func (g *Graph) Download(ctx context.Context, name string) ([]byte, error) {
	data, err := g.get(ctx, name)
	if err == nil || errors.Is(err, ErrNotExist) {
		return data, err
	}

	slog.Warn("ledger download failed, refreshing session and retrying", "name", name, "error", err)
	g.refresh()
	data, err = g.get(ctx, name)
	if err != nil && !errors.Is(err, ErrNotExist) {
		return nil, &SyncError{Op: "download", Err: err}
	}
	return data, err
}

func (g *Graph) get(ctx context.Context, name string) ([]byte, error) {
	tok, err := g.token()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.contentURL(name), nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	tok.SetAuthHeader(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling graph API: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading document body: %w", err)
		}
		return data, nil
	case http.StatusNotFound:
		return nil, ErrNotExist
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("graph download error (status %d): %s", resp.StatusCode, string(body))
	}
}
