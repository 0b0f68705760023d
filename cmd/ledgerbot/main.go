package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"ledgerbot/internal/bot"
	"ledgerbot/internal/drive"
	"ledgerbot/internal/pipeline"
	"ledgerbot/internal/receipt"
	"ledgerbot/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	fs := ff.NewFlagSet("ledgerbot")
	var (
		telegramToken = fs.StringLong("telegram-token", "", "Telegram bot token (or set LEDGERBOT_TELEGRAM_TOKEN)")
		ledgerName    = fs.StringLong("ledger", "receipts.xlsx", "Remote ledger document name")
		dbPath        = fs.StringLong("db", "ledgerbot.db", "Local history database file path")
		dedup         = fs.BoolLong("dedup", "Skip receipts whose merchant/date/total were already recorded")

		scannerType    = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-1.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		promptVersion  = fs.StringLong("prompt-version", scanning.DefaultPromptVersion, "Extraction prompt/schema version")
		extractTimeout = fs.DurationLong("extract-timeout", 30*time.Second, "Timeout for a single extraction call")

		storageType = fs.StringLong("storage", "onedrive", "Ledger storage backend: 'onedrive' or 'local'")
		localPath   = fs.StringLong("local-path", "./ledger", "Directory for the 'local' storage backend")
		tenantID    = fs.StringLong("azure-tenant-id", "", "Azure AD tenant ID")
		clientID    = fs.StringLong("azure-client-id", "", "Azure AD application (client) ID")
		clientSec   = fs.StringLong("azure-client-secret", "", "Azure AD client secret")
		drivePath   = fs.StringLong("drive-path", "me/drive", "Graph drive path, e.g. 'me/drive' or 'drives/<id>'")

		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("LEDGERBOT"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("initializing history database...", "path", *dbPath)
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	scanner, err := buildScanner(ctx, *scannerType, *geminiKey, *geminiModel, *ollamaURL, *ollamaModel, *promptVersion, *extractTimeout)
	if err != nil {
		slog.Error("failed to initialize scanner", "error", err)
		os.Exit(1)
	}
	defer scanner.Close()

	store, err := buildStore(*storageType, *localPath, *tenantID, *clientID, *clientSec, *drivePath)
	if err != nil {
		slog.Error("failed to initialize ledger storage", "error", err)
		os.Exit(1)
	}

	service := pipeline.New(pipeline.Config{
		Scanner:    scanner,
		Store:      store,
		DB:         db,
		LedgerName: *ledgerName,
		Dedup:      *dedup,
	})

	token := *telegramToken
	if token == "" {
		token = os.Getenv("TELEGRAM_TOKEN")
	}
	b, err := bot.New(token, service)
	if err != nil {
		slog.Error("failed to initialize bot", "error", err)
		os.Exit(1)
	}

	slog.Info("ledgerbot starting", "version", version, "storage", *storageType, "ledger", *ledgerName, "dedup", *dedup)
	if err := b.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("bot stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("shutting down...")
}

func buildScanner(ctx context.Context, scannerType, geminiKey, geminiModel, ollamaURL, ollamaModel, promptVersion string, timeout time.Duration) (scanning.Scanner, error) {
	switch scannerType {
	case "gemini":
		apiKey := geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("initializing gemini scanner...", "model", geminiModel, "prompt", promptVersion)
		return scanning.NewGemini(ctx, scanning.GeminiConfig{
			APIKey:        apiKey,
			Model:         geminiModel,
			PromptVersion: promptVersion,
			Timeout:       timeout,
		})
	case "ollama":
		slog.Info("initializing ollama scanner...", "url", ollamaURL, "model", ollamaModel, "prompt", promptVersion)
		return scanning.NewOllama(scanning.OllamaConfig{
			BaseURL:       ollamaURL,
			Model:         ollamaModel,
			PromptVersion: promptVersion,
		})
	default:
		return nil, fmt.Errorf("invalid scanner type %q (valid: gemini, ollama)", scannerType)
	}
}

func buildStore(storageType, localPath, tenantID, clientID, clientSecret, drivePath string) (drive.Store, error) {
	switch storageType {
	case "onedrive":
		slog.Info("initializing onedrive storage...", "drive", drivePath)
		return drive.NewGraph(drive.GraphConfig{
			TenantID:     tenantID,
			ClientID:     clientID,
			ClientSecret: clientSecret,
			DrivePath:    drivePath,
		})
	case "local":
		slog.Info("initializing local storage...", "path", localPath)
		return drive.NewLocal(localPath)
	default:
		return nil, fmt.Errorf("invalid storage type %q (valid: onedrive, local)", storageType)
	}
}
