package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tg-groupguard/internal/logger"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
)

// WebhookServer is the HTTP server that receives Telegram updates.
type WebhookServer struct {
	server   *http.Server
	certFile string
	keyFile  string
}

// Start listens for updates, with TLS when a certificate pair is configured.
func (ws *WebhookServer) Start() error {
	logger.Infof("Starting webhook server on %s", ws.server.Addr)

	if ws.certFile != "" && ws.keyFile != "" {
		return ws.server.ListenAndServeTLS(ws.certFile, ws.keyFile)
	}

	logger.Warningf("Running without TLS, an HTTPS proxy must terminate the connection")
	return ws.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (ws *WebhookServer) Shutdown(ctx context.Context) error {
	return ws.server.Shutdown(ctx)
}

// SetupWebhook registers the webhook with Telegram and builds the update
// pipeline: an HTTP server validating the secret token, and a bot handler
// fed from its updates channel.
func SetupWebhook(ctx context.Context, bot *telego.Bot, webhookPoint, listenPort, debugPath, secretToken string, certFile, keyFile string) (*th.BotHandler, *WebhookServer, error) {
	if webhookPoint == "" {
		return nil, nil, fmt.Errorf("webhook endpoint is required")
	}

	if listenPort == "" {
		listenPort = "8443"
		logger.Infof("Using default listen port: %s", listenPort)
	}

	// Telegram only delivers to HTTPS endpoints.
	if (certFile == "" || keyFile == "") && !strings.HasPrefix(webhookPoint, "https://") {
		return nil, nil, fmt.Errorf("HTTPS configuration required: set cert_file and key_file in config or use a HTTPS proxy")
	}

	parsedURL, err := url.Parse(webhookPoint)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}

	webhookPath := parsedURL.Path
	if webhookPath == "" {
		webhookPath = "/webhook"
		logger.Infof("No path in webhook endpoint, using %s", webhookPath)
	}

	logger.Infof("Setting webhook to: %s", webhookPoint)
	err = bot.SetWebhook(ctx, &telego.SetWebhookParams{
		URL: webhookPoint,
		// Message traffic plus the membership transitions the welcome
		// flow needs.
		AllowedUpdates: []string{"message", "chat_member", "my_chat_member"},
		SecretToken:    secretToken,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set webhook: %w", err)
	}

	if info, err := bot.GetWebhookInfo(ctx); err != nil {
		logger.Warningf("Failed to get webhook info: %v", err)
	} else {
		logger.Infof("Webhook registered: URL=%s, PendingUpdateCount=%d, AllowedUpdates=%v",
			info.URL, info.PendingUpdateCount, info.AllowedUpdates)
		if info.LastErrorDate > 0 {
			logger.Warningf("Webhook last error: [%d] %s", info.LastErrorDate, info.LastErrorMessage)
		}
	}

	mux := http.NewServeMux()

	// The debug endpoint reports the webhook state Telegram sees. It is
	// the first thing to check when updates stop arriving.
	if debugPath != "" {
		mux.HandleFunc(debugPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")

			info, err := bot.GetWebhookInfo(r.Context())
			if err != nil {
				fmt.Fprintf(w, "webhook info unavailable: %v\n", err)
				return
			}

			fmt.Fprintf(w, "webhook URL: %s\npending updates: %d\n", info.URL, info.PendingUpdateCount)
			if info.LastErrorDate > 0 {
				errorTime := time.Unix(int64(info.LastErrorDate), 0)
				fmt.Fprintf(w, "last error: [%s] %s\n", errorTime.Format("2006-01-02 15:04:05"), info.LastErrorMessage)
			}
		})
	}

	server := &http.Server{
		Addr:    "0.0.0.0:" + listenPort,
		Handler: mux,
	}

	updates, err := bot.UpdatesViaWebhook(ctx,
		telego.WebhookHTTPServeMux(mux, webhookPath, secretToken),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get updates channel: %w", err)
	}

	bh, err := th.NewBotHandler(bot, updates)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bot handler: %w", err)
	}

	return bh, &WebhookServer{
		server:   server,
		certFile: certFile,
		keyFile:  keyFile,
	}, nil
}
