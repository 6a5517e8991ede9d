package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"remindbot/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultAPIURL   = "https://api.telegram.org"
	defaultTimeout  = 30 * time.Second
	defaultSendRate = 25
)

// Commands is the menu registered with setMyCommands.
var Commands = []models.BotCommandMenu{
	{Command: "start", Description: "🚀 Start the bot and see welcome message"},
	{Command: "remind", Description: "⏰ Set a reminder: /remind in 2 hours | text"},
	{Command: "list", Description: "📋 View your pending reminders"},
	{Command: "delete", Description: "🗑 Delete a reminder by id"},
	{Command: "delete_all", Description: "🧹 Delete all your pending reminders"},
	{Command: "help", Description: "❓ Show help and available commands"},
}

// APIError is a Bot API call Telegram answered with ok=false or a non-200
// status.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram %s API error (status %d)", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("telegram %s API error (status %d): %s", e.Method, e.StatusCode, e.Description)
}

type Config struct {
	Token   string
	BaseURL string
	Timeout time.Duration
	// SendRate caps outgoing calls per second across all chats.
	SendRate float64
	Logger   *logrus.Logger
}

type Bot struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

func NewBot(config *Config) *Bot {
	if config.BaseURL == "" {
		config.BaseURL = defaultAPIURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.SendRate <= 0 {
		config.SendRate = defaultSendRate
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	return &Bot{
		token:   config.Token,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(config.SendRate), 1),
		logger:  config.Logger,
	}
}

// Send delivers a reminder. It satisfies services.Sender.
func (b *Bot) Send(ctx context.Context, destinationID int64, text string) error {
	return b.SendMessage(ctx, destinationID, text)
}

// SendMessage posts HTML-formatted text to a chat.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	return b.call(ctx, "sendMessage", models.TelegramResponse{
		ChatId:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
}

// SetCommands replaces the bot's command menu.
func (b *Bot) SetCommands(ctx context.Context, commands []models.BotCommandMenu) error {
	return b.call(ctx, "setMyCommands", map[string]interface{}{
		"commands": commands,
	})
}

func (b *Bot) call(ctx context.Context, method string, payload interface{}) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", method, err)
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", b.baseURL, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	var result models.APIResult
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode != http.StatusOK || decodeErr != nil || !result.Ok {
		b.logger.WithFields(logrus.Fields{
			"method": method,
			"status": resp.StatusCode,
		}).Warn("Telegram API call failed")
		return &APIError{Method: method, StatusCode: resp.StatusCode, Description: result.Description}
	}
	return nil
}
