// Package telegram - клиент Telegram Bot API для рассылки сообщений.
package telegram

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"sourcetrader/internal/config"
	"sourcetrader/pkg/retry"
	"sourcetrader/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrBotTokenMissing = errors.New("telegram bot token is not configured")
	ErrEmptyText       = errors.New("message text is empty")
)

// APIError - отказ Bot API с кодом ответа
type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.StatusCode, e.Description)
}

// Sender - то, что нужно сервисам от клиента
type Sender interface {
	SendMessage(ctx context.Context, msg OutgoingMessage) error
}

// HTTPClientConfig - настройки транспорта
type HTTPClientConfig struct {
	ConnectTimeout      time.Duration
	TLSHandshakeTimeout time.Duration
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	KeepAliveInterval   time.Duration
}

// DefaultHTTPClientConfig - пул соединений к одному хосту api.telegram.org
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout:      5 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		KeepAliveInterval:   30 * time.Second,
	}
}

// newHTTPClient создает http.Client с keep-alive пулом.
// Общий таймаут не задается: каждая попытка ограничена своим контекстом.
func newHTTPClient(cfg HTTPClientConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: cfg.KeepAliveInterval,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2: true,
	}

	return &http.Client{Transport: transport}
}

// Client отправляет сообщения через Bot API.
// Каждая попытка ограничена таймаутом, попыток не больше MaxAttempts.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	retryCfg   retry.Config
	logger     *utils.Logger
}

var _ Sender = (*Client)(nil)

// NewClient создает клиент по конфигурации
func NewClient(cfg config.TelegramConfig, logger *utils.Logger) *Client {
	retryCfg := retry.DeliveryConfig()
	retryCfg.MaxAttempts = cfg.MaxAttempts
	if cfg.Timeout > 0 {
		retryCfg.AttemptTimeout = cfg.Timeout
	}

	if logger == nil {
		logger = utils.L()
	}

	return &Client{
		httpClient: newHTTPClient(DefaultHTTPClientConfig()),
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		token:      cfg.BotToken,
		retryCfg:   retryCfg,
		logger:     logger.WithComponent("telegram"),
	}
}

// SetHTTPClient подменяет http.Client (тесты)
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetRetryConfig подменяет политику повторов (тесты)
func (c *Client) SetRetryConfig(cfg retry.Config) {
	c.retryCfg = cfg
}

// SendMessage отправляет сообщение в чат.
// 4xx кроме 429 не повторяются.
func (c *Client) SendMessage(ctx context.Context, msg OutgoingMessage) error {
	if c.token == "" {
		return ErrBotTokenMissing
	}
	if strings.TrimSpace(msg.Text) == "" {
		return ErrEmptyText
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	cfg := c.retryCfg
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Debug("retrying sendMessage",
			utils.ChatID(msg.ChatID),
			utils.Int("attempt", attempt),
			utils.Err(err),
		)
	}

	return retry.Do(ctx, cfg, func(ctx context.Context) error {
		return c.call(ctx, "sendMessage", body)
	})
}

// Close закрывает idle соединения
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) call(ctx context.Context, method string, body []byte) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return err
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil && resp.StatusCode == http.StatusOK {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode == http.StatusOK && parsed.OK {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Description: parsed.Description}
	if apiErr.Description == "" {
		apiErr.Description = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(apiErr)
	}
	return apiErr
}
