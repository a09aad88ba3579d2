// Package llm реализует клиент OpenAI-совместимого chat-completions API.
//
// Клиент конструируется явно при старте процесса и передаётся в сервисы,
// которым он нужен; глобального состояния пакет не хранит. Все вызовы
// ограничены таймаутом: зависший провайдер не должен блокировать запрос.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/viqihq/viqi-backend/internal/config"
	"github.com/viqihq/viqi-backend/internal/lib/sl"
	"github.com/viqihq/viqi-backend/internal/models"
)

// Client — клиент OpenAI-совместимого API.
type Client struct {
	model       string
	apiKey      string
	baseURL     string
	temperature float64
	timeout     time.Duration
	httpClient  *http.Client
	log         *slog.Logger
}

// New создаёт клиент LLM по настройкам из конфига.
func New(cfg config.LLM, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		temperature: cfg.Temperature,
		timeout:     timeout,
		httpClient:  &http.Client{Timeout: timeout},
		log:         log,
	}
}

// Model возвращает имя модели, с которой работает клиент.
func (c *Client) Model() string {
	return c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete выполняет один запрос chat-completions и возвращает текст ответа
// вместе с количеством потраченных токенов. Вызов ограничен таймаутом
// клиента; по его истечении возвращается ошибка контекста.
func (c *Client) Complete(ctx context.Context, system, user string) (string, models.TokenUsage, error) {
	const op = "llm.Complete"

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := chatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Stream:      false,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", models.TokenUsage{}, fmt.Errorf("%s: %w", op, err)
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", models.TokenUsage{}, fmt.Errorf("%s: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", models.TokenUsage{}, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", models.TokenUsage{}, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Error("llm request failed",
			sl.Provider("llm"),
			slog.Int("status", resp.StatusCode),
			slog.String("model", c.model))
		return "", models.TokenUsage{}, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", models.TokenUsage{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(parsed.Choices) == 0 {
		return "", models.TokenUsage{}, fmt.Errorf("%s: empty choices in response", op)
	}

	usage := models.TokenUsage{
		Prompt:     parsed.Usage.PromptTokens,
		Completion: parsed.Usage.CompletionTokens,
		Total:      parsed.Usage.TotalTokens,
	}
	return parsed.Choices[0].Message.Content, usage, nil
}
