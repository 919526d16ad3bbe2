// internal/assistant/http.go
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SystemPrompt constrains the model to conversation. Every action runs
// through deterministic commands, so the model must never claim to do one.
const SystemPrompt = `You are Cyrax, a friendly financial assistant for South African users on WhatsApp.

You can explain what the wallet does: buy airtime, buy data, buy prepaid electricity, check the balance, show transaction history and manage saved beneficiaries.

Rules:
- You cannot perform any action yourself. Never say you are checking, saving, processing or verifying anything.
- Never invent amounts, phone numbers, meter numbers or features.
- When the user wants to buy something, tell them the command to type, e.g. "R20 MTN airtime 0821234567".
- Currency is ZAR, written with the R symbol.

Keep replies short and warm.`

var ErrEmptyCompletion = errors.New("assistant: empty completion")

// HTTPAssistant calls an OpenAI-compatible chat completions endpoint.
type HTTPAssistant struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewHTTPAssistant returns a client for baseURL, e.g. https://api.openai.com/v1.
func NewHTTPAssistant(baseURL, apiKey, model string, timeout time.Duration) *HTTPAssistant {
	return &HTTPAssistant{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type completionRequest struct {
	Model       string  `json:"model"`
	Messages    []Turn  `json:"messages"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message Turn `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *HTTPAssistant) Reply(ctx context.Context, req Request) (*Reply, error) {
	body, err := json.Marshal(completionRequest{
		Model:       a.model,
		Messages:    BuildMessages(req),
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("assistant: request failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded completionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("assistant: failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decoded.Error != nil {
			msg = decoded.Error.Message
		}
		return nil, fmt.Errorf("assistant: status %d: %s", resp.StatusCode, msg)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyCompletion
	}

	intent, confidence := GuessIntent(req.Message)
	return &Reply{
		Text:       strings.TrimSpace(decoded.Choices[0].Message.Content),
		Intent:     intent,
		Confidence: confidence,
	}, nil
}

// BuildMessages assembles the prompt: system rules, the account summary, the
// last MaxHistory turns and the new message.
func BuildMessages(req Request) []Turn {
	verified := "Pending"
	if req.Account.Verified {
		verified = "Verified"
	}
	name := req.Account.Name
	if name == "" {
		name = "User"
	}
	summary := fmt.Sprintf("User information:\n- Name: %s\n- Balance: R%s\n- Daily limit remaining: R%s\n- Phone: %s\n- FICA status: %s",
		name, req.Account.Balance.StringFixed(2), req.Account.DailyRemaining.StringFixed(2), req.Account.Phone, verified)

	history := trimHistory(req.History)
	msgs := make([]Turn, 0, len(history)+3)
	msgs = append(msgs, Turn{Role: RoleSystem, Content: SystemPrompt}, Turn{Role: RoleSystem, Content: summary})
	msgs = append(msgs, history...)
	return append(msgs, Turn{Role: RoleUser, Content: req.Message})
}
