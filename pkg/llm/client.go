// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"offshore-assist-go/internal/config"

	"github.com/gorilla/websocket"
)

// ErrContentFiltered 表示上游安全过滤拦截了本次生成。
var ErrContentFiltered = errors.New("completion blocked by content filter")

// MessageWriter defines an interface for writing WebSocket messages.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client defines the interface for an LLM client.
type Client interface {
	// Chat 发送完整的 role-based 消息并返回一次性生成的文本。
	Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	// StreamChatMessages 以流式方式调用聊天接口，并将分块写入 writer，返回完整文本。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) (string, error)
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client against an OpenAI-compatible /chat/completions endpoint.
func NewClient(cfg config.LLMConfig) Client {
	return NewClientWithHTTP(cfg, &http.Client{})
}

// NewClientWithHTTP is NewClient with a caller-supplied http.Client.
func NewClientWithHTTP(cfg config.LLMConfig, httpClient *http.Client) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: httpClient,
	}
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	TopK        *int      `json:"top_k,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type chatStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	TopK        *int
	MaxTokens   *int
}

// ParamsFromConfig 将配置中的非零值转换为生成参数，全部为零时返回 nil。
func ParamsFromConfig(g config.LLMGenerationConfig) *GenerationParams {
	var gp GenerationParams
	if g.Temperature != 0 {
		t := g.Temperature
		gp.Temperature = &t
	}
	if g.TopP != 0 {
		p := g.TopP
		gp.TopP = &p
	}
	if g.TopK != 0 {
		k := g.TopK
		gp.TopK = &k
	}
	if g.MaxTokens != 0 {
		m := g.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.TopK == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}

func (c *openAICompatibleClient) newRequest(ctx context.Context, messages []Message, gen *GenerationParams, stream bool) (*http.Request, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   stream,
	}
	// 传参优先，否则使用全局配置
	if gen == nil {
		gen = ParamsFromConfig(c.cfg.Generation)
	}
	if gen != nil {
		reqBody.Temperature = gen.Temperature
		reqBody.TopP = gen.TopP
		reqBody.TopK = gen.TopK
		reqBody.MaxTokens = gen.MaxTokens
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

// Chat calls the chat completions API without streaming.
func (c *openAICompatibleClient) Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	req, err := c.newRequest(ctx, messages, gen, false)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat api returned no choices")
	}
	choice := out.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", ErrContentFiltered
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", errors.New("chat api returned empty content")
	}
	return text, nil
}

// StreamChatMessages calls the chat completions API and streams the deltas to writer.
func (c *openAICompatibleClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) (string, error) {
	req, err := c.newRequest(ctx, messages, gen, true)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var full strings.Builder
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return full.String(), fmt.Errorf("failed to read from stream: %w", err)
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if data == "[DONE]" {
			break
		}

		var chunk chatStreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if chunk.Choices[0].FinishReason == "content_filter" {
			return full.String(), ErrContentFiltered
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		full.WriteString(content)
		if err := writer.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
			return full.String(), fmt.Errorf("failed to write message to websocket: %w", err)
		}
	}

	if strings.TrimSpace(full.String()) == "" {
		return "", errors.New("chat api returned empty content")
	}
	return full.String(), nil
}
