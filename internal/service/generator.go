package service

import (
	"context"
	"fmt"
	"strings"

	"offshore-assist-go/internal/config"
	"offshore-assist-go/internal/model"
	"offshore-assist-go/pkg/llm"
)

const (
	// DefaultPersona 是未配置 chat.persona 时的人设与公司信息。
	DefaultPersona = `You are the virtual assistant of an offshore services company that provides outsourced staffing, business process outsourcing and IT support to international clients.
Answer questions about our services, careers and company in a friendly, concise and professional tone.
Only answer from the company information you are given. If you are not sure, say so and offer to connect the visitor with our team.`

	// DefaultAcknowledgement 是合成的助手确认消息。
	DefaultAcknowledgement = "Understood. I will answer as the company's assistant using the information provided."

	knowledgeHeader = "Relevant information from our knowledge base:"
)

// ResponseGenerator 根据对话与检索上下文生成助手回复。
type ResponseGenerator interface {
	Generate(ctx context.Context, messages []model.ChatTurn, docs []model.ContextDoc) (string, error)
	// Stream 与 Generate 相同，但把增量文本写入 writer。
	Stream(ctx context.Context, messages []model.ChatTurn, docs []model.ContextDoc, writer llm.MessageWriter) (string, error)
}

type responseGenerator struct {
	llmClient       llm.Client
	persona         string
	acknowledgement string
	gen             *llm.GenerationParams
}

// NewResponseGenerator 创建一个新的 ResponseGenerator 实例。
func NewResponseGenerator(llmClient llm.Client, chatCfg config.ChatConfig, genCfg config.LLMGenerationConfig) ResponseGenerator {
	persona := chatCfg.Persona
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	ack := chatCfg.Acknowledgement
	if strings.TrimSpace(ack) == "" {
		ack = DefaultAcknowledgement
	}
	return &responseGenerator{
		llmClient:       llmClient,
		persona:         persona,
		acknowledgement: ack,
		gen:             llm.ParamsFromConfig(genCfg),
	}
}

func (g *responseGenerator) Generate(ctx context.Context, messages []model.ChatTurn, docs []model.ContextDoc) (string, error) {
	msgs, err := g.buildMessages(messages, docs)
	if err != nil {
		return "", err
	}
	return g.llmClient.Chat(ctx, msgs, g.gen)
}

func (g *responseGenerator) Stream(ctx context.Context, messages []model.ChatTurn, docs []model.ContextDoc, writer llm.MessageWriter) (string, error) {
	msgs, err := g.buildMessages(messages, docs)
	if err != nil {
		return "", err
	}
	return g.llmClient.StreamChatMessages(ctx, msgs, g.gen, writer)
}

// buildSystemInstruction 拼接人设与带来源标签的上下文块。
func (g *responseGenerator) buildSystemInstruction(docs []model.ContextDoc) string {
	var sb strings.Builder
	sb.WriteString(g.persona)
	if len(docs) == 0 {
		return sb.String()
	}
	sb.WriteString("\n\n")
	sb.WriteString(knowledgeHeader)
	for _, d := range docs {
		label := d.Source
		if label == "" {
			label = "unknown"
		}
		fmt.Fprintf(&sb, "\n\n[Source: %s]\n%s", label, d.Content)
	}
	return sb.String()
}

// buildMessages 生成 指令/确认 合成对 + 历史轮次 + 最新用户消息。
// 不依赖独立的 system 角色，兼容只支持 user/assistant 的模型。
func (g *responseGenerator) buildMessages(messages []model.ChatTurn, docs []model.ContextDoc) ([]llm.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages to respond to")
	}
	latest := messages[len(messages)-1]

	out := make([]llm.Message, 0, len(messages)+2)
	out = append(out,
		llm.Message{Role: "user", Content: g.buildSystemInstruction(docs)},
		llm.Message{Role: "assistant", Content: g.acknowledgement},
	)
	for _, m := range messages[:len(messages)-1] {
		role := "assistant"
		if m.Role == model.SenderUser {
			role = "user"
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	out = append(out, llm.Message{Role: "user", Content: latest.Content})
	return out, nil
}
