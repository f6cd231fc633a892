package service

import (
	"context"
	"strings"
	"testing"

	"offshore-assist-go/internal/config"
	"offshore-assist-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_BuildsSyntheticPairAndHistory(t *testing.T) {
	client := &fakeLLM{reply: "We offer staffing and BPO."}
	gen := NewResponseGenerator(client, config.ChatConfig{Persona: "You are Ava.", Acknowledgement: "Got it."}, config.LLMGenerationConfig{})

	turns := []model.ChatTurn{
		{Role: "user", Content: "Hi"},
		{Role: "assistant", Content: "Hello! How can I help?"},
		{Role: "user", Content: "What services do you offer?"},
	}
	docs := []model.ContextDoc{
		{Content: "We provide BPO.", Source: "services.md", Similarity: 0.8},
		{Content: "Remote staffing.", Source: "", Similarity: 0.7},
	}

	reply, err := gen.Generate(context.Background(), turns, docs)
	require.NoError(t, err)
	assert.Equal(t, "We offer staffing and BPO.", reply)

	require.Len(t, client.got, 5)
	instruction := client.got[0]
	assert.Equal(t, "user", instruction.Role)
	assert.True(t, strings.HasPrefix(instruction.Content, "You are Ava."))
	assert.Contains(t, instruction.Content, "Relevant information from our knowledge base:")
	assert.Contains(t, instruction.Content, "[Source: services.md]\nWe provide BPO.")
	assert.Contains(t, instruction.Content, "[Source: unknown]\nRemote staffing.")

	assert.Equal(t, "assistant", client.got[1].Role)
	assert.Equal(t, "Got it.", client.got[1].Content)
	assert.Equal(t, "user", client.got[2].Role)
	assert.Equal(t, "assistant", client.got[3].Role)
	assert.Equal(t, "user", client.got[4].Role)
	assert.Equal(t, "What services do you offer?", client.got[4].Content)
}

func TestGenerate_NoContextOmitsKnowledgeBlock(t *testing.T) {
	client := &fakeLLM{reply: "ok"}
	gen := NewResponseGenerator(client, config.ChatConfig{}, config.LLMGenerationConfig{})

	_, err := gen.Generate(context.Background(), []model.ChatTurn{{Role: "user", Content: "Hi"}}, nil)
	require.NoError(t, err)

	require.Len(t, client.got, 3)
	assert.Equal(t, DefaultPersona, client.got[0].Content)
	assert.Equal(t, DefaultAcknowledgement, client.got[1].Content)
	assert.NotContains(t, client.got[0].Content, "Relevant information")
}

func TestGenerate_PropagatesUpstreamError(t *testing.T) {
	gen := NewResponseGenerator(&fakeLLM{err: errUpstream}, config.ChatConfig{}, config.LLMGenerationConfig{})

	_, err := gen.Generate(context.Background(), []model.ChatTurn{{Role: "user", Content: "Hi"}}, nil)
	assert.ErrorIs(t, err, errUpstream)
}

func TestStream_WritesChunks(t *testing.T) {
	client := &fakeLLM{chunks: []string{"We ", "offer ", "BPO."}}
	gen := NewResponseGenerator(client, config.ChatConfig{}, config.LLMGenerationConfig{})
	w := &recordingWriter{}

	full, err := gen.Stream(context.Background(), []model.ChatTurn{{Role: "user", Content: "Hi"}}, nil, w)
	require.NoError(t, err)
	assert.Equal(t, "We offer BPO.", full)
	assert.Equal(t, []string{"We ", "offer ", "BPO."}, w.frames)
}
