package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docflow/internal/core/mock"
	"github.com/markdave123-py/docflow/internal/models"
)

func TestChatService_NoMatchesSkipsLLM(t *testing.T) {
	llm := &mock.MockLLM{Answer: "made up"}
	svc := NewChatService(NewRetrievalService(mock.NewMockEmbedder(), mock.NewMemoryVectorIndex(), 5, quietLogger()), llm)

	ans, err := svc.Ask(context.Background(), "t1", "anything?", 0)
	require.NoError(t, err)
	assert.Equal(t, NoRelevantDocumentsAnswer, ans.Answer)
	assert.Empty(t, ans.DocumentIDs)
	assert.Nil(t, ans.MatchScore)
	assert.Empty(t, llm.Prompts())
}

func TestChatService_GroundsAnswerInContext(t *testing.T) {
	index := mock.NewMemoryVectorIndex()
	require.NoError(t, index.Upsert(context.Background(), "tenant-t1", []models.VectorEntry{
		entry("v1", "d1", "the office opens at 9"),
	}))
	llm := &mock.MockLLM{Answer: "At 9."}
	svc := NewChatService(NewRetrievalService(mock.NewMockEmbedder(), index, 5, quietLogger()), llm)

	ans, err := svc.Ask(context.Background(), "t1", "when does the office open?", 3)
	require.NoError(t, err)
	assert.Equal(t, "At 9.", ans.Answer)
	assert.Equal(t, []string{"d1"}, ans.DocumentIDs)
	require.NotNil(t, ans.MatchScore)

	prompts := llm.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "the office opens at 9")
	assert.Contains(t, prompts[0], "Question: when does the office open?")
}
