package services

import (
	"context"
	"fmt"

	"github.com/markdave123-py/docflow/internal/core"
)

const NoRelevantDocumentsAnswer = "I could not find any relevant documents to answer this question."

const systemPrompt = "You are an intelligent assistant answering based only on the given document content. " +
	"If the answer is not in the content, say 'I cannot find this in the documents.'"

type ChatAnswer struct {
	Answer      string   `json:"answer"`
	DocumentIDs []string `json:"document_ids"`
	MatchScore  *float64 `json:"match_score"`
}

// ChatService answers a question from retrieved context only.
type ChatService struct {
	retrieval *RetrievalService
	llm       core.LLMProvider
}

func NewChatService(retrieval *RetrievalService, llm core.LLMProvider) *ChatService {
	return &ChatService{retrieval: retrieval, llm: llm}
}

func (s *ChatService) Ask(ctx context.Context, tenantID, query string, topK int) (*ChatAnswer, error) {
	rc, err := s.retrieval.GetContext(ctx, tenantID, query, topK)
	if err != nil {
		return nil, err
	}
	if len(rc.DocumentIDs) == 0 {
		return &ChatAnswer{Answer: NoRelevantDocumentsAnswer, DocumentIDs: []string{}}, nil
	}

	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", rc.Context, query)
	answer, err := s.llm.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &ChatAnswer{Answer: answer, DocumentIDs: rc.DocumentIDs, MatchScore: rc.TopScorePercent}, nil
}
