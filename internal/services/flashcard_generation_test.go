package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/pagenode-backend/internal/clients/openai"
	"github.com/yungbote/pagenode-backend/internal/types"
)

func cardsReply(cards ...map[string]any) map[string]any {
	out := make([]any, 0, len(cards))
	for _, card := range cards {
		out = append(out, card)
	}
	return map[string]any{"cards": out}
}

func TestGenerateCreatesCards(t *testing.T) {
	docID := uuid.New()
	chunk := longChunk(docID, 0)
	chunks := &fakeChunkRepo{embedded: []*types.Chunk{chunk}}
	cards := newFakeCardRepo()
	llm := &fakeLLM{replies: []llmReply{{
		result: cardsReply(
			map[string]any{"question": "What is X?", "answer": "X is Y.", "difficulty": 0.5},
			map[string]any{"question": "Why Z?", "answer": "Because."},
		),
	}}}

	svc := NewFlashcardGenerationService(chunks, cards, llm, testLogger(t))
	total, err := svc.GenerateForDocument(context.Background(), docID)
	if err != nil {
		t.Fatalf("GenerateForDocument: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	for _, card := range cards.cards {
		if card.DocumentID != docID {
			t.Fatalf("card document = %s, want %s", card.DocumentID, docID)
		}
		if card.ChunkID == nil || *card.ChunkID != chunk.ID {
			t.Fatalf("card chunk id not set to source chunk")
		}
		if card.Interval != 1 {
			t.Fatalf("new card interval = %d, want 1", card.Interval)
		}
		switch card.Question {
		case "What is X?":
			if card.Difficulty != 0.5 {
				t.Fatalf("difficulty = %v, want 0.5", card.Difficulty)
			}
		case "Why Z?":
			if card.Difficulty != 0.3 {
				t.Fatalf("default difficulty = %v, want 0.3", card.Difficulty)
			}
		default:
			t.Fatalf("unexpected card question %q", card.Question)
		}
	}
}

func TestGenerateClampsDifficulty(t *testing.T) {
	docID := uuid.New()
	chunks := &fakeChunkRepo{embedded: []*types.Chunk{longChunk(docID, 0)}}
	cards := newFakeCardRepo()
	llm := &fakeLLM{replies: []llmReply{{
		result: cardsReply(
			map[string]any{"question": "hard?", "answer": "yes", "difficulty": 1.5},
			map[string]any{"question": "easy?", "answer": "yes", "difficulty": 0.01},
		),
	}}}

	svc := NewFlashcardGenerationService(chunks, cards, llm, testLogger(t))
	if _, err := svc.GenerateForDocument(context.Background(), docID); err != nil {
		t.Fatalf("GenerateForDocument: %v", err)
	}
	for _, card := range cards.cards {
		if card.Difficulty < 0.1 || card.Difficulty > 0.9 {
			t.Fatalf("difficulty %v escaped [0.1, 0.9] for %q", card.Difficulty, card.Question)
		}
	}
}

func TestGenerateSkipsBlankCards(t *testing.T) {
	docID := uuid.New()
	chunks := &fakeChunkRepo{embedded: []*types.Chunk{longChunk(docID, 0)}}
	cards := newFakeCardRepo()
	llm := &fakeLLM{replies: []llmReply{{
		result: cardsReply(
			map[string]any{"question": "  ", "answer": "orphaned answer"},
			map[string]any{"question": "real question", "answer": ""},
			map[string]any{"question": "kept", "answer": "kept"},
		),
	}}}

	svc := NewFlashcardGenerationService(chunks, cards, llm, testLogger(t))
	total, err := svc.GenerateForDocument(context.Background(), docID)
	if err != nil {
		t.Fatalf("GenerateForDocument: %v", err)
	}
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
}

func TestGenerateStopsWhenBackendUnavailable(t *testing.T) {
	docID := uuid.New()
	chunks := &fakeChunkRepo{embedded: []*types.Chunk{longChunk(docID, 0), longChunk(docID, 1)}}
	cards := newFakeCardRepo()
	llm := &fakeLLM{replies: []llmReply{
		{err: fmt.Errorf("backend gone: %w", openai.ErrUnavailable)},
		{result: cardsReply(map[string]any{"question": "q", "answer": "a"})},
	}}

	svc := NewFlashcardGenerationService(chunks, cards, llm, testLogger(t))
	total, err := svc.GenerateForDocument(context.Background(), docID)
	if err != nil {
		t.Fatalf("GenerateForDocument: %v", err)
	}
	if total != 0 {
		t.Fatalf("total = %d, want 0", total)
	}
	if llm.calls != 1 {
		t.Fatalf("llm calls = %d, want 1", llm.calls)
	}
}
