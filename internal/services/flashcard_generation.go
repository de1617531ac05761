package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/pagenode-backend/internal/clients/openai"
	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/repos"
	"github.com/yungbote/pagenode-backend/internal/types"
)

const (
	flashcardMaxChunks    = 10
	flashcardMinChunkSize = 100
	flashcardMaxTokens    = 512

	defaultCardDifficulty = 0.3
	minCardDifficulty     = 0.1
	maxCardDifficulty     = 0.9
)

const flashcardSystemPrompt = `You are a flashcard generator for active recall learning. Given a text passage, generate 2-3 question-answer pairs to test understanding. Respond ONLY with valid JSON in exactly this structure:
{"cards": [{"question": "string", "answer": "string", "difficulty": 0.3}]}
Rules:
- difficulty is a float from 0.1 (easy) to 0.9 (hard).
- Questions must be specific and directly answerable from the passage.
- Answers must be concise (1-3 sentences).
- Generate at most 3 cards per passage.
- If the passage has no meaningful content to test, return an empty cards array.`

// FlashcardGenerationService turns a document's embedded chunks into
// question/answer cards.
type FlashcardGenerationService interface {
	// GenerateForDocument processes up to flashcardMaxChunks chunks.
	// Per-chunk LLM failures are logged and skipped; an unavailable backend
	// stops the loop. Returns the number of cards inserted.
	GenerateForDocument(ctx context.Context, docID uuid.UUID) (int, error)
}

type flashcardGenerationService struct {
	chunks repos.ChunkRepo
	cards  repos.FlashcardRepo
	llm    openai.Client
	log    *logger.Logger
}

func NewFlashcardGenerationService(
	chunks repos.ChunkRepo,
	cards repos.FlashcardRepo,
	llm openai.Client,
	baseLog *logger.Logger,
) FlashcardGenerationService {
	return &flashcardGenerationService{
		chunks: chunks,
		cards:  cards,
		llm:    llm,
		log:    baseLog.With("service", "FlashcardGeneration"),
	}
}

func flashcardUserPrompt(chunkText string) string {
	if len(chunkText) > promptPassageLimit {
		chunkText = chunkText[:promptPassageLimit]
	}
	return fmt.Sprintf("Generate flashcards from this passage:\n\n%s", chunkText)
}

func (s *flashcardGenerationService) GenerateForDocument(ctx context.Context, docID uuid.UUID) (int, error) {
	if s.llm == nil {
		return 0, nil
	}

	rows, err := s.chunks.GetEmbeddedByDocument(ctx, nil, docID, flashcardMaxChunks)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	total := 0
	for _, chunk := range rows {
		if len(chunk.Content) < flashcardMinChunkSize {
			continue
		}

		result, err := s.llm.GenerateJSON(ctx, flashcardSystemPrompt, flashcardUserPrompt(chunk.Content), flashcardMaxTokens)
		if err != nil {
			if errors.Is(err, openai.ErrUnavailable) {
				s.log.Warn("LLM unavailable, stopping flashcard generation", "document_id", docID.String())
				break
			}
			s.log.Warn("LLM call failed for chunk", "chunk_id", chunk.ID.String(), "error", err)
			continue
		}

		for _, raw := range anySlice(result["cards"]) {
			cardData, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			question := strings.TrimSpace(stringField(cardData, "question"))
			answer := strings.TrimSpace(stringField(cardData, "answer"))
			if question == "" || answer == "" {
				continue
			}

			difficulty := floatField(cardData, "difficulty", defaultCardDifficulty)
			if difficulty == 0 {
				difficulty = defaultCardDifficulty
			}
			if difficulty < minCardDifficulty {
				difficulty = minCardDifficulty
			}
			if difficulty > maxCardDifficulty {
				difficulty = maxCardDifficulty
			}

			chunkID := chunk.ID
			card := &types.Flashcard{
				DocumentID: docID,
				ChunkID:    &chunkID,
				Question:   question,
				Answer:     answer,
				Difficulty: difficulty,
				Interval:   1,
			}
			if _, err := s.cards.Create(ctx, nil, card); err != nil {
				s.log.Warn("flashcard insert failed", "chunk_id", chunk.ID.String(), "error", err)
				continue
			}
			total++
		}
	}

	return total, nil
}
