package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/pagenode-backend/internal/graph"
	"github.com/yungbote/pagenode-backend/internal/learning/sm2"
	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/repos"
	"github.com/yungbote/pagenode-backend/internal/types"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidGrade = errors.New("grade must be 0, 1, 2, or 3")
)

// ReviewService applies spaced-repetition reviews to flashcards.
type ReviewService interface {
	// SubmitReview runs the scheduler for a graded card, persists the new
	// scheduling state, and shifts mastery on the concepts extracted from
	// the card's source chunk. The mastery write is best-effort and never
	// fails the review.
	SubmitReview(ctx context.Context, cardID uuid.UUID, grade sm2.Grade) (*types.ReviewResult, error)

	ListDue(ctx context.Context, docID *uuid.UUID, limit int) ([]*types.Flashcard, error)
	ListCards(ctx context.Context, docID *uuid.UUID, offset, limit int) ([]*types.Flashcard, int64, error)
	GetCard(ctx context.Context, cardID uuid.UUID) (*types.Flashcard, error)
	UpdateCard(ctx context.Context, cardID uuid.UUID, question, answer string) (*types.Flashcard, error)
	DeleteCard(ctx context.Context, cardID uuid.UUID) error
	Stats(ctx context.Context) (*types.FlashcardStats, error)
}

type reviewService struct {
	cards repos.FlashcardRepo
	graph graph.Service
	log   *logger.Logger
	now   func() time.Time
}

func NewReviewService(cards repos.FlashcardRepo, graphSvc graph.Service, baseLog *logger.Logger) ReviewService {
	return &reviewService{
		cards: cards,
		graph: graphSvc,
		log:   baseLog.With("service", "Review"),
		now:   time.Now,
	}
}

func (s *reviewService) SubmitReview(ctx context.Context, cardID uuid.UUID, grade sm2.Grade) (*types.ReviewResult, error) {
	if !sm2.ValidGrade(grade) {
		return nil, ErrInvalidGrade
	}

	card, err := s.cards.GetByID(ctx, nil, cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrNotFound
	}

	result, err := sm2.Review(sm2.State{
		Repetitions: card.Repetitions,
		Interval:    card.Interval,
		Difficulty:  card.Difficulty,
	}, grade, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.cards.UpdateReview(ctx, nil, cardID, result.Repetitions, result.Interval, result.Difficulty, result.NextReview); err != nil {
		return nil, err
	}

	if s.graph != nil && card.ChunkID != nil {
		if err := s.graph.ApplyMasteryFromChunk(ctx, *card.ChunkID, sm2.MasteryDelta(grade)); err != nil {
			s.log.Warn("mastery update failed",
				"chunk_id", card.ChunkID.String(),
				"card_id", cardID.String(),
				"error", err,
			)
		}
	}

	return &types.ReviewResult{
		ID:          cardID,
		Interval:    result.Interval,
		NextReview:  result.NextReview.Format("2006-01-02"),
		Repetitions: result.Repetitions,
		Difficulty:  result.Difficulty,
	}, nil
}

func (s *reviewService) ListDue(ctx context.Context, docID *uuid.UUID, limit int) ([]*types.Flashcard, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.cards.ListDue(ctx, nil, docID, limit)
}

func (s *reviewService) ListCards(ctx context.Context, docID *uuid.UUID, offset, limit int) ([]*types.Flashcard, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.cards.List(ctx, nil, docID, offset, limit)
}

func (s *reviewService) GetCard(ctx context.Context, cardID uuid.UUID) (*types.Flashcard, error) {
	card, err := s.cards.GetByID(ctx, nil, cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrNotFound
	}
	return card, nil
}

func (s *reviewService) UpdateCard(ctx context.Context, cardID uuid.UUID, question, answer string) (*types.Flashcard, error) {
	card, err := s.cards.GetByID(ctx, nil, cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrNotFound
	}
	if err := s.cards.UpdateContent(ctx, nil, cardID, question, answer); err != nil {
		return nil, err
	}
	return s.cards.GetByID(ctx, nil, cardID)
}

func (s *reviewService) DeleteCard(ctx context.Context, cardID uuid.UUID) error {
	deleted, err := s.cards.Delete(ctx, nil, cardID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (s *reviewService) Stats(ctx context.Context) (*types.FlashcardStats, error) {
	return s.cards.Stats(ctx, nil)
}
