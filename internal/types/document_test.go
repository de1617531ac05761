package types

import "testing"

func TestStatusTransitionsForward(t *testing.T) {
	legal := []struct {
		from, to DocumentStatus
	}{
		{StatusPending, StatusExtracting},
		{StatusExtracting, StatusChunking},
		{StatusExtracting, StatusNeedsOCR},
		{StatusExtracting, StatusError},
		{StatusChunking, StatusEmbedding},
		{StatusChunking, StatusReady},
		{StatusEmbedding, StatusExtractingConcepts},
		{StatusEmbedding, StatusReady},
		{StatusExtractingConcepts, StatusConceptsReady},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tc.from, tc.to)
		}
	}
}

func TestStatusTransitionsRecoveryReentry(t *testing.T) {
	// Crash recovery restarts mid-pipeline documents from extraction, and
	// reruns the LLM stage in place.
	reentry := []struct {
		from, to DocumentStatus
	}{
		{StatusExtracting, StatusExtracting},
		{StatusChunking, StatusExtracting},
		{StatusEmbedding, StatusExtracting},
		{StatusExtractingConcepts, StatusExtractingConcepts},
	}
	for _, tc := range reentry {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tc.from, tc.to)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	terminals := []DocumentStatus{StatusConceptsReady, StatusReady, StatusNeedsOCR, StatusError}
	all := []DocumentStatus{
		StatusPending, StatusExtracting, StatusChunking, StatusEmbedding,
		StatusExtractingConcepts, StatusConceptsReady, StatusReady,
		StatusNeedsOCR, StatusError,
	}
	for _, from := range terminals {
		if !from.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", from)
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("CanTransition(%s, %s) = true, want false", from, to)
			}
		}
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	// Except for the recovery restarts into extracting, a status never moves
	// backwards in the pipeline order.
	order := map[DocumentStatus]int{
		StatusPending:            0,
		StatusExtracting:         1,
		StatusChunking:           2,
		StatusEmbedding:          3,
		StatusExtractingConcepts: 4,
		StatusConceptsReady:      5,
		StatusReady:              5,
		StatusNeedsOCR:           5,
		StatusError:              5,
	}
	for from, rank := range order {
		for to, toRank := range order {
			if !CanTransition(from, to) {
				continue
			}
			if toRank < rank && to != StatusExtracting {
				t.Errorf("transition %s -> %s regresses outside recovery", from, to)
			}
		}
	}
}

func TestPipelineRestartStatuses(t *testing.T) {
	want := map[DocumentStatus]bool{
		StatusExtracting: true,
		StatusChunking:   true,
		StatusEmbedding:  true,
	}
	got := PipelineRestartStatuses()
	if len(got) != len(want) {
		t.Fatalf("restart statuses = %v", got)
	}
	for _, s := range got {
		if !want[s] {
			t.Fatalf("unexpected restart status %s", s)
		}
	}
}

func TestValidStatus(t *testing.T) {
	if !StatusEmbedding.Valid() {
		t.Fatalf("embedding should be a known status")
	}
	if DocumentStatus("sideways").Valid() {
		t.Fatalf("unknown status accepted")
	}
}
