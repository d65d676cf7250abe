package session

import "sync"

type trackedAnswer struct {
	selectedOptionID *uint
	seq              uint64
	savedSeq         uint64
}

// AnswerTracker holds the local answer state of an in-progress attempt.
// Every local selection gets a monotonically increasing sequence number;
// server state only overwrites an entry the local side has not touched
// since it was last persisted. That keeps a selection made while a save is
// in flight from being clobbered by the save's stale echo.
type AnswerTracker struct {
	mu      sync.Mutex
	nextSeq uint64
	answers map[uint]*trackedAnswer
}

func NewAnswerTracker() *AnswerTracker {
	return &AnswerTracker{answers: make(map[uint]*trackedAnswer)}
}

// Select records a local selection and returns its sequence number, which
// the caller passes to MarkSaved once the server acknowledges it.
func (t *AnswerTracker) Select(questionID uint, selectedOptionID *uint) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextSeq++
	entry, ok := t.answers[questionID]
	if !ok {
		entry = &trackedAnswer{}
		t.answers[questionID] = entry
	}
	entry.selectedOptionID = selectedOptionID
	entry.seq = t.nextSeq
	return t.nextSeq
}

// MarkSaved records that the selection with the given sequence number was
// persisted. A newer local selection keeps the entry dirty.
func (t *AnswerTracker) MarkSaved(questionID uint, seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.answers[questionID]
	if !ok {
		return
	}
	if seq > entry.savedSeq {
		entry.savedSeq = seq
	}
}

// MergeServer loads server-side answers, typically on resume. A server value
// only lands where the local side has no unsaved selection.
func (t *AnswerTracker) MergeServer(saved []SavedAnswer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, sa := range saved {
		entry, ok := t.answers[sa.QuestionID]
		if ok && entry.seq > entry.savedSeq {
			continue // local selection in flight wins
		}
		if !ok {
			entry = &trackedAnswer{}
			t.answers[sa.QuestionID] = entry
		}
		entry.selectedOptionID = sa.SelectedOptionID
	}
}

// Answer returns the current selection for a question.
func (t *AnswerTracker) Answer(questionID uint) (*uint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.answers[questionID]
	if !ok || entry.selectedOptionID == nil {
		return nil, false
	}
	return entry.selectedOptionID, true
}

// AnsweredCount reports how many of the given questions have a selection.
func (t *AnswerTracker) AnsweredCount(questionIDs []uint) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for _, id := range questionIDs {
		if entry, ok := t.answers[id]; ok && entry.selectedOptionID != nil {
			count++
		}
	}
	return count
}

// AllAnswered reports whether every given question has a selection.
func (t *AnswerTracker) AllAnswered(questionIDs []uint) bool {
	return t.AnsweredCount(questionIDs) == len(questionIDs)
}

// Payload builds the submission payload: one row per question in the given
// order, nil selection for unanswered questions.
func (t *AnswerTracker) Payload(questionIDs []uint) []SubmittedAnswer {
	t.mu.Lock()
	defer t.mu.Unlock()

	payload := make([]SubmittedAnswer, 0, len(questionIDs))
	for _, id := range questionIDs {
		row := SubmittedAnswer{QuestionID: id}
		if entry, ok := t.answers[id]; ok {
			row.SelectedOptionID = entry.selectedOptionID
		}
		payload = append(payload, row)
	}
	return payload
}
