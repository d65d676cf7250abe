// Package shuffle derives and applies the per-attempt display order for a
// quiz. Shuffle data is generated once at attempt creation from a seed,
// stored on the attempt, and applied as a pure projection on every load, so
// a resumed attempt always sees the exact same order.
package shuffle

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/quizdeck/quiz-service/internal/models"
)

// Generate produces shuffle data for the quiz using a deterministic seeded
// source: the same seed always yields the same order.
func Generate(quiz *models.Quiz, seed int64) *models.ShuffleData {
	r := rand.New(rand.NewSource(seed))

	questionIDs := make([]uint, len(quiz.Questions))
	for i, q := range quiz.Questions {
		questionIDs[i] = q.ID
	}
	r.Shuffle(len(questionIDs), func(i, j int) {
		questionIDs[i], questionIDs[j] = questionIDs[j], questionIDs[i]
	})

	options := make(map[uint][]uint, len(quiz.Questions))
	for _, q := range quiz.Questions {
		optionIDs := make([]uint, len(q.Options))
		for i, o := range q.Options {
			optionIDs[i] = o.ID
		}
		r.Shuffle(len(optionIDs), func(i, j int) {
			optionIDs[i], optionIDs[j] = optionIDs[j], optionIDs[i]
		})
		options[q.ID] = optionIDs
	}

	return &models.ShuffleData{Questions: questionIDs, Options: options}
}

// Validate checks the shuffle data against the quiz it is meant to order.
// Every quiz question must appear in the question list; a missing entry is a
// data-integrity error rather than a silent fallback.
func Validate(quiz *models.Quiz, sd *models.ShuffleData) error {
	if sd == nil {
		return nil
	}
	positions := questionPositions(sd)
	for _, q := range quiz.Questions {
		if _, ok := positions[q.ID]; !ok {
			return fmt.Errorf("shuffle data missing question %d for quiz %d", q.ID, quiz.ID)
		}
	}
	return nil
}

// Project builds the student-facing view of the quiz: correctness stripped
// from every option and question/option order replaced by sd. A nil sd is
// the identity transform (authoring order). Project is a pure function:
// identical inputs always produce identical output.
func Project(quiz *models.Quiz, sd *models.ShuffleData) (*models.StudentQuiz, error) {
	if err := Validate(quiz, sd); err != nil {
		return nil, err
	}

	questions := make([]models.StudentQuestion, len(quiz.Questions))
	for i, q := range quiz.Questions {
		questions[i] = projectQuestion(&q, sd)
	}

	if sd != nil {
		positions := questionPositions(sd)
		sort.SliceStable(questions, func(i, j int) bool {
			return positions[questions[i].ID] < positions[questions[j].ID]
		})
	}

	return &models.StudentQuiz{
		ID:          quiz.ID,
		Title:       quiz.Title,
		Description: quiz.Description,
		TotalTime:   quiz.TotalTime,
		MaxAttempts: quiz.MaxAttempts,
		IsActive:    quiz.IsActive,
		Questions:   questions,
	}, nil
}

func projectQuestion(q *models.Question, sd *models.ShuffleData) models.StudentQuestion {
	options := make([]models.StudentOption, 0, len(q.Options))

	var order []uint
	if sd != nil {
		order = sd.Options[q.ID]
	}
	if order == nil {
		// Questions without an option entry keep authoring order.
		for _, o := range q.Options {
			options = append(options, models.StudentOption{ID: o.ID, Text: o.Text})
		}
	} else {
		byID := make(map[uint]*models.Option, len(q.Options))
		for i := range q.Options {
			byID[q.Options[i].ID] = &q.Options[i]
		}
		placed := make(map[uint]bool, len(order))
		for _, id := range order {
			if o, ok := byID[id]; ok {
				options = append(options, models.StudentOption{ID: o.ID, Text: o.Text})
				placed[id] = true
			}
		}
		// Options authored after the order was stored are appended in
		// authoring order, so a quiz edit cannot hide an option.
		for i := range q.Options {
			if !placed[q.Options[i].ID] {
				options = append(options, models.StudentOption{ID: q.Options[i].ID, Text: q.Options[i].Text})
			}
		}
	}

	return models.StudentQuestion{
		ID:      q.ID,
		Text:    q.Text,
		Marks:   q.Marks,
		Options: options,
	}
}

func questionPositions(sd *models.ShuffleData) map[uint]int {
	positions := make(map[uint]int, len(sd.Questions))
	for i, id := range sd.Questions {
		positions[id] = i
	}
	return positions
}
