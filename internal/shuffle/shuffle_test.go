package shuffle

import (
	"reflect"
	"testing"

	"github.com/quizdeck/quiz-service/internal/models"
)

func testQuiz() *models.Quiz {
	return &models.Quiz{
		ID:    1,
		Title: "Networking basics",
		Questions: []models.Question{
			{ID: 1, QuizID: 1, Text: "Q1", Marks: 2, Options: []models.Option{
				{ID: 11, QuestionID: 1, Text: "a"},
				{ID: 12, QuestionID: 1, Text: "b", IsCorrect: true},
				{ID: 13, QuestionID: 1, Text: "c"},
			}},
			{ID: 2, QuizID: 1, Text: "Q2", Marks: 3, Options: []models.Option{
				{ID: 21, QuestionID: 2, Text: "a", IsCorrect: true},
				{ID: 22, QuestionID: 2, Text: "b"},
			}},
			{ID: 3, QuizID: 1, Text: "Q3", Marks: 1, Options: []models.Option{
				{ID: 31, QuestionID: 3, Text: "a"},
				{ID: 32, QuestionID: 3, Text: "b", IsCorrect: true},
			}},
		},
	}
}

func TestGenerateDeterministic(t *testing.T) {
	quiz := testQuiz()

	first := Generate(quiz, 42)
	second := Generate(quiz, 42)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same seed produced different shuffle data:\n%v\n%v", first, second)
	}

	if len(first.Questions) != 3 {
		t.Fatalf("expected 3 question ids, got %d", len(first.Questions))
	}
	for _, q := range quiz.Questions {
		if len(first.Options[q.ID]) != len(q.Options) {
			t.Fatalf("question %d: expected %d option ids, got %d", q.ID, len(q.Options), len(first.Options[q.ID]))
		}
	}
}

func TestProjectAppliesShuffleOrder(t *testing.T) {
	quiz := testQuiz()
	sd := &models.ShuffleData{
		Questions: []uint{3, 1, 2},
		Options: map[uint][]uint{
			1: {13, 11, 12},
			2: {22, 21},
			3: {32, 31},
		},
	}

	view, err := Project(quiz, sd)
	if err != nil {
		t.Fatalf("project failed: %v", err)
	}

	gotQuestions := make([]uint, len(view.Questions))
	for i, q := range view.Questions {
		gotQuestions[i] = q.ID
	}
	if !reflect.DeepEqual(gotQuestions, []uint{3, 1, 2}) {
		t.Fatalf("question order = %v, want [3 1 2]", gotQuestions)
	}

	gotOptions := make([]uint, len(view.Questions[1].Options))
	for i, o := range view.Questions[1].Options {
		gotOptions[i] = o.ID
	}
	if !reflect.DeepEqual(gotOptions, []uint{13, 11, 12}) {
		t.Fatalf("option order for question 1 = %v, want [13 11 12]", gotOptions)
	}
}

func TestProjectDeterministic(t *testing.T) {
	quiz := testQuiz()
	sd := Generate(quiz, 7)

	first, err := Project(quiz, sd)
	if err != nil {
		t.Fatalf("project failed: %v", err)
	}
	second, err := Project(quiz, sd)
	if err != nil {
		t.Fatalf("project failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("projection is not deterministic")
	}
}

func TestProjectStripsCorrectness(t *testing.T) {
	quiz := testQuiz()

	view, err := Project(quiz, Generate(quiz, 99))
	if err != nil {
		t.Fatalf("project failed: %v", err)
	}

	// StudentOption has no correctness field at all; make sure the source
	// quiz was not mutated while projecting.
	if !quiz.Questions[0].Options[1].IsCorrect {
		t.Fatalf("projection mutated the source quiz")
	}
	for _, q := range view.Questions {
		if len(q.Options) == 0 {
			t.Fatalf("question %d lost its options", q.ID)
		}
	}
}

func TestProjectIdentityWithoutShuffleData(t *testing.T) {
	quiz := testQuiz()

	view, err := Project(quiz, nil)
	if err != nil {
		t.Fatalf("project failed: %v", err)
	}

	for i, q := range view.Questions {
		if q.ID != quiz.Questions[i].ID {
			t.Fatalf("identity projection reordered questions: %v", view.Questions)
		}
		for j, o := range q.Options {
			if o.ID != quiz.Questions[i].Options[j].ID {
				t.Fatalf("identity projection reordered options for question %d", q.ID)
			}
		}
	}
}

func TestProjectOptionFallbackKeepsAuthoringOrder(t *testing.T) {
	quiz := testQuiz()
	sd := &models.ShuffleData{
		Questions: []uint{2, 3, 1},
		Options:   map[uint][]uint{1: {12, 13, 11}}, // no entries for 2 and 3
	}

	view, err := Project(quiz, sd)
	if err != nil {
		t.Fatalf("project failed: %v", err)
	}

	for _, q := range view.Questions {
		if q.ID == 2 {
			if q.Options[0].ID != 21 || q.Options[1].ID != 22 {
				t.Fatalf("question 2 should keep authoring order, got %v", q.Options)
			}
		}
	}
}

func TestProjectAppendsOptionsMissingFromStoredOrder(t *testing.T) {
	quiz := testQuiz()
	sd := &models.ShuffleData{
		Questions: []uint{1, 2, 3},
		Options: map[uint][]uint{
			1: {12, 11}, // option 13 authored after the order was stored
			2: {22, 21},
			3: {32, 31},
		},
	}

	view, err := Project(quiz, sd)
	if err != nil {
		t.Fatalf("project failed: %v", err)
	}

	q1 := view.Questions[0]
	if len(q1.Options) != 3 {
		t.Fatalf("question 1 has %d options, want 3", len(q1.Options))
	}
	want := []uint{12, 11, 13}
	for i, id := range want {
		if q1.Options[i].ID != id {
			t.Fatalf("option order = %v, want %v", q1.Options, want)
		}
	}
}

func TestValidateRejectsMissingQuestion(t *testing.T) {
	quiz := testQuiz()
	sd := &models.ShuffleData{Questions: []uint{1, 2}} // question 3 missing

	if err := Validate(quiz, sd); err == nil {
		t.Fatalf("expected validation error for missing question")
	}
	if _, err := Project(quiz, sd); err == nil {
		t.Fatalf("expected projection to fail for missing question")
	}
}
