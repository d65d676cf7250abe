package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/events"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/validator"
)

// ===== IN-MEMORY REPOSITORY =====

type memoryRepo struct {
	mu       sync.Mutex
	quizzes  map[uint]*models.Quiz
	attempts map[uint]*models.QuizAttempt
	answers  map[uint]map[uint]*models.Answer // attemptID -> questionID
	nextID   uint
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		quizzes:  make(map[uint]*models.Quiz),
		attempts: make(map[uint]*models.QuizAttempt),
		answers:  make(map[uint]map[uint]*models.Answer),
		nextID:   1,
	}
}

func (m *memoryRepo) id() uint {
	id := m.nextID
	m.nextID++
	return id
}

func (m *memoryRepo) Quiz() repositories.QuizRepository       { return (*memoryQuizRepo)(m) }
func (m *memoryRepo) Attempt() repositories.AttemptRepository { return (*memoryAttemptRepo)(m) }
func (m *memoryRepo) Answer() repositories.AnswerRepository   { return (*memoryAnswerRepo)(m) }
func (m *memoryRepo) User() repositories.UserRepository       { return nil }

func (m *memoryRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}
func (m *memoryRepo) Ping(ctx context.Context) error { return nil }
func (m *memoryRepo) Close() error                   { return nil }

type memoryQuizRepo memoryRepo

func (r *memoryQuizRepo) Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if quiz.ID == 0 {
		quiz.ID = m.id()
	}
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		if q.ID == 0 {
			q.ID = m.id()
		}
		q.QuizID = quiz.ID
		for j := range q.Options {
			if q.Options[j].ID == 0 {
				q.Options[j].ID = m.id()
			}
			q.Options[j].QuestionID = q.ID
		}
	}
	m.quizzes[quiz.ID] = quiz
	return nil
}

func (r *memoryQuizRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	quiz, ok := m.quizzes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return quiz, nil
}

func (r *memoryQuizRepo) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *memoryQuizRepo) Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[quiz.ID] = quiz
	return nil
}

func (r *memoryQuizRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.quizzes, id)
	return nil
}

func (r *memoryQuizRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Quiz
	for _, quiz := range m.quizzes {
		if filters.IsActive != nil && quiz.IsActive != *filters.IsActive {
			continue
		}
		out = append(out, quiz)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *memoryQuizRepo) SetActive(ctx context.Context, tx *gorm.DB, id uint, active bool) error {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	quiz, ok := m.quizzes[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	quiz.IsActive = active
	return nil
}

type memoryAttemptRepo memoryRepo

func (r *memoryAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt.ID = m.id()
	copied := *attempt
	m.attempts[attempt.ID] = &copied
	return nil
}

func (r *memoryAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, ok := m.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *attempt
	return &copied, nil
}

func (r *memoryAttemptRepo) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	m := (*memoryRepo)(r)
	attempt, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt.Answers = nil
	for _, answer := range m.answers[id] {
		attempt.Answers = append(attempt.Answers, *answer)
	}
	sort.Slice(attempt.Answers, func(i, j int) bool {
		return attempt.Answers[i].QuestionID < attempt.Answers[j].QuestionID
	})
	return attempt, nil
}

func (r *memoryAttemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *attempt
	m.attempts[attempt.ID] = &copied
	return nil
}

func (r *memoryAttemptRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.QuizAttempt
	for _, attempt := range m.attempts {
		if filters.UserID != nil && attempt.UserID != *filters.UserID {
			continue
		}
		if filters.Status != nil && attempt.Status != *filters.Status {
			continue
		}
		if filters.QuizID != nil && attempt.QuizID != *filters.QuizID {
			continue
		}
		copied := *attempt
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *memoryAttemptRepo) GetLatest(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (*models.QuizAttempt, error) {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.QuizAttempt
	for _, attempt := range m.attempts {
		if attempt.QuizID != quizID || attempt.UserID != userID {
			continue
		}
		if latest == nil || attempt.AttemptNumber > latest.AttemptNumber {
			latest = attempt
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (r *memoryAttemptRepo) GetInProgress(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (*models.QuizAttempt, error) {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, attempt := range m.attempts {
		if attempt.QuizID == quizID && attempt.UserID == userID && attempt.Status == models.AttemptInProgress {
			copied := *attempt
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memoryAttemptRepo) CountByUser(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (int64, error) {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, attempt := range m.attempts {
		if attempt.QuizID == quizID && attempt.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *memoryAttemptRepo) ListExpiredInProgress(ctx context.Context, tx *gorm.DB, now time.Time) ([]*models.QuizAttempt, error) {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.QuizAttempt
	for _, attempt := range m.attempts {
		if attempt.Status == models.AttemptInProgress && attempt.Deadline != nil && !attempt.Deadline.After(now) {
			copied := *attempt
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memoryAttemptRepo) ListOpenTimed(ctx context.Context, tx *gorm.DB) ([]*models.QuizAttempt, error) {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.QuizAttempt
	for _, attempt := range m.attempts {
		if attempt.Status == models.AttemptInProgress && attempt.Deadline != nil {
			copied := *attempt
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memoryAnswerRepo memoryRepo

func (r *memoryAnswerRepo) Upsert(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	byQuestion, ok := m.answers[answer.AttemptID]
	if !ok {
		byQuestion = make(map[uint]*models.Answer)
		m.answers[answer.AttemptID] = byQuestion
	}
	if existing, ok := byQuestion[answer.QuestionID]; ok {
		existing.SelectedOptionID = answer.SelectedOptionID
		existing.IsCorrect = answer.IsCorrect
		return nil
	}
	answer.ID = m.id()
	copied := *answer
	byQuestion[answer.QuestionID] = &copied
	return nil
}

func (r *memoryAnswerRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.Answer, error) {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Answer
	for _, answer := range m.answers[attemptID] {
		copied := *answer
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (r *memoryAnswerRepo) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, error) {
	m := (*memoryRepo)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	answer, ok := m.answers[attemptID][questionID]
	if !ok {
		return nil, nil
	}
	copied := *answer
	return &copied, nil
}

func (r *memoryAnswerRepo) BulkUpsert(ctx context.Context, tx *gorm.DB, answers []*models.Answer) error {
	for _, answer := range answers {
		if err := r.Upsert(ctx, tx, answer); err != nil {
			return err
		}
	}
	return nil
}

// ===== FIXTURES =====

const testUser = "user-1"

func optPtr(v uint) *uint { return &v }
func intPtr(v int) *int   { return &v }

func seedQuiz(t *testing.T, repo *memoryRepo, mutate func(*models.Quiz)) *models.Quiz {
	t.Helper()
	quiz := &models.Quiz{
		Title:     "Go basics",
		TotalTime: 10,
		IsActive:  true,
		CreatedBy: "admin-1",
		Questions: []models.Question{
			{Text: "Q1", Marks: 2, Order: 0, Options: []models.Option{
				{Text: "a"}, {Text: "b", IsCorrect: true},
			}},
			{Text: "Q2", Marks: 3, Order: 1, Options: []models.Option{
				{Text: "a", IsCorrect: true}, {Text: "b"},
			}},
			{Text: "Q3", Marks: 1, Order: 2, Options: []models.Option{
				{Text: "a"}, {Text: "b", IsCorrect: true},
			}},
		},
	}
	if mutate != nil {
		mutate(quiz)
	}
	if err := repo.Quiz().Create(context.Background(), nil, quiz); err != nil {
		t.Fatalf("failed to seed quiz: %v", err)
	}
	return quiz
}

func newTestAttemptService(repo *memoryRepo) AttemptService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAttemptService(repo, nil, logger, validator.New(), events.NopPublisher{})
}

func correctOption(quiz *models.Quiz, idx int) *uint {
	id := quiz.Questions[idx].CorrectOptionID()
	return &id
}

func wrongOption(quiz *models.Quiz, idx int) *uint {
	correct := quiz.Questions[idx].CorrectOptionID()
	for _, o := range quiz.Questions[idx].Options {
		if o.ID != correct {
			id := o.ID
			return &id
		}
	}
	return nil
}

// ===== GET OR CREATE =====

func TestGetOrCreateCreatesFirstAttempt(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	resp, err := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	if err != nil {
		t.Fatalf("get-or-create failed: %v", err)
	}
	if resp.AttemptNumber != 1 {
		t.Fatalf("attempt number = %d, want 1", resp.AttemptNumber)
	}
	if resp.Status != string(models.AttemptInProgress) {
		t.Fatalf("status = %s, want in_progress", resp.Status)
	}
	if resp.Deadline == nil {
		t.Fatalf("timed quiz attempt has no deadline")
	}
	wantDeadline := resp.StartedAt.Add(10 * time.Minute)
	if !resp.Deadline.Equal(wantDeadline) {
		t.Fatalf("deadline = %v, want started_at + 10m = %v", resp.Deadline, wantDeadline)
	}
	if len(resp.Quiz.Questions) != 3 {
		t.Fatalf("taking view has %d questions, want 3", len(resp.Quiz.Questions))
	}
}

func TestGetOrCreateResumesOpenAttempt(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	first, err := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	second, err := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("resolve created a second attempt: %d then %d", first.ID, second.ID)
	}
}

func TestGetOrCreateKeepsShuffleStableAcrossResumes(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	first, err := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	second, err := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	for i := range first.Quiz.Questions {
		if first.Quiz.Questions[i].ID != second.Quiz.Questions[i].ID {
			t.Fatalf("question order changed between resumes")
		}
		for j := range first.Quiz.Questions[i].Options {
			if first.Quiz.Questions[i].Options[j].ID != second.Quiz.Questions[i].Options[j].ID {
				t.Fatalf("option order changed between resumes")
			}
		}
	}
}

func TestGetOrCreateUntimedQuizHasNoDeadline(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, func(q *models.Quiz) { q.TotalTime = 0 })
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	resp, err := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resp.Deadline != nil {
		t.Fatalf("untimed quiz attempt got deadline %v", resp.Deadline)
	}
	if resp.TimeRemaining != nil {
		t.Fatalf("untimed quiz attempt reports remaining time")
	}
}

func TestGetOrCreateInactiveQuizRefused(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, func(q *models.Quiz) { q.IsActive = false })
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	_, err := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	if !errors.Is(err, ErrQuizNotActive) {
		t.Fatalf("expected ErrQuizNotActive, got %v", err)
	}
}

func TestGetOrCreateUnknownQuiz(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	_, err := svc.GetOrCreate(context.Background(), 999, testUser, false)
	if !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestGetOrCreateReturnsSubmittedAttemptForRedirect(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	first, _ := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	submitAll(t, svc, quiz, first.ID)

	resp, err := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	if err != nil {
		t.Fatalf("resolve after submit failed: %v", err)
	}
	if resp.ID != first.ID || resp.SubmittedAt == nil {
		t.Fatalf("expected the submitted attempt back, got %+v", resp)
	}
}

func TestGetOrCreateForceNewStartsRetake(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, func(q *models.Quiz) { q.MaxAttempts = intPtr(2) })
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	first, _ := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	submitAll(t, svc, quiz, first.ID)

	retake, err := svc.GetOrCreate(context.Background(), quiz.ID, testUser, true)
	if err != nil {
		t.Fatalf("retake failed: %v", err)
	}
	if retake.AttemptNumber != 2 {
		t.Fatalf("retake attempt number = %d, want 2", retake.AttemptNumber)
	}

	submitAll(t, svc, quiz, retake.ID)
	_, err = svc.GetOrCreate(context.Background(), quiz.ID, testUser, true)
	if !errors.Is(err, ErrAttemptLimitReached) {
		t.Fatalf("expected ErrAttemptLimitReached after exhausting attempts, got %v", err)
	}
}

// ===== SAVE ANSWER =====

func TestSaveAnswerUpserts(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	resp, _ := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)

	q1 := quiz.Questions[0].ID
	if err := svc.SaveAnswer(context.Background(), resp.ID, testUser, &SaveAnswerRequest{
		QuestionID:       q1,
		SelectedOptionID: wrongOption(quiz, 0),
	}); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := svc.SaveAnswer(context.Background(), resp.ID, testUser, &SaveAnswerRequest{
		QuestionID:       q1,
		SelectedOptionID: correctOption(quiz, 0),
	}); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	reloaded, err := svc.GetByID(context.Background(), resp.ID, testUser)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(reloaded.Answers) != 1 {
		t.Fatalf("expected one answer row after two saves, got %d", len(reloaded.Answers))
	}
	if *reloaded.Answers[0].SelectedOptionID != *correctOption(quiz, 0) {
		t.Fatalf("later save did not win")
	}
}

func TestSaveAnswerValidatesQuestionAndOption(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	other := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	resp, _ := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)

	err := svc.SaveAnswer(context.Background(), resp.ID, testUser, &SaveAnswerRequest{
		QuestionID: other.Questions[0].ID,
	})
	if !errors.Is(err, ErrQuestionNotInQuiz) {
		t.Fatalf("expected ErrQuestionNotInQuiz, got %v", err)
	}

	err = svc.SaveAnswer(context.Background(), resp.ID, testUser, &SaveAnswerRequest{
		QuestionID:       quiz.Questions[0].ID,
		SelectedOptionID: optPtr(quiz.Questions[1].Options[0].ID),
	})
	if !errors.Is(err, ErrOptionNotInQuestion) {
		t.Fatalf("expected ErrOptionNotInQuestion, got %v", err)
	}
}

func TestSaveAnswerRejectedForForeignAttempt(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	resp, _ := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)

	err := svc.SaveAnswer(context.Background(), resp.ID, "somebody-else", &SaveAnswerRequest{
		QuestionID: quiz.Questions[0].ID,
	})
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
}

// ===== SUBMIT AND GRADING =====

func submitAll(t *testing.T, svc AttemptService, quiz *models.Quiz, attemptID uint) *ResultResponse {
	t.Helper()
	req := &SubmitAttemptRequest{}
	for i := range quiz.Questions {
		req.Answers = append(req.Answers, SubmittedAnswerInput{
			QuestionID:       quiz.Questions[i].ID,
			SelectedOptionID: correctOption(quiz, i),
		})
	}
	result, err := svc.Submit(context.Background(), attemptID, testUser, req)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	return result
}

func TestSubmitGradesBySelectedOption(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	resp, _ := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)

	// Q1 (2 marks) correct, Q2 (3 marks) wrong, Q3 (1 mark) unanswered.
	result, err := svc.Submit(context.Background(), resp.ID, testUser, &SubmitAttemptRequest{
		Answers: []SubmittedAnswerInput{
			{QuestionID: quiz.Questions[0].ID, SelectedOptionID: correctOption(quiz, 0)},
			{QuestionID: quiz.Questions[1].ID, SelectedOptionID: wrongOption(quiz, 1)},
			{QuestionID: quiz.Questions[2].ID, SelectedOptionID: nil},
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if result.Score != 2 || result.MaxScore != 6 {
		t.Fatalf("score = %d/%d, want 2/6", result.Score, result.MaxScore)
	}
	if result.EndReason != models.AttemptEndReasonSubmitted {
		t.Fatalf("end reason = %s, want submitted", result.EndReason)
	}
	if len(result.Review) != 3 {
		t.Fatalf("review covers %d questions, want 3", len(result.Review))
	}
	for _, row := range result.Review {
		switch row.QuestionID {
		case quiz.Questions[0].ID:
			if !row.IsCorrect || row.Earned != 2 {
				t.Fatalf("Q1 review wrong: %+v", row)
			}
		case quiz.Questions[1].ID:
			if row.IsCorrect || row.Earned != 0 {
				t.Fatalf("Q2 review wrong: %+v", row)
			}
		case quiz.Questions[2].ID:
			if row.IsCorrect || row.SelectedOptionID != nil {
				t.Fatalf("unanswered Q3 review wrong: %+v", row)
			}
		}
	}
}

func TestSubmitTwiceConflicts(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	resp, _ := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	submitAll(t, svc, quiz, resp.ID)

	_, err := svc.Submit(context.Background(), resp.ID, testUser, &SubmitAttemptRequest{
		Answers: []SubmittedAnswerInput{{QuestionID: quiz.Questions[0].ID}},
	})
	if !errors.Is(err, ErrAttemptAlreadySubmitted) {
		t.Fatalf("expected ErrAttemptAlreadySubmitted, got %v", err)
	}
}

// ===== TIMEOUT =====

func TestHandleTimeoutGradesSavedAnswers(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	resp, _ := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	if err := svc.SaveAnswer(context.Background(), resp.ID, testUser, &SaveAnswerRequest{
		QuestionID:       quiz.Questions[1].ID,
		SelectedOptionID: correctOption(quiz, 1),
	}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := svc.HandleTimeout(context.Background(), resp.ID); err != nil {
		t.Fatalf("timeout handling failed: %v", err)
	}

	result, err := svc.GetResult(context.Background(), resp.ID, testUser)
	if err != nil {
		t.Fatalf("get result failed: %v", err)
	}
	if result.Score != 3 {
		t.Fatalf("score after timeout = %d, want 3 (only Q2 saved)", result.Score)
	}
	if result.EndReason != models.AttemptEndReasonTimeout {
		t.Fatalf("end reason = %s, want time_out", result.EndReason)
	}
}

func TestHandleTimeoutAfterSubmitIsNoOp(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	resp, _ := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	result := submitAll(t, svc, quiz, resp.ID)

	if err := svc.HandleTimeout(context.Background(), resp.ID); err != nil {
		t.Fatalf("timeout after submit should be a no-op, got %v", err)
	}

	after, err := svc.GetResult(context.Background(), resp.ID, testUser)
	if err != nil {
		t.Fatalf("get result failed: %v", err)
	}
	if after.Score != result.Score || after.EndReason != models.AttemptEndReasonSubmitted {
		t.Fatalf("timeout overwrote submitted result: %+v", after)
	}
}

// ===== RESULTS AND RETAKE =====

func TestGetResultBeforeSubmitRejected(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	resp, _ := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	_, err := svc.GetResult(context.Background(), resp.ID, testUser)
	if !errors.Is(err, ErrAttemptNotSubmitted) {
		t.Fatalf("expected ErrAttemptNotSubmitted, got %v", err)
	}
}

func TestResultRetakeEligibility(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts *int
		isActive    bool
		want        bool
	}{
		{"unlimited attempts, active", nil, true, true},
		{"attempts remain, active", intPtr(2), true, true},
		{"limit reached, active", intPtr(1), true, false},
		{"unlimited attempts, inactive", nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepo()
			quiz := seedQuiz(t, repo, func(q *models.Quiz) {
				q.MaxAttempts = tt.maxAttempts
			})
			svc := newTestAttemptService(repo)
			defer svc.StopTimers()

			resp, _ := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
			submitAll(t, svc, quiz, resp.ID)

			if !tt.isActive {
				repo.mu.Lock()
				repo.quizzes[quiz.ID].IsActive = false
				repo.mu.Unlock()
			}

			result, err := svc.GetResult(context.Background(), resp.ID, testUser)
			if err != nil {
				t.Fatalf("get result failed: %v", err)
			}
			if result.CanRetake != tt.want {
				t.Fatalf("can_retake = %v, want %v", result.CanRetake, tt.want)
			}
		})
	}
}

// TestTimedAttemptEndToEnd walks the full lifecycle: start a timed attempt,
// answer part of the quiz, let the deadline close it, and check the graded
// review covers every question in the order the student saw them.
func TestTimedAttemptEndToEnd(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	resp, err := svc.GetOrCreate(context.Background(), quiz.ID, testUser, false)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// Answer the first two questions in display order, leave the last open.
	for _, q := range resp.Quiz.Questions[:2] {
		for i := range quiz.Questions {
			if quiz.Questions[i].ID != q.ID {
				continue
			}
			if err := svc.SaveAnswer(context.Background(), resp.ID, testUser, &SaveAnswerRequest{
				QuestionID:       q.ID,
				SelectedOptionID: correctOption(quiz, i),
			}); err != nil {
				t.Fatalf("save failed: %v", err)
			}
		}
	}

	if err := svc.HandleTimeout(context.Background(), resp.ID); err != nil {
		t.Fatalf("timeout failed: %v", err)
	}

	result, err := svc.GetResult(context.Background(), resp.ID, testUser)
	if err != nil {
		t.Fatalf("get result failed: %v", err)
	}

	if len(result.Review) != len(quiz.Questions) {
		t.Fatalf("review covers %d questions, want %d", len(result.Review), len(quiz.Questions))
	}
	for i, row := range result.Review {
		if row.QuestionID != resp.Quiz.Questions[i].ID {
			t.Fatalf("review order differs from the display order at index %d", i)
		}
	}

	wantScore := 0
	for _, q := range resp.Quiz.Questions[:2] {
		for i := range quiz.Questions {
			if quiz.Questions[i].ID == q.ID {
				wantScore += quiz.Questions[i].Marks
			}
		}
	}
	if result.Score != wantScore {
		t.Fatalf("score = %d, want %d (only answered questions count)", result.Score, wantScore)
	}
	unanswered := result.Review[len(result.Review)-1]
	if unanswered.SelectedOptionID != nil || unanswered.Earned != 0 {
		t.Fatalf("unanswered question graded wrong: %+v", unanswered)
	}
}

// ===== STARTUP RE-ARM =====

func TestRearmDeadlinesClosesExpiredAttempts(t *testing.T) {
	repo := newMemoryRepo()
	quiz := seedQuiz(t, repo, nil)
	svc := newTestAttemptService(repo)
	defer svc.StopTimers()

	// Simulate an attempt left open past its deadline by a dead process.
	started := time.Now().Add(-time.Hour)
	deadline := started.Add(10 * time.Minute)
	attempt := &models.QuizAttempt{
		QuizID:        quiz.ID,
		UserID:        testUser,
		AttemptNumber: 1,
		Status:        models.AttemptInProgress,
		StartedAt:     started,
		Deadline:      &deadline,
		MaxScore:      6,
	}
	if err := repo.Attempt().Create(context.Background(), nil, attempt); err != nil {
		t.Fatalf("seed attempt failed: %v", err)
	}

	if err := svc.RearmDeadlines(context.Background()); err != nil {
		t.Fatalf("re-arm failed: %v", err)
	}

	result, err := svc.GetResult(context.Background(), attempt.ID, testUser)
	if err != nil {
		t.Fatalf("expired attempt was not closed: %v", err)
	}
	if result.EndReason != models.AttemptEndReasonTimeout {
		t.Fatalf("end reason = %s, want time_out", result.EndReason)
	}
	if result.TimeSpent != int((10 * time.Minute).Seconds()) {
		t.Fatalf("time spent = %d, want clamped to 600", result.TimeSpent)
	}
}
