package moderation

import (
	"context"
	"errors"
	"testing"
	"time"
	"toolocal-bot/internal/database"
	"toolocal-bot/internal/database/models"
	"toolocal-bot/internal/locales"
	"toolocal-bot/internal/mediagroups"
	"toolocal-bot/internal/quota"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

// MockBot is a mock implementing the telegoapi.BotAPI interface.
type MockBot struct {
	mock.Mock
}

func (m *MockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) GetMe(ctx context.Context) (*telego.User, error) {
	args := m.Called(ctx)
	if user, ok := args.Get(0).(*telego.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) EditMessageReplyMarkup(ctx context.Context, params *telego.EditMessageReplyMarkupParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendVideo(ctx context.Context, params *telego.SendVideoParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendAnimation(ctx context.Context, params *telego.SendAnimationParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendAudio(ctx context.Context, params *telego.SendAudioParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendVoice(ctx context.Context, params *telego.SendVoiceParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendVideoNote(ctx context.Context, params *telego.SendVideoNoteParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendMediaGroup(ctx context.Context, params *telego.SendMediaGroupParams) ([]telego.Message, error) {
	args := m.Called(ctx, params)
	if msgs, ok := args.Get(0).([]telego.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockSubmissionRepo is a mock implementing database.SubmissionRepository.
type MockSubmissionRepo struct {
	mock.Mock
}

func (m *MockSubmissionRepo) Create(ctx context.Context, submission *models.Submission) (int64, error) {
	args := m.Called(ctx, submission)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubmissionRepo) Get(ctx context.Context, id int64) (*models.Submission, error) {
	args := m.Called(ctx, id)
	if sub, ok := args.Get(0).(*models.Submission); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSubmissionRepo) SetStatus(ctx context.Context, id int64, status models.SubmissionStatus, reviewerID int64, reviewerUsername string) error {
	args := m.Called(ctx, id, status, reviewerID, reviewerUsername)
	return args.Error(0)
}

func (m *MockSubmissionRepo) ListPending(ctx context.Context) ([]models.Submission, error) {
	args := m.Called(ctx)
	if subs, ok := args.Get(0).([]models.Submission); ok {
		return subs, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockGate is a mock implementing SubmissionGate.
type MockGate struct {
	mock.Mock
}

func (m *MockGate) CanSubmit(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockGate) Admit(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockGate) RecordOutcome(ctx context.Context, userID int64, approved bool) error {
	args := m.Called(ctx, userID, approved)
	return args.Error(0)
}

// MockDirectory is a mock implementing ReviewerDirectory.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) IsReviewer(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDirectory) Reviewers(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if ids, ok := args.Get(0).([]int64); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockSink is a mock implementing PublishSink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(ctx context.Context, sub *models.Submission) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

// --- Suite ---

type workflowSuite struct {
	mockBot       *MockBot
	mockStore     *MockSubmissionRepo
	mockGate      *MockGate
	mockDirectory *MockDirectory
	mockSink      *MockSink
	workflow      *Workflow
}

func setupWorkflowSuite(t *testing.T) *workflowSuite {
	t.Helper()
	locales.Init("en")

	s := &workflowSuite{
		mockBot:       new(MockBot),
		mockStore:     new(MockSubmissionRepo),
		mockGate:      new(MockGate),
		mockDirectory: new(MockDirectory),
		mockSink:      new(MockSink),
	}
	s.workflow = NewWorkflow(
		s.mockBot,
		s.mockStore,
		s.mockGate,
		s.mockDirectory,
		s.mockSink,
		mediagroups.NewAggregator(20*time.Millisecond, mediagroups.DefaultMaxGroupSize),
	)
	return s
}

func photoMessage(userID, chatID int64, messageID int) telego.Message {
	return telego.Message{
		MessageID: messageID,
		From:      &telego.User{ID: userID, Username: "submitter", FirstName: "Sub"},
		Chat:      telego.Chat{ID: chatID},
		Photo: []telego.PhotoSize{
			{FileID: "photo-small"},
			{FileID: "photo-large"},
		},
		Caption: "look at this",
	}
}

// --- Tests ---

func TestIntakeSingleSubmission(t *testing.T) {
	s := setupWorkflowSuite(t)
	ctx := context.Background()
	message := photoMessage(10, 20, 1)

	s.mockGate.On("CanSubmit", ctx, int64(10)).Return(nil).Once()
	s.mockGate.On("Admit", ctx, int64(10)).Return(nil).Once()

	var created *models.Submission
	s.mockStore.On("Create", ctx, mock.AnythingOfType("*models.Submission")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*models.Submission)
		}).
		Return(int64(41), nil).Once()

	// Confirmation reply to the submitter.
	s.mockBot.On("SendMessage", ctx, mock.AnythingOfType("*telego.SendMessageParams")).
		Return(&telego.Message{}, nil).Once()

	// Dispatch to the single reviewer.
	s.mockDirectory.On("Reviewers", ctx).Return([]int64{777}, nil).Once()
	var reviewParams *telego.SendPhotoParams
	s.mockBot.On("SendPhoto", ctx, mock.AnythingOfType("*telego.SendPhotoParams")).
		Run(func(args mock.Arguments) {
			reviewParams = args.Get(1).(*telego.SendPhotoParams)
		}).
		Return(&telego.Message{}, nil).Once()

	err := s.workflow.Intake(ctx, message)

	require.NoError(t, err)
	s.mockGate.AssertExpectations(t)
	s.mockStore.AssertExpectations(t)
	s.mockDirectory.AssertExpectations(t)
	s.mockBot.AssertExpectations(t)

	require.NotNil(t, created)
	assert.Equal(t, int64(10), created.SubmitterID)
	// The largest photo size is stored, not the thumbnail.
	assert.Equal(t, []string{"photo-large"}, created.FileIDs)
	assert.Equal(t, models.KindPhoto, created.Kind)
	assert.Equal(t, "look at this", created.Caption)

	require.NotNil(t, reviewParams)
	require.NotNil(t, reviewParams.ReplyMarkup)
	keyboard := reviewParams.ReplyMarkup.(*telego.InlineKeyboardMarkup)
	require.Len(t, keyboard.InlineKeyboard, 1)
	require.Len(t, keyboard.InlineKeyboard[0], 2)
	assert.Equal(t, "review:41:approve", keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "review:41:reject", keyboard.InlineKeyboard[0][1].CallbackData)
}

func TestIntakeDeniedByQuota(t *testing.T) {
	s := setupWorkflowSuite(t)
	ctx := context.Background()
	message := photoMessage(10, 20, 1)

	s.mockGate.On("CanSubmit", ctx, int64(10)).
		Return(&quota.LimitError{Daily: true, Limit: 20, RetryAfter: time.Hour}).Once()
	s.mockBot.On("SendMessage", ctx, mock.AnythingOfType("*telego.SendMessageParams")).
		Return(&telego.Message{}, nil).Once()

	err := s.workflow.Intake(ctx, message)

	require.NoError(t, err)
	s.mockGate.AssertExpectations(t)
	s.mockStore.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	s.mockBot.AssertExpectations(t)
}

func TestIntakeRejectsTextOnly(t *testing.T) {
	s := setupWorkflowSuite(t)
	ctx := context.Background()
	message := telego.Message{
		MessageID: 1,
		From:      &telego.User{ID: 10},
		Chat:      telego.Chat{ID: 20},
		Text:      "just words",
	}

	s.mockBot.On("SendMessage", ctx, mock.AnythingOfType("*telego.SendMessageParams")).
		Return(&telego.Message{}, nil).Once()

	err := s.workflow.Intake(ctx, message)

	require.NoError(t, err)
	s.mockGate.AssertNotCalled(t, "CanSubmit", mock.Anything, mock.Anything)
	s.mockStore.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func pendingSubmission(id int64) *models.Submission {
	return &models.Submission{
		ID:          id,
		SubmitterID: 10,
		Username:    "submitter",
		FileIDs:     []string{"photo-large"},
		Kind:        models.KindPhoto,
		ChatID:      20,
		MessageID:   5,
		Status:      models.StatusPending,
		SubmittedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestResolveApprovePublishesOnce(t *testing.T) {
	s := setupWorkflowSuite(t)
	ctx := context.Background()
	reviewer := telego.User{ID: 777, Username: "mod"}

	s.mockStore.On("Get", ctx, int64(41)).Return(pendingSubmission(41), nil).Once()
	s.mockStore.On("SetStatus", ctx, int64(41), models.StatusApproved, int64(777), "mod").Return(nil).Once()
	s.mockGate.On("RecordOutcome", ctx, int64(10), true).Return(nil).Once()
	s.mockSink.On("Publish", ctx, mock.AnythingOfType("*models.Submission")).Return(nil).Once()

	// Submitter notice, threaded to the original message.
	var noticeParams *telego.SendMessageParams
	s.mockBot.On("SendMessage", ctx, mock.AnythingOfType("*telego.SendMessageParams")).
		Run(func(args mock.Arguments) {
			noticeParams = args.Get(1).(*telego.SendMessageParams)
		}).
		Return(&telego.Message{}, nil).Once()
	// No other reviewers to notify.
	s.mockDirectory.On("Reviewers", ctx).Return([]int64{777}, nil).Once()

	sub, err := s.workflow.Resolve(ctx, 41, reviewer, true)

	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, sub.Status)
	assert.Equal(t, int64(777), sub.ReviewedBy)
	s.mockStore.AssertExpectations(t)
	s.mockGate.AssertExpectations(t)
	s.mockSink.AssertExpectations(t)
	s.mockBot.AssertExpectations(t)

	require.NotNil(t, noticeParams)
	require.NotNil(t, noticeParams.ReplyParameters)
	assert.Equal(t, 5, noticeParams.ReplyParameters.MessageID)
}

func TestResolveRejectNeverPublishes(t *testing.T) {
	s := setupWorkflowSuite(t)
	ctx := context.Background()
	reviewer := telego.User{ID: 777, Username: "mod"}

	s.mockStore.On("Get", ctx, int64(41)).Return(pendingSubmission(41), nil).Once()
	s.mockStore.On("SetStatus", ctx, int64(41), models.StatusRejected, int64(777), "mod").Return(nil).Once()
	s.mockGate.On("RecordOutcome", ctx, int64(10), false).Return(nil).Once()
	s.mockBot.On("SendMessage", ctx, mock.AnythingOfType("*telego.SendMessageParams")).
		Return(&telego.Message{}, nil)
	s.mockDirectory.On("Reviewers", ctx).Return([]int64{777, 888}, nil).Once()

	sub, err := s.workflow.Resolve(ctx, 41, reviewer, false)

	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, sub.Status)
	s.mockSink.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	// One notice for the submitter, one for the other reviewer.
	s.mockBot.AssertNumberOfCalls(t, "SendMessage", 2)
}

func TestResolveLoserGetsAlreadyResolved(t *testing.T) {
	s := setupWorkflowSuite(t)
	ctx := context.Background()
	reviewer := telego.User{ID: 888, Username: "other"}

	s.mockStore.On("Get", ctx, int64(41)).Return(pendingSubmission(41), nil).Once()
	s.mockStore.On("SetStatus", ctx, int64(41), models.StatusApproved, int64(888), "other").
		Return(database.ErrAlreadyResolved).Once()

	_, err := s.workflow.Resolve(ctx, 41, reviewer, true)

	require.ErrorIs(t, err, database.ErrAlreadyResolved)
	s.mockSink.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	s.mockGate.AssertNotCalled(t, "RecordOutcome", mock.Anything, mock.Anything, mock.Anything)
	s.mockBot.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestDispatchSurvivesUnreachableReviewer(t *testing.T) {
	s := setupWorkflowSuite(t)
	ctx := context.Background()
	sub := pendingSubmission(41)

	s.mockDirectory.On("Reviewers", ctx).Return([]int64{111, 222}, nil).Once()
	s.mockBot.On("SendPhoto", ctx, mock.MatchedBy(func(p *telego.SendPhotoParams) bool {
		return p.ChatID.ID == 111
	})).Return(nil, errors.New("blocked by user")).Once()
	s.mockBot.On("SendPhoto", ctx, mock.MatchedBy(func(p *telego.SendPhotoParams) bool {
		return p.ChatID.ID == 222
	})).Return(&telego.Message{}, nil).Once()

	s.workflow.DispatchForReview(ctx, sub)

	s.mockBot.AssertExpectations(t)
}

func TestHandleCallbackApprove(t *testing.T) {
	s := setupWorkflowSuite(t)
	ctx := context.Background()
	reviewMessage := &telego.Message{MessageID: 99, Chat: telego.Chat{ID: 777}}
	query := telego.CallbackQuery{
		ID:      "cb1",
		From:    telego.User{ID: 777, Username: "mod"},
		Data:    "review:41:approve",
		Message: reviewMessage,
	}

	s.mockDirectory.On("IsReviewer", ctx, int64(777)).Return(true, nil).Once()
	s.mockStore.On("Get", ctx, int64(41)).Return(pendingSubmission(41), nil).Once()
	s.mockStore.On("SetStatus", ctx, int64(41), models.StatusApproved, int64(777), "mod").Return(nil).Once()
	s.mockGate.On("RecordOutcome", ctx, int64(10), true).Return(nil).Once()
	s.mockSink.On("Publish", ctx, mock.AnythingOfType("*models.Submission")).Return(nil).Once()
	s.mockBot.On("SendMessage", ctx, mock.AnythingOfType("*telego.SendMessageParams")).
		Return(&telego.Message{}, nil)
	s.mockDirectory.On("Reviewers", ctx).Return([]int64{777}, nil).Once()

	// The review keyboard is stripped once the decision is committed.
	s.mockBot.On("EditMessageReplyMarkup", ctx, mock.AnythingOfType("*telego.EditMessageReplyMarkupParams")).
		Return(&telego.Message{}, nil).Once()

	var answer *telego.AnswerCallbackQueryParams
	s.mockBot.On("AnswerCallbackQuery", ctx, mock.AnythingOfType("*telego.AnswerCallbackQueryParams")).
		Run(func(args mock.Arguments) {
			answer = args.Get(1).(*telego.AnswerCallbackQueryParams)
		}).
		Return(nil).Once()

	err := s.workflow.HandleCallbackQuery(ctx, query)

	require.NoError(t, err)
	s.mockBot.AssertExpectations(t)
	s.mockSink.AssertExpectations(t)
	require.NotNil(t, answer)
	assert.Equal(t, "cb1", answer.CallbackQueryID)
	assert.False(t, answer.ShowAlert)
}

func TestHandleCallbackRejectsNonReviewer(t *testing.T) {
	s := setupWorkflowSuite(t)
	ctx := context.Background()
	query := telego.CallbackQuery{
		ID:   "cb2",
		From: telego.User{ID: 10},
		Data: "review:41:approve",
	}

	s.mockDirectory.On("IsReviewer", ctx, int64(10)).Return(false, nil).Once()

	var answer *telego.AnswerCallbackQueryParams
	s.mockBot.On("AnswerCallbackQuery", ctx, mock.AnythingOfType("*telego.AnswerCallbackQueryParams")).
		Run(func(args mock.Arguments) {
			answer = args.Get(1).(*telego.AnswerCallbackQueryParams)
		}).
		Return(nil).Once()

	err := s.workflow.HandleCallbackQuery(ctx, query)

	require.NoError(t, err)
	s.mockStore.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	require.NotNil(t, answer)
	assert.True(t, answer.ShowAlert)
}

func TestHandleMessageRoutesReviewerToDirectPost(t *testing.T) {
	s := setupWorkflowSuite(t)
	ctx := context.Background()
	message := photoMessage(777, 777, 1)

	s.mockDirectory.On("IsReviewer", ctx, int64(777)).Return(true, nil).Once()
	s.mockSink.On("Publish", ctx, mock.AnythingOfType("*models.Submission")).Return(nil).Once()
	s.mockBot.On("SendMessage", ctx, mock.AnythingOfType("*telego.SendMessageParams")).
		Return(&telego.Message{}, nil).Once()

	err := s.workflow.HandleMessage(ctx, message)

	require.NoError(t, err)
	// Reviewer posts bypass the quota and the review queue entirely.
	s.mockGate.AssertNotCalled(t, "CanSubmit", mock.Anything, mock.Anything)
	s.mockStore.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	s.mockSink.AssertExpectations(t)
}

func TestMediaGroupFinalizesAsOneSubmission(t *testing.T) {
	s := setupWorkflowSuite(t)
	ctx := context.Background()

	part1 := photoMessage(10, 20, 1)
	part1.MediaGroupID = "album-1"
	part1.Caption = ""
	part2 := photoMessage(10, 20, 2)
	part2.MediaGroupID = "album-1"
	part2.Caption = "album caption"

	s.mockGate.On("CanSubmit", mock.Anything, int64(10)).Return(nil).Twice()
	// Charged once, at finalization.
	s.mockGate.On("Admit", mock.Anything, int64(10)).Return(nil).Once()

	createdCh := make(chan *models.Submission, 1)
	s.mockStore.On("Create", mock.Anything, mock.AnythingOfType("*models.Submission")).
		Run(func(args mock.Arguments) {
			createdCh <- args.Get(1).(*models.Submission)
		}).
		Return(int64(42), nil).Once()

	// Collecting notice, confirmation and dispatch messages.
	s.mockBot.On("SendMessage", mock.Anything, mock.AnythingOfType("*telego.SendMessageParams")).
		Return(&telego.Message{}, nil)
	s.mockDirectory.On("Reviewers", mock.Anything).Return([]int64{777}, nil).Once()
	s.mockBot.On("SendMediaGroup", mock.Anything, mock.AnythingOfType("*telego.SendMediaGroupParams")).
		Return([]telego.Message{}, nil).Once()

	require.NoError(t, s.workflow.Intake(ctx, part1))
	require.NoError(t, s.workflow.Intake(ctx, part2))

	// Wait out the quiet period.
	var created *models.Submission
	select {
	case created = <-createdCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for media group finalization")
	}

	s.mockGate.AssertExpectations(t)
	assert.Equal(t, []string{"photo-large", "photo-large"}, created.FileIDs)
	assert.Equal(t, "album caption", created.Caption)
	assert.Equal(t, "album-1", created.MediaGroupID)
}
