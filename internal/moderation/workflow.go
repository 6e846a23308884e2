package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	"toolocal-bot/internal/database"
	"toolocal-bot/internal/database/models"
	"toolocal-bot/internal/locales"
	"toolocal-bot/internal/mediagroups"
	"toolocal-bot/internal/quota"
	telegoapi "toolocal-bot/pkg/telegoapi"

	sentry "github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// SubmissionGate admits submissions against per-user flood control.
// Implemented by quota.Limiter.
type SubmissionGate interface {
	CanSubmit(ctx context.Context, userID int64) error
	Admit(ctx context.Context, userID int64) error
	RecordOutcome(ctx context.Context, userID int64, approved bool) error
}

// ReviewerDirectory resolves the reviewer set. Implemented by
// auth.AdminRegistry.
type ReviewerDirectory interface {
	IsReviewer(ctx context.Context, userID int64) (bool, error)
	Reviewers(ctx context.Context) ([]int64, error)
}

// PublishSink posts approved content to the channel. Implemented by
// publisher.ChannelPublisher.
type PublishSink interface {
	Publish(ctx context.Context, sub *models.Submission) error
}

// Workflow is the moderation state machine: it gates intake through the
// submission limiter, aggregates media groups, persists pending
// submissions, dispatches them for review and resolves decisions.
type Workflow struct {
	bot        telegoapi.BotAPI
	store      database.SubmissionRepository
	gate       SubmissionGate
	directory  ReviewerDirectory
	publisher  PublishSink
	aggregator *mediagroups.Aggregator
}

// NewWorkflow creates the moderation workflow.
func NewWorkflow(
	bot telegoapi.BotAPI,
	store database.SubmissionRepository,
	gate SubmissionGate,
	directory ReviewerDirectory,
	publisher PublishSink,
	aggregator *mediagroups.Aggregator,
) *Workflow {
	if bot == nil {
		log.Fatal("Moderation Workflow: BotAPI instance is nil")
	}
	if store == nil {
		log.Fatal("Moderation Workflow: submission repository is nil")
	}
	if gate == nil {
		log.Fatal("Moderation Workflow: submission gate is nil")
	}
	if directory == nil {
		log.Fatal("Moderation Workflow: reviewer directory is nil")
	}
	if publisher == nil {
		log.Fatal("Moderation Workflow: publish sink is nil")
	}
	if aggregator == nil {
		log.Fatal("Moderation Workflow: media group aggregator is nil")
	}
	return &Workflow{
		bot:        bot,
		store:      store,
		gate:       gate,
		directory:  directory,
		publisher:  publisher,
		aggregator: aggregator,
	}
}

// HandleMessage routes a non-command message: media from reviewers is
// published directly, media from everyone else enters the moderation queue.
func (w *Workflow) HandleMessage(ctx context.Context, message telego.Message) error {
	if message.From == nil {
		return nil
	}
	isReviewer, err := w.directory.IsReviewer(ctx, message.From.ID)
	if err != nil {
		w.sendText(ctx, message.Chat.ID, w.msg("MsgErrorGeneral", nil))
		return fmt.Errorf("reviewer check failed for user %d: %w", message.From.ID, err)
	}
	if isReviewer {
		return w.DirectPost(ctx, message)
	}
	return w.Intake(ctx, message)
}

// Intake processes one inbound message from a submitter: flood-control
// check, then either media group buffering or immediate submission.
func (w *Workflow) Intake(ctx context.Context, message telego.Message) error {
	userID := message.From.ID
	chatID := message.Chat.ID

	kind, fileID, ok := extractContent(message)
	if !ok {
		if message.Text != "" {
			w.sendText(ctx, chatID, w.msg("MsgRequiresMedia", nil))
		}
		return nil
	}

	// Check the quota up front so over-limit users hear about it before a
	// whole group is buffered. Groups are charged once, at finalization.
	if err := w.gate.CanSubmit(ctx, userID); err != nil {
		return w.reportGateError(ctx, chatID, userID, err)
	}

	if message.MediaGroupID != "" {
		size := w.aggregator.Add(message, w.finalizeSubmitterGroup)
		if size == 1 {
			w.replyText(ctx, message, w.msg("MsgCollectingGroup", nil))
		}
		return nil
	}

	if err := w.gate.Admit(ctx, userID); err != nil {
		return w.reportGateError(ctx, chatID, userID, err)
	}

	sub := &models.Submission{
		SubmitterID: userID,
		Username:    message.From.Username,
		FirstName:   message.From.FirstName,
		FileIDs:     []string{fileID},
		Kind:        kind,
		Caption:     message.Caption,
		ChatID:      chatID,
		MessageID:   message.MessageID,
	}
	id, err := w.store.Create(ctx, sub)
	if err != nil {
		log.Printf("[Intake User:%d] Error creating submission: %v", userID, err)
		sentry.CaptureException(err)
		w.sendText(ctx, chatID, w.msg("MsgErrorGeneral", nil))
		return err
	}
	sub.ID = id
	log.Printf("[Intake User:%d] Created submission %d (%s)", userID, id, kind)

	w.replyText(ctx, message, w.msg("MsgSubmissionReceived", nil))
	w.DispatchForReview(ctx, sub)
	return nil
}

// finalizeSubmitterGroup converts a completed media group into one
// submission. The quota is re-checked here because a group can span enough
// wall-clock time for the user's state to change; the charge is one per
// finalized group, not per part.
func (w *Workflow) finalizeSubmitterGroup(ctx context.Context, groupID string, messages []telego.Message) error {
	if len(messages) == 0 {
		return errors.New("received empty media group")
	}
	first := messages[0]
	userID := first.From.ID

	if err := w.gate.Admit(ctx, userID); err != nil {
		return w.reportGateError(ctx, first.Chat.ID, userID, err)
	}

	sub := submissionFromGroup(groupID, messages)
	if len(sub.FileIDs) == 0 {
		log.Printf("[GroupFinalize %s User:%d] No usable media in group", groupID, userID)
		return fmt.Errorf("no valid media found in media group %s", groupID)
	}

	id, err := w.store.Create(ctx, sub)
	if err != nil {
		log.Printf("[GroupFinalize %s User:%d] Error creating submission: %v", groupID, userID, err)
		sentry.CaptureException(err)
		w.sendText(ctx, first.Chat.ID, w.msg("MsgErrorGeneral", nil))
		return err
	}
	sub.ID = id
	log.Printf("[GroupFinalize %s User:%d] Created submission %d with %d item(s)", groupID, userID, id, len(sub.FileIDs))

	w.replyText(ctx, first, w.msg("MsgSubmissionReceived", nil))
	w.DispatchForReview(ctx, sub)
	return nil
}

// DispatchForReview sends the submission with approve/reject controls to
// every reviewer. Delivery is best-effort per reviewer: one unreachable
// reviewer never blocks the rest.
func (w *Workflow) DispatchForReview(ctx context.Context, sub *models.Submission) {
	reviewers, err := w.directory.Reviewers(ctx)
	if err != nil {
		log.Printf("[Dispatch Sub:%d] Error listing reviewers: %v", sub.ID, err)
		sentry.CaptureException(err)
		return
	}
	for _, reviewerID := range reviewers {
		if err := w.sendReviewMessage(ctx, reviewerID, sub); err != nil {
			log.Printf("[Dispatch Sub:%d] Failed to reach reviewer %d: %v", sub.ID, reviewerID, err)
			sentry.CaptureException(err)
		}
	}
}

// Resolve applies a reviewer's decision. The conditional status update in
// the store is the commit point: when two reviewers race, the loser gets
// database.ErrAlreadyResolved and nothing is published or notified twice.
// Notification and publish failures after the commit are logged, never
// rolled back.
func (w *Workflow) Resolve(ctx context.Context, submissionID int64, reviewer telego.User, approve bool) (*models.Submission, error) {
	sub, err := w.store.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	status := models.StatusRejected
	if approve {
		status = models.StatusApproved
	}
	reviewerName := displayName(reviewer)

	if err := w.store.SetStatus(ctx, submissionID, status, reviewer.ID, reviewerName); err != nil {
		return nil, err
	}
	sub.Status = status
	sub.ReviewedBy = reviewer.ID
	sub.ReviewerUsername = reviewerName
	sub.ReviewedAt = time.Now()
	log.Printf("[Resolve Sub:%d] %s by reviewer %d (%s)", submissionID, status, reviewer.ID, reviewerName)

	if err := w.gate.RecordOutcome(ctx, sub.SubmitterID, approve); err != nil {
		log.Printf("[Resolve Sub:%d] Error recording outcome for user %d: %v", submissionID, sub.SubmitterID, err)
		sentry.CaptureException(err)
	}

	if approve {
		if err := w.publisher.Publish(ctx, sub); err != nil {
			log.Printf("[Resolve Sub:%d] Error publishing approved submission: %v", submissionID, err)
			sentry.CaptureException(err)
		}
	}

	w.notifySubmitter(ctx, sub, approve)
	w.notifyReviewers(ctx, sub, reviewer.ID, approve)
	return sub, nil
}

// DirectPost publishes media sent by a reviewer straight to the channel,
// bypassing quota and moderation.
func (w *Workflow) DirectPost(ctx context.Context, message telego.Message) error {
	kind, fileID, ok := extractContent(message)
	if !ok {
		if message.Text != "" {
			w.sendText(ctx, message.Chat.ID, w.msg("MsgAdminRequiresMedia", nil))
		}
		return nil
	}

	if message.MediaGroupID != "" {
		size := w.aggregator.Add(message, w.finalizeDirectGroup)
		if size == 1 {
			w.replyText(ctx, message, w.msg("MsgAdminCollectingGroup", nil))
		}
		return nil
	}

	post := &models.Submission{
		SubmitterID: message.From.ID,
		Username:    message.From.Username,
		FirstName:   message.From.FirstName,
		FileIDs:     []string{fileID},
		Kind:        kind,
		Caption:     message.Caption,
	}
	if err := w.publisher.Publish(ctx, post); err != nil {
		log.Printf("[DirectPost User:%d] Error publishing: %v", message.From.ID, err)
		sentry.CaptureException(err)
		w.sendText(ctx, message.Chat.ID, w.msg("MsgErrorGeneral", nil))
		return err
	}
	w.replyText(ctx, message, w.msg("MsgAdminPosted", nil))
	return nil
}

func (w *Workflow) finalizeDirectGroup(ctx context.Context, groupID string, messages []telego.Message) error {
	if len(messages) == 0 {
		return errors.New("received empty media group")
	}
	first := messages[0]

	post := submissionFromGroup(groupID, messages)
	if len(post.FileIDs) == 0 {
		return fmt.Errorf("no valid media found in media group %s", groupID)
	}

	if err := w.publisher.Publish(ctx, post); err != nil {
		log.Printf("[DirectPost Group:%s User:%d] Error publishing: %v", groupID, first.From.ID, err)
		sentry.CaptureException(err)
		w.sendText(ctx, first.Chat.ID, w.msg("MsgErrorGeneral", nil))
		return err
	}
	w.replyText(ctx, first, w.msg("MsgAdminPosted", nil))
	return nil
}

// submissionFromGroup assembles one submission from buffered group parts:
// content refs in arrival order, kind of the first media part, first
// non-empty caption, origin reference of the first message.
func submissionFromGroup(groupID string, messages []telego.Message) *models.Submission {
	first := messages[0]
	sub := &models.Submission{
		SubmitterID:  first.From.ID,
		Username:     first.From.Username,
		FirstName:    first.From.FirstName,
		MediaGroupID: groupID,
		ChatID:       first.Chat.ID,
		MessageID:    first.MessageID,
	}
	for _, msg := range messages {
		kind, fileID, ok := extractContent(msg)
		if !ok {
			continue
		}
		if sub.Kind == "" {
			sub.Kind = kind
		}
		sub.FileIDs = append(sub.FileIDs, fileID)
		if sub.Caption == "" && msg.Caption != "" {
			sub.Caption = msg.Caption
		}
	}
	return sub
}

// reportGateError turns a limiter result into a user-facing message.
// Store failures surface as an opaque error and fail the intake: losing a
// submission silently is worse than refusing it.
func (w *Workflow) reportGateError(ctx context.Context, chatID, userID int64, err error) error {
	var limitErr *quota.LimitError
	if errors.As(err, &limitErr) {
		log.Printf("[Intake User:%d] Denied: %v", userID, limitErr)
		w.sendText(ctx, chatID, limitMessage(w.localizer(), limitErr))
		return nil
	}
	log.Printf("[Intake User:%d] Quota check failed: %v", userID, err)
	sentry.CaptureException(err)
	w.sendText(ctx, chatID, w.msg("MsgErrorGeneral", nil))
	return err
}

func limitMessage(localizer *i18n.Localizer, limitErr *quota.LimitError) string {
	if limitErr.Daily {
		return locales.GetMessage(localizer, "MsgLimitDaily", map[string]interface{}{
			"Limit": limitErr.Limit,
			"Wait":  quota.FormatWait(limitErr.RetryAfter),
		}, nil)
	}
	return locales.GetMessage(localizer, "MsgLimitCooldown", map[string]interface{}{
		"Wait": quota.FormatWait(limitErr.RetryAfter),
	}, nil)
}

func (w *Workflow) notifySubmitter(ctx context.Context, sub *models.Submission, approved bool) {
	key := "MsgRejectedNotice"
	if approved {
		key = "MsgApprovedNotice"
	}
	text := w.msg(key, map[string]interface{}{
		"Kind":        string(sub.Kind),
		"SubmittedAt": sub.SubmittedAt.Format("2006-01-02 15:04:05"),
	})
	if sub.Caption != "" {
		text += "\n" + w.msg("MsgNoticeCaption", map[string]interface{}{
			"Caption": captionPreview(sub.Caption),
		})
	}

	params := tu.Message(tu.ID(sub.ChatID), text)
	if sub.MessageID != 0 {
		// Thread the decision to the original submission message.
		params = params.WithReplyParameters(&telego.ReplyParameters{MessageID: sub.MessageID})
	}
	if _, err := w.bot.SendMessage(ctx, params); err != nil {
		log.Printf("[Notify Sub:%d] Failed to notify submitter %d: %v", sub.ID, sub.SubmitterID, err)
	}
}

// notifyReviewers tells every other reviewer who resolved the submission
// and how. Best-effort, like dispatch.
func (w *Workflow) notifyReviewers(ctx context.Context, sub *models.Submission, resolverID int64, approved bool) {
	reviewers, err := w.directory.Reviewers(ctx)
	if err != nil {
		log.Printf("[Notify Sub:%d] Error listing reviewers: %v", sub.ID, err)
		return
	}

	key := "MsgReviewRejectedBy"
	if approved {
		key = "MsgReviewApprovedBy"
	}
	text := w.msg(key, map[string]interface{}{
		"ID":       sub.ID,
		"Kind":     string(sub.Kind),
		"Username": sub.SubmitterName(),
		"UserID":   sub.SubmitterID,
		"Reviewer": sub.ReviewerUsername,
	})

	for _, reviewerID := range reviewers {
		if reviewerID == resolverID {
			continue
		}
		if _, err := w.bot.SendMessage(ctx, tu.Message(tu.ID(reviewerID), text)); err != nil {
			log.Printf("[Notify Sub:%d] Failed to notify reviewer %d: %v", sub.ID, reviewerID, err)
		}
	}
}

func (w *Workflow) localizer() *i18n.Localizer {
	return locales.NewLocalizer(locales.GetDefaultLanguageTag().String())
}

func (w *Workflow) msg(key string, data map[string]interface{}) string {
	return locales.GetMessage(w.localizer(), key, data, nil)
}

func (w *Workflow) sendText(ctx context.Context, chatID int64, text string) {
	if _, err := w.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.Printf("[Workflow] Failed to send message to chat %d: %v", chatID, err)
	}
}

func (w *Workflow) replyText(ctx context.Context, message telego.Message, text string) {
	params := tu.Message(tu.ID(message.Chat.ID), text).
		WithReplyParameters(&telego.ReplyParameters{MessageID: message.MessageID})
	if _, err := w.bot.SendMessage(ctx, params); err != nil {
		log.Printf("[Workflow] Failed to reply in chat %d: %v", message.Chat.ID, err)
	}
}

func captionPreview(caption string) string {
	const maxPreview = 50
	runes := []rune(caption)
	if len(runes) <= maxPreview {
		return caption
	}
	return string(runes[:maxPreview]) + "..."
}

func displayName(user telego.User) string {
	if user.Username != "" {
		return user.Username
	}
	if user.FirstName != "" {
		return user.FirstName
	}
	return fmt.Sprintf("User_%d", user.ID)
}
