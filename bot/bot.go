package bot

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"
	"toolocal-bot/internal/handlers"
	"toolocal-bot/internal/moderation"
	telegoapi "toolocal-bot/pkg/telegoapi"

	sentry "github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"go.uber.org/ratelimit"
)

// updateTimeout bounds the processing of a single update.
const updateTimeout = 30 * time.Second

// Bot owns the update loop: it reads updates from the long-polling channel
// and routes them to the command handler and the moderation workflow.
type Bot struct {
	bot         telegoapi.BotAPI
	updatesChan <-chan telego.Update
	debug       bool
	handler     *handlers.MessageHandler
	workflow    *moderation.Workflow
	ratelimiter ratelimit.Limiter
}

// Deps holds the dependencies required by the Bot.
type Deps struct {
	Bot         telegoapi.BotAPI
	UpdatesChan <-chan telego.Update
	Debug       bool
	Handler     *handlers.MessageHandler
	Workflow    *moderation.Workflow
}

// New creates a Bot instance from its dependencies.
func New(deps Deps) (*Bot, error) {
	if deps.Bot == nil {
		return nil, fmt.Errorf("telego bot (BotAPI) instance cannot be nil")
	}
	if deps.UpdatesChan == nil {
		return nil, fmt.Errorf("updates channel cannot be nil")
	}
	if deps.Handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}
	if deps.Workflow == nil {
		return nil, fmt.Errorf("moderation workflow cannot be nil")
	}

	return &Bot{
		bot:         deps.Bot,
		updatesChan: deps.UpdatesChan,
		debug:       deps.Debug,
		handler:     deps.Handler,
		workflow:    deps.Workflow,
		ratelimiter: ratelimit.New(20),
	}, nil
}

// processUpdate routes one update. Panics in handlers are contained here so
// a single bad update cannot take the loop down.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	// Global rate limiting across all updates.
	b.ratelimiter.Take()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC recovered in processUpdate: %v\n%s", r, debug.Stack())
			sentry.CurrentHub().Recover(r)
			sentry.Flush(time.Second * 2)
		}
	}()

	processingCtx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	switch {
	case update.Message != nil:
		message := *update.Message
		if message.From == nil {
			// Channel posts and other senderless messages are not submissions.
			log.Printf("Ignoring message %d from chat %d without sender", message.MessageID, message.Chat.ID)
			return
		}

		if handlers.IsCommand(message) {
			if b.debug {
				log.Printf("[Update] Command from user %d: %q", message.From.ID, message.Text)
			}
			_ = b.handler.HandleCommand(processingCtx, b.bot, message)
			return
		}

		if err := b.workflow.HandleMessage(processingCtx, message); err != nil {
			log.Printf("[Update] Error handling message %d from user %d: %v", message.MessageID, message.From.ID, err)
		}

	case update.CallbackQuery != nil:
		query := *update.CallbackQuery
		if b.debug {
			log.Printf("[Update] Callback from user %d: %q", query.From.ID, query.Data)
		}
		if err := b.workflow.HandleCallbackQuery(processingCtx, query); err != nil {
			log.Printf("[Update] Error handling callback %s from user %d: %v", query.ID, query.From.ID, err)
			sentry.CaptureException(err)
		}

	default:
		if b.debug {
			log.Printf("Ignoring unhandled update type: %+v", update)
		}
	}
}

// Start runs the update processing loop until the context is cancelled or
// the updates channel closes. Each update is processed in its own goroutine;
// Start waits for in-flight updates before returning.
func (b *Bot) Start(ctx context.Context) {
	log.Println("Listening for updates...")

	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			log.Println("Context done, stopping update processing...")
			wg.Wait()
			log.Println("All update processing finished.")
			return
		case update, ok := <-b.updatesChan:
			if !ok {
				log.Println("Updates channel closed.")
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(up telego.Update) {
				defer wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		}
	}
}
