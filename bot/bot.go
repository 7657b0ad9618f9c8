package bot

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/sirupsen/logrus"

	"github.com/ekamilov/suggestify/config"
	"github.com/ekamilov/suggestify/db"
	"github.com/ekamilov/suggestify/moderation"
	"github.com/ekamilov/suggestify/resolver"
)

const resolveTimeout = 5 * time.Minute

// Bot is the thin adapter between Telegram updates and the resolver,
// store and moderation workflow.
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *config.Config
	store    *db.Store
	resolver *resolver.Resolver
	workflow *moderation.Workflow
	log      *logrus.Entry
}

func New(cfg *config.Config, store *db.Store, res *resolver.Resolver) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	api.Debug = cfg.Debug

	b := &Bot{
		api:      api,
		cfg:      cfg,
		store:    store,
		resolver: res,
		log:      logrus.WithField("at", "bot"),
	}
	b.workflow = moderation.New(store, b, cfg.ChannelID)
	b.log.Infof("authenticated on Telegram bot account %s", api.Self.UserName)
	return b, nil
}

// Run pumps updates through a small pool of workers. Each update is
// handled start to finish by one worker, so a slow resolution never
// blocks the other workers.
func (b *Bot) Run() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for w := 0; w < runtime.NumCPU()+2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.process(updates)
		}()
	}
	wg.Wait()
	return nil
}

func (b *Bot) process(updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		if update.CallbackQuery != nil {
			b.handleCallback(update.CallbackQuery)
		} else if update.Message != nil {
			b.handleMessage(update.Message)
		}
	}
}

func (b *Bot) handleMessage(m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil {
		return
	}
	if m.IsCommand() {
		b.handleCommand(m)
		return
	}
	if !m.Chat.IsPrivate() {
		return
	}
	b.handleQuery(m)
}

func (b *Bot) handleCommand(m *tgbotapi.Message) {
	switch m.Command() {
	case "start", "help":
		b.send(tgbotapi.NewMessage(m.Chat.ID, "Hi! Send me a song name and I'll find it and pass it on to the moderators 🎧"))
	case "stats":
		if !b.cfg.IsModerator(m.From.ID) {
			return
		}
		counts, err := b.store.GetCounts()
		if err != nil {
			b.log.WithError(err).Error("cannot read counts")
			return
		}
		b.send(tgbotapi.NewMessage(m.Chat.ID, fmt.Sprintf(
			"Pending: %d\nApproved: %d\nRejected: %d",
			counts.Pending, counts.Approved, counts.Rejected,
		)))
	}
}

// handleQuery runs the whole submission flow for one free-text query:
// resolve, upload to the first moderator to mint the file id, create the
// pending row, fan out to every moderator with accept/reject controls.
func (b *Bot) handleQuery(m *tgbotapi.Message) {
	query := trimmedQuery(m.Text)
	if query == "" {
		b.send(tgbotapi.NewMessage(m.Chat.ID, "Please send a song name 🎵"))
		return
	}

	wait, err := b.api.Send(tgbotapi.NewMessage(m.Chat.ID, "Searching and downloading... ⏳"))
	if err != nil {
		b.log.WithError(err).Error("cannot send progress message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	track, err := b.resolver.Resolve(ctx, query)
	if err != nil {
		b.log.WithError(err).WithField("query", query).Warn("resolution failed")
		b.editText(m.Chat.ID, wait.MessageID, "Couldn't find that one ❌ (try a different spelling)")
		return
	}
	defer track.Cleanup()

	caption := reviewCaption(query, track.Title, m.From)

	firstModerator := int64(b.cfg.ModeratorIDs[0])
	upload := tgbotapi.NewAudioUpload(firstModerator, track.Path)
	upload.Caption = caption
	upload.Title = orElse(track.Title, query)
	upload.Performer = track.Artist
	upload.Duration = track.Duration
	sent, err := b.api.Send(upload)
	if err != nil || sent.Audio == nil {
		b.log.WithError(err).Error("cannot upload audio to moderator")
		b.editText(m.Chat.ID, wait.MessageID, "Couldn't deliver the track to the moderators ❌")
		return
	}
	fileID := sent.Audio.FileID

	id, err := b.store.Create(&db.Submission{
		UserID:   m.From.ID,
		Username: m.From.UserName,
		Query:    query,
		FileID:   fileID,
		Title:    track.Title,
		Artist:   track.Artist,
	})
	if err != nil {
		b.log.WithError(err).Error("cannot store submission")
		b.editText(m.Chat.ID, wait.MessageID, "Something went wrong, please try again later ❌")
		return
	}

	keyboard := reviewKeyboard(id)
	reviewCopy := caption + fmt.Sprintf("\nID: #%d", id)
	for _, moderator := range b.cfg.ModeratorIDs {
		share := tgbotapi.NewAudioShare(int64(moderator), fileID)
		share.Caption = reviewCopy
		share.Title = orElse(track.Title, query)
		share.Performer = track.Artist
		share.ReplyMarkup = keyboard
		if _, err := b.api.Send(share); err != nil {
			b.log.WithError(err).WithField("moderator", moderator).Warn("cannot send review copy")
		}
	}

	b.editText(m.Chat.ID, wait.MessageID, "Your suggestion was sent to the moderators ✅")
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	if !b.cfg.IsModerator(cb.From.ID) {
		b.answer(tgbotapi.NewCallbackWithAlert(cb.ID, "You are not allowed to moderate."))
		return
	}

	decision, id, err := parseDecision(cb.Data)
	if err != nil {
		b.answer(tgbotapi.NewCallback(cb.ID, ""))
		return
	}

	var ref moderation.ReviewRef
	if cb.Message != nil && cb.Message.Chat != nil {
		ref = moderation.ReviewRef{
			ChatID:    cb.Message.Chat.ID,
			MessageID: cb.Message.MessageID,
			Caption:   cb.Message.Caption,
		}
	}

	switch decision {
	case decisionApprove:
		err = b.workflow.Approve(id, ref)
	case decisionReject:
		err = b.workflow.Reject(id, ref)
	}

	switch {
	case err == nil && decision == decisionApprove:
		b.answer(tgbotapi.NewCallback(cb.ID, "✅ Approved"))
	case err == nil:
		b.answer(tgbotapi.NewCallback(cb.ID, "❌ Rejected"))
	case isAlreadyDecided(err):
		b.answer(tgbotapi.NewCallbackWithAlert(cb.ID, "Already processed."))
	case isNotFound(err):
		b.answer(tgbotapi.NewCallbackWithAlert(cb.ID, "Submission not found."))
	default:
		b.log.WithError(err).WithField("submission", id).Error("decision failed")
		b.answer(tgbotapi.NewCallbackWithAlert(cb.ID, "Something went wrong."))
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.WithError(err).Error("cannot send message")
	}
}

func (b *Bot) editText(chatID int64, messageID int, text string) {
	if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		b.log.WithError(err).Debug("cannot edit progress message")
	}
}

func (b *Bot) answer(c tgbotapi.CallbackConfig) {
	if _, err := b.api.AnswerCallbackQuery(c); err != nil {
		b.log.WithError(err).Debug("cannot answer callback")
	}
}

// SendAudioByID re-sends previously uploaded audio by its file id.
func (b *Bot) SendAudioByID(chatID int64, fileID, caption, title, performer string) error {
	share := tgbotapi.NewAudioShare(chatID, fileID)
	share.Caption = caption
	share.Title = title
	share.Performer = performer
	_, err := b.api.Send(share)
	return err
}

func (b *Bot) SendText(chatID int64, text string) error {
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (b *Bot) EditCaption(chatID int64, messageID int, caption string) error {
	_, err := b.api.Send(tgbotapi.NewEditMessageCaption(chatID, messageID, caption))
	return err
}
