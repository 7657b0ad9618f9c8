package moderation

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ekamilov/suggestify/db"
)

// Messenger is the narrow slice of the chat platform the workflow needs.
// The bot front end implements it; tests use a fake.
type Messenger interface {
	SendAudioByID(chatID int64, fileID, caption, title, performer string) error
	SendText(chatID int64, text string) error
	EditCaption(chatID int64, messageID int, caption string) error
}

// ReviewRef points at the reviewer message whose caption is updated after
// a decision. Purely cosmetic; failures are swallowed.
type ReviewRef struct {
	ChatID    int64
	MessageID int
	Caption   string
}

// Workflow applies moderation decisions to submissions exactly once and
// relays the outcome to the requester and, on approval, the distribution
// channel.
type Workflow struct {
	store     *db.Store
	msgr      Messenger
	channelID int64
	log       *logrus.Entry
}

func New(store *db.Store, msgr Messenger, channelID int64) *Workflow {
	return &Workflow{
		store:     store,
		msgr:      msgr,
		channelID: channelID,
		log:       logrus.WithField("at", "moderation"),
	}
}

// Approve publishes the submission to the channel and notifies the
// requester. The conditional status update is the gate: when it reports
// the row is no longer pending, nothing is sent and db.ErrNotPending is
// returned, so two racing decisions cannot both publish.
func (w *Workflow) Approve(id int64, ref ReviewRef) error {
	sub, err := w.store.Get(id)
	if err != nil {
		return err
	}
	if err := w.store.SetStatus(id, db.StatusApproved); err != nil {
		return err
	}
	w.recaption(ref, "✅ approved")
	if err := w.msgr.SendAudioByID(w.channelID, sub.FileID, PublicCaption(sub), sub.Title, sub.Artist); err != nil {
		return fmt.Errorf("publish submission %d: %w", id, err)
	}
	w.notify(sub, "✅ Your suggestion was approved and posted to the channel.")
	return nil
}

// Reject records the decision and notifies the requester.
func (w *Workflow) Reject(id int64, ref ReviewRef) error {
	sub, err := w.store.Get(id)
	if err != nil {
		return err
	}
	if err := w.store.SetStatus(id, db.StatusRejected); err != nil {
		return err
	}
	w.recaption(ref, "❌ rejected")
	w.notify(sub, "❌ Sorry, your suggestion was rejected.")
	return nil
}

func (w *Workflow) notify(sub *db.Submission, text string) {
	if err := w.msgr.SendText(int64(sub.UserID), text); err != nil {
		w.log.WithError(err).WithField("submission", sub.ID).Warn("cannot notify requester")
	}
}

// recaption marks the reviewer message with the outcome. Cosmetic only.
func (w *Workflow) recaption(ref ReviewRef, outcome string) {
	if ref.ChatID == 0 || ref.MessageID == 0 {
		return
	}
	if err := w.msgr.EditCaption(ref.ChatID, ref.MessageID, ref.Caption+"\n"+outcome); err != nil {
		w.log.WithError(err).Debug("cannot edit reviewer message")
	}
}

// PublicCaption is the channel-facing caption of an approved track.
func PublicCaption(sub *db.Submission) string {
	title := sub.Title
	if title == "" {
		title = sub.Query
	}
	if sub.Artist != "" {
		title = sub.Artist + " — " + title
	}
	return title + "\n#suggested"
}
