package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"github.com/ekamilov/suggestify/db"
)

const (
	decisionApprove = "approve"
	decisionReject  = "reject"
)

var errBadCallbackData = errors.New("unrecognized callback data")

// parseDecision splits "approve:<id>" / "reject:<id>" callback data.
func parseDecision(data string) (string, int64, error) {
	action, rawID, found := strings.Cut(data, ":")
	if !found || (action != decisionApprove && action != decisionReject) {
		return "", 0, errBadCallbackData
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %s", errBadCallbackData, data)
	}
	return action, id, nil
}

// reviewKeyboard builds the accept/reject controls for one submission.
func reviewKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", fmt.Sprintf("%s:%d", decisionApprove, id)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", fmt.Sprintf("%s:%d", decisionReject, id)),
		),
	)
}

// reviewCaption is what moderators see above the uploaded audio.
func reviewCaption(query, title string, from *tgbotapi.User) string {
	who := from.UserName
	if who == "" {
		who = strconv.Itoa(from.ID)
	}
	return fmt.Sprintf(
		"🎶 New suggestion\n🔍 Query: %s\n🎵 Title: %s\n👤 From: @%s",
		query, orElse(title, "—"), who,
	)
}

func trimmedQuery(text string) string {
	return strings.TrimSpace(text)
}

func orElse(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func isAlreadyDecided(err error) bool {
	return errors.Is(err, db.ErrNotPending)
}

func isNotFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
