package moderation

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekamilov/suggestify/db"
)

type sentAudio struct {
	chatID  int64
	fileID  string
	caption string
}

type fakeMessenger struct {
	audios      []sentAudio
	texts       map[int64][]string
	captions    []string
	editErr     error
	sendTextErr error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{texts: make(map[int64][]string)}
}

func (f *fakeMessenger) SendAudioByID(chatID int64, fileID, caption, title, performer string) error {
	f.audios = append(f.audios, sentAudio{chatID, fileID, caption})
	return nil
}

func (f *fakeMessenger) SendText(chatID int64, text string) error {
	if f.sendTextErr != nil {
		return f.sendTextErr
	}
	f.texts[chatID] = append(f.texts[chatID], text)
	return nil
}

func (f *fakeMessenger) EditCaption(chatID int64, messageID int, caption string) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.captions = append(f.captions, caption)
	return nil
}

const channelID = int64(-100500)

func setup(t *testing.T) (*Workflow, *db.Store, *fakeMessenger, int64) {
	t.Helper()
	store, err := db.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	msgr := newFakeMessenger()
	w := New(store, msgr, channelID)

	id, err := store.Create(&db.Submission{
		UserID:   7,
		Username: "requester",
		Query:    "some song",
		FileID:   "file-123",
		Title:    "Some Song",
		Artist:   "Some Artist",
	})
	require.NoError(t, err)
	return w, store, msgr, id
}

func ref() ReviewRef {
	return ReviewRef{ChatID: 11, MessageID: 22, Caption: "review"}
}

func TestApprove(t *testing.T) {
	w, store, msgr, id := setup(t)

	require.NoError(t, w.Approve(id, ref()))

	sub, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, db.StatusApproved, sub.Status)

	require.Len(t, msgr.audios, 1)
	assert.Equal(t, channelID, msgr.audios[0].chatID)
	assert.Equal(t, "file-123", msgr.audios[0].fileID, "channel post reuses the uploaded file id")
	assert.Contains(t, msgr.audios[0].caption, "Some Song")

	require.Len(t, msgr.texts[7], 1)
	assert.Contains(t, msgr.texts[7][0], "approved")

	require.Len(t, msgr.captions, 1)
	assert.Contains(t, msgr.captions[0], "review")
}

func TestReject(t *testing.T) {
	w, store, msgr, id := setup(t)

	require.NoError(t, w.Reject(id, ref()))

	sub, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, db.StatusRejected, sub.Status)

	assert.Empty(t, msgr.audios, "rejected tracks are never published")
	require.Len(t, msgr.texts[7], 1)
	assert.Contains(t, msgr.texts[7][0], "rejected")
}

func TestSecondDecisionIsNoOp(t *testing.T) {
	w, store, msgr, id := setup(t)

	require.NoError(t, w.Approve(id, ref()))
	err := w.Approve(id, ref())
	assert.ErrorIs(t, err, db.ErrNotPending)
	err = w.Reject(id, ref())
	assert.ErrorIs(t, err, db.ErrNotPending)

	assert.Len(t, msgr.audios, 1, "the channel must receive exactly one post")

	sub, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, db.StatusApproved, sub.Status)
}

func TestDecisionOnUnknownID(t *testing.T) {
	w, _, _, _ := setup(t)
	assert.ErrorIs(t, w.Approve(99999, ref()), db.ErrNotFound)
}

func TestCaptionEditFailureIsSwallowed(t *testing.T) {
	w, store, msgr, id := setup(t)
	msgr.editErr = errors.New("message too old")

	require.NoError(t, w.Approve(id, ref()))

	sub, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, db.StatusApproved, sub.Status)
	assert.Len(t, msgr.audios, 1)
}

func TestNotifyFailureIsSwallowed(t *testing.T) {
	w, _, msgr, id := setup(t)
	msgr.sendTextErr = errors.New("user blocked the bot")

	assert.NoError(t, w.Reject(id, ref()))
}

func TestPublicCaption(t *testing.T) {
	assert.Equal(t, "Artist — Title\n#suggested", PublicCaption(&db.Submission{Title: "Title", Artist: "Artist"}))
	assert.Equal(t, "the query\n#suggested", PublicCaption(&db.Submission{Query: "the query"}))
}
