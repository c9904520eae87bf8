package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

const (
	testAdminID = int64(1)
	testChatID  = int64(-1001)
	testTopicID = 7
)

func newTestHandlers(t *testing.T) (*Handlers, *tele.Bot, *BatchQueue, *LeaderboardManager) {
	t.Helper()
	lm := newTestManager(t)
	cfg := &Config{
		Bot:      BotConfig{ChatID: testChatID, TopicID: testTopicID, AdminIDs: []int64{testAdminID}},
		Batch:    testBatchConfig(),
		Campaign: CampaignConfig{Title: "PnL Flex Challenge", PublicTop: 10},
	}
	queue := NewBatchQueue(cfg.Batch, lm, &fakeMessenger{})
	t.Cleanup(func() { _ = queue.Stop(context.Background()) })

	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return NewHandlers(cfg, lm, queue, NewAuditLog(NewSQLAuditRepository(lm.DB))), b, queue, lm
}

func photo(unique string) *tele.Photo {
	return &tele.Photo{File: tele.File{FileID: "file-" + unique, UniqueID: unique}}
}

func TestHandlePhotoQueuesAdminForwards(t *testing.T) {
	h, b, queue, lm := newTestHandlers(t)

	msg := &tele.Message{
		ID:     10,
		Sender: &tele.User{ID: testAdminID},
		Chat:   &tele.Chat{ID: testAdminID, Type: tele.ChatPrivate},
		Photo:  photo("u1"),
		Origin: &tele.MessageOrigin{Sender: &tele.User{ID: 55, Username: "author"}},
	}
	require.NoError(t, h.HandlePhoto(b.NewContext(tele.Update{Message: msg})))

	active := queue.Active()
	require.Len(t, active, 1)
	assert.Equal(t, testAdminID, active[0].ActorID)

	require.NoError(t, queue.Stop(context.Background()))
	p, err := lm.ParticipantByCode(context.Background(), "#01")
	require.NoError(t, err)
	assert.Equal(t, "tg:55", p.IdentityKey)
	assert.Equal(t, 1, p.Points)
}

func TestHandlePhotoIgnoresNonAdminPrivate(t *testing.T) {
	h, b, queue, _ := newTestHandlers(t)

	msg := &tele.Message{
		Sender: &tele.User{ID: 999},
		Chat:   &tele.Chat{ID: 999, Type: tele.ChatPrivate},
		Photo:  photo("u1"),
		Origin: &tele.MessageOrigin{Sender: &tele.User{ID: 55}},
	}
	require.NoError(t, h.HandlePhoto(b.NewContext(tele.Update{Message: msg})))
	assert.Empty(t, queue.Active())
}

func TestHandlePhotoInCampaignTopic(t *testing.T) {
	h, b, _, lm := newTestHandlers(t)
	ctx := context.Background()

	post := func(sender *tele.User, chatID int64, thread int, unique string) {
		msg := &tele.Message{
			ID:       20,
			Sender:   sender,
			Chat:     &tele.Chat{ID: chatID, Type: tele.ChatSuperGroup},
			ThreadID: thread,
			Photo:    photo(unique),
		}
		require.NoError(t, h.HandlePhoto(b.NewContext(tele.Update{Message: msg})))
	}

	trader := &tele.User{ID: 42, FirstName: "Tom"}
	post(trader, testChatID, testTopicID, "card-1")
	post(trader, testChatID, testTopicID, "card-1")
	post(trader, testChatID, 99, "card-2")
	post(trader, -5, testTopicID, "card-3")
	post(&tele.User{ID: 77, IsBot: true}, testChatID, testTopicID, "card-4")

	top, err := lm.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Tom", top[0].DisplayName)
	assert.Equal(t, 1, top[0].Points)

	st, err := lm.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Duplicates)
	assert.Equal(t, int64(1), st.BySource[SourceTopic])
}

func TestMiddlewares(t *testing.T) {
	cfg := &Config{Bot: BotConfig{AdminIDs: []int64{testAdminID}}}
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)

	called := false
	next := func(tele.Context) error { called = true; return nil }
	guarded := PrivateOnly()(AdminOnly(cfg)(next))

	run := func(senderID int64, chatType tele.ChatType) bool {
		called = false
		msg := &tele.Message{Sender: &tele.User{ID: senderID}, Chat: &tele.Chat{ID: senderID, Type: chatType}}
		require.NoError(t, guarded(b.NewContext(tele.Update{Message: msg})))
		return called
	}

	assert.True(t, run(testAdminID, tele.ChatPrivate))
	assert.False(t, run(2, tele.ChatPrivate))
	assert.False(t, run(testAdminID, tele.ChatGroup))
}

func TestRecoverMiddlewareSwallowsPanics(t *testing.T) {
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)

	h := RecoverMiddleware()(func(tele.Context) error { panic("boom") })
	msg := &tele.Message{Sender: &tele.User{ID: 1}, Chat: &tele.Chat{ID: 1}}
	assert.NotPanics(t, func() {
		assert.NoError(t, h(b.NewContext(tele.Update{Message: msg})))
	})
}

func TestPhotoFingerprint(t *testing.T) {
	assert.Equal(t, "", photoFingerprint(nil))
	assert.Equal(t, "u", photoFingerprint(photo("u")))
	assert.Equal(t, "only-file", photoFingerprint(&tele.Photo{File: tele.File{FileID: "only-file"}}))
}

func TestParseAdjustArgs(t *testing.T) {
	got, err := parseAdjustArgs([]string{"7", "+3", "late", "upload"})
	require.NoError(t, err)
	assert.Equal(t, adjustArgs{Code: "#07", Delta: 3, Note: "late upload"}, got)

	got, err = parseAdjustArgs([]string{"#12", "-2"})
	require.NoError(t, err)
	assert.Equal(t, -2, got.Delta)
	assert.Nil(t, got.Week)

	for _, args := range [][]string{nil, {"7"}, {"7", "x"}, {"7", "0"}, {"#", "1"}} {
		_, err := parseAdjustArgs(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestParseAddWeekArgs(t *testing.T) {
	got, err := parseAddWeekArgs([]string{"2", "#05", "4"})
	require.NoError(t, err)
	require.NotNil(t, got.Week)
	assert.Equal(t, 2, *got.Week)
	assert.Equal(t, "#05", got.Code)
	assert.Equal(t, 4, got.Delta)

	_, err = parseAddWeekArgs([]string{"0", "#05", "4"})
	assert.ErrorIs(t, err, ErrInvalidWeek)
	_, err = parseAddWeekArgs([]string{"2", "#05"})
	assert.Error(t, err)
}

func TestParseOptionalWeek(t *testing.T) {
	w, err := parseOptionalWeek(nil)
	require.NoError(t, err)
	assert.Zero(t, w)

	w, err = parseOptionalWeek([]string{"3"})
	require.NoError(t, err)
	assert.Equal(t, 3, w)

	_, err = parseOptionalWeek([]string{"-1"})
	assert.ErrorIs(t, err, ErrInvalidWeek)
}

func TestHandlePhotoOutsideCampaignWindow(t *testing.T) {
	h, b, _, lm := newTestHandlers(t)
	start := time.Date(2026, 1, 15, 0, 1, 0, 0, time.UTC)
	h.cfg.Campaign.Start = start
	h.cfg.Campaign.End = start.Add(28 * 24 * time.Hour)

	trader := &tele.User{ID: 42, Username: "tom"}
	post := func(at time.Time, unique string) {
		msg := &tele.Message{
			ID:       21,
			Sender:   trader,
			Unixtime: at.Unix(),
			Chat:     &tele.Chat{ID: testChatID, Type: tele.ChatSuperGroup},
			ThreadID: testTopicID,
			Photo:    photo(unique),
		}
		require.NoError(t, h.HandlePhoto(b.NewContext(tele.Update{Message: msg})))
	}

	post(start.Add(-time.Minute), "early")
	post(start.Add(time.Hour), "inside")
	post(h.cfg.Campaign.End.Add(time.Minute), "late")

	top, err := lm.Top(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 1, top[0].Points)
}
