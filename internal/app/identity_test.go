package app

import (
	"bytes"
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v3"
)

func TestForwardOrigin(t *testing.T) {
	user := &tele.User{ID: 42, Username: "alice", FirstName: "Alice"}

	tests := []struct {
		name   string
		msg    *tele.Message
		want   Origin
		wantOK bool
	}{
		{
			name: "not forwarded",
			msg:  &tele.Message{},
		},
		{
			name:   "origin user",
			msg:    &tele.Message{Origin: &tele.MessageOrigin{Sender: user}},
			want:   UserOrigin{UserID: 42, Username: "alice", FirstName: "Alice"},
			wantOK: true,
		},
		{
			name:   "origin hidden user",
			msg:    &tele.Message{Origin: &tele.MessageOrigin{SenderUsername: "Bob Smith"}},
			want:   HiddenUserOrigin{Name: "Bob Smith"},
			wantOK: true,
		},
		{
			name:   "origin channel",
			msg:    &tele.Message{Origin: &tele.MessageOrigin{Chat: &tele.Chat{ID: -100, Title: "News"}}},
			want:   ChatOrigin{ChatID: -100, Title: "News"},
			wantOK: true,
		},
		{
			name:   "legacy user",
			msg:    &tele.Message{OriginalSender: user},
			want:   UserOrigin{UserID: 42, Username: "alice", FirstName: "Alice"},
			wantOK: true,
		},
		{
			name:   "legacy hidden name",
			msg:    &tele.Message{OriginalSenderName: "Bob"},
			want:   HiddenUserOrigin{Name: "Bob"},
			wantOK: true,
		},
		{
			name:   "legacy channel",
			msg:    &tele.Message{OriginalChat: &tele.Chat{ID: -7, Title: "Chan"}},
			want:   ChatOrigin{ChatID: -7, Title: "Chan"},
			wantOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := forwardOrigin(tt.msg)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdentityFor(t *testing.T) {
	ident, err := identityFor(UserOrigin{UserID: 7, Username: "@trader", FirstName: "T"})
	require.NoError(t, err)
	assert.Equal(t, "tg:7", ident.Key)
	require.NotNil(t, ident.TgUserID)
	assert.Equal(t, int64(7), *ident.TgUserID)
	require.NotNil(t, ident.Username)
	assert.Equal(t, "trader", *ident.Username)
	assert.Equal(t, "@trader", ident.DisplayName)

	ident, err = identityFor(UserOrigin{UserID: 8, FirstName: " John ", LastName: "Doe"})
	require.NoError(t, err)
	assert.Equal(t, "John Doe", ident.DisplayName)
	assert.Nil(t, ident.Username)

	ident, err = identityFor(HiddenUserOrigin{Name: "  Jane   DOE "})
	require.NoError(t, err)
	assert.Equal(t, "name:jane doe", ident.Key)
	assert.Equal(t, "Jane DOE", ident.DisplayName)
	assert.Nil(t, ident.TgUserID)

	for _, o := range []Origin{ChatOrigin{ChatID: -1}, HiddenUserOrigin{Name: "   "}, UserOrigin{}, nil} {
		_, err := identityFor(o)
		assert.ErrorIs(t, err, ErrUnattributable)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "@bob", displayName("bob", "Bob", "B"))
	assert.Equal(t, "Bob B", displayName("", "Bob", "B"))
	assert.Equal(t, "Bob", displayName("", "Bob", ""))
	assert.Equal(t, "Unknown", displayName("", "", ""))
}

func TestResolveOrCreateAssignsSequentialCodes(t *testing.T) {
	lm := newTestManager(t)

	a := addParticipant(t, lm, 1, "a")
	b := addParticipant(t, lm, 2, "b")
	again := addParticipant(t, lm, 1, "a")

	assert.Equal(t, "#01", a.Code)
	assert.Equal(t, "#02", b.Code)
	assert.Equal(t, a.ID, again.ID)

	var count int64
	require.NoError(t, lm.DB.Model(&Participant{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestResolveOrCreateRefreshesProfile(t *testing.T) {
	lm := newTestManager(t)
	p := addParticipant(t, lm, 1, "old")
	updated := addParticipant(t, lm, 1, "new")

	assert.Equal(t, p.ID, updated.ID)
	assert.Equal(t, p.Code, updated.Code)
	assert.Equal(t, "@new", updated.DisplayName)
}

func TestResolveOrCreateHiddenNamesMatchNormalized(t *testing.T) {
	lm := newTestManager(t)
	ctx := context.Background()

	first, err := identityFor(HiddenUserOrigin{Name: "Crypto King"})
	require.NoError(t, err)
	second, err := identityFor(HiddenUserOrigin{Name: "crypto   KING"})
	require.NoError(t, err)

	id1, err := lm.ResolveOrCreate(ctx, first)
	require.NoError(t, err)
	id2, err := lm.ResolveOrCreate(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestResolveOrCreateConcurrentSameKey(t *testing.T) {
	lm := newTestManager(t)
	ident, err := identityFor(UserOrigin{UserID: 99, Username: "racer"})
	require.NoError(t, err)

	var (
		mu  sync.Mutex
		ids = map[uint]bool{}
	)
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			id, err := lm.ResolveOrCreate(context.Background(), ident)
			if err != nil {
				return err
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, ids, 1)

	var count int64
	require.NoError(t, lm.DB.Model(&Participant{}).Where("identity_key = ?", "tg:99").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestParticipantByCode(t *testing.T) {
	lm := newTestManager(t)
	p := addParticipant(t, lm, 5, "five")

	got, err := lm.ParticipantByCode(context.Background(), p.Code)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = lm.ParticipantByCode(context.Background(), "#99")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestCreateParticipantLosingRaceKeepsCodesContiguous(t *testing.T) {
	lm := newTestManager(t)
	ctx := context.Background()
	first := addParticipant(t, lm, 1, "a")

	// A concurrent creator committed this key after our initial lookup missed it.
	ident, err := identityFor(UserOrigin{UserID: 1, Username: "a"})
	require.NoError(t, err)
	id, created, err := lm.createParticipant(ctx, ident)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, id)

	next, err := lm.GetSetting(ctx, settingNextCode, "")
	require.NoError(t, err)
	assert.Equal(t, "2", next)

	second := addParticipant(t, lm, 2, "b")
	assert.Equal(t, "#02", second.Code)
}

func TestRefreshProfileLogsStoreErrors(t *testing.T) {
	lm := newTestManager(t)
	p := addParticipant(t, lm, 1, "old")

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	ident, err := identityFor(UserOrigin{UserID: 1, Username: "new"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	lm.refreshProfile(ctx, p, ident)

	assert.Contains(t, buf.String(), "cannot refresh profile of #01")
}
