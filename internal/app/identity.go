package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUnattributable is returned for photos whose original author cannot be identified.
var ErrUnattributable = errors.New("origin cannot be attributed to a person")

// ==========================================
// ORIGIN
// ==========================================

// Origin describes who authored a photo. The set of variants is closed.
type Origin interface {
	origin()
}

// UserOrigin is a forward (or live post) with the full author identity.
type UserOrigin struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// HiddenUserOrigin is a forward from a user who hides their account; only a name is known.
type HiddenUserOrigin struct {
	Name string
}

// ChatOrigin is a forward from a channel or an anonymous group admin.
type ChatOrigin struct {
	ChatID int64
	Title  string
}

func (UserOrigin) origin()       {}
func (HiddenUserOrigin) origin() {}
func (ChatOrigin) origin()       {}

// forwardOrigin extracts the original author of a forwarded message.
// ok is false when the message is not a forward at all.
func forwardOrigin(m *tele.Message) (Origin, bool) {
	if m == nil {
		return nil, false
	}
	if o := m.Origin; o != nil {
		switch {
		case o.Sender != nil:
			return userOrigin(o.Sender), true
		case strings.TrimSpace(o.SenderUsername) != "":
			return HiddenUserOrigin{Name: o.SenderUsername}, true
		case o.SenderChat != nil:
			return ChatOrigin{ChatID: o.SenderChat.ID, Title: o.SenderChat.Title}, true
		case o.Chat != nil:
			return ChatOrigin{ChatID: o.Chat.ID, Title: o.Chat.Title}, true
		}
		return ChatOrigin{}, true
	}
	switch {
	case m.OriginalSender != nil:
		return userOrigin(m.OriginalSender), true
	case strings.TrimSpace(m.OriginalSenderName) != "":
		return HiddenUserOrigin{Name: m.OriginalSenderName}, true
	case m.OriginalChat != nil:
		return ChatOrigin{ChatID: m.OriginalChat.ID, Title: m.OriginalChat.Title}, true
	case m.OriginalUnixtime != 0:
		return ChatOrigin{}, true
	}
	return nil, false
}

func userOrigin(u *tele.User) Origin {
	if u == nil {
		return ChatOrigin{}
	}
	return UserOrigin{
		UserID:    u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// ==========================================
// IDENTITY
// ==========================================

// Identity is the resolved participant key plus the profile fields stored with it.
type Identity struct {
	Key         string
	TgUserID    *int64
	Username    *string
	DisplayName string
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func displayName(username, firstName, lastName string) string {
	if u := strings.TrimPrefix(strings.TrimSpace(username), "@"); u != "" {
		return "@" + u
	}
	full := strings.TrimSpace(strings.Join(strings.Fields(firstName+" "+lastName), " "))
	if full == "" {
		return "Unknown"
	}
	return full
}

// identityFor maps an origin to the participant identity it should be counted under.
func identityFor(o Origin) (Identity, error) {
	switch v := o.(type) {
	case UserOrigin:
		if v.UserID == 0 {
			return Identity{}, ErrUnattributable
		}
		id := v.UserID
		ident := Identity{
			Key:         "tg:" + strconv.FormatInt(id, 10),
			TgUserID:    &id,
			DisplayName: displayName(v.Username, v.FirstName, v.LastName),
		}
		if u := strings.TrimPrefix(strings.TrimSpace(v.Username), "@"); u != "" {
			ident.Username = &u
		}
		return ident, nil
	case HiddenUserOrigin:
		norm := normalizeName(v.Name)
		if norm == "" {
			return Identity{}, ErrUnattributable
		}
		return Identity{
			Key:         "name:" + norm,
			DisplayName: strings.Join(strings.Fields(v.Name), " "),
		}, nil
	default:
		return Identity{}, ErrUnattributable
	}
}

func formatCode(n int) string {
	return fmt.Sprintf("#%02d", n)
}

// ResolveOrCreate returns the participant id for the identity, creating the
// participant (with a fresh code) when none exists. Concurrent calls with the
// same key converge on one row through the unique identity_key.
func (lm *LeaderboardManager) ResolveOrCreate(ctx context.Context, ident Identity) (uint, error) {
	if ident.Key == "" {
		return 0, ErrUnattributable
	}

	var existing Participant
	err := lm.DB.WithContext(ctx).Where("identity_key = ?", ident.Key).Take(&existing).Error
	if err == nil {
		lm.refreshProfile(ctx, &existing, ident)
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("lookup %s: %w", ident.Key, err)
	}

	id, _, err := lm.createParticipant(ctx, ident)
	if err != nil {
		return 0, fmt.Errorf("create participant %s: %w", ident.Key, err)
	}
	return id, nil
}

// errParticipantExists rolls back a code allocation that lost the race for an identity key.
var errParticipantExists = errors.New("participant already exists")

// createParticipant allocates the next code and inserts the participant. The
// identity key is read again once the counter row is locked: a creator that
// raced and lost rolls its increment back, so codes never skip a number.
func (lm *LeaderboardManager) createParticipant(ctx context.Context, ident Identity) (id uint, created bool, err error) {
	err = lm.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Bumping first takes the row lock, so concurrent creators get distinct codes.
		if err := incrementSettingTx(tx, settingNextCode); err != nil {
			return err
		}

		var row Participant
		err := tx.Select("id").Where("identity_key = ?", ident.Key).Take(&row).Error
		if err == nil {
			id = row.ID
			return errParticipantExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		next, err := getIntSettingTx(tx, settingNextCode, 2)
		if err != nil {
			return err
		}
		p := Participant{
			Code:        formatCode(next - 1),
			IdentityKey: ident.Key,
			TgUserID:    ident.TgUserID,
			Username:    ident.Username,
			DisplayName: ident.DisplayName,
			FirstSeen:   time.Now(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "updated_at"}),
		}).Create(&p).Error; err != nil {
			return err
		}

		if err := tx.Select("id").Where("identity_key = ?", ident.Key).Take(&row).Error; err != nil {
			return err
		}
		id = row.ID
		created = true
		return nil
	})
	if errors.Is(err, errParticipantExists) {
		return id, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, created, nil
}

func (lm *LeaderboardManager) refreshProfile(ctx context.Context, p *Participant, ident Identity) {
	if ident.TgUserID == nil {
		return
	}
	sameUser := (p.Username == nil && ident.Username == nil) ||
		(p.Username != nil && ident.Username != nil && *p.Username == *ident.Username)
	if sameUser && p.DisplayName == ident.DisplayName {
		return
	}
	err := lm.DB.WithContext(ctx).Model(&Participant{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"username":     ident.Username,
		"display_name": ident.DisplayName,
	}).Error
	if err != nil {
		log.Printf("⚠️ cannot refresh profile of %s (%s): %v", p.Code, ident.Key, err)
	}
}

// ParticipantByCode looks a participant up by its public code ("#07").
func (lm *LeaderboardManager) ParticipantByCode(ctx context.Context, code string) (*Participant, error) {
	var p Participant
	err := lm.DB.WithContext(ctx).Where("code = ?", code).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
