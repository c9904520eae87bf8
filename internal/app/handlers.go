package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"
)

const handlerTimeout = 30 * time.Second

// Handlers carries the dependencies of every bot command.
type Handlers struct {
	cfg   *Config
	lm    *LeaderboardManager
	queue *BatchQueue
	audit *AuditLog
}

func NewHandlers(cfg *Config, lm *LeaderboardManager, queue *BatchQueue, audit *AuditLog) *Handlers {
	return &Handlers{cfg: cfg, lm: lm, queue: queue, audit: audit}
}

func (h *Handlers) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}

// ==========================================
// REGISTRATION
// ==========================================

func RegisterHandlers(b *tele.Bot, h *Handlers) {
	b.Use(RecoverMiddleware())

	b.Handle("/start", h.HandleHelp)
	b.Handle("/help", h.HandleHelp)
	b.Handle("/pnlrank", h.HandlePublicBoard)
	b.Handle(tele.OnPhoto, h.HandlePhoto)

	adm := b.Group()
	adm.Use(PrivateOnly(), AdminOnly(h.cfg))
	adm.Handle("/adminboard", h.HandleAdminBoard)
	adm.Handle("/stats", h.HandleStats)
	adm.Handle("/eng", h.HandleEngagement)
	adm.Handle("/pointson", h.HandlePointsOn)
	adm.Handle("/pointsoff", h.HandlePointsOff)
	adm.Handle("/add", h.HandleAdd)
	adm.Handle("/addweek", h.HandleAddWeek)
	adm.Handle("/delete", h.HandleDelete)
	adm.Handle("/week", h.HandleWeek)
	adm.Handle("/newweek", h.HandleNewWeek)
	adm.Handle("/setweek", h.HandleSetWeek)
	adm.Handle("/selectwinners", h.HandleSelectWinners)
	adm.Handle("/winners", h.HandleWinners)
	adm.Handle("/removedata", h.HandleRemoveData)
	adm.Handle("/undodata", h.HandleUndoData)
	adm.Handle("/recalc", h.HandleRecalc)
	adm.Handle("/reset", h.HandleReset)
	adm.Handle("/dbhealth", h.HandleDBHealth)
	adm.Handle("/export", h.HandleExport)
	adm.Handle("/chart", h.HandleChart)
	adm.Handle("/modlog", h.HandleModLog)
	adm.Handle("/batch", h.HandleBatchStatus)
	adm.Handle("/autopost", h.HandleAutopost)
}

// ==========================================
// MIDDLEWARE
// ==========================================

// AdminOnly silently drops updates from non-admins.
func AdminOnly(cfg *Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender() == nil || !cfg.IsAdmin(c.Sender().ID) {
				return nil
			}
			return next(c)
		}
	}
}

func PrivateOnly() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Chat() == nil || c.Chat().Type != tele.ChatPrivate {
				return nil
			}
			return next(c)
		}
	}
}

// ==========================================
// PUBLIC
// ==========================================

const userHelp = `📸 PnL Flex Challenge

Post your PnL card screenshot in the challenge topic to earn a point.
The same photo counts only once.

/pnlrank - current top 10`

const adminHelp = `

🔐 Admin
Forward photos here to count them for their authors (batched).
Send a photo with a code caption (#07) to credit it manually.

/adminboard [week] - full board
/stats - counters since reset
/eng - engagement
/pointson, /pointsoff - show or hide points publicly
/add <code> <delta> [note] - adjust total
/addweek <week> <code> <delta> [note] - adjust one week
/delete <code> - remove participant
/week, /newweek [label], /setweek <n> [label]
/selectwinners [week], /winners <week>
/removedata <week>, /undodata <week>, /recalc
/reset CONFIRM - wipe everything
/dbhealth, /export, /chart [week|activity], /modlog
/batch - active batches
/autopost on|off|HH:MM`

func (h *Handlers) HandleHelp(c tele.Context) error {
	text := userHelp
	if c.Sender() != nil && h.cfg.IsAdmin(c.Sender().ID) && c.Chat() != nil && c.Chat().Type == tele.ChatPrivate {
		text += adminHelp
	}
	return c.Send(text)
}

func (h *Handlers) HandlePublicBoard(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()

	top, err := h.lm.Top(ctx, h.cfg.Campaign.PublicTop)
	if err != nil {
		log.Printf("❌ /pnlrank: %v", err)
		return c.Reply("⚠️ Leaderboard is unavailable right now.")
	}
	return c.Reply(formatPublicBoard(h.cfg.Campaign.Title, h.cfg.Campaign.PublicTop, top, h.lm.ShowPoints(ctx)))
}

// ==========================================
// PHOTOS
// ==========================================

// photoFingerprint prefers the stable unique id over the per-bot file id.
func photoFingerprint(p *tele.Photo) string {
	if p == nil {
		return ""
	}
	if p.UniqueID != "" {
		return p.UniqueID
	}
	return p.FileID
}

func (h *Handlers) isCampaignTopic(m *tele.Message) bool {
	if m.Chat == nil || h.cfg.Bot.ChatID == 0 || m.Chat.ID != h.cfg.Bot.ChatID {
		return false
	}
	return h.cfg.Bot.TopicID == 0 || m.ThreadID == h.cfg.Bot.TopicID
}

func (h *Handlers) HandlePhoto(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Photo == nil {
		return nil
	}
	fp := photoFingerprint(m.Photo)
	if fp == "" {
		return nil
	}
	sender := c.Sender()

	if m.Chat != nil && m.Chat.Type == tele.ChatPrivate {
		if sender == nil || !h.cfg.IsAdmin(sender.ID) {
			return nil
		}
		if origin, ok := forwardOrigin(m); ok {
			h.queue.Enqueue(sender.ID, m.Chat.ID, BatchItem{Origin: origin, Fingerprint: fp, MessageID: int64(m.ID)})
			return nil
		}
		return h.handleManualPhoto(c, m, fp)
	}

	if h.isCampaignTopic(m) {
		return h.handleTopicPhoto(m, sender, fp)
	}
	return nil
}

func (h *Handlers) handleTopicPhoto(m *tele.Message, sender *tele.User, fp string) error {
	if sender == nil || sender.IsBot {
		return nil
	}
	if !h.cfg.Campaign.InWindow(m.Time()) {
		log.Printf("📸 topic photo %d from %d outside the campaign period, ignored", m.ID, sender.ID)
		return nil
	}
	ctx, cancel := h.ctx()
	defer cancel()

	msgID := int64(m.ID)
	res, err := h.lm.RecordFromOrigin(ctx, userOrigin(sender), fp, SourceTopic, &msgID)
	if err != nil {
		log.Printf("⚠️ topic photo from %d (%s): %v", sender.ID, fp, err)
		return nil
	}
	log.Printf("📸 topic photo from %d: %s", sender.ID, res)
	return nil
}

func (h *Handlers) handleManualPhoto(c tele.Context, m *tele.Message, fp string) error {
	var code string
	if fields := strings.Fields(m.Caption); len(fields) > 0 {
		if _, err := strconv.Atoi(strings.TrimPrefix(fields[0], "#")); err == nil {
			code = normalizeParticipantCode(fields[0])
		}
	}
	if code == "" {
		return c.Reply("ℹ️ Forward photos to count them for their authors, or add a participant code caption (#07) to credit a photo manually.")
	}

	ctx, cancel := h.ctx()
	defer cancel()

	p, err := h.lm.ParticipantByCode(ctx, code)
	if errors.Is(err, ErrParticipantNotFound) {
		return c.Reply(fmt.Sprintf("❓ Participant %s not found.", code))
	}
	if err != nil {
		log.Printf("❌ manual photo %s: %v", code, err)
		return c.Reply("⚠️ Database error, try again.")
	}

	msgID := int64(m.ID)
	res, err := h.lm.Record(ctx, p.ID, fp, SourceManual, &msgID)
	if err != nil {
		log.Printf("❌ manual photo %s (%s): %v", code, fp, err)
		return c.Reply("⚠️ Could not record the photo.")
	}
	if res == Duplicate {
		return c.Reply(fmt.Sprintf("♻️ Duplicate: this photo is already counted for %s %s.", p.Code, p.DisplayName))
	}
	h.audit.logModAction(ctx, c.Sender().ID, "manual_submission", p.Code, fp)
	return c.Reply(fmt.Sprintf("✅ Recorded for %s %s (%d pts).", p.Code, p.DisplayName, p.Points+1))
}

// ==========================================
// BOARDS / STATS
// ==========================================

func (h *Handlers) HandleAdminBoard(c tele.Context) error {
	week, err := parseOptionalWeek(c.Args())
	if err != nil {
		return c.Send("Usage: /adminboard [week]")
	}
	ctx, cancel := h.ctx()
	defer cancel()

	standings, err := h.lm.Standings(ctx, week, 0)
	if err != nil {
		log.Printf("❌ /adminboard: %v", err)
		return c.Send("⚠️ Database error.")
	}
	return c.Send(formatAdminBoard(standings, week, h.lm.ShowPoints(ctx)))
}

func (h *Handlers) HandleStats(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()
	st, err := h.lm.Stats(ctx)
	if err != nil {
		log.Printf("❌ /stats: %v", err)
		return c.Send("⚠️ Database error.")
	}
	return c.Send(formatStats(st))
}

func (h *Handlers) HandleEngagement(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()
	e, err := h.lm.Engagement(ctx)
	if err != nil {
		log.Printf("❌ /eng: %v", err)
		return c.Send("⚠️ Database error.")
	}
	return c.Send(formatEngagement(e))
}

func (h *Handlers) HandlePointsOn(c tele.Context) error  { return h.setPoints(c, true) }
func (h *Handlers) HandlePointsOff(c tele.Context) error { return h.setPoints(c, false) }

func (h *Handlers) setPoints(c tele.Context, show bool) error {
	ctx, cancel := h.ctx()
	defer cancel()
	if err := h.lm.SetShowPoints(ctx, show); err != nil {
		log.Printf("❌ show_points: %v", err)
		return c.Send("⚠️ Database error.")
	}
	h.audit.logModAction(ctx, c.Sender().ID, "show_points", "", strconv.FormatBool(show))
	if show {
		return c.Send("✅ Points are now visible on the public board.")
	}
	return c.Send("✅ Points are now hidden on the public board.")
}

// ==========================================
// ADJUSTMENTS / PARTICIPANTS
// ==========================================

type adjustArgs struct {
	Week  *int
	Code  string
	Delta int
	Note  string
}

// parseAdjustArgs reads "<code> <delta> [note...]".
func parseAdjustArgs(args []string) (adjustArgs, error) {
	if len(args) < 2 {
		return adjustArgs{}, errors.New("need a code and a delta")
	}
	code := normalizeParticipantCode(args[0])
	if code == "" {
		return adjustArgs{}, errors.New("empty code")
	}
	delta, err := strconv.Atoi(strings.TrimPrefix(args[1], "+"))
	if err != nil {
		return adjustArgs{}, fmt.Errorf("delta %q is not a number", args[1])
	}
	if delta == 0 {
		return adjustArgs{}, errors.New("delta must not be zero")
	}
	return adjustArgs{Code: code, Delta: delta, Note: strings.Join(args[2:], " ")}, nil
}

// parseAddWeekArgs reads "<week> <code> <delta> [note...]".
func parseAddWeekArgs(args []string) (adjustArgs, error) {
	if len(args) < 3 {
		return adjustArgs{}, errors.New("need a week, a code and a delta")
	}
	week, err := parseWeek(args[0])
	if err != nil {
		return adjustArgs{}, err
	}
	out, err := parseAdjustArgs(args[1:])
	if err != nil {
		return adjustArgs{}, err
	}
	out.Week = &week
	return out, nil
}

func parseWeek(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, ErrInvalidWeek
	}
	return n, nil
}

// parseOptionalWeek returns 0 when no week argument is given.
func parseOptionalWeek(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	return parseWeek(args[0])
}

func (h *Handlers) HandleAdd(c tele.Context) error {
	args, err := parseAdjustArgs(c.Args())
	if err != nil {
		return c.Send(fmt.Sprintf("⚠️ %v\nUsage: /add <code> <delta> [note]", err))
	}
	return h.applyAdjustment(c, args)
}

func (h *Handlers) HandleAddWeek(c tele.Context) error {
	args, err := parseAddWeekArgs(c.Args())
	if err != nil {
		return c.Send(fmt.Sprintf("⚠️ %v\nUsage: /addweek <week> <code> <delta> [note]", err))
	}
	return h.applyAdjustment(c, args)
}

func (h *Handlers) applyAdjustment(c tele.Context, args adjustArgs) error {
	ctx, cancel := h.ctx()
	defer cancel()

	p, err := h.lm.AddAdjustment(ctx, AdjustmentRequest{
		Code:    args.Code,
		Delta:   args.Delta,
		AdminID: c.Sender().ID,
		Note:    args.Note,
		Week:    args.Week,
	})
	if errors.Is(err, ErrParticipantNotFound) {
		return c.Send(fmt.Sprintf("❓ Participant %s not found.", args.Code))
	}
	if err != nil {
		log.Printf("❌ adjustment %s %+d: %v", args.Code, args.Delta, err)
		return c.Send("⚠️ Database error.")
	}

	scope := "total"
	if args.Week != nil {
		scope = "week " + strconv.Itoa(*args.Week)
	}
	h.audit.logModAction(ctx, c.Sender().ID, "adjust", p.Code, fmt.Sprintf("%+d %s %s", args.Delta, scope, args.Note))
	return c.Send(fmt.Sprintf("✅ %s %s: %+d (%s). Total now %d pts.", p.Code, p.DisplayName, args.Delta, scope, p.Points))
}

func (h *Handlers) HandleDelete(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /delete <code>")
	}
	code := normalizeParticipantCode(args[0])
	ctx, cancel := h.ctx()
	defer cancel()

	p, err := h.lm.DeleteParticipant(ctx, code)
	if errors.Is(err, ErrParticipantNotFound) {
		return c.Send(fmt.Sprintf("❓ Participant %s not found.", code))
	}
	if err != nil {
		log.Printf("❌ /delete %s: %v", code, err)
		return c.Send("⚠️ Database error.")
	}
	h.audit.logModAction(ctx, c.Sender().ID, "delete_participant", p.Code, p.DisplayName)
	return c.Send(fmt.Sprintf("🗑 Deleted %s %s (%d pts).", p.Code, p.DisplayName, p.Points))
}

// ==========================================
// WEEKS / WINNERS
// ==========================================

func (h *Handlers) HandleWeek(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()
	w, err := h.lm.CurrentWeek(ctx)
	if err != nil {
		return c.Send("⚠️ Database error.")
	}
	return c.Send(fmt.Sprintf("🗓 Current week: %d (%s)", w.Number, w.Label))
}

func (h *Handlers) HandleNewWeek(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()
	w, err := h.lm.StartNewWeek(ctx, strings.Join(c.Args(), " "))
	if err != nil {
		log.Printf("❌ /newweek: %v", err)
		return c.Send("⚠️ Database error.")
	}
	h.audit.logModAction(ctx, c.Sender().ID, "new_week", strconv.Itoa(w.Number), w.Label)
	return c.Send(fmt.Sprintf("🆕 Started week %d (%s). New photos count toward it.", w.Number, w.Label))
}

func (h *Handlers) HandleSetWeek(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Send("Usage: /setweek <n> [label]")
	}
	n, err := parseWeek(args[0])
	if err != nil {
		return c.Send("⚠️ " + err.Error())
	}
	ctx, cancel := h.ctx()
	defer cancel()
	w, err := h.lm.SetCurrentWeek(ctx, n, strings.Join(args[1:], " "))
	if err != nil {
		log.Printf("❌ /setweek: %v", err)
		return c.Send("⚠️ Database error.")
	}
	h.audit.logModAction(ctx, c.Sender().ID, "set_week", strconv.Itoa(w.Number), w.Label)
	return c.Send(fmt.Sprintf("🗓 Current week set to %d (%s).", w.Number, w.Label))
}

func (h *Handlers) HandleSelectWinners(c tele.Context) error {
	week, err := parseOptionalWeek(c.Args())
	if err != nil {
		return c.Send("Usage: /selectwinners [week]")
	}
	ctx, cancel := h.ctx()
	defer cancel()
	if week == 0 {
		cur, err := h.lm.CurrentWeek(ctx)
		if err != nil {
			return c.Send("⚠️ Database error.")
		}
		week = cur.Number
	}
	winners, err := h.lm.SelectWinners(ctx, week, h.cfg.Campaign.PublicTop)
	if err != nil {
		log.Printf("❌ /selectwinners %d: %v", week, err)
		return c.Send("⚠️ Database error.")
	}
	h.audit.logModAction(ctx, c.Sender().ID, "select_winners", strconv.Itoa(week), fmt.Sprintf("%d winners", len(winners)))
	return c.Send(formatWinners(week, winners))
}

func (h *Handlers) HandleWinners(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /winners <week>")
	}
	week, err := parseWeek(args[0])
	if err != nil {
		return c.Send("⚠️ " + err.Error())
	}
	ctx, cancel := h.ctx()
	defer cancel()
	winners, err := h.lm.Winners(ctx, week)
	if err != nil {
		log.Printf("❌ /winners %d: %v", week, err)
		return c.Send("⚠️ Database error.")
	}
	return c.Send(formatWinners(week, winners))
}

// ==========================================
// MAINTENANCE
// ==========================================

func (h *Handlers) HandleRemoveData(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /removedata <week>")
	}
	week, err := parseWeek(args[0])
	if err != nil {
		return c.Send("⚠️ " + err.Error())
	}
	ctx, cancel := h.ctx()
	defer cancel()
	res, err := h.lm.DeleteWeekData(ctx, week, c.Sender().ID)
	if err != nil {
		log.Printf("❌ /removedata %d: %v", week, err)
		return c.Send("⚠️ Database error.")
	}
	h.audit.logModAction(ctx, c.Sender().ID, "remove_week", strconv.Itoa(week),
		fmt.Sprintf("%d submissions, %d adjustments", res.Submissions, res.Adjustments))
	return c.Send(fmt.Sprintf("🗑 Week %d removed: %d submissions, %d adjustments. Totals recalculated.\nUndo with /undodata %d",
		week, res.Submissions, res.Adjustments, week))
}

func (h *Handlers) HandleUndoData(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /undodata <week>")
	}
	week, err := parseWeek(args[0])
	if err != nil {
		return c.Send("⚠️ " + err.Error())
	}
	ctx, cancel := h.ctx()
	defer cancel()
	res, err := h.lm.RestoreWeekData(ctx, week)
	if errors.Is(err, ErrNoBackup) {
		return c.Send(fmt.Sprintf("❓ No removed data for week %d.", week))
	}
	if err != nil {
		log.Printf("❌ /undodata %d: %v", week, err)
		return c.Send("⚠️ Database error.")
	}
	h.audit.logModAction(ctx, c.Sender().ID, "restore_week", strconv.Itoa(week),
		fmt.Sprintf("%d submissions, %d adjustments", res.Submissions, res.Adjustments))
	return c.Send(fmt.Sprintf("♻️ Week %d restored: %d submissions, %d adjustments. Totals recalculated.",
		week, res.Submissions, res.Adjustments))
}

func (h *Handlers) HandleRecalc(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()
	if err := h.lm.Recalculate(ctx); err != nil {
		log.Printf("❌ /recalc: %v", err)
		return c.Send("⚠️ Database error.")
	}
	h.audit.logModAction(ctx, c.Sender().ID, "recalculate", "", "")
	return c.Send("🔢 Totals recalculated from submissions and adjustments.")
}

func (h *Handlers) HandleReset(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 || args[0] != "CONFIRM" {
		return c.Send("⚠️ This deletes every participant, submission and adjustment.\nRun /reset CONFIRM to proceed.")
	}
	ctx, cancel := h.ctx()
	defer cancel()
	if err := h.lm.ResetAll(ctx); err != nil {
		log.Printf("❌ /reset: %v", err)
		return c.Send("⚠️ Database error.")
	}
	h.audit.logModAction(ctx, c.Sender().ID, "reset", "", "")
	log.Printf("⚠️ leaderboard reset by %d", c.Sender().ID)
	return c.Send("🧹 All data cleared. Codes restart at #01.")
}

func (h *Handlers) HandleDBHealth(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()
	report, err := h.lm.HealthCheck(ctx)
	if err != nil {
		log.Printf("❌ /dbhealth: %v", err)
		return c.Send("❌ Database check failed: " + err.Error())
	}
	return c.Send(formatDBHealth(report))
}

func (h *Handlers) HandleExport(c tele.Context) error {
	bot := c.Bot()
	to := c.Sender()
	_ = c.Send("⏳ Preparing export...")
	runHeavy("export", func() {
		ctx, cancel := h.ctx()
		defer cancel()
		file, err := exportCSV(ctx, h.lm)
		if err != nil {
			log.Printf("❌ export: %v", err)
			_, _ = bot.Send(to, "⚠️ Export failed.")
			return
		}
		defer os.Remove(file)
		doc := &tele.Document{File: tele.FromDisk(file), FileName: "leaderboard.csv"}
		if _, err := bot.Send(to, doc); err != nil {
			log.Printf("⚠️ export send: %v", err)
		}
		h.audit.logModAction(ctx, to.ID, "export", "", "")
	})
	return nil
}

func (h *Handlers) HandleChart(c tele.Context) error {
	args := c.Args()
	activity := len(args) == 1 && strings.EqualFold(args[0], "activity")
	week := 0
	if !activity {
		var err error
		if week, err = parseOptionalWeek(args); err != nil {
			return c.Send("Usage: /chart [week|activity]")
		}
	}

	bot := c.Bot()
	to := c.Sender()
	runHeavy("chart", func() {
		ctx, cancel := h.ctx()
		defer cancel()

		var (
			png     []byte
			caption string
			err     error
		)
		if activity {
			dates, values, qerr := dailySubmissions(ctx, h.lm, 14, time.Now())
			if qerr != nil {
				err = qerr
			} else {
				png, err = renderActivityChart(dates, values)
				caption = "📈 Submissions, last 14 days"
			}
		} else {
			standings, qerr := h.lm.Standings(ctx, week, h.cfg.Campaign.PublicTop)
			if qerr != nil {
				err = qerr
			} else {
				caption = "📊 " + h.cfg.Campaign.Title + " - All Time"
				if week > 0 {
					caption = fmt.Sprintf("📊 %s - Week %d", h.cfg.Campaign.Title, week)
				}
				png, err = renderStandingsChart(caption, standings)
			}
		}
		if errors.Is(err, errNothingToChart) {
			_, _ = bot.Send(to, "📊 Nothing to chart yet.")
			return
		}
		if err != nil {
			log.Printf("❌ chart: %v", err)
			_, _ = bot.Send(to, "⚠️ Chart failed.")
			return
		}
		photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(png)), Caption: caption}
		if _, err := bot.Send(to, photo); err != nil {
			log.Printf("⚠️ chart send: %v", err)
		}
	})
	return nil
}

func (h *Handlers) HandleModLog(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()
	entries, err := h.audit.Recent(ctx, 15)
	if err != nil {
		log.Printf("❌ /modlog: %v", err)
		return c.Send("⚠️ Audit log unavailable.")
	}
	return c.Send(formatModLog(entries))
}

func (h *Handlers) HandleBatchStatus(c tele.Context) error {
	return c.Send(formatBatchStatus(h.queue.Active(), time.Now()))
}

func (h *Handlers) HandleAutopost(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()

	args := c.Args()
	if len(args) == 0 {
		st, err := h.lm.AutopostSettings(ctx)
		if err != nil {
			return c.Send("⚠️ Database error.")
		}
		state := "OFF"
		if st.Enabled {
			state = "ON"
		}
		return c.Send(fmt.Sprintf("⏰ Daily leaderboard post: %s at %s\nUsage: /autopost on|off|HH:MM", state, st.Time))
	}

	var key, value string
	switch strings.ToLower(args[0]) {
	case "on":
		key, value = settingAutopostEnabled, "true"
	case "off":
		key, value = settingAutopostEnabled, "false"
	default:
		t, err := parseClock(args[0])
		if err != nil {
			return c.Send("⚠️ " + err.Error())
		}
		key, value = settingAutopostTime, t.Format("15:04")
	}
	if err := h.lm.SetSetting(ctx, key, value); err != nil {
		log.Printf("❌ /autopost: %v", err)
		return c.Send("⚠️ Database error.")
	}
	h.audit.logModAction(ctx, c.Sender().ID, "autopost", key, value)
	return c.Send("✅ Autopost updated.")
}

// ==========================================
// STARTUP
// ==========================================

func notifyAdminsStartup(bot *tele.Bot, lm *LeaderboardManager, cfg *Config) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var b strings.Builder
	b.WriteString("🤖 Bot started.")
	if week, err := lm.CurrentWeek(ctx); err == nil {
		fmt.Fprintf(&b, "\n🗓 %s", week.Label)
	}
	if top, err := lm.Top(ctx, 3); err == nil && len(top) > 0 {
		b.WriteString("\n\n🏆 Top 3:")
		for i, s := range top {
			fmt.Fprintf(&b, "\n%d. %s %s - %d pts", i+1, s.Code, standingName(s), s.Points)
		}
	}
	for _, id := range cfg.Bot.AdminIDs {
		if _, err := bot.Send(&tele.User{ID: id}, b.String()); err != nil {
			log.Printf("⚠️ cannot notify admin %d: %v", id, err)
		}
	}
}
