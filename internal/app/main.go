package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tele "gopkg.in/telebot.v3"
)

const shutdownTimeout = 30 * time.Second

// ==========================================
// MAIN
// ==========================================

func Run() {
	initAppLayout()
	InitLogger()
	defer CloseLogger()
	markStart()

	// 1. Config
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("❌ cannot load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 2. Database
	lm, err := NewLeaderboardManager(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("❌ cannot open database: %v", err)
	}

	// 3. Audit log
	audit, closeAudit := openAudit(ctx, cfg, lm)

	// 4. Bot
	log.Println("🔄 Connecting to the Telegram API...")
	pref := tele.Settings{
		Token:  cfg.Bot.Token,
		URL:    cfg.Bot.APIURL,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Printf("❌ bot error: %v", err)
			if c != nil && c.Chat() != nil {
				log.Printf("   -> chat %d", c.Chat().ID)
			}
		},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("❌ cannot create bot (check token or API access): %v", err)
	}
	log.Printf("✅ Connected as @%s (ID: %d)", b.Me.Username, b.Me.ID)

	// 5. Batch queue and handlers
	queue := NewBatchQueue(cfg.Batch, lm, newBotMessenger(b))
	RegisterHandlers(b, NewHandlers(cfg, lm, queue, audit))

	// 6. Background work
	scheduler := NewScheduler(b, lm, cfg)
	safeGo("scheduler", func() { scheduler.Run(ctx) })
	safeGo("housekeeping", func() { startHousekeeping(ctx, queue) })

	var api *http.Server
	if cfg.HTTP.Addr != "" {
		api = startAPIServer(cfg.HTTP.Addr, lm, queue, cfg.Campaign.PublicTop)
	}

	if err := b.RemoveWebhook(false); err != nil {
		log.Printf("⚠️ cannot remove webhook: %v", err)
	}

	fmt.Printf("🚀 Bot started. Chat: %d Topic: %d Admins: %d\n", cfg.Bot.ChatID, cfg.Bot.TopicID, len(cfg.Bot.AdminIDs))
	safeGo("bot", b.Start)
	safeGo("startup-notify", func() { notifyAdminsStartup(b, lm, cfg) })

	// Graceful shutdown
	<-ctx.Done()
	log.Println("⏹ Shutting down...")
	b.Stop()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := queue.Stop(stopCtx); err != nil {
		log.Printf("⚠️ batch queue did not drain: %v", err)
	}
	stopAPIServer(stopCtx, api)
	closeAudit(stopCtx)
	if err := lm.Close(); err != nil {
		log.Printf("⚠️ cannot close database: %v", err)
	}
}

// openAudit prefers MongoDB when configured and falls back to the SQL table.
func openAudit(ctx context.Context, cfg *Config, lm *LeaderboardManager) (*AuditLog, func(context.Context)) {
	var repo AuditRepository = NewSQLAuditRepository(lm.DB)
	if cfg.Audit.MongoURI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		mongoRepo, err := ConnectMongoAudit(connectCtx, cfg.Audit.MongoURI, cfg.Audit.MongoDB)
		cancel()
		if err != nil {
			log.Printf("⚠️ MongoDB audit unavailable, using the database: %v", err)
		} else {
			repo = mongoRepo
			log.Println("✅ Audit log: MongoDB")
		}
	}
	if err := repo.Init(ctx); err != nil {
		log.Printf("⚠️ audit init: %v", err)
	}
	return NewAuditLog(repo), func(ctx context.Context) {
		if err := repo.Close(ctx); err != nil {
			log.Printf("⚠️ audit close: %v", err)
		}
	}
}
