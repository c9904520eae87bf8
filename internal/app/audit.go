package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
)

// AuditRepository stores admin actions. SQL is the default; MongoDB is used
// when audit.mongo_uri is configured.
type AuditRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, entry *ModAction) error
	Recent(ctx context.Context, limit int) ([]ModAction, error)
	Close(ctx context.Context) error
}

func ensureModActionDefaults(entry *ModAction) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
}

// ==========================================
// SQL
// ==========================================

type SQLAuditRepository struct {
	db *gorm.DB
}

func NewSQLAuditRepository(db *gorm.DB) *SQLAuditRepository {
	return &SQLAuditRepository{db: db}
}

func (r *SQLAuditRepository) Init(ctx context.Context) error {
	if r.db == nil {
		return errors.New("sql audit repository is not initialized")
	}
	if err := r.db.WithContext(ctx).AutoMigrate(&ModAction{}); err != nil {
		return fmt.Errorf("auto migrate mod actions: %w", err)
	}
	return nil
}

func (r *SQLAuditRepository) Create(ctx context.Context, entry *ModAction) error {
	if entry == nil {
		return errors.New("audit entry is nil")
	}
	ensureModActionDefaults(entry)
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *SQLAuditRepository) Recent(ctx context.Context, limit int) ([]ModAction, error) {
	var out []ModAction
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *SQLAuditRepository) Close(context.Context) error { return nil }

// ==========================================
// MONGO
// ==========================================

type MongoAuditRepository struct {
	client  *mongo.Client
	db      *mongo.Database
	actions *mongo.Collection
}

// ConnectMongoAudit dials MongoDB and returns a repository bound to dbName.
func ConnectMongoAudit(ctx context.Context, uri, dbName string) (*MongoAuditRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	repo := NewMongoAuditRepository(client.Database(dbName))
	repo.client = client
	return repo, nil
}

func NewMongoAuditRepository(db *mongo.Database) *MongoAuditRepository {
	repo := &MongoAuditRepository{db: db}
	if db != nil {
		repo.actions = db.Collection("mod_actions")
	}
	return repo
}

func (r *MongoAuditRepository) Init(ctx context.Context) error {
	if r.db == nil {
		return errors.New("mongo audit repository is not initialized")
	}
	names, err := r.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("list mongo collections: %w", err)
	}
	found := false
	for _, name := range names {
		if name == "mod_actions" {
			found = true
			break
		}
	}
	if !found {
		if err := r.db.CreateCollection(ctx, "mod_actions"); err != nil {
			return fmt.Errorf("create mod_actions collection: %w", err)
		}
	}
	r.actions = r.db.Collection("mod_actions")

	_, err = r.actions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create mod_actions indexes: %w", err)
	}
	return nil
}

func (r *MongoAuditRepository) Create(ctx context.Context, entry *ModAction) error {
	if entry == nil {
		return errors.New("audit entry is nil")
	}
	if r.actions == nil {
		return errors.New("mod_actions collection is not initialized")
	}
	ensureModActionDefaults(entry)
	_, err := r.actions.InsertOne(ctx, entry)
	return err
}

func (r *MongoAuditRepository) Recent(ctx context.Context, limit int) ([]ModAction, error) {
	if r.actions == nil {
		return nil, errors.New("mod_actions collection is not initialized")
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := r.actions.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []ModAction
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoAuditRepository) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Disconnect(ctx)
}

// ==========================================
// AUDIT LOG
// ==========================================

type AuditLog struct {
	repo AuditRepository
}

func NewAuditLog(repo AuditRepository) *AuditLog {
	return &AuditLog{repo: repo}
}

// logModAction never fails the caller; write errors are only logged.
func (a *AuditLog) logModAction(ctx context.Context, userID int64, action, targetID, details string) {
	if a == nil || a.repo == nil {
		return
	}
	act := strings.TrimSpace(action)
	if act == "" {
		act = "unknown"
	}
	entry := ModAction{
		UserID:   userID,
		Action:   act,
		TargetID: shorten(strings.TrimSpace(targetID), 64),
		Details:  shorten(strings.TrimSpace(details), 2000),
	}
	if err := a.repo.Create(ctx, &entry); err != nil {
		log.Printf("⚠️ cannot write audit entry %s: %v", act, err)
	}
}

func (a *AuditLog) Recent(ctx context.Context, limit int) ([]ModAction, error) {
	if a == nil || a.repo == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return a.repo.Recent(ctx, limit)
}

func formatModLog(entries []ModAction) string {
	if len(entries) == 0 {
		return "🗒 Audit log is empty."
	}
	var b strings.Builder
	b.WriteString("🗒 Recent admin actions\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s %d %s", e.CreatedAt.Format("01-02 15:04"), e.UserID, e.Action)
		if e.TargetID != "" {
			b.WriteString(" " + e.TargetID)
		}
		if e.Details != "" {
			b.WriteString(": " + shorten(e.Details, 80))
		}
	}
	return b.String()
}
