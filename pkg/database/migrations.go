package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const migrationsCollection = "migrations"

type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, db *mongo.Database) error
	Down        func(ctx context.Context, db *mongo.Database) error
}

type Migrator struct {
	db         *mongo.Database
	migrations []Migration
}

func NewMigrator(db *mongo.Database) *Migrator {
	return &Migrator{
		db:         db,
		migrations: getMigrations(),
	}
}

// Up applies every migration newer than the stored version. It returns the
// versions that were applied.
func (m *Migrator) Up(ctx context.Context) ([]int, error) {
	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	var applied []int
	for _, migration := range m.migrations {
		if migration.Version <= currentVersion {
			continue
		}

		if err := migration.Up(ctx, m.db); err != nil {
			return applied, fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
		if err := m.updateVersion(ctx, migration.Version); err != nil {
			return applied, fmt.Errorf("failed to update migration version: %w", err)
		}
		applied = append(applied, migration.Version)
	}

	return applied, nil
}

func (m *Migrator) Down(ctx context.Context, targetVersion int) error {
	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return err
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		migration := m.migrations[i]
		if migration.Version > currentVersion || migration.Version <= targetVersion {
			continue
		}

		if err := migration.Down(ctx, m.db); err != nil {
			return fmt.Errorf("migration %d rollback failed: %w", migration.Version, err)
		}

		previousVersion := targetVersion
		if i > 0 {
			previousVersion = m.migrations[i-1].Version
		}
		if err := m.updateVersion(ctx, previousVersion); err != nil {
			return fmt.Errorf("failed to update migration version: %w", err)
		}
	}

	return nil
}

func (m *Migrator) getCurrentVersion(ctx context.Context) (int, error) {
	var result struct {
		Version int `bson:"version"`
	}

	err := m.db.Collection(migrationsCollection).FindOne(ctx, bson.D{}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, err
	}

	return result.Version, nil
}

func (m *Migrator) updateVersion(ctx context.Context, version int) error {
	_, err := m.db.Collection(migrationsCollection).ReplaceOne(
		ctx,
		bson.D{},
		bson.D{{Key: "version", Value: version}, {Key: "updated_at", Value: time.Now()}},
		options.Replace().SetUpsert(true),
	)

	return err
}

func getMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create chat_rooms indexes",
			Up:          createChatRoomIndexes,
			Down: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection("chat_rooms").Indexes().DropAll(ctx)
				return err
			},
		},
		{
			Version:     2,
			Description: "Create messages indexes",
			Up:          createMessageIndexes,
			Down: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection("messages").Indexes().DropAll(ctx)
				return err
			},
		},
	}
}

func createChatRoomIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("chat_rooms").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ride_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "driver_id", Value: 1}}},
		{Keys: bson.D{{Key: "is_closed", Value: 1}}},
	})
	return err
}

func createMessageIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("messages").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ride_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "sender_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "ride_id", Value: 1}, {Key: "is_flagged", Value: 1}}},
	})
	return err
}
