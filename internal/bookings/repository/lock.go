package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	bookingserrors "lessonbook/internal/bookings/errors"
	"lessonbook/pkg/config"
	"lessonbook/pkg/model"
)

const LockCollectionName = "slot_locks"

// LockRepository manages the advisory slot locks that serialize
// concurrent reservation attempts. Locks live in a TTL-indexed
// collection so a crashed holder cannot block a slot forever.
type LockRepository interface {
	Acquire(ctx context.Context, lock *model.SlotLock) error
	Release(ctx context.Context, lockID, owner string) error
}

// lockCollection is the slice of *mongo.Collection the lock repository
// needs. It exists so the insert/takeover sequencing can be tested
// without a running deployment.
type lockCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

type mongoLockRepository struct {
	cfg        *config.Config
	collection lockCollection
}

func NewMongoLockRepository(cfg *config.Config) LockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLockRepository{
		cfg:        cfg,
		collection: db.Collection(LockCollectionName),
	}
}

// Acquire claims the lock with an insert-if-absent. On a duplicate key
// it tries to take over the existing lock, but only if that lock has
// already expired: the TTL monitor reaps on a coarse interval and must
// not be waited on. A takeover that matches nothing means the holder
// released between the insert and the replace, so the insert is retried
// once before the lock is reported held.
func (r *mongoLockRepository) Acquire(ctx context.Context, lock *model.SlotLock) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	lock.CreatedAt = time.Now().UTC()

	for attempt := 0; attempt < 2; attempt++ {
		_, err := r.collection.InsertOne(ctx, lock)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to acquire slot lock: %w", err)
		}

		res, err := r.collection.ReplaceOne(ctx, bson.M{
			"_id":        lock.ID,
			"expires_at": bson.M{"$lte": time.Now().UTC()},
		}, lock)
		if err != nil {
			return fmt.Errorf("failed to take over expired slot lock: %w", err)
		}
		if res.ModifiedCount > 0 {
			return nil
		}
	}
	return bookingserrors.ErrLockHeld
}

// Release deletes the lock, matching the owner so a slow attempt cannot
// delete a lock that was taken over after its own expired.
func (r *mongoLockRepository) Release(ctx context.Context, lockID, owner string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID, "owner": owner})
	if err != nil {
		return fmt.Errorf("failed to release slot lock: %w", err)
	}
	return nil
}
