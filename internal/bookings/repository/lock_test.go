package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	bookingserrors "lessonbook/internal/bookings/errors"
	"lessonbook/pkg/config"
	"lessonbook/pkg/model"
)

var errDuplicateKey = mongo.WriteException{
	WriteErrors: []mongo.WriteError{{Code: 11000}},
}

type fakeLockCollection struct {
	insertResults  []error
	replaceResults []int64
	replaceErr     error

	inserts  int
	replaces int
	deletes  int
}

func (c *fakeLockCollection) InsertOne(context.Context, interface{}, ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	i := c.inserts
	c.inserts++
	if i < len(c.insertResults) && c.insertResults[i] != nil {
		return nil, c.insertResults[i]
	}
	return &mongo.InsertOneResult{}, nil
}

func (c *fakeLockCollection) ReplaceOne(context.Context, interface{}, interface{}, ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	i := c.replaces
	c.replaces++
	if c.replaceErr != nil {
		return nil, c.replaceErr
	}
	var modified int64
	if i < len(c.replaceResults) {
		modified = c.replaceResults[i]
	}
	return &mongo.UpdateResult{MatchedCount: modified, ModifiedCount: modified}, nil
}

func (c *fakeLockCollection) DeleteOne(context.Context, interface{}, ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	c.deletes++
	return &mongo.DeleteResult{DeletedCount: 1}, nil
}

func newLockRepository(coll *fakeLockCollection) *mongoLockRepository {
	return &mongoLockRepository{
		cfg:        &config.Config{WriteTimeout: time.Second},
		collection: coll,
	}
}

func testLock() *model.SlotLock {
	return &model.SlotLock{
		ID:        "a1b2c3",
		Owner:     "owner-1",
		ExpiresAt: time.Now().Add(30 * time.Second).UTC(),
	}
}

func TestAcquire_FreeSlot(t *testing.T) {
	coll := &fakeLockCollection{}
	repo := newLockRepository(coll)

	if err := repo.Acquire(context.Background(), testLock()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if coll.inserts != 1 || coll.replaces != 0 {
		t.Errorf("expected a single insert, got %d inserts %d replaces", coll.inserts, coll.replaces)
	}
}

func TestAcquire_ExpiredLockTakeover(t *testing.T) {
	coll := &fakeLockCollection{
		insertResults:  []error{errDuplicateKey},
		replaceResults: []int64{1},
	}
	repo := newLockRepository(coll)

	if err := repo.Acquire(context.Background(), testLock()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if coll.replaces != 1 {
		t.Errorf("expected one takeover attempt, got %d", coll.replaces)
	}
}

// The holder can release its lock between the duplicate-key insert and
// the takeover replace. The replace then matches nothing and the insert
// must be retried so a free slot is not reported as held.
func TestAcquire_RetriesInsertAfterConcurrentRelease(t *testing.T) {
	coll := &fakeLockCollection{
		insertResults:  []error{errDuplicateKey, nil},
		replaceResults: []int64{0},
	}
	repo := newLockRepository(coll)

	if err := repo.Acquire(context.Background(), testLock()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if coll.inserts != 2 {
		t.Errorf("expected the insert to be retried, got %d inserts", coll.inserts)
	}
}

func TestAcquire_HeldLock(t *testing.T) {
	coll := &fakeLockCollection{
		insertResults:  []error{errDuplicateKey, errDuplicateKey},
		replaceResults: []int64{0, 0},
	}
	repo := newLockRepository(coll)

	err := repo.Acquire(context.Background(), testLock())
	if !errors.Is(err, bookingserrors.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if coll.inserts != 2 {
		t.Errorf("expected the acquire to be bounded at two inserts, got %d", coll.inserts)
	}
}

func TestAcquire_InsertFailure(t *testing.T) {
	coll := &fakeLockCollection{
		insertResults: []error{errors.New("connection reset")},
	}
	repo := newLockRepository(coll)

	err := repo.Acquire(context.Background(), testLock())
	if err == nil || errors.Is(err, bookingserrors.ErrLockHeld) {
		t.Fatalf("expected a wrapped store error, got %v", err)
	}
}

func TestRelease(t *testing.T) {
	coll := &fakeLockCollection{}
	repo := newLockRepository(coll)

	if err := repo.Release(context.Background(), "a1b2c3", "owner-1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if coll.deletes != 1 {
		t.Errorf("expected one delete, got %d", coll.deletes)
	}
}
