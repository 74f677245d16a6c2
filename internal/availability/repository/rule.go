package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	availabilityerrors "lessonbook/internal/availability/errors"
	"lessonbook/pkg/config"
	"lessonbook/pkg/model"
)

const CollectionName = "availability_rules"

// RuleRepository reads per-location availability rules. Rules are
// administered outside this service; there is no write path here.
type RuleRepository interface {
	FindByLocation(ctx context.Context, locationID string) (*model.AvailabilityRule, error)
}

type mongoRuleRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoRuleRepository(cfg *config.Config) RuleRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRuleRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoRuleRepository) FindByLocation(ctx context.Context, locationID string) (*model.AvailabilityRule, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var rule model.AvailabilityRule
	err := r.collection.FindOne(ctx, bson.M{"_id": locationID}).Decode(&rule)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, availabilityerrors.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to find availability rule: %w", err)
	}

	return &rule, nil
}

// withTimeout caps the operation at the repository timeout without
// extending a tighter deadline the caller already set.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			return context.WithTimeout(ctx, remaining)
		}
	}
	return context.WithTimeout(ctx, timeout)
}
