package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/careconnect/careconnect-api/internal/store"
)

// collection wraps a *mongo.Collection with typed whole-document operations.
type collection[T any] struct {
	c  *mongo.Collection
	id func(*T) *primitive.ObjectID
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	}
	return err
}

func (c collection[T]) insert(ctx context.Context, v *T) error {
	id := c.id(v)
	if id.IsZero() {
		*id = primitive.NewObjectID()
	}
	_, err := c.c.InsertOne(ctx, v)
	return translate(err)
}

func (c collection[T]) findOne(ctx context.Context, filter interface{}) (*T, error) {
	v := new(T)
	if err := c.c.FindOne(ctx, filter).Decode(v); err != nil {
		return nil, translate(err)
	}
	return v, nil
}

func (c collection[T]) byID(ctx context.Context, id primitive.ObjectID) (*T, error) {
	return c.findOne(ctx, bson.M{"_id": id})
}

func (c collection[T]) replace(ctx context.Context, v *T) error {
	res, err := c.c.ReplaceOne(ctx, bson.M{"_id": *c.id(v)}, v)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c collection[T]) deleteByID(ctx context.Context, id primitive.ObjectID) error {
	res, err := c.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translate(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c collection[T]) find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := c.c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, translate(err)
	}
	defer cursor.Close(ctx)

	out := make([]T, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.c.Name(), err)
	}
	return out, nil
}

func (c collection[T]) count(ctx context.Context, filter interface{}) (int64, error) {
	n, err := c.c.CountDocuments(ctx, filter)
	return n, translate(err)
}

func newestFirst(field string) *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: field, Value: -1}})
}
