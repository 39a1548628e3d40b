// Package repo implements the data persistence layer for domain entities.
// This file contains the MongoDB stores. Documents use ObjectID primary keys;
// any identifier that is not a 24-hex ObjectID yields ErrInvalidID.
package repo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tbourn/go-todo-backend/internal/domain"
)

// Collection names.
const (
	TodosCollection       = "todos"
	IdempotencyCollection = "idempotency"
)

// OpenMongo connects to uri and pings the primary within timeout.
func OpenMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(timeout))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// EnsureMongoIndexes creates the indexes both collections rely on: the list
// filter and sort keys on todos, the (scope, key) unique index and a TTL
// index on idempotency.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(TodosCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "completed", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(IdempotencyCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "scope", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("ux_scope_key"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	return err
}

// todoDoc is the BSON shape of a todo.
type todoDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Completed   bool               `bson:"completed"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

func (d todoDoc) toDomain() domain.Todo {
	return domain.Todo{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Completed:   d.Completed,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// MongoTodoStore persists todos in a MongoDB collection.
type MongoTodoStore struct {
	Coll *mongo.Collection
}

// NewMongoTodoStore returns a store over db's todos collection.
func NewMongoTodoStore(db *mongo.Database) *MongoTodoStore {
	return &MongoTodoStore{Coll: db.Collection(TodosCollection)}
}

func todoFilter(f domain.TodoFilter) bson.M {
	m := bson.M{}
	if f.Completed != nil {
		m["completed"] = *f.Completed
	}
	return m
}

// Find returns the todos matching q, tie-broken on _id.
func (s *MongoTodoStore) Find(ctx context.Context, q domain.TodoQuery) ([]domain.Todo, error) {
	col, ok := sortColumns[q.Sort.Field]
	if !ok {
		col = "created_at"
	}
	dir := 1
	if q.Sort.Desc {
		dir = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: col, Value: dir}, {Key: "_id", Value: dir}})
	if q.Skip > 0 {
		opts.SetSkip(int64(q.Skip))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.Coll.Find(ctx, todoFilter(q.Filter), opts)
	if err != nil {
		return nil, translateMongoErr(err)
	}
	var docs []todoDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translateMongoErr(err)
	}
	out := make([]domain.Todo, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// Count returns the number of todos matching f.
func (s *MongoTodoStore) Count(ctx context.Context, f domain.TodoFilter) (int64, error) {
	n, err := s.Coll.CountDocuments(ctx, todoFilter(f))
	return n, translateMongoErr(err)
}

// FindByID fetches one todo, or ErrNotFound.
func (s *MongoTodoStore) FindByID(ctx context.Context, id string) (*domain.Todo, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	var d todoDoc
	if err := s.Coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		return nil, translateMongoErr(err)
	}
	t := d.toDomain()
	return &t, nil
}

// Insert assigns a fresh ObjectID to t, checks its schema and persists it.
func (s *MongoTodoStore) Insert(ctx context.Context, t *domain.Todo) error {
	if err := t.Validate(); err != nil {
		return err
	}
	d := todoDoc{
		ID:          primitive.NewObjectID(),
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if _, err := s.Coll.InsertOne(ctx, d); err != nil {
		return translateMongoErr(err)
	}
	t.ID = d.ID.Hex()
	return nil
}

// UpdateByID applies patch with $set, stamps updated_at with at and returns
// the document as it is after the update.
func (s *MongoTodoStore) UpdateByID(ctx context.Context, id string, patch domain.TodoPatch, at time.Time) (*domain.Todo, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	set := bson.D{}
	if patch.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *patch.Title})
	}
	if patch.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *patch.Description})
	}
	if patch.Completed != nil {
		set = append(set, bson.E{Key: "completed", Value: *patch.Completed})
	}
	set = append(set, bson.E{Key: "updated_at", Value: at})

	var d todoDoc
	err = s.Coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if err != nil {
		return nil, translateMongoErr(err)
	}
	t := d.toDomain()
	return &t, nil
}

// DeleteByID removes a todo and returns the removed document.
func (s *MongoTodoStore) DeleteByID(ctx context.Context, id string) (*domain.Todo, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	var d todoDoc
	if err := s.Coll.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		return nil, translateMongoErr(err)
	}
	t := d.toDomain()
	return &t, nil
}

// idemDoc is the BSON shape of an idempotency record.
type idemDoc struct {
	ID         string    `bson:"_id"`
	Scope      string    `bson:"scope"`
	Key        string    `bson:"key"`
	ResourceID string    `bson:"resource_id"`
	Status     int       `bson:"status"`
	CreatedAt  time.Time `bson:"created_at"`
	ExpiresAt  time.Time `bson:"expires_at"`
}

// MongoIdempotencyStore keeps idempotency records in a MongoDB collection.
// The TTL index lags by up to a minute, so reads still filter on expires_at.
type MongoIdempotencyStore struct {
	Coll *mongo.Collection
}

// NewMongoIdempotencyStore returns a store over db's idempotency collection.
func NewMongoIdempotencyStore(db *mongo.Database) *MongoIdempotencyStore {
	return &MongoIdempotencyStore{Coll: db.Collection(IdempotencyCollection)}
}

// Get returns a non-expired record for (scope, key) or ErrNotFound.
func (s *MongoIdempotencyStore) Get(ctx context.Context, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	var d idemDoc
	err := s.Coll.FindOne(ctx, bson.M{
		"scope":      scope,
		"key":        key,
		"expires_at": bson.M{"$gt": now},
	}).Decode(&d)
	if err != nil {
		return nil, translateMongoErr(err)
	}
	return &domain.Idempotency{
		ID:         d.ID,
		Scope:      d.Scope,
		Key:        d.Key,
		ResourceID: d.ResourceID,
		Status:     d.Status,
		CreatedAt:  d.CreatedAt.UTC(),
		ExpiresAt:  d.ExpiresAt.UTC(),
	}, nil
}

// Create inserts a record and returns ErrDuplicate when (scope, key) is taken.
func (s *MongoIdempotencyStore) Create(ctx context.Context, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	d := idemDoc{
		ID:         uuid.NewString(),
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if _, err := s.Coll.DeleteMany(ctx, bson.M{
		"scope":      scope,
		"key":        key,
		"expires_at": bson.M{"$lte": now},
	}); err != nil {
		return nil, err
	}
	if _, err := s.Coll.InsertOne(ctx, d); err != nil {
		if errors.Is(translateMongoErr(err), ErrDuplicate) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &domain.Idempotency{
		ID:         d.ID,
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Status:     status,
		CreatedAt:  d.CreatedAt,
		ExpiresAt:  d.ExpiresAt,
	}, nil
}

// Purge removes records that expired before now and reports how many.
func (s *MongoIdempotencyStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.Coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// "E11000 duplicate key error collection: db.todos index: title_1 dup key: { title: "x" }"
var mongoDupKeyRE = regexp.MustCompile(`dup key: \{ (\w+):`)

// translateMongoErr maps driver errors onto the package's error semantics.
func translateMongoErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		field := "key"
		if m := mongoDupKeyRE.FindStringSubmatch(err.Error()); m != nil {
			field = m[1]
		}
		return &DuplicateKeyError{Field: field, Err: err}
	}
	return err
}
