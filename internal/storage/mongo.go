package storage

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo is the primary document store. Single-document writes rely on
// MongoDB's per-document atomicity; RunTransaction uses a session
// transaction, which requires a replica set.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo binds the store to database name on client.
func NewMongo(client *mongo.Client, name string) *Mongo {
	return &Mongo{client: client, db: client.Database(name)}
}

func (s *Mongo) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func (s *Mongo) Get(ctx context.Context, collection, id string, out any) error {
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound(collection, id)
	}
	if err != nil {
		return unavailable("find document", err)
	}
	return nil
}

func (s *Mongo) List(ctx context.Context, collection string, filter Filter, out any) error {
	q := bson.M{}
	for k, v := range filter {
		q[k] = v
	}
	cur, err := s.db.Collection(collection).Find(ctx, q)
	if err != nil {
		return unavailable("find documents", err)
	}
	if err := cur.All(ctx, out); err != nil {
		return unavailable("decode documents", err)
	}
	return nil
}

func (s *Mongo) Put(ctx context.Context, collection, id string, doc any) error {
	_, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return unavailable("replace document", err)
	}
	return nil
}

func (s *Mongo) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	set := bson.M{}
	for k, v := range fields {
		if k == "id" || k == "_id" {
			continue
		}
		set[k] = v
	}
	_, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.Update().SetUpsert(true))
	if err != nil {
		return unavailable("update document", err)
	}
	return nil
}

func (s *Mongo) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return unavailable("delete document", err)
	}
	if res.DeletedCount == 0 {
		return notFound(collection, id)
	}
	return nil
}

// RunTransaction runs fn in a session transaction. The driver retries fn on
// transient write conflicts; a retried attempt sees the winner's writes, so
// two concurrent redemptions of one token commit at most once.
func (s *Mongo) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return unavailable("start session", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, ordered(s))
	})
	return err
}
