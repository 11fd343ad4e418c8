// Package storage is the document persistence layer. Every implementation
// speaks the same small Store interface so the API can run against MongoDB,
// MySQL, the JSON-file mirror or memory, and so the fallback policy lives in
// one decorator instead of in every handler.
//
// Documents are Go structs (or maps) whose json and bson names agree. The id
// of a document is passed explicitly and stored as "_id" in MongoDB and "id"
// everywhere else.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
)

// Collection names.
const (
	Vehicles      = "vehicles"
	Users         = "users"
	Hosts         = "hosts"
	Bookings      = "bookings"
	Messages      = "support_messages"
	ReviewTokens  = "review_tokens"
	Reviews       = "reviews"
	Credentials   = "credentials"
	RefreshTokens = "refresh_tokens"
)

// Filter selects documents whose named fields equal the given values.
type Filter map[string]any

// Store is a keyed document store. Get and Delete return an error matching
// apperr.ErrNotFound when the document does not exist. Put replaces the whole
// document; Merge sets the given top-level fields and creates the document
// when it is missing. List decodes matches into out, which must be a pointer
// to a slice.
type Store interface {
	Get(ctx context.Context, collection, id string, out any) error
	List(ctx context.Context, collection string, filter Filter, out any) error
	Put(ctx context.Context, collection, id string, doc any) error
	Merge(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// Tx is the view of the store inside a transaction. Implementations require
// every Get to happen before the first write.
type Tx interface {
	Get(ctx context.Context, collection, id string, out any) error
	Put(ctx context.Context, collection, id string, doc any) error
	Merge(ctx context.Context, collection, id string, fields map[string]any) error
}

// Transactor runs fn atomically. If fn returns an error nothing it wrote is
// visible. fn may be invoked more than once when the engine retries a
// conflicting transaction, so it must not have side effects outside tx.
type Transactor interface {
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

func notFound(collection, id string) error {
	return apperr.New(apperr.KindNotFound, fmt.Sprintf("%s/%s not found", collection, id))
}

func unavailable(op string, err error) error {
	return apperr.Wrap(apperr.KindStorageUnavailable, "storage unavailable", fmt.Errorf("%s: %w", op, err))
}

// ErrReadAfterWrite is returned when a transaction reads after it has
// written. Document engines such as Firestore reject that ordering, and
// keeping the rule everywhere keeps transaction bodies portable.
var ErrReadAfterWrite = errors.New("storage: transaction read after write")

type orderedTx struct {
	tx    Tx
	wrote bool
}

func ordered(tx Tx) Tx { return &orderedTx{tx: tx} }

func (o *orderedTx) Get(ctx context.Context, collection, id string, out any) error {
	if o.wrote {
		return ErrReadAfterWrite
	}
	return o.tx.Get(ctx, collection, id, out)
}

func (o *orderedTx) Put(ctx context.Context, collection, id string, doc any) error {
	o.wrote = true
	return o.tx.Put(ctx, collection, id, doc)
}

func (o *orderedTx) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	o.wrote = true
	return o.tx.Merge(ctx, collection, id, fields)
}
