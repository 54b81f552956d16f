package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/evcraddock/property-sync/internal/apperr"
	"github.com/evcraddock/property-sync/internal/property"
)

// Mongo stores records in a MongoDB collection with a unique index on
// external_id.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// mongoDoc is the stored document shape. Attribute keys may contain dots,
// so attributes are kept as an array of key/value pairs.
type mongoDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	ExternalID string             `bson:"external_id"`
	Address    string             `bson:"address"`
	PostalCode string             `bson:"postal_code"`
	Attributes []attribute        `bson:"attributes"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

type attribute struct {
	Key   string `bson:"k"`
	Value any    `bson:"v"`
}

// OpenMongo connects, pings, and ensures the unique external_id index.
func OpenMongo(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, classifyMongo(err, "connecting to mongo")
	}

	if err := client.Ping(ctx, nil); err != nil {
		if dErr := client.Disconnect(ctx); dErr != nil {
			err = fmt.Errorf("%w (also failed to disconnect: %v)", err, dErr)
		}
		return nil, classifyMongo(err, "pinging mongo")
	}

	m := NewMongo(client, client.Database(database).Collection(collection))
	if err := m.EnsureIndexes(ctx); err != nil {
		if dErr := client.Disconnect(ctx); dErr != nil {
			err = fmt.Errorf("%w (also failed to disconnect: %v)", err, dErr)
		}
		return nil, err
	}
	return m, nil
}

// NewMongo creates a store over an existing client and collection.
func NewMongo(client *mongo.Client, coll *mongo.Collection) *Mongo {
	return &Mongo{client: client, coll: coll, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureIndexes creates the unique index the sync engine relies on.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "external_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("external_id_unique"),
	})
	if err != nil {
		return classifyMongo(err, "creating external_id index")
	}
	return nil
}

// FindOne returns the record matching f, or ErrNotFound.
func (m *Mongo) FindOne(ctx context.Context, f Filter) (*property.Record, error) {
	var doc mongoDoc
	err := m.coll.FindOne(ctx, bson.D{{Key: "external_id", Value: f.ExternalID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyMongo(err, fmt.Sprintf("querying record %s", f.ExternalID))
	}
	return doc.record(), nil
}

// Insert adds a new record and returns its document id.
func (m *Mongo) Insert(ctx context.Context, rec *property.Record) (string, error) {
	now := m.now()
	doc := mongoDoc{
		ExternalID: rec.ExternalID,
		Address:    rec.Address,
		PostalCode: rec.PostalCode,
		Attributes: toPairs(rec.Attributes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	res, err := m.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", classifyMongo(err, "inserting record")
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(res.InsertedID), nil
}

// UpdateOne sets address, postal code and attributes on the record
// matching f. The attribute array is replaced whole.
func (m *Mongo) UpdateOne(ctx context.Context, f Filter, rec *property.Record, upsert bool) (UpdateResult, error) {
	now := m.now()
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "address", Value: rec.Address},
			{Key: "postal_code", Value: rec.PostalCode},
			{Key: "attributes", Value: toPairs(rec.Attributes)},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "created_at", Value: now},
		}},
	}

	res, err := m.coll.UpdateOne(ctx,
		bson.D{{Key: "external_id", Value: f.ExternalID}},
		update,
		options.Update().SetUpsert(upsert),
	)
	if err != nil {
		return UpdateResult{}, classifyMongo(err, "updating record")
	}

	out := UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}
	if oid, ok := res.UpsertedID.(primitive.ObjectID); ok {
		out.UpsertedID = oid.Hex()
	}
	return out, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (d *mongoDoc) record() *property.Record {
	attrs := make(map[string]any, len(d.Attributes))
	for _, a := range d.Attributes {
		attrs[a.Key] = a.Value
	}
	return &property.Record{
		ExternalID: d.ExternalID,
		Address:    d.Address,
		PostalCode: d.PostalCode,
		Attributes: attrs,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// toPairs orders attributes by key so stored documents are stable.
func toPairs(attrs map[string]any) []attribute {
	keys := sortedKeys(attrs)
	pairs := make([]attribute, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, attribute{Key: k, Value: attrs[k]})
	}
	return pairs
}

// classifyMongo maps duplicate-key errors to StorageConflict, timeouts to
// Timeout, and everything else to StorageUnavailable.
func classifyMongo(err error, op string) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return &apperr.Error{Kind: apperr.KindStorageConflict, Code: "11000", Message: op, Err: err}
	case mongo.IsTimeout(err):
		return apperr.Wrap(apperr.KindTimeout, err, op)
	default:
		return apperr.Wrap(apperr.KindStorageUnavailable, err, op)
	}
}
