// Package mongo implements the document-store connector for MongoDB.
//
// Collections carry no declared schema, so fields are inferred from a
// random sample ($sample) of each collection. Every native type observed at
// a path is reported; reconciling them into one canonical type is left to
// the caller.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/04d4/spinta/internal/core"
	"github.com/04d4/spinta/internal/endpoint"
)

// Kind is the type-table key for MongoDB.
const Kind = "mongo"

// DefaultSampleSize is the number of documents sampled per collection.
const DefaultSampleSize = 100

// MongoDB authentication failure.
const codeAuthFailed = 18

var (
	_ endpoint.Connector = (*Connector)(nil)
	_ endpoint.Sampler   = (*Connector)(nil)
)

// Config holds the connection URI and inference settings.
type Config struct {
	URI        string
	Database   string
	SampleSize int
}

// ParseConfig derives a Config from a mongodb:// or mongodb+srv://
// descriptor. The database comes from the schema option or the URI path.
func ParseConfig(src *endpoint.Source) *Config {
	db := src.Schema()
	if db == "" {
		db = strings.Trim(src.URL.Path, "/")
	}
	size := src.IntOption(endpoint.OptionSampleSize, DefaultSampleSize)
	if size <= 0 {
		size = DefaultSampleSize
	}
	return &Config{
		URI:        src.StripQuery(endpoint.OptionSchema, endpoint.OptionSampleSize),
		Database:   db,
		SampleSize: size,
	}
}

// Connector introspects one MongoDB database.
type Connector struct {
	Config *Config

	client *mongo.Client
	db     *mongo.Database
}

// New creates an unconnected MongoDB connector.
func New(cfg *Config) *Connector {
	return &Connector{Config: cfg}
}

// ID returns the connector template ID.
func (c *Connector) ID() string { return "document.mongo" }

// Kind returns the type-table key.
func (c *Connector) Kind() string { return Kind }

// Connect creates the client and pings the primary.
func (c *Connector) Connect(ctx context.Context) error {
	if c.Config.Database == "" {
		return core.ConnectionError(false, "mongo: database name is required (URI path or %q option)", endpoint.OptionSchema)
	}
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(c.Config.URI).
		SetAppName("spinta-inspect"))
	if err != nil {
		return classify(err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.WithoutCancel(ctx))
		return classify(err)
	}
	c.client = client
	c.db = client.Database(c.Config.Database)
	return nil
}

// Close disconnects the client.
func (c *Connector) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Disconnect(context.Background())
	c.client, c.db = nil, nil
	return err
}

// ListEntities lists collections and views, system collections excluded,
// sorted by name.
func (c *Connector) ListEntities(ctx context.Context) (endpoint.Iterator[*endpoint.Entity], error) {
	if c.db == nil {
		return nil, core.ConnectionError(false, "not connected")
	}
	specs, err := c.db.ListCollectionSpecifications(ctx, bson.D{})
	if err != nil {
		return nil, inspectionError(fmt.Errorf("list collections: %w", err))
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	entities := make([]*endpoint.Entity, 0, len(specs))
	for _, spec := range specs {
		if strings.HasPrefix(spec.Name, "system.") {
			continue
		}
		kind := endpoint.KindCollection
		if spec.Type == "view" {
			kind = endpoint.KindView
		}
		entities = append(entities, &endpoint.Entity{
			Schema:  c.Config.Database,
			Name:    spec.Name,
			Kind:    kind,
			Default: true,
		})
	}
	return endpoint.NewSliceIterator(entities, nil), nil
}

// ListFields infers fields from a sample of the collection. An empty
// collection yields no fields.
func (c *Connector) ListFields(ctx context.Context, entity *endpoint.Entity) ([]*endpoint.Field, error) {
	cur, err := c.sample(ctx, entity, c.Config.SampleSize)
	if err != nil {
		return nil, err
	}
	defer cur.Close(context.WithoutCancel(ctx))

	in := NewInferrer()
	for cur.Next(ctx) {
		if err := in.Add(cur.Current); err != nil {
			return nil, inspectionError(fmt.Errorf("decode document of %s: %w", entity.Name, err))
		}
	}
	if err := cur.Err(); err != nil {
		return nil, inspectionError(fmt.Errorf("sample %s: %w", entity.Name, err))
	}
	return in.Fields(), nil
}

// Sample returns up to limit random documents from entity.
func (c *Connector) Sample(ctx context.Context, entity *endpoint.Entity, limit int) (endpoint.Iterator[endpoint.Record], error) {
	cur, err := c.sample(ctx, entity, limit)
	if err != nil {
		return nil, err
	}
	return &docIterator{ctx: ctx, cur: cur}, nil
}

func (c *Connector) sample(ctx context.Context, entity *endpoint.Entity, limit int) (*mongo.Cursor, error) {
	if c.db == nil {
		return nil, core.ConnectionError(false, "not connected")
	}
	if limit <= 0 {
		limit = DefaultSampleSize
	}
	pipeline := mongo.Pipeline{
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: limit}}}},
	}
	cur, err := c.db.Collection(entity.Name).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, inspectionError(fmt.Errorf("sample %s: %w", entity.Name, err))
	}
	return cur, nil
}

// classify maps driver errors onto ConnectionError. Network failures and
// timeouts are retryable, authentication failures are not.
func classify(err error) error {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == codeAuthFailed {
		return core.Wrap(core.KindConnection, false, err)
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return core.Wrap(core.KindConnection, true, err)
	}
	return core.Wrap(core.KindConnection, false, err)
}

// inspectionError keeps lost connections distinguishable from per-entity
// failures.
func inspectionError(err error) error {
	if mongo.IsNetworkError(err) {
		return core.Wrap(core.KindConnection, true, err)
	}
	return core.Wrap(core.KindEntityInspection, false, err)
}

// docIterator wraps a cursor as endpoint.Iterator.
type docIterator struct {
	ctx     context.Context
	cur     *mongo.Cursor
	current endpoint.Record
	err     error
}

func (it *docIterator) Next() bool {
	if !it.cur.Next(it.ctx) {
		it.err = it.cur.Err()
		return false
	}
	var doc bson.M
	if err := it.cur.Decode(&doc); err != nil {
		it.err = err
		return false
	}
	it.current = endpoint.Record(doc)
	return true
}

func (it *docIterator) Value() endpoint.Record { return it.current }
func (it *docIterator) Err() error             { return it.err }
func (it *docIterator) Close() error           { return it.cur.Close(context.WithoutCancel(it.ctx)) }
