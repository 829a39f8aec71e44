package mongo_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	spmongo "github.com/04d4/spinta/internal/connector/mongo"
	"github.com/04d4/spinta/internal/endpoint"
)

// SPINTA_TEST_MONGO_URL="mongodb://localhost:27017"
func skipIfNoMongo(t *testing.T) string {
	url := os.Getenv("SPINTA_TEST_MONGO_URL")
	if url == "" {
		t.Skip("Skipping integration test: SPINTA_TEST_MONGO_URL not set")
	}
	return url
}

func TestMongo_Integration(t *testing.T) {
	url := skipIfNoMongo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	require.NoError(t, err)
	defer client.Disconnect(context.Background())

	db := client.Database("spinta_it")
	require.NoError(t, db.Drop(ctx))
	defer db.Drop(context.Background())

	docs := make([]any, 0, 10)
	for i := 0; i < 10; i++ {
		docs = append(docs, bson.D{{Key: "name", Value: "p"}, {Key: "age", Value: int32(i)}})
	}
	_, err = db.Collection("people").InsertMany(ctx, docs)
	require.NoError(t, err)

	src, err := endpoint.ParseSource(url, map[string]string{endpoint.OptionSchema: "spinta_it"})
	require.NoError(t, err)
	conn, err := endpoint.DefaultRegistry().Create(src)
	require.NoError(t, err)
	require.Equal(t, spmongo.Kind, conn.Kind())
	require.NoError(t, conn.Connect(ctx))
	defer conn.Close()

	it, err := conn.ListEntities(ctx)
	require.NoError(t, err)
	require.True(t, it.Next())
	people := it.Value()
	assert.Equal(t, "people", people.ModelName())
	assert.False(t, it.Next())

	fields, err := conn.ListFields(ctx, people)
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, "_id", fields[0].Name)
	assert.Equal(t, "int", fields[2].NativeType)
	assert.Equal(t, 10, fields[2].Sampled)
}
