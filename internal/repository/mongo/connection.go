package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
)

const defaultDatabase = "weddingplanner"

// Connect to mongo, check it answers and prepare indexes
// Database name is taken from URI path, 'weddingplanner' if not set
func Connect(ctx context.Context, uri string) (*mongo.Client, *mongo.Database, error) {
	cs, err := connstring.Parse(uri)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid mongo uri. Err: %w", err)
	}

	dbName := cs.Database
	if dbName == "" {
		dbName = defaultDatabase
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("cant initialize mongo client. Err: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo is not reachable. Err: %w", err)
	}

	database := client.Database(dbName)
	if err := NewUserRepo(database).EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	return client, database, nil
}
