package checkpoint

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	testMongoURI = "mongodb://localhost:27017"
	globalClient *mongo.Client
	clientErr    error
	clientOnce   sync.Once
)

func init() {
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		testMongoURI = uri
	}
}

func getGlobalTestClient(t *testing.T) *mongo.Client {
	clientOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(testMongoURI))
		if err != nil {
			clientErr = err
			return
		}
		if err := client.Ping(ctx, nil); err != nil {
			clientErr = err
			return
		}
		globalClient = client
	})
	if globalClient == nil {
		t.Skipf("Skipping test: MongoDB not available: %v", clientErr)
	}
	return globalClient
}

func setupMongoStore(t *testing.T) *MongoStore {
	client := getGlobalTestClient(t)
	dbName := fmt.Sprintf("test_checkpoint_%d", time.Now().UnixNano()%100000)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Database(dbName).Drop(ctx)
	})
	return NewMongoStore(client.Database(dbName))
}
