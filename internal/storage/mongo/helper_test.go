package mongo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	testMongoURI = "mongodb://localhost:27017"
	clientOnce   sync.Once
	globalClient *mongo.Client
	clientErr    error
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

// setupTestStore returns a store on a fresh database that is dropped when the test ends.
func setupTestStore(t *testing.T) *Store {
	client := getGlobalTestClient(t)

	safeName := strings.ReplaceAll(t.Name(), "/", "_")
	if len(safeName) > 20 {
		safeName = safeName[len(safeName)-20:]
	}
	dbName := fmt.Sprintf("test_store_%s_%d", safeName, time.Now().UnixNano()%100000)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Database(dbName).Drop(ctx)
	})

	return newStore(client.Database(dbName), nil)
}
