package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	mongoadapter "github.com/lakay-digital/recharge-relay/internal/adapters/mongo"
)

// OpenTestDatabase connects to MONGO_URI and returns a fresh database that is dropped on cleanup.
// The test is skipped when MONGO_URI is unset.
func OpenTestDatabase(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	client, err := mongoadapter.Connect(context.Background(), uri)
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	db := client.Database(fmt.Sprintf("recharge_relay_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		ctx := context.Background()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}
