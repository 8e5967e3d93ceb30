package users

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// MONGO_TEST_URI が設定されている場合のみ実行します。
func TestMongoStoreContract(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI is not set")
	}

	runStoreContract(t, func(t *testing.T) Store {
		ctx := context.Background()
		db := fmt.Sprintf("secrets_test_%d", time.Now().UnixNano())
		s, err := OpenMongo(ctx, uri, db)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.client.Database(db).Drop(context.Background())
			_ = s.Close(context.Background())
		})
		return s
	})
}
