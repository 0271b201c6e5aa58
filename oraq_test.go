package oraq

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// This file defines test helper functions shared by other test files in
// this package.

func setup(t *testing.T) *redis.Client {
	t.Helper()
	c := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   14,
	})
	if err := c.FlushDB(context.Background()).Err(); err != nil {
		t.Fatal(err)
	}
	return c
}
