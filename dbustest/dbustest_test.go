package dbustest_test

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/danderson/dbusmsg/dbustest"
)

func TestBus(t *testing.T) {
	b := dbustest.New(t, true)
	conn := b.MustConn(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("failed to ping test bus: %v", err)
	}
	if conn.UniqueName() == "" {
		t.Error("connection has no unique name after Hello")
	}
	names, err := conn.ListNames(ctx)
	if err != nil {
		t.Fatalf("ListNames: %v", err)
	}
	for _, want := range []string{"org.freedesktop.DBus", conn.UniqueName()} {
		if !slices.Contains(names, want) {
			t.Errorf("ListNames() = %q, missing %q", names, want)
		}
	}
}
