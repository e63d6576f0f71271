package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEveryUpHasADown(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(FS, down); err != nil {
			t.Errorf("%s has no matching %s", up, down)
		}
	}
}

func TestBookingsSchema(t *testing.T) {
	data, err := fs.ReadFile(FS, "0001_create_bookings.up.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, col := range []string{"confirmation_token", "price_amount", "cancelled_at"} {
		if !strings.Contains(string(data), col) {
			t.Errorf("schema missing column %s", col)
		}
	}
}
