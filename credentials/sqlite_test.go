package credentials

import (
	"errors"
	"testing"

	"github.com/wispberry-tech/sarao-auth/clock"
)

func TestSQLiteStorage(t *testing.T) {
	storage, err := NewInMemorySQLiteStorage()
	if err != nil {
		t.Fatalf("NewInMemorySQLiteStorage() error = %v", err)
	}
	defer storage.Close()

	if _, err := storage.GetItem(DefaultKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetItem() on empty table error = %v, want ErrNotFound", err)
	}

	for _, value := range []string{"first", "second"} {
		if err := storage.SetItem(DefaultKey, []byte(value)); err != nil {
			t.Fatalf("SetItem(%q) error = %v", value, err)
		}
	}
	got, err := storage.GetItem(DefaultKey)
	if err != nil || string(got) != "second" {
		t.Fatalf("GetItem() = %q, %v; want second", got, err)
	}

	if err := storage.RemoveItem(DefaultKey); err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}
	if _, err := storage.GetItem(DefaultKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetItem() after remove error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorage_WithStore(t *testing.T) {
	storage, err := NewInMemorySQLiteStorage()
	if err != nil {
		t.Fatalf("NewInMemorySQLiteStorage() error = %v", err)
	}
	defer storage.Close()

	store := mustCreateTestStore(t, storage, clock.Fake(epoch))
	store.Save("sqlite-token", User{ID: "3", Name: "Hluli", Role: "frontend"})

	record, ok := store.Retrieve()
	if !ok || record.Token != "sqlite-token" {
		t.Fatalf("Retrieve() = %+v, %v", record, ok)
	}
}
