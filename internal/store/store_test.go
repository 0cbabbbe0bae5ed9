package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lox/recoverytrack/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db, zap.NewNop())
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestMigrationVersion(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion(context.Background())
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("MigrationVersion = %d, want %d", version, len(migrations))
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestFetchRecords_NoneExist(t *testing.T) {
	store := setupTestStore(t)

	records, exists, err := store.FetchRecords(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if exists {
		t.Error("exists = true, want false")
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}

func TestWriteAndFetchRecords(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 11, 11, 10, 0, 0, 0, time.UTC)

	payload := []byte(`{"date":"2024-11-11T10:00:00Z","vitals":{"temperature":"37.2"}}`)
	key, err := store.WriteRecord(ctx, "u1", at, payload)
	if err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if key != "1731319200000" {
		t.Errorf("key = %q, want 1731319200000", key)
	}

	if _, err := store.WriteRecord(ctx, "u2", at, []byte(`{}`)); err != nil {
		t.Fatalf("WriteRecord other user: %v", err)
	}

	records, exists, err := store.FetchRecords(ctx, "u1")
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if !exists {
		t.Fatal("exists = false, want true")
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if string(records[key]) != string(payload) {
		t.Errorf("payload = %s, want %s", records[key], payload)
	}
}

func TestWriteRecord_KeyCollisionBumps(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	at := time.UnixMilli(1000)

	var keys []string
	for i := 0; i < 3; i++ {
		key, err := store.WriteRecord(ctx, "u1", at, []byte(`{"n":1}`))
		if err != nil {
			t.Fatalf("WriteRecord %d: %v", i, err)
		}
		keys = append(keys, key)
	}

	want := []string{"1000", "1001", "1002"}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestWriteRecord_RejectsNonObject(t *testing.T) {
	store := setupTestStore(t)
	for _, payload := range []string{`[1]`, `null`, `nope`, `"text"`} {
		if _, err := store.WriteRecord(context.Background(), "u1", time.Now(), []byte(payload)); err == nil {
			t.Errorf("WriteRecord(%s) succeeded, want error", payload)
		}
	}
}

func TestDeleteRecord(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	key, err := store.WriteRecord(ctx, "u1", time.UnixMilli(5000), []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteRecord(ctx, "u1", key); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if err := store.DeleteRecord(ctx, "u1", key); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteRecord err = %v, want ErrNotFound", err)
	}
	if err := store.DeleteRecord(ctx, "u1", "not-a-key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteRecord(bad key) err = %v, want ErrNotFound", err)
	}
}

func TestUsers(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	u := models.User{ID: "id-1", Email: "a@example.com", PasswordHash: "hash", CreatedAt: time.Now()}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	dup := u
	dup.ID = "id-2"
	if err := store.CreateUser(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate CreateUser err = %v, want ErrDuplicate", err)
	}

	byEmail, err := store.GetUserByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if byEmail.ID != "id-1" || byEmail.PasswordHash != "hash" {
		t.Errorf("GetUserByEmail = %+v", byEmail)
	}

	byID, err := store.GetUserByID(ctx, "id-1")
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if byID.Email != "a@example.com" {
		t.Errorf("Email = %q", byID.Email)
	}

	if _, err := store.GetUserByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUserByID(missing) err = %v, want ErrNotFound", err)
	}
}

func TestProfiles(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetProfile(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetProfile before save err = %v, want ErrNotFound", err)
	}

	p := models.Profile{UserID: "u1", Name: "Sam", Age: "42", Medications: "paracetamol"}
	if err := store.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	p.Name = "Sam K"
	p.EmergencyContact = "Alex 0400 000 000"
	if err := store.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile update: %v", err)
	}

	got, err := store.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.Name != "Sam K" || got.Age != "42" || got.Medications != "paracetamol" || got.EmergencyContact != "Alex 0400 000 000" {
		t.Errorf("GetProfile = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestFetchRecords_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT record_key, payload FROM daily_records").
		WithArgs("u1").
		WillReturnError(errors.New("disk I/O error"))

	store := New(db, zap.NewNop())
	_, exists, err := store.FetchRecords(context.Background(), "u1")
	if err == nil {
		t.Fatal("FetchRecords succeeded, want error")
	}
	if exists {
		t.Error("exists = true on error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestWriteRecord_PermanentErrorNotRetried(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO daily_records").
		WillReturnError(errors.New("no such table: daily_records"))

	store := New(db, zap.NewNop())
	payload, _ := json.Marshal(map[string]any{"vitals": map[string]any{}})
	if _, err := store.WriteRecord(context.Background(), "u1", time.Now(), payload); err == nil {
		t.Fatal("WriteRecord succeeded, want error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
