package storage

import (
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testOutput(id string) *Output {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Output{
		ID:         id,
		Name:       "Stage Left",
		ClientType: "output1",
		TokenHash:  "$2a$10$fakehashfortesting",
		CreatedAt:  now,
		LastSeen:   now,
	}
}

func TestSchemaVersion(t *testing.T) {
	store := newTestStore(t)

	version, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("SchemaVersion() = %d, want %d", version, currentSchemaVersion)
	}
}

func TestSaveAndGetOutput(t *testing.T) {
	store := newTestStore(t)

	want := testOutput("out-1")
	if err := store.SaveOutput(want); err != nil {
		t.Fatalf("SaveOutput() error = %v", err)
	}

	got, err := store.GetOutput("out-1")
	if err != nil {
		t.Fatalf("GetOutput() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetOutput() = nil, want output")
	}
	if got.ID != want.ID || got.Name != want.Name || got.ClientType != want.ClientType {
		t.Errorf("GetOutput() = %+v, want %+v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestSaveOutput_ClosedStore(t *testing.T) {
	store := newTestStore(t)
	store.Close()

	err := store.SaveOutput(testOutput("out-1"))
	if !apperrors.IsCode(err, apperrors.CodeStorageSaveFailed) {
		t.Errorf("SaveOutput() on closed store = %v, want code %q", err, apperrors.CodeStorageSaveFailed)
	}
}

func TestSaveOutput_Nil(t *testing.T) {
	store := newTestStore(t)

	if err := store.SaveOutput(nil); err == nil {
		t.Error("SaveOutput(nil) error = nil, want error")
	}
}

func TestSaveOutput_Replace(t *testing.T) {
	store := newTestStore(t)

	output := testOutput("out-1")
	if err := store.SaveOutput(output); err != nil {
		t.Fatalf("SaveOutput() error = %v", err)
	}

	output.Name = "Stage Right"
	if err := store.SaveOutput(output); err != nil {
		t.Fatalf("SaveOutput() replace error = %v", err)
	}

	got, err := store.GetOutput("out-1")
	if err != nil {
		t.Fatalf("GetOutput() error = %v", err)
	}
	if got.Name != "Stage Right" {
		t.Errorf("Name = %q, want %q", got.Name, "Stage Right")
	}

	outputs, err := store.ListOutputs()
	if err != nil {
		t.Fatalf("ListOutputs() error = %v", err)
	}
	if len(outputs) != 1 {
		t.Errorf("ListOutputs() returned %d outputs, want 1", len(outputs))
	}
}

func TestGetOutput_Missing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetOutput("nope")
	if err != nil {
		t.Fatalf("GetOutput() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetOutput() = %+v, want nil", got)
	}
}

func TestListOutputs_Ordering(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().UTC()
	for _, id := range []string{"third", "first", "second"} {
		output := testOutput(id)
		switch id {
		case "first":
			output.CreatedAt = base.Add(-2 * time.Hour)
		case "second":
			output.CreatedAt = base.Add(-1 * time.Hour)
		case "third":
			output.CreatedAt = base
		}
		if err := store.SaveOutput(output); err != nil {
			t.Fatalf("SaveOutput(%s) error = %v", id, err)
		}
	}

	outputs, err := store.ListOutputs()
	if err != nil {
		t.Fatalf("ListOutputs() error = %v", err)
	}
	if len(outputs) != 3 {
		t.Fatalf("ListOutputs() returned %d outputs, want 3", len(outputs))
	}

	wantOrder := []string{"first", "second", "third"}
	for i, want := range wantOrder {
		if outputs[i].ID != want {
			t.Errorf("outputs[%d].ID = %q, want %q", i, outputs[i].ID, want)
		}
	}
}

func TestDeleteOutput(t *testing.T) {
	store := newTestStore(t)

	if err := store.SaveOutput(testOutput("out-1")); err != nil {
		t.Fatalf("SaveOutput() error = %v", err)
	}

	if err := store.DeleteOutput("out-1"); err != nil {
		t.Fatalf("DeleteOutput() error = %v", err)
	}

	got, err := store.GetOutput("out-1")
	if err != nil {
		t.Fatalf("GetOutput() error = %v", err)
	}
	if got != nil {
		t.Error("output still present after delete")
	}

	// Deleting again must be a no-op, not an error.
	if err := store.DeleteOutput("out-1"); err != nil {
		t.Errorf("DeleteOutput() second call error = %v", err)
	}
}

func TestUpdateLastSeen(t *testing.T) {
	store := newTestStore(t)

	output := testOutput("out-1")
	if err := store.SaveOutput(output); err != nil {
		t.Fatalf("SaveOutput() error = %v", err)
	}

	later := output.LastSeen.Add(5 * time.Minute)
	if err := store.UpdateLastSeen("out-1", later); err != nil {
		t.Fatalf("UpdateLastSeen() error = %v", err)
	}

	got, err := store.GetOutput("out-1")
	if err != nil {
		t.Fatalf("GetOutput() error = %v", err)
	}
	if !got.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, later)
	}
}

func TestUpdateLastSeen_Missing(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateLastSeen("nope", time.Now())
	if err != ErrOutputNotFound {
		t.Errorf("UpdateLastSeen() error = %v, want ErrOutputNotFound", err)
	}
}

func TestPutAndGetRecord(t *testing.T) {
	store := newTestStore(t)

	want := &VaultRecord{
		ID:        "output1::device-abc",
		DeviceID:  "device-abc",
		IV:        "aXZpdml2aXZpdg==",
		Data:      "Y2lwaGVydGV4dA==",
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := store.PutRecord(want); err != nil {
		t.Fatalf("PutRecord() error = %v", err)
	}

	got, err := store.GetRecord(want.ID)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetRecord() = nil, want record")
	}
	if got.DeviceID != want.DeviceID || got.IV != want.IV || got.Data != want.Data {
		t.Errorf("GetRecord() = %+v, want %+v", got, want)
	}
}

func TestPutRecord_Replace(t *testing.T) {
	store := newTestStore(t)

	rec := &VaultRecord{
		ID:        "output1::device-abc",
		DeviceID:  "device-abc",
		IV:        "b2xk",
		Data:      "b2xkZGF0YQ==",
		UpdatedAt: time.Now().UTC(),
	}
	if err := store.PutRecord(rec); err != nil {
		t.Fatalf("PutRecord() error = %v", err)
	}

	rec.IV = "bmV3"
	rec.Data = "bmV3ZGF0YQ=="
	if err := store.PutRecord(rec); err != nil {
		t.Fatalf("PutRecord() replace error = %v", err)
	}

	got, err := store.GetRecord(rec.ID)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if got.IV != "bmV3" || got.Data != "bmV3ZGF0YQ==" {
		t.Errorf("record not replaced: %+v", got)
	}
}

func TestGetRecord_Missing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetRecord("output1::nope")
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetRecord() = %+v, want nil", got)
	}
}

func TestDeleteRecord(t *testing.T) {
	store := newTestStore(t)

	rec := &VaultRecord{
		ID:        "stage::device-xyz",
		DeviceID:  "device-xyz",
		IV:        "aXY=",
		Data:      "ZGF0YQ==",
		UpdatedAt: time.Now().UTC(),
	}
	if err := store.PutRecord(rec); err != nil {
		t.Fatalf("PutRecord() error = %v", err)
	}

	if err := store.DeleteRecord(rec.ID); err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}

	got, err := store.GetRecord(rec.ID)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if got != nil {
		t.Error("record still present after delete")
	}

	if err := store.DeleteRecord(rec.ID); err != nil {
		t.Errorf("DeleteRecord() second call error = %v", err)
	}
}
