package vault

import (
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/storage"
)

// memRecordStore is an in-memory RecordStore for tests.
type memRecordStore struct {
	mu       sync.Mutex
	records  map[string]*storage.VaultRecord
	putErr   error
	getErr   error
	putDelay time.Duration
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{records: make(map[string]*storage.VaultRecord)}
}

func (m *memRecordStore) PutRecord(rec *storage.VaultRecord) error {
	if m.putDelay > 0 {
		time.Sleep(m.putDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memRecordStore) GetRecord(id string) (*storage.VaultRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memRecordStore) DeleteRecord(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// fakeNative is a toggleable NativeStore for tests.
type fakeNative struct {
	mu        sync.Mutex
	available bool
	creds     map[string]*Credential
	setCalls  int
	getErr    error
}

func newFakeNative(available bool) *fakeNative {
	return &fakeNative{available: available, creds: make(map[string]*Credential)}
}

func (f *fakeNative) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeNative) Get(clientType, deviceID string) (*Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.creds[CredentialKey(clientType, deviceID)], nil
}

func (f *fakeNative) Set(cred *Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	f.creds[CredentialKey(cred.ClientType, cred.DeviceID)] = cred
	return nil
}

func (f *fakeNative) Clear(clientType, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creds, CredentialKey(clientType, deviceID))
	return nil
}

func TestEncryptedRoundTrip(t *testing.T) {
	records := newMemRecordStore()
	v := New(nil, records)

	v.Write("output1", "device-abc", "tok-12345", nil)
	v.Flush()

	// Drop the cache so the read must hit the encrypted backend.
	v.DropCache()

	cred := v.Read("output1", "device-abc")
	if cred == nil {
		t.Fatal("Read() = nil after round trip, want credential")
	}
	if cred.Token != "tok-12345" {
		t.Errorf("Token = %q, want %q", cred.Token, "tok-12345")
	}
	if cred.ClientType != "output1" || cred.DeviceID != "device-abc" {
		t.Errorf("identity = (%q, %q), want (output1, device-abc)", cred.ClientType, cred.DeviceID)
	}
}

func TestEncryptedWrongDeviceFailsClosed(t *testing.T) {
	records := newMemRecordStore()
	v := New(nil, records)

	v.Write("output1", "device-abc", "tok-12345", nil)
	v.Flush()

	// Re-key the persisted record to a different device, as if an
	// attacker copied the ciphertext. Decryption under the other
	// device's key must fail and read as absent.
	records.mu.Lock()
	rec := records.records[CredentialKey("output1", "device-abc")]
	moved := *rec
	moved.ID = CredentialKey("output1", "device-evil")
	moved.DeviceID = "device-evil"
	records.records[moved.ID] = &moved
	records.mu.Unlock()

	v.DropCache()
	if cred := v.Read("output1", "device-evil"); cred != nil {
		t.Errorf("Read() with wrong device = %+v, want nil", cred)
	}

	// The underlying failure is a crypto error, not a missing record.
	if _, err := v.encrypted.get("output1", "device-evil"); !apperrors.IsCode(err, apperrors.CodeVaultCryptoFailed) {
		t.Errorf("get() with wrong device = %v, want code %q", err, apperrors.CodeVaultCryptoFailed)
	}
}

func TestEncryptedCorruptRecordIsAbsent(t *testing.T) {
	records := newMemRecordStore()
	v := New(nil, records)

	v.Write("stage", "device-abc", "tok-99", nil)
	v.Flush()

	key := CredentialKey("stage", "device-abc")
	records.mu.Lock()
	records.records[key].Data = base64.StdEncoding.EncodeToString([]byte("garbage"))
	records.mu.Unlock()

	v.DropCache()
	if cred := v.Read("stage", "device-abc"); cred != nil {
		t.Errorf("Read() of corrupt record = %+v, want nil", cred)
	}
}

func TestEncryptedStoreErrorIsAbsent(t *testing.T) {
	records := newMemRecordStore()
	records.getErr = errors.New("disk on fire")
	v := New(nil, records)

	if cred := v.Read("output1", "device-abc"); cred != nil {
		t.Errorf("Read() with failing store = %+v, want nil", cred)
	}
}

func TestWriteEmptyTokenClears(t *testing.T) {
	records := newMemRecordStore()
	v := New(nil, records)

	v.Write("output1", "device-abc", "tok-1", nil)
	v.Flush()
	v.Write("output1", "device-abc", "", nil)
	v.Flush()

	if cred := v.Read("output1", "device-abc"); cred != nil {
		t.Errorf("Read() after empty-token write = %+v, want nil", cred)
	}

	rec, err := records.GetRecord(CredentialKey("output1", "device-abc"))
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if rec != nil {
		t.Error("persisted record survived empty-token write")
	}
}

func TestClearAfterSlowWritePersistsInOrder(t *testing.T) {
	// A sign-out right after pairing must not leave the credential at
	// rest: even when the backend write is slow, the clear has to
	// apply after it, not race past it.
	records := newMemRecordStore()
	records.putDelay = 50 * time.Millisecond
	v := New(nil, records)

	v.Write("output1", "device-abc", "tok-secret", nil)
	v.Clear("output1", "device-abc")
	v.Flush()
	v.DropCache()

	if cred := v.Read("output1", "device-abc"); cred != nil {
		t.Fatalf("Read() after restart = %+v, want nil: cleared credential survived at rest", cred)
	}
}

func TestWriteAfterClearPersistsInOrder(t *testing.T) {
	records := newMemRecordStore()
	records.putDelay = 20 * time.Millisecond
	v := New(nil, records)

	v.Write("output1", "device-abc", "tok-old", nil)
	v.Clear("output1", "device-abc")
	v.Write("output1", "device-abc", "tok-new", nil)
	v.Flush()
	v.DropCache()

	cred := v.Read("output1", "device-abc")
	if cred == nil || cred.Token != "tok-new" {
		t.Fatalf("Read() after restart = %+v, want tok-new", cred)
	}
}

func TestClearIdempotent(t *testing.T) {
	v := New(nil, newMemRecordStore())

	v.Clear("output1", "never-existed")
	v.Clear("output1", "never-existed")
	v.Flush()
}

func TestCacheVisibleBeforePersist(t *testing.T) {
	// A write must be readable immediately, even while backend
	// persistence is still in flight.
	records := newMemRecordStore()
	records.putErr = errors.New("backend stalled")
	v := New(nil, records)

	v.Write("output2", "device-abc", "tok-fast", nil)

	cred := v.Read("output2", "device-abc")
	if cred == nil || cred.Token != "tok-fast" {
		t.Fatalf("Read() immediately after Write() = %+v, want tok-fast", cred)
	}
	v.Flush()
}

func TestMemoryOnlyDegradedMode(t *testing.T) {
	v := New(nil, nil)

	if got := v.ActiveBackend(); got != BackendMemory {
		t.Fatalf("ActiveBackend() = %q, want %q", got, BackendMemory)
	}

	v.Write("output1", "device-abc", "tok-mem", nil)
	v.Flush()

	if cred := v.Read("output1", "device-abc"); cred == nil || cred.Token != "tok-mem" {
		t.Fatalf("Read() same process = %+v, want tok-mem", cred)
	}

	// Simulated restart loses everything.
	v.DropCache()
	if cred := v.Read("output1", "device-abc"); cred != nil {
		t.Errorf("Read() after restart = %+v, want nil", cred)
	}
}

func TestNativePreferredWhenAvailable(t *testing.T) {
	native := newFakeNative(true)
	records := newMemRecordStore()
	v := New(native, records)

	if got := v.ActiveBackend(); got != BackendNative {
		t.Fatalf("ActiveBackend() = %q, want %q", got, BackendNative)
	}

	v.Write("output1", "device-abc", "tok-native", nil)
	v.Flush()

	native.mu.Lock()
	setCalls := native.setCalls
	native.mu.Unlock()
	if setCalls != 1 {
		t.Errorf("native Set called %d times, want 1", setCalls)
	}
	if len(records.records) != 0 {
		t.Error("encrypted store written while native backend active")
	}
}

func TestBackendReselectedPerCall(t *testing.T) {
	native := newFakeNative(true)
	records := newMemRecordStore()
	v := New(native, records)

	if got := v.ActiveBackend(); got != BackendNative {
		t.Fatalf("ActiveBackend() = %q, want %q", got, BackendNative)
	}

	native.mu.Lock()
	native.available = false
	native.mu.Unlock()

	if got := v.ActiveBackend(); got != BackendEncrypted {
		t.Errorf("ActiveBackend() after native loss = %q, want %q", got, BackendEncrypted)
	}
}

func TestNativeReadErrorIsAbsent(t *testing.T) {
	native := newFakeNative(true)
	native.getErr = errors.New("keychain locked")
	v := New(native, nil)

	if cred := v.Read("output1", "device-abc"); cred != nil {
		t.Errorf("Read() with failing native store = %+v, want nil", cred)
	}
}

func TestCredentialExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"nil never expires", nil, false},
		{"future not expired", &future, false},
		{"past expired", &past, true},
		{"exactly now expired", &now, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Credential{Token: "t", ExpiresAt: tt.expiresAt}
			if got := c.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
