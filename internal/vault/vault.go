package vault

import (
	"log"
	"sync"
	"time"
)

// TimeNow is the time source, overridable in tests.
var TimeNow = time.Now

// NativeStore is an optional host-native secure storage capability.
// When available it is trusted to provide confidentiality at rest,
// so stored credentials pass through without extra encryption.
type NativeStore interface {
	Available() bool
	Get(clientType, deviceID string) (*Credential, error)
	Set(cred *Credential) error
	Clear(clientType, deviceID string) error
}

// Backend names reported by ActiveBackend, used for status reporting
// and degraded-mode logging.
const (
	BackendNative    = "native"
	BackendEncrypted = "encrypted"
	BackendMemory    = "memory"
)

// Vault is the process-wide credential store.
type Vault struct {
	mu    sync.RWMutex
	cache map[string]*Credential

	native    NativeStore
	encrypted *encryptedBackend

	// persistWG tracks in-flight asynchronous backend writes so tests
	// can wait for them to settle.
	persistWG sync.WaitGroup

	// persistMu guards persistTail, which chains backend operations
	// per key so they apply in submission order. Without the chain a
	// Write followed by a Clear could persist in reverse and
	// resurrect a cleared credential at rest.
	persistMu   sync.Mutex
	persistTail map[string]chan struct{}

	warnOnce sync.Once
}

// New builds a vault. Either collaborator may be nil; the backend is
// re-selected on every call since native availability can change.
func New(native NativeStore, records RecordStore) *Vault {
	v := &Vault{
		cache:       make(map[string]*Credential),
		native:      native,
		persistTail: make(map[string]chan struct{}),
	}
	if records != nil {
		v.encrypted = newEncryptedBackend(records)
	}
	return v
}

// ActiveBackend reports which persistence tier a call issued now
// would use.
func (v *Vault) ActiveBackend() string {
	if v.native != nil && v.native.Available() {
		return BackendNative
	}
	if v.encrypted != nil {
		return BackendEncrypted
	}
	return BackendMemory
}

// Read returns the credential for a key, or nil if absent. The cache
// is consulted first; on a miss the active backend is tried. Backend
// failures of any kind degrade to absent.
func (v *Vault) Read(clientType, deviceID string) *Credential {
	key := CredentialKey(clientType, deviceID)

	v.mu.RLock()
	cached, ok := v.cache[key]
	v.mu.RUnlock()
	if ok {
		return cached
	}

	cred := v.readBackend(clientType, deviceID)
	if cred == nil {
		return nil
	}

	v.mu.Lock()
	v.cache[key] = cred
	v.mu.Unlock()

	return cred
}

func (v *Vault) readBackend(clientType, deviceID string) *Credential {
	switch v.ActiveBackend() {
	case BackendNative:
		cred, err := v.native.Get(clientType, deviceID)
		if err != nil {
			log.Printf("vault: native read failed, treating as absent: %v", err)
			return nil
		}
		return cred
	case BackendEncrypted:
		cred, err := v.encrypted.get(clientType, deviceID)
		if err != nil {
			log.Printf("vault: encrypted read failed, treating as absent: %v", err)
			return nil
		}
		return cred
	default:
		v.warnDegraded()
		return nil
	}
}

// Write stores a credential. The cache is updated before this call
// returns; backend persistence happens in the background. An empty
// token behaves as Clear.
func (v *Vault) Write(clientType, deviceID, token string, expiresAt *time.Time) {
	if token == "" {
		v.Clear(clientType, deviceID)
		return
	}

	cred := &Credential{
		Token:      token,
		ExpiresAt:  expiresAt,
		ClientType: clientType,
		DeviceID:   deviceID,
		UpdatedAt:  TimeNow(),
	}

	key := CredentialKey(clientType, deviceID)
	v.mu.Lock()
	v.cache[key] = cred
	v.mu.Unlock()

	v.enqueuePersist(key, func() {
		v.persist(cred)
	})
}

// enqueuePersist runs op in the background, after every previously
// enqueued op for the same key has finished. Ordering across
// different keys is not guaranteed.
func (v *Vault) enqueuePersist(key string, op func()) {
	v.persistMu.Lock()
	prev := v.persistTail[key]
	done := make(chan struct{})
	v.persistTail[key] = done
	v.persistMu.Unlock()

	v.persistWG.Add(1)
	go func() {
		defer v.persistWG.Done()
		if prev != nil {
			<-prev
		}
		op()
		close(done)

		v.persistMu.Lock()
		if v.persistTail[key] == done {
			delete(v.persistTail, key)
		}
		v.persistMu.Unlock()
	}()
}

func (v *Vault) persist(cred *Credential) {
	switch v.ActiveBackend() {
	case BackendNative:
		if err := v.native.Set(cred); err != nil {
			log.Printf("vault: native write failed for %s: %v",
				CredentialKey(cred.ClientType, cred.DeviceID), err)
		}
	case BackendEncrypted:
		if err := v.encrypted.put(cred); err != nil {
			log.Printf("vault: encrypted write failed for %s: %v",
				CredentialKey(cred.ClientType, cred.DeviceID), err)
		}
	default:
		v.warnDegraded()
	}
}

// Clear removes a credential from cache and backend. Idempotent.
func (v *Vault) Clear(clientType, deviceID string) {
	key := CredentialKey(clientType, deviceID)
	v.mu.Lock()
	delete(v.cache, key)
	v.mu.Unlock()

	v.enqueuePersist(key, func() {
		switch v.ActiveBackend() {
		case BackendNative:
			if err := v.native.Clear(clientType, deviceID); err != nil {
				log.Printf("vault: native clear failed for %s: %v", key, err)
			}
		case BackendEncrypted:
			if err := v.encrypted.clear(clientType, deviceID); err != nil {
				log.Printf("vault: encrypted clear failed for %s: %v", key, err)
			}
		}
	})
}

// Flush blocks until all in-flight background persistence completes.
func (v *Vault) Flush() {
	v.persistWG.Wait()
}

// DropCache empties the in-memory cache, simulating a process
// restart for anything not durably persisted.
func (v *Vault) DropCache() {
	v.mu.Lock()
	v.cache = make(map[string]*Credential)
	v.mu.Unlock()
}

func (v *Vault) warnDegraded() {
	v.warnOnce.Do(func() {
		log.Printf("vault: no durable backend available, credentials will not survive restart")
	})
}
