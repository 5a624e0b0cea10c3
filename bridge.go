package synapse

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const lockPoolSize = 32

// entryMeta is the Bridge metadata row for one fully-qualified key
// (spec.md §3 "Bridge entry"): storage_handle, version, timestamp.
type entryMeta struct {
	handle    string
	version   int64
	timestamp time.Time
}

// StorageBackend is the pluggable shared-storage region abstraction
// (spec.md §4.1 "storage layer is a pluggable shared-memory region
// abstraction"). The default memoryBackend keeps everything in-process;
// redisBackend (redisbackend.go) shares regions across processes.
type StorageBackend interface {
	Write(handle string, payload []byte) error
	Read(handle string) ([]byte, bool, error)
	Delete(handle string) error
}

// memoryBackend is the default StorageBackend: an in-process region map.
// Grounded on the teacher's cache.go TypeSafeCache (sync.Map of region ->
// bytes), generalized from typed values to raw serialized payloads since
// regions here must also be readable by a redisBackend-style remote peer.
type memoryBackend struct {
	mu      sync.RWMutex
	regions map[string][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{regions: make(map[string][]byte)}
}

func (m *memoryBackend) Write(handle string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions[handle] = payload
	return nil
}

func (m *memoryBackend) Read(handle string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.regions[handle]
	return v, ok, nil
}

func (m *memoryBackend) Delete(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regions, handle)
	return nil
}

// identity is the dictionary-like, serialisable identity record from
// spec.md §4.1 ("register_identity/get_identity").
type identity map[string]any

// hijackEntry is one row of the hijack registry (spec.md §4.1
// "register_super_function").
type hijackEntry struct {
	providerID   string
	funcName     string
	handlerNode  string
}

// keyLock is one slot of the fixed advisory-lock pool.
type keyLock struct {
	mu      sync.Mutex
	owner   string
	holding bool
}

// Bridge is the scoped, versioned, lock-protected key-value store at the
// center of the engine (spec.md §4.1). One Bridge per engine instance;
// child engines created for subgraphs share the root's system-state (lock
// pools, identity table, hijack registry) but keep independent per-key
// metadata so parallel subgraph instances never collide.
//
// Grounded on the teacher's cache.go (TypeSafeCache backed by sync.Map) for
// the local-cache shape, and on pool_manager.go for the fixed-size
// resource-pool pattern reused here for the lock pool; the scoped-key
// resolution chain and storage-region indirection have no teacher
// counterpart and are built fresh from spec.md §4.1 and §3.
type Bridge struct {
	mu sync.RWMutex

	defaultScope string
	backend      StorageBackend
	meta         map[string]*entryMeta // fully-qualified "scope:key" -> meta
	local        *versionedCache

	locks [lockPoolSize]*keyLock

	identities map[string]identity
	hijacks    map[string][]hijackEntry // provider_id -> entries

	keyLocks   map[string]*keyLockState
	keyLocksMu sync.Mutex

	parent *Bridge // root-registry pointer for bubble_set / child resolution

	log *slog.Logger
}

type keyLockState struct {
	mu    sync.Mutex
	owner string
}

// NewBridge constructs a root bridge with the given default scope name.
func NewBridge(defaultScope string, backend StorageBackend, log *slog.Logger) *Bridge {
	if backend == nil {
		backend = newMemoryBackend()
	}
	if log == nil {
		log = slog.Default()
	}
	b := &Bridge{
		defaultScope: defaultScope,
		backend:      backend,
		meta:         make(map[string]*entryMeta),
		local:        newVersionedCache(),
		identities:   make(map[string]identity),
		hijacks:      make(map[string][]hijackEntry),
		keyLocks:     make(map[string]*keyLockState),
		log:          log,
	}
	for i := range b.locks {
		b.locks[i] = &keyLock{}
	}
	return b
}

// NewChildBridge builds a bridge for a subgraph instance: it shares the
// parent's lock pools, identity table, and hijack registry by delegating to
// it, but keeps its own metadata/cache so variable writes don't collide
// (spec.md §4.6 "Lifecycle").
func (b *Bridge) NewChildBridge(childScope string) *Bridge {
	return &Bridge{
		defaultScope: childScope,
		backend:      b.backend,
		meta:         make(map[string]*entryMeta),
		local:        newVersionedCache(),
		identities:   b.identities,
		hijacks:      b.hijacks,
		locks:        b.locks,
		keyLocks:     b.keyLocks,
		parent:       b,
		log:          b.log,
	}
}

func (b *Bridge) lockFor(key string) *keyLock {
	h := sha256.Sum256([]byte(key))
	idx := int(h[0]) % lockPoolSize
	return b.locks[idx]
}

func regionHandle(scopedKey string) string {
	h := sha256.Sum256([]byte(scopedKey))
	return "syn_" + hex.EncodeToString(h[:])[:16]
}

func scopedKey(scope, key string) string {
	return scope + ":" + key
}

// Set stores value under (scope or default_scope, key) (spec.md §4.1).
func (b *Bridge) Set(key string, value any, source string, scope ...string) error {
	sc := b.scopeOrDefault(scope)
	full := scopedKey(sc, key)
	lock := b.lockFor(full)

	lock.mu.Lock()
	defer lock.mu.Unlock()

	payload, err := json.Marshal(value)
	if err != nil {
		b.log.Warn("bridge set: marshal failed", "key", full, "source", source, "err", err)
		return nil
	}
	handle := regionHandle(full)
	if err := b.backend.Write(handle, payload); err != nil {
		if isShutdownErr(err) {
			return nil
		}
		b.log.Error("bridge set: storage write failed", "key", full, "err", err)
		return nil
	}

	b.mu.Lock()
	m, ok := b.meta[full]
	if !ok {
		m = &entryMeta{handle: handle}
		b.meta[full] = m
	}
	m.version++
	m.timestamp = time.Now()
	version := m.version
	b.mu.Unlock()

	b.local.put(full, value, version)
	return nil
}

// SetBatch applies set atomically from the registry's perspective: all
// payloads are written first, then metadata is updated in one pass
// (spec.md §4.1).
func (b *Bridge) SetBatch(mapping map[string]any, source string, scope ...string) error {
	sc := b.scopeOrDefault(scope)
	type written struct {
		full   string
		handle string
		value  any
	}
	var pending []written
	for k, v := range mapping {
		full := scopedKey(sc, k)
		payload, err := json.Marshal(v)
		if err != nil {
			b.log.Warn("bridge set_batch: marshal failed", "key", full, "err", err)
			continue
		}
		handle := regionHandle(full)
		lock := b.lockFor(full)
		lock.mu.Lock()
		err = b.backend.Write(handle, payload)
		lock.mu.Unlock()
		if err != nil {
			if isShutdownErr(err) {
				continue
			}
			b.log.Error("bridge set_batch: storage write failed", "key", full, "err", err)
			continue
		}
		pending = append(pending, written{full: full, handle: handle, value: v})
	}

	b.mu.Lock()
	for _, p := range pending {
		m, ok := b.meta[p.full]
		if !ok {
			m = &entryMeta{handle: p.handle}
			b.meta[p.full] = m
		}
		m.version++
		m.timestamp = time.Now()
		b.local.put(p.full, p.value, m.version)
	}
	b.mu.Unlock()
	return nil
}

// Get resolves key via scope:key -> Global:key -> key -> the same three
// against the root registry, returning the cached object on a version
// match or deserializing fresh otherwise (spec.md §4.1).
func (b *Bridge) Get(key string, def any, scope ...string) any {
	sc := b.scopeOrDefault(scope)
	for _, full := range b.candidateKeys(sc, key) {
		if v, ok := b.getExact(full); ok {
			return v
		}
	}
	if b.parent != nil {
		return b.parent.Get(key, def, scope...)
	}
	return def
}

func (b *Bridge) candidateKeys(scope, key string) []string {
	return []string{
		scopedKey(scope, key),
		scopedKey("Global", key),
		key,
	}
}

func (b *Bridge) getExact(full string) (any, bool) {
	b.mu.RLock()
	m, ok := b.meta[full]
	b.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if v, ok := b.local.get(full, m.version); ok {
		return v, true
	}

	payload, found, err := b.backend.Read(m.handle)
	if err != nil || !found {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		b.log.Warn("bridge get: unmarshal failed", "key", full, "err", err)
		return nil, false
	}
	b.local.put(full, v, m.version)
	return v, true
}

// GetBatch resolves each key with the same chain as Get.
func (b *Bridge) GetBatch(keys []string, scope ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = b.Get(k, nil, scope...)
	}
	return out
}

// BubbleSet performs Set on this bridge and, if a root registry exists,
// republishes the metadata to the root so status/error signals reach the
// outermost observer (spec.md §4.1).
func (b *Bridge) BubbleSet(key string, value any, source string, scope ...string) error {
	if err := b.Set(key, value, source, scope...); err != nil {
		return err
	}
	if b.parent != nil {
		return b.parent.BubbleSet(key, value, source, scope...)
	}
	return nil
}

// Increment/Decrement apply an atomic numeric update inside the key's lock.
func (b *Bridge) Increment(key string, delta float64, scope ...string) (float64, error) {
	return b.addNumeric(key, delta, scope...)
}

func (b *Bridge) Decrement(key string, delta float64, scope ...string) (float64, error) {
	return b.addNumeric(key, -delta, scope...)
}

func (b *Bridge) addNumeric(key string, delta float64, scope ...string) (float64, error) {
	sc := b.scopeOrDefault(scope)
	full := scopedKey(sc, key)
	lock := b.lockFor(full)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	current, _ := b.getExact(full)
	base, _ := current.(float64)
	next := base + delta

	b.mu.Lock()
	m, ok := b.meta[full]
	if !ok {
		m = &entryMeta{handle: regionHandle(full)}
		b.meta[full] = m
	}
	payload, _ := json.Marshal(next)
	_ = b.backend.Write(m.handle, payload)
	m.version++
	m.timestamp = time.Now()
	b.local.put(full, next, m.version)
	b.mu.Unlock()

	return next, nil
}

// RegisterIdentity / GetIdentity manage the identity table (spec.md §4.1).
func (b *Bridge) RegisterIdentity(appID string, id identity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.identities[appID] = id
}

func (b *Bridge) GetIdentity(appID string) (identity, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.identities[appID]
	return id, ok
}

// UpdateIdentityAuth merges payloadPatch into the identity's "auth"
// sub-map.
func (b *Bridge) UpdateIdentityAuth(appID string, payloadPatch map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.identities[appID]
	if !ok {
		return fmt.Errorf("synapse: unknown identity %q", appID)
	}
	auth, _ := id["auth"].(map[string]any)
	if auth == nil {
		auth = make(map[string]any)
	}
	for k, v := range payloadPatch {
		auth[k] = v
	}
	id["auth"] = auth
	return nil
}

// RegisterSuperFunction / UnregisterSuperFunctions / GetHijackHandler
// implement the hijack registry (spec.md §4.1).
func (b *Bridge) RegisterSuperFunction(providerID, funcName, handlerNodeID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hijacks[providerID] = append(b.hijacks[providerID], hijackEntry{
		providerID:  providerID,
		funcName:    funcName,
		handlerNode: handlerNodeID,
	})
}

func (b *Bridge) UnregisterSuperFunctions(providerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.hijacks, providerID)
}

// GetHijackHandler searches the scope stack from innermost to outermost,
// returning the first matching handler node-id.
func (b *Bridge) GetHijackHandler(stack []string, funcName string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := len(stack) - 1; i >= 0; i-- {
		providerID := stack[i]
		for _, e := range b.hijacks[providerID] {
			if e.funcName == funcName {
				return e.handlerNode, true
			}
		}
	}
	return "", false
}

// Lock reserves key for nodeID, waiting in small increments up to timeout.
// Fails with an error if timeout elapses (spec.md §4.1).
func (b *Bridge) Lock(key, nodeID string, timeout time.Duration) error {
	b.keyLocksMu.Lock()
	state, ok := b.keyLocks[key]
	if !ok {
		state = &keyLockState{}
		b.keyLocks[key] = state
	}
	b.keyLocksMu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		if state.mu.TryLock() {
			state.owner = nodeID
			return nil
		}
		if time.Now().After(deadline) {
			b.log.Warn("bridge lock: timed out", "key", key, "node", nodeID, "timeout", timeout)
			return &LockTimeoutError{Key: key, NodeID: nodeID, Timeout: timeout}
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Unlock releases key if owned by nodeID; unlocking when not the owner logs
// an error but does not raise (spec.md §4.1).
func (b *Bridge) Unlock(key, nodeID string) {
	b.keyLocksMu.Lock()
	state, ok := b.keyLocks[key]
	b.keyLocksMu.Unlock()
	if !ok {
		return
	}
	if state.owner != nodeID {
		b.log.Error("bridge unlock: caller does not own key", "key", key, "node", nodeID, "owner", state.owner)
		return
	}
	state.owner = ""
	state.mu.Unlock()
}

// Clear removes all bridge entries and releases storage regions.
func (b *Bridge) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.meta {
		_ = b.backend.Delete(m.handle)
	}
	b.meta = make(map[string]*entryMeta)
	b.local.clear()
}

// stateSnapshot is what ExportState/ImportState exchange: the metadata
// table only, payloads stay in shared storage (spec.md §4.1).
type stateSnapshot struct {
	Entries map[string]entryMetaSnapshot `json:"entries"`
}

type entryMetaSnapshot struct {
	Handle    string    `json:"handle"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func (b *Bridge) ExportState() stateSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap := stateSnapshot{Entries: make(map[string]entryMetaSnapshot, len(b.meta))}
	for k, m := range b.meta {
		snap.Entries[k] = entryMetaSnapshot{Handle: m.handle, Version: m.version, Timestamp: m.timestamp}
	}
	return snap
}

func (b *Bridge) ImportState(snap stateSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meta = make(map[string]*entryMeta, len(snap.Entries))
	for k, e := range snap.Entries {
		b.meta[k] = &entryMeta{handle: e.Handle, version: e.Version, timestamp: e.Timestamp}
	}
	b.local.clear()
}

func (b *Bridge) scopeOrDefault(scope []string) string {
	if len(scope) > 0 && scope[0] != "" {
		return scope[0]
	}
	return b.defaultScope
}

// isShutdownErr reports whether err looks like a transient pipe/EOF failure
// during shutdown, which the bridge swallows silently (spec.md §4.1).
func isShutdownErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "eof") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "closed pipe")
}
