package synapse

import (
	"strings"
	"sync"
)

// reservedReturnKeys and blockedUIKeywords implement the return-payload
// filter of spec.md §4.6.2.
var reservedReturnKeys = map[string]bool{
	"Flow": true, "Exec": true, "In": true,
	"_trigger": true, "_bridge": true, "_engine": true,
	"_context_stack": true, "_context_pulse": true,
}

var blockedUIKeywords = []string{"color", "additional", "schema", "label", "context", "provider"}

// FilterReturnPayload keeps only ports that are neither reserved nor
// containing a blocked UI keyword; keys beginning with "_SYNP_" always pass
// through unchanged (spec.md §4.6.2).
func FilterReturnPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if strings.HasPrefix(k, "_SYNP_") {
			out[k] = v
			continue
		}
		if reservedReturnKeys[k] {
			continue
		}
		if containsBlockedKeyword(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func containsBlockedKeyword(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range blockedUIKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Lockbox maps scope_id -> aggregated return payload (spec.md §3 "return
// lockbox"), deferred until the owning scope completes.
type Lockbox struct {
	mu      sync.Mutex
	payload map[string]map[string]any
}

func NewLockbox() *Lockbox {
	return &Lockbox{payload: make(map[string]map[string]any)}
}

// Deposit merges filtered fields into the scope's aggregated payload,
// along with the __RETURN_NODE_LABEL__ marker (spec.md §4.6 step 3).
func (l *Lockbox) Deposit(scopeID string, label string, fields map[string]any) {
	filtered := FilterReturnPayload(fields)
	filtered["__RETURN_NODE_LABEL__"] = label

	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.payload[scopeID]
	if !ok {
		existing = make(map[string]any)
		l.payload[scopeID] = existing
	}
	for k, v := range filtered {
		existing[k] = v
	}
}

// Flush removes and returns the scope's aggregated payload, or (nil,
// false) if nothing was deposited.
func (l *Lockbox) Flush(scopeID string) (map[string]any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	payload, ok := l.payload[scopeID]
	if !ok {
		return nil, false
	}
	delete(l.payload, scopeID)
	return payload, true
}

// Peek returns the scope's current aggregated payload without clearing it.
func (l *Lockbox) Peek(scopeID string) (map[string]any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	payload, ok := l.payload[scopeID]
	return payload, ok
}
