package socketio

import "sync"

// managerRegistry is the process-wide (host,path) -> Manager map, the only
// state shared across otherwise-independent Manager instances. Insertion is
// a compare-and-set so two callers racing to open the same path end up
// sharing one Manager; an entry is removed once its Manager's last Socket
// closes, so a later Open with the same key starts fresh.
var managerRegistry sync.Map

// registryKey is host[:port]<path>, the multiplexing dedup key.
func registryKey(cfg *Config) string {
	return cfg.URL.Host + cfg.Path
}

// getOrCreateManager returns the shared Manager for cfg's key, creating
// one if absent. When cfg.Multiplex is false a fresh, unregistered Manager
// is always returned.
func getOrCreateManager(cfg *Config) *Manager {
	if !cfg.Multiplex {
		return newManager(cfg)
	}
	key := registryKey(cfg)
	if v, ok := managerRegistry.Load(key); ok {
		return v.(*Manager)
	}
	candidate := newManager(cfg)
	actual, loaded := managerRegistry.LoadOrStore(key, candidate)
	if loaded {
		return actual.(*Manager)
	}
	return candidate
}

// removeManager drops m from the registry if it is still the entry
// registered under cfg's key. A no-op when multiplexing is disabled.
func removeManager(cfg *Config, m *Manager) {
	if !cfg.Multiplex {
		return
	}
	managerRegistry.CompareAndDelete(registryKey(cfg), m)
}

// registrySize reports how many Managers are currently registered; used
// by tests asserting multiplex de-duplication.
func registrySize() int {
	n := 0
	managerRegistry.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// resetRegistryForTest clears the global registry between test cases.
func resetRegistryForTest() {
	managerRegistry.Range(func(k, _ interface{}) bool {
		managerRegistry.Delete(k)
		return true
	})
}
