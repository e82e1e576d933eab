package socketio

import "testing"

func TestGetOrCreateManagerDedupesByHostAndPath(t *testing.T) {
	resetRegistryForTest()
	defer resetRegistryForTest()

	cfgA, err := newConfig("http://example.com/chat")
	if err != nil {
		t.Fatal(err)
	}
	cfgB, err := newConfig("http://example.com/admin")
	if err != nil {
		t.Fatal(err)
	}

	mA := getOrCreateManager(cfgA)
	mB := getOrCreateManager(cfgB)
	if mA != mB {
		t.Fatal("two namespaces on the same host and path should share one Manager")
	}
	if n := registrySize(); n != 1 {
		t.Fatalf("registrySize() = %d, want 1", n)
	}
}

func TestGetOrCreateManagerNoMultiplexIsNotRegistered(t *testing.T) {
	resetRegistryForTest()
	defer resetRegistryForTest()

	cfg, err := newConfig("http://example.com/chat")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Multiplex = false

	m1 := getOrCreateManager(cfg)
	m2 := getOrCreateManager(cfg)
	if m1 == m2 {
		t.Fatal("non-multiplexed configs should never share a Manager")
	}
	if n := registrySize(); n != 0 {
		t.Fatalf("registrySize() = %d, want 0 for non-multiplexed managers", n)
	}
}

func TestRemoveManagerDropsOnlyMatchingEntry(t *testing.T) {
	resetRegistryForTest()
	defer resetRegistryForTest()

	cfg, err := newConfig("http://example.com/chat")
	if err != nil {
		t.Fatal(err)
	}
	m := getOrCreateManager(cfg)
	if n := registrySize(); n != 1 {
		t.Fatalf("registrySize() = %d, want 1", n)
	}

	stale := newManager(cfg)
	removeManager(cfg, stale)
	if n := registrySize(); n != 1 {
		t.Fatalf("removeManager with a stale Manager pointer should be a no-op, registrySize() = %d", n)
	}

	removeManager(cfg, m)
	if n := registrySize(); n != 0 {
		t.Fatalf("registrySize() = %d, want 0 after removing the registered Manager", n)
	}
}

func TestRegistryKeyIgnoresNamespace(t *testing.T) {
	cfgA, _ := newConfig("http://example.com:8080/ns-a")
	cfgB, _ := newConfig("http://example.com:8080/ns-b")
	if registryKey(cfgA) != registryKey(cfgB) {
		t.Fatalf("registryKey should be independent of namespace: %q vs %q", registryKey(cfgA), registryKey(cfgB))
	}
}
