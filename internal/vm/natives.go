package vm

import "github.com/mica-lang/mica/internal/conf"

// nativeRegistry is the bounded table LOAD_GLOBAL falls back to when a name
// is absent from the global environment. Overflow is a host-policy
// condition: the registration is silently dropped and RegisterNative
// reports it to the caller so an embedder can log it.
type nativeRegistry struct {
	byName map[string]*Native
}

func newNativeRegistry() *nativeRegistry {
	return &nativeRegistry{byName: make(map[string]*Native)}
}

// register adds fn under name, returning false if the registry is already
// at conf.MaxNatives and name is not already present (re-registering an
// existing name always succeeds and overwrites).
func (r *nativeRegistry) register(name string, fn NativeFn) bool {
	if _, exists := r.byName[name]; !exists && len(r.byName) >= conf.MaxNatives {
		return false
	}
	r.byName[name] = &Native{Name: name, Fn: fn}
	return true
}

func (r *nativeRegistry) lookup(name string) (*Native, bool) {
	n, ok := r.byName[name]
	return n, ok
}
