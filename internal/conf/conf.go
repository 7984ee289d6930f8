// Package conf contains the constants used across packages for configuring
// register counts, stack sizes, and other host-policy limits.
package conf

import "fmt"

const (
	// Version is the version of the mica interpreter embedded in this module.
	Version = "mica 0.1.0"

	// MaxRegisters is the number of register slots in a VM's register file.
	MaxRegisters = 256
	// MaxCallDepth is the maximum number of nested call frames.
	MaxCallDepth = 64
	// MaxLocals is the maximum number of locals a single function scope may declare.
	MaxLocals = 256
	// MaxUpvalues is the maximum number of upvalues a single closure may capture.
	MaxUpvalues = 256
	// MaxConstants is the maximum number of entries in a function's constant pool.
	MaxConstants = 65536
	// MaxNatives is the size of the bounded native-function registry.
	MaxNatives = 256
	// InitialArrayCap is the capacity a freshly allocated array starts with when
	// no capacity hint is given.
	InitialArrayCap = 8
	// JumpOffsetMin is the smallest representable signed 16-bit jump offset.
	JumpOffsetMin = -32768
	// JumpOffsetMax is the largest representable signed 16-bit jump offset.
	JumpOffsetMax = 32767
)

// FullVersion returns the version banner printed by the CLI's -v flag.
func FullVersion() string {
	return fmt.Sprintf("%v (register vm, refcounted heap)", Version)
}
