package vm

import (
	"fmt"

	"github.com/mica-lang/mica/internal/lerrors"
)

func (vm *VM) runtimeErr(format string, args ...any) *lerrors.Error {
	tb := make([]string, 0, len(vm.frames))
	line, filename := 0, "<mica>"
	for i := len(vm.frames) - 1; i >= 0; i-- {
		fr := vm.frames[i]
		name := fr.closure.Proto.Name
		if name == "" {
			name = "<anonymous>"
		}
		if i == len(vm.frames)-1 {
			filename = fr.closure.Proto.Filename
			line = fr.currentLine()
		}
		tb = append(tb, fmt.Sprintf("in %s", name))
	}
	return lerrors.NewRuntime(filename, line, 0, tb, format, args...)
}
