//go:build !linux

package parfor

import (
	"github.com/cockroachdb/errors"
)

// PinToCPU is only supported on Linux.
func PinToCPU(cpu int) error {
	return errors.Newf("parfor: cannot pin to cpu %d on this platform", cpu)
}
