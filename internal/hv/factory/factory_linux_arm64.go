//go:build linux && arm64

package factory

import (
	"github.com/tinyrange/ccsync/internal/hv"
	"github.com/tinyrange/ccsync/internal/hv/kvm"
)

func Open() (hv.Hypervisor, error) {
	return kvm.Open()
}
