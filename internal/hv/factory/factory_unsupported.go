//go:build !((linux && amd64) || (linux && arm64))

package factory

import "github.com/tinyrange/ccsync/internal/hv"

func Open() (hv.Hypervisor, error) {
	return nil, hv.ErrHypervisorUnsupported
}
