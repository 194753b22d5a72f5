package container

import (
	"fmt"
	"os"

	"github.com/halvarsson/fluxcore/disk"
)

// IPF (CAPS IPF) and SCP (SuperCard Pro) are recognised suffixes whose
// container bodies are not decoded here. Rather than silently
// mis-routing files with these suffixes to the wrong driver, they are
// registered with a clear not-yet-implemented error.
func init() {
	register("ipf", notImplementedDriver("ipf"))
	register("scp", notImplementedDriver("scp"))
}

func notImplementedDriver(name string) *Driver {
	return &Driver{
		Name: name,
		Init: func(d *disk.Disk) {},
		Open: func(d *disk.Disk, f *os.File) (*Driver, error) {
			return nil, fmt.Errorf("container: %s container support is not implemented", name)
		},
		Close: func(d *disk.Disk) error {
			return fmt.Errorf("container: %s container support is not implemented", name)
		},
	}
}
