//go:build !linux

package reconstruct

import (
	"os"

	"github.com/saworbit/bitaforge/pkg/archiveerr"
)

func isBlockDevice(info os.FileInfo) bool {
	return info.Mode()&os.ModeDevice != 0 && info.Mode()&os.ModeCharDevice == 0
}

func blockDeviceSize(f *os.File) (uint64, error) {
	return 0, archiveerr.New(archiveerr.IO, "block device output is only supported on linux", nil)
}
