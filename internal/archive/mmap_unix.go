//go:build unix

package archive

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

type mapping struct {
	data []byte
	file *os.File
}

func (m *mapping) Close() error {
	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
	}
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// mapFile maps filename read-only. Empty files are returned as an empty
// buffer since zero-length mappings are rejected by the kernel.
func mapFile(filename string) ([]byte, io.Closer, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("stat: %w", err)
	}
	if info.Size() == 0 {
		return []byte{}, &mapping{file: f}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("mmap: %w", err)
	}
	return data, &mapping{data: data, file: f}, nil
}
