//go:build linux

package filesink

import (
	"os"

	"golang.org/x/sys/unix"
)

// maxIovecs bounds the blocks passed to one vectored write. The remainder
// is reported as a short write and dispatched again by the writer.
const maxIovecs = 1024

// writeBlocks writes blocks with a single writev, or pwritev at offset when
// positional is set.
func writeBlocks(f *os.File, blocks [][]byte, offset int64, positional bool) (int, error) {
	if len(blocks) > maxIovecs {
		blocks = blocks[:maxIovecs]
	}

	rc, err := f.SyscallConn()
	if err != nil {
		return 0, err
	}

	var n int
	var werr error
	cerr := rc.Write(func(fd uintptr) bool {
		for {
			if positional {
				n, werr = unix.Pwritev(int(fd), blocks, offset)
			} else {
				n, werr = unix.Writev(int(fd), blocks)
			}
			if werr != unix.EINTR {
				break
			}
		}
		return werr != unix.EAGAIN
	})
	if cerr != nil {
		return 0, cerr
	}
	if n < 0 {
		n = 0
	}
	return n, werr
}
