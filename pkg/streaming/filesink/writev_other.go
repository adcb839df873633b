//go:build !linux

package filesink

import "os"

// writeBlocks writes blocks one after another, stopping at the first failure.
func writeBlocks(f *os.File, blocks [][]byte, offset int64, positional bool) (int, error) {
	total := 0
	for _, b := range blocks {
		var n int
		var err error
		if positional {
			n, err = f.WriteAt(b, offset+int64(total))
		} else {
			n, err = f.Write(b)
		}
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
