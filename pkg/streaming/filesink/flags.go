package filesink

import (
	"os"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
)

var openFlags = map[string]int{
	"r":   os.O_RDONLY,
	"rs":  os.O_RDONLY | os.O_SYNC,
	"sr":  os.O_RDONLY | os.O_SYNC,
	"r+":  os.O_RDWR,
	"rs+": os.O_RDWR | os.O_SYNC,
	"sr+": os.O_RDWR | os.O_SYNC,

	"w":   os.O_TRUNC | os.O_CREATE | os.O_WRONLY,
	"wx":  os.O_TRUNC | os.O_CREATE | os.O_WRONLY | os.O_EXCL,
	"xw":  os.O_TRUNC | os.O_CREATE | os.O_WRONLY | os.O_EXCL,
	"w+":  os.O_TRUNC | os.O_CREATE | os.O_RDWR,
	"wx+": os.O_TRUNC | os.O_CREATE | os.O_RDWR | os.O_EXCL,
	"xw+": os.O_TRUNC | os.O_CREATE | os.O_RDWR | os.O_EXCL,

	"a":   os.O_APPEND | os.O_CREATE | os.O_WRONLY,
	"ax":  os.O_APPEND | os.O_CREATE | os.O_WRONLY | os.O_EXCL,
	"xa":  os.O_APPEND | os.O_CREATE | os.O_WRONLY | os.O_EXCL,
	"as":  os.O_APPEND | os.O_CREATE | os.O_WRONLY | os.O_SYNC,
	"sa":  os.O_APPEND | os.O_CREATE | os.O_WRONLY | os.O_SYNC,
	"a+":  os.O_APPEND | os.O_CREATE | os.O_RDWR,
	"ax+": os.O_APPEND | os.O_CREATE | os.O_RDWR | os.O_EXCL,
	"xa+": os.O_APPEND | os.O_CREATE | os.O_RDWR | os.O_EXCL,
	"as+": os.O_APPEND | os.O_CREATE | os.O_RDWR | os.O_SYNC,
	"sa+": os.O_APPEND | os.O_CREATE | os.O_RDWR | os.O_SYNC,
}

// ParseFlags converts an open-mode string such as "w", "a+" or "wx" to
// os.OpenFile flags.
func ParseFlags(flags string) (int, error) {
	if flag, ok := openFlags[flags]; ok {
		return flag, nil
	}
	return 0, sferrors.NewValidationError("filesink", "flags", flags, "unknown open mode").
		WithKind(sferrors.ErrInvalidArgType).
		WithHint(`use one of "r", "r+", "w", "wx", "w+", "a", "ax", "a+"`)
}
