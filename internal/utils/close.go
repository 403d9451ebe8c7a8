package utils

import (
	"io"
)

// DrainClose discards what is left of an HTTP body and closes it so the
// underlying connection can be reused.
func DrainClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	_ = rc.Close()
}
