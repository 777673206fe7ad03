package utils

import (
	"fmt"
	"io"
)

// MaxResponseBytes bounds how much of an upstream body is read into memory.
const MaxResponseBytes = 64 << 20

// DrainAndClose drains the reader so the transport can reuse the connection, then closes it.
func DrainAndClose(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, rc)
	return rc.Close()
}

// ReadAllLimited reads at most limit bytes and fails if the body is larger.
func ReadAllLimited(r io.Reader, limit int64) ([]byte, error) {
	bz, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(bz)) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return bz, nil
}
