// Package iox provides I/O helpers for resource cleanup.
package iox

import (
	"io"
)

// DrainClose drains rc before closing it, discarding both errors.
// Draining an HTTP response body lets the transport reuse the
// connection; use it when the body may not have been read to EOF:
//
//	defer iox.DrainClose(resp.Body)
func DrainClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()
}
