package media

import (
	"fmt"
	"io"
)

const (
	// MaxAssetBytes is the global max accepted payload size.
	MaxAssetBytes int64 = 200 * 1024 * 1024
)

// CopyWithLimit streams src into dst and fails with ErrAssetTooLarge once more
// than maxBytes arrive. At most maxBytes+1 bytes are read from src.
func CopyWithLimit(dst io.Writer, src io.Reader, maxBytes int64) (int64, error) {
	if src == nil {
		return 0, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		return 0, fmt.Errorf("max bytes must be greater than 0")
	}
	written, err := io.Copy(dst, &io.LimitedReader{R: src, N: maxBytes + 1})
	if err != nil {
		return written, err
	}
	if written > maxBytes {
		return written, fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, maxBytes)
	}
	return written, nil
}
