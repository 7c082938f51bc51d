package media

import "errors"

var (
	// ErrAssetTooLarge indicates the payload exceeds the configured max asset size.
	ErrAssetTooLarge = errors.New("media asset too large")
	// ErrEmptyAsset indicates the payload carried no bytes.
	ErrEmptyAsset = errors.New("media asset is empty")
	// ErrPathTraversal indicates a file name attempted directory traversal.
	ErrPathTraversal = errors.New("path traversal is forbidden")
)
