package image

import "errors"

// Errors returned by Deserialize, per spec.md §4.2/§7. Runtime (post-load)
// errors live in lang/machine instead.
var (
	ErrBadMagic  = errors.New("spsl: bad magic")
	ErrTruncated = errors.New("spsl: truncated image")
	ErrUnknownTag = errors.New("spsl: unknown tag")
)
