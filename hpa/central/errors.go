package central

import "errors"

var (
	// ErrInit indicates the authority could not be initialized.
	ErrInit = errors.New("central: initialization failed")

	// ErrBadSize indicates a growth request that is zero or not page aligned.
	ErrBadSize = errors.New("central: growth size must be a positive page multiple")
)
