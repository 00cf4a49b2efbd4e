// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package devsim

import "github.com/pkg/errors"

// Error causes. Errors returned by this package wrap one of these; use
// errors.Cause to check for them.
//
var (
	// ErrConfig is the cause of pin or bus declaration errors.
	ErrConfig = errors.New("configuration error")
	// ErrConnectivity is the cause of wiring errors detected at build time.
	ErrConnectivity = errors.New("connectivity error")
	// ErrNoConvergence is returned when a circuit does not reach a stable
	// state within the configured number of passes.
	ErrNoConvergence = errors.New("no convergence")
)

func configError(d *Device, format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, d.Path()+": "+format, args...)
}

func connError(d *Device, format string, args ...interface{}) error {
	return errors.Wrapf(ErrConnectivity, d.Path()+": "+format, args...)
}
