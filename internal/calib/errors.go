package calib

import "errors"

var (
	// ErrDeviceError is returned when the device answers with "error": true.
	ErrDeviceError = errors.New("device reported an error")

	// ErrMalformedCalibs is returned when a calibration result lacks a
	// usable "calibs" list of objects.
	ErrMalformedCalibs = errors.New("malformed calibs")
)
