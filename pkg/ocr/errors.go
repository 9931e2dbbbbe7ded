package ocr

import "errors"

// ErrTempCleanup is returned when the temporary axis crop could not be
// removed. It is the one calibration failure callers must not absorb.
var ErrTempCleanup = errors.New("remove temporary axis crop")

// ErrRecognitionTimeout marks a recognizer call that did not return in time.
var ErrRecognitionTimeout = errors.New("text recognition timed out")
