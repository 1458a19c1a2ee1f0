// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package smi

import (
	"errors"
	"fmt"
)

// Status is the result code of a Driver call
type Status uint32

const (
	StatusSuccess           Status = 0
	StatusInval             Status = 1
	StatusNotSupported      Status = 2
	StatusNotYetImplemented Status = 3
	StatusDRMError          Status = 6
	StatusAPIFailed         Status = 7
	StatusTimeout           Status = 8
	StatusNoPerm            Status = 10
	StatusIO                Status = 12
	StatusFileError         Status = 14
	StatusInitError         Status = 18
	StatusBusy              Status = 30
	StatusNotFound          Status = 31
	StatusNotInit           Status = 32
	StatusNoData            Status = 40
	StatusInsufficientSize  Status = 41
	StatusUnknownError      Status = 0xFFFFFFFF
)

var statusNames = map[Status]string{
	StatusSuccess:           "success",
	StatusInval:             "invalid parameters",
	StatusNotSupported:      "not supported",
	StatusNotYetImplemented: "not yet implemented",
	StatusDRMError:          "drm error",
	StatusAPIFailed:         "api call failed",
	StatusTimeout:           "timeout",
	StatusNoPerm:            "permission denied",
	StatusIO:                "i/o error",
	StatusFileError:         "file error",
	StatusInitError:         "initialization error",
	StatusBusy:              "device busy",
	StatusNotFound:          "not found",
	StatusNotInit:           "not initialized",
	StatusNoData:            "no data",
	StatusInsufficientSize:  "insufficient size",
	StatusUnknownError:      "unknown error",
}

// String returns the default description of a status. Drivers may provide a
// richer one through Driver.StatusString.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint32(s))
}

// OK reports whether the status is StatusSuccess
func (s Status) OK() bool {
	return s == StatusSuccess
}

var (
	// ErrEnumeration is wrapped by every structural enumeration failure
	ErrEnumeration = errors.New("device enumeration failed")

	// ErrNotEnumerated is returned when processors are requested before a
	// successful enumeration
	ErrNotEnumerated = errors.New("devices not enumerated")
)

// StatusError is a non-success status returned by a Driver call
type StatusError struct {
	Op     string
	Status Status
	Text   string
}

func (e *StatusError) Error() string {
	text := e.Text
	if text == "" {
		text = e.Status.String()
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Op, text, uint32(e.Status))
}

// newStatusError builds a StatusError using the driver's description
func newStatusError(d Driver, op string, s Status) *StatusError {
	return &StatusError{Op: op, Status: s, Text: d.StatusString(s)}
}

// IsStatus reports whether err is a StatusError carrying status s
func IsStatus(err error, s Status) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == s
}
