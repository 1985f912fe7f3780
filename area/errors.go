// Copyright 2021 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package area

import "github.com/pkg/errors"

// Kind is the error taxonomy shared by the storage area and the storage
// area store built on top of it. One enum for both layers keeps a caller
// able to do `errors.Cause(err).(*Error).Kind` without caring which layer
// raised it.
type Kind int

const (
	// InvalidArgument covers a null handle, a misaligned length, or an
	// iov exceeding its declared bounds.
	InvalidArgument Kind = iota
	// InvalidRange is returned when offset+length exceeds the area, a
	// sector, or an erase-block range.
	InvalidRange
	// NotSupported is returned when an operation is not implemented by
	// the medium, the ioctl, or the store's current mode.
	NotSupported
	// ReadOnly is returned for a write/erase on a read-only area or
	// store.
	ReadOnly
	// NoSpace is returned when the current sector cannot hold the
	// framed record being appended.
	NoSpace
	// NotFound is the iteration sentinel: one past the last record in a
	// sector.
	NotFound
	// IoError is returned when a medium transaction failed.
	IoError
	// AlreadyMounted is returned by Mount on an already-mounted store.
	AlreadyMounted
	// InvalidConfig is returned when Mount rejects an area/store
	// configuration.
	InvalidConfig
	// NotReady is returned for an operation issued on an unmounted
	// store.
	NotReady
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case InvalidRange:
		return "invalid range"
	case NotSupported:
		return "not supported"
	case ReadOnly:
		return "read only"
	case NoSpace:
		return "no space"
	case NotFound:
		return "not found"
	case IoError:
		return "io error"
	case AlreadyMounted:
		return "already mounted"
	case InvalidConfig:
		return "invalid config"
	case NotReady:
		return "not ready"
	default:
		return "unknown error"
	}
}

// Error is the concrete error type returned by this module. Kind is always
// set; err, if non-nil, is the wrapped medium/driver error that caused it.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.Kind.String()
	}
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Unwrap lets errors.Is/errors.As and github.com/pkg/errors.Cause see
// through to the underlying driver error, if any.
func (e *Error) Unwrap() error { return e.err }

// New creates an Error of the given kind with a message, carrying a stack
// trace the way the rest of the module's errors.Wrap call sites do.
func New(kind Kind, msg string) error {
	return errors.WithStack(&Error{Kind: kind, msg: msg})
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(&Error{Kind: kind, msg: errors.Errorf(format, args...).Error()})
}

// Wrap attaches a Kind and a message to an underlying error, preserving it
// for Unwrap/Cause.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, msg: msg, err: err})
}

// Is reports whether err (or anything it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			return ae.Kind == k
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
