package ptyproc

import "errors"

// ErrClosed is returned by Write and Resize once the process has been closed.
var ErrClosed = errors.New("ptyproc: process is closed")
