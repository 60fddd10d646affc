package scheduler

import "errors"

var errPanic = errors.New("scheduler: task panicked")
