package main

import (
	"errors"

	"github.com/ryosukesatoh/lit-briefing/internal/connectivity"
	"github.com/ryosukesatoh/lit-briefing/internal/runner"
)

const (
	exitOK           = 0
	exitFailure      = 1
	exitConfig       = 2
	exitConnectivity = 3
	exitSource       = 4
	exitPersist      = 5
)

// configError marks failures to load or validate the configuration.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var cfgErr *configError
	var srcErr *runner.SourceError
	switch {
	case errors.As(err, &cfgErr):
		return exitConfig
	case errors.Is(err, connectivity.ErrNoConnectivity):
		return exitConnectivity
	case errors.As(err, &srcErr):
		return exitSource
	case errors.Is(err, runner.ErrPersist):
		return exitPersist
	default:
		return exitFailure
	}
}
