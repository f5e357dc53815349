//go:build !darwin || fmstub

package fmshim

import "errors"

// stubShim satisfies shimBindings on platforms without the shim library.
// It loads successfully and reports DeviceNotEligible, so the fmshim
// backend stays configurable on development machines while every probe
// and request gives an honest answer.
type stubShim struct{}

// loadShim returns the stub regardless of path.
func loadShim(path string) (shimBindings, error) {
	return stubShim{}, nil
}

func (stubShim) availability() (int, string) {
	return shimDeviceNotEligible, "platform model is not supported on this build"
}

func (stubShim) respond(transcript string, instructions string, temperature float64, maxTokens int) (string, error) {
	return "", errors.New("platform model is not supported on this build")
}

func (stubShim) close() error { return nil }
