package daq

import "github.com/rno-g/rno-g-acq/internal/daqstatus"

// StatusItem is the unit handed through the status ring queue: a status
// snapshot copied by value at the configured cadence (design §3 "Status
// item").
type StatusItem struct {
	Status daqstatus.Status
}
