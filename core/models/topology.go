package models

import "strconv"

// AcceleratorTopology describes the accelerator inventory of the instance
// the launcher is running on. Probed once at startup and never mutated.
type AcceleratorTopology struct {
	AcceleratorCount     int
	DistributedSupported bool
	// VisibleDevices holds the device IDs a launched process may bind, in
	// assignment order. When a visibility mask was already in force at probe
	// time these are the masked IDs, not 0..n-1.
	VisibleDevices []string
}

// SingleDevice reports whether the topology only permits a single-process run.
func (t AcceleratorTopology) SingleDevice() bool {
	return t.AcceleratorCount <= 1 || !t.DistributedSupported
}

// DeviceIDs returns the device IDs to pin launched processes to. Falls back
// to ascending indices when the probe did not record explicit IDs.
func (t AcceleratorTopology) DeviceIDs() []string {
	if len(t.VisibleDevices) > 0 {
		return t.VisibleDevices
	}
	ids := make([]string, t.AcceleratorCount)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	return ids
}
