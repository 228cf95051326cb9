package types

// Cloud describes one cloud/region a provider can sweep.
// Capability markers gate which resource kinds are listed there.
type Cloud struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	SupportsVolumes   bool   `json:"supports_volumes"`
	SupportsSnapshots bool   `json:"supports_snapshots"`
}
