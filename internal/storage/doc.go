// Package storage groups the artifact stores used for page capture. Each
// subpackage implements redirect.ArtifactStore against one backend.
package storage

// Backend names accepted by capture.backend.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)
