package mirror

import "fmt"

// PathTraversalError is returned when a resolved local path would escape the
// public directory. It is security-critical and never auto-corrected; the
// whole run aborts.
type PathTraversalError struct {
	Ref  string
	Path string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("mirror: reference %q resolves outside the public directory: %s", e.Ref, e.Path)
}

// DownloadError is returned when an asset could not be fully mirrored: the
// remote returned a non-success status or the transfer failed mid-stream.
type DownloadError struct {
	URL    string
	Status int
	Cause  error
}

func (e *DownloadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("mirror: download %s: %v", e.URL, e.Cause)
	}
	return fmt.Sprintf("mirror: download %s: http %d", e.URL, e.Status)
}

func (e *DownloadError) Unwrap() error { return e.Cause }

// StructuralMismatchError is returned when the fetched page no longer matches
// the expected markup structure, e.g. the attribute scan finds zero asset
// references.
type StructuralMismatchError struct {
	Reason string
}

func (e *StructuralMismatchError) Error() string {
	return fmt.Sprintf("mirror: page structure mismatch: %s", e.Reason)
}
