// Package revision implements content fingerprinting, revisioned file names
// and the persisted manifest that maps logical asset paths to them.
//
// A build computes a fingerprint per asset, derives a revisioned path with
// RevisionedPath, merges the fresh mappings into the previous manifest with
// Merge and persists the result through a Store. StaleFiles reports the
// physical files a merge superseded.
package revision
