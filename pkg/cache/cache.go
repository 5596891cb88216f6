// Package cache is the persistent fallback store: keyed JSON snapshots
// of the last successful remote fetch, read only when the matching
// remote call fails. Writes are fire-and-forget, last-writer-wins.
package cache

// Store is a key→blob snapshot store. There is a single writer (the
// synchronizer) per key namespace, so no concurrency control beyond
// what the backend itself provides is needed.
type Store interface {
	// Save overwrites the snapshot under key. Failures are logged,
	// never surfaced: the cache is best-effort by contract.
	Save(key string, value interface{})

	// Load reads the snapshot under key into dest, reporting whether
	// a snapshot existed and decoded.
	Load(key string, dest interface{}) bool

	// Clear removes the snapshot under key.
	Clear(key string)

	Close() error
}

// Snapshot keys are namespaced "<resourceType>:<ownerContextId>".
func PostsKey(scope string) string     { return "posts:" + scope }
func CommentsKey(postID string) string { return "comments:" + postID }
