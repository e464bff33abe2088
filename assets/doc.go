// Package assets describes the sandbox layout in a YAML manifest and fetches
// the guest binary and library artifacts it names.
//
// Sources compose: a DirSource reads a local tree, an HTTPSource fetches
// with retries, and a CachedSource fills a local directory from either on
// first use. Artifacts whose source path ends in .zst are decompressed.
package assets
