// Package cleanup removes cached downloads, conversions, authored DVD
// structures, ISO images and temporary files.
//
// Every operation supports a dry run that reports what would be freed
// without deleting anything. Hidden entries, such as the .in-progress
// staging directories the cache uses, are never touched.
package cleanup
