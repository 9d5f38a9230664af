// Package util provides small helpers shared by the storage engines.
//
// The package contains:
//   - statistics: a SizeHistogram tracking the distribution of written value sizes,
//     reported through db.DatabaseInfo without scanning the store
package util
