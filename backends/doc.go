// Package backends implements the block backends served to a USB mass-storage
// initiator.
//
// # Variants
//
//   - [SingleImageBackend] maps every LBA one-to-one onto a single image file.
//   - [SplicedImageBackend] serves reads from a fixed window of LBAs out of a
//     second image, at a different offset. Writes always go to the primary.
//   - [PoisonWriteBackend] serves reads like SingleImageBackend but ends the
//     process the moment anything tries to write to it.
//
// # Geometry
//
// All backends report one sector fewer than the primary image holds. The last
// sector (possibly partial) is never advertised to the initiator, although it
// can still be read if asked for.
//
// # Writes
//
// WriteSectors takes at most one sector of data. Anything past the first sector
// is logged as a warning and discarded; anything shorter only overwrites the
// bytes supplied. Every successful write is flushed to disk before returning.
package backends
