// Package keycheck implements a firmware authenticity validator.
//
// A keyed image begins with a header chunk:
//
//	offset  size  field
//	0       8     Magic ("softdfu" followed by version 0x01)
//	8       32    key
//	40      ...   padding to the transfer chunk size
//
// The bootloader never stores the key itself, only its BLAKE2b-256 digest.
// A header whose key hashes to the stored digest makes the first chunk
// [transfer.KeyValid]; the header chunk is then discarded and the image
// proper starts with the second chunk.
//
// [transfer.KeyValid]: github.com/ardnew/softdfu/transfer.KeyValid
package keycheck
