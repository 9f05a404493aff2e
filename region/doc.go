// Package region describes the flash range reserved for the application
// image.
//
// A [Region] is pure data fixed at link time: the first and last byte
// addresses of the application area (both inclusive) and the size of one
// transfer chunk. The application image begins with the Cortex-M vector
// table, so the word at Start is the initial stack pointer and the word at
// Start+4 is the reset handler address.
package region
