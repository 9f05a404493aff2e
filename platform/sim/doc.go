// Package sim implements an in-memory chip for tests and the hosted
// simulator.
//
// A [Chip] models memory-mapped NOR flash beginning at a base address, a
// FlexRAM-style staging area, battery-backed marker memory, latched reset
// causes, a watchdog, and the vector-table/jump primitives. Instead of
// branching, [Chip.Jump] records the stack pointer and entry point so tests
// can assert on the control transfer.
//
// # Persistence
//
// A [Store] saves flash contents and backup memory to a bolt database so a
// simulated reset (restarting the process) sees the same state a real chip
// would:
//
//	store, _ := sim.OpenStore("chip.db")
//	defer store.Close()
//	store.Load(chip)
//	// ... run the bootloader ...
//	store.Save(chip)
//
// # Fault Injection
//
// [Chip.FailProgram] makes the next program of an address return a
// platform error, exercising the error paths of the transfer state machine.
package sim
