//go:build tinygo && atsamd51

// Package atsamd51 implements platform.Platform for the Microchip ATSAMD51
// under TinyGo.
//
// Registers are accessed directly through runtime/volatile so the package
// has no dependency on TinyGo's machine package and can run before any
// peripheral has been configured.
//
// # Peripherals
//
//   - RSTC.RCAUSE: latched reset cause
//   - WDT: watchdog, clocked from the 1.024 kHz ULP oscillator
//   - NVMCTRL: block erase and page programming in manual write mode
//   - BKUPRAM: 8 KiB of backup RAM holding the loader marker
//   - SCB.VTOR: vector table relocation
//
// The application region is taken from the linker symbols _app_rom and
// _app_rom_end, which the bootloader's linker script must define:
//
//	r, err := atsamd51.AppRegion(1024)
//	chip := atsamd51.New()
//	if boot.Run(chip, r) == boot.ModeUpdate {
//		// serve DFU requests
//	}
package atsamd51
