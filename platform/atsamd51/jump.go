//go:build tinygo && atsamd51

package atsamd51

import "device/arm"

// jump loads MSP and branches to the reset handler. It does not return.
func jump(sp, pc uint32) {
	arm.AsmFull(`
		msr msp, {sp}
		bx {pc}
	`, map[string]interface{}{
		"sp": sp,
		"pc": pc,
	})
}
