package linux

import (
	"strconv"
	"strings"
)

// ParseID parses a "vvvv:pppp" hexadecimal vendor and product pair.
func ParseID(s string) (vendorID, productID uint16, ok bool) {
	v, p, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	vid, err := strconv.ParseUint(v, 16, 16)
	if err != nil {
		return 0, 0, false
	}
	pid, err := strconv.ParseUint(p, 16, 16)
	if err != nil {
		return 0, 0, false
	}
	return uint16(vid), uint16(pid), true
}
