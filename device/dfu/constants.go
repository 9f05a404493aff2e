package dfu

// DFU class-specific requests (DFU 1.1 Table 3.2).
const (
	RequestDetach    = 0x00
	RequestDnload    = 0x01
	RequestUpload    = 0x02
	RequestGetStatus = 0x03
	RequestClrStatus = 0x04
	RequestGetState  = 0x05
	RequestAbort     = 0x06
)

// StatusResponseSize is the size of the DFU_GETSTATUS response.
const StatusResponseSize = 6

// Status is a DFU bStatus code (DFU 1.1 Section 6.1.2).
type Status uint8

// DFU status codes.
const (
	StatusOK               Status = 0x00 // No error condition is present
	StatusErrTarget        Status = 0x01 // File is not targeted for this device
	StatusErrFile          Status = 0x02 // File fails a vendor-specific verification test
	StatusErrWrite         Status = 0x03 // Device is unable to write memory
	StatusErrErase         Status = 0x04 // Memory erase function failed
	StatusErrCheckErased   Status = 0x05 // Memory erase check failed
	StatusErrProg          Status = 0x06 // Program memory function failed
	StatusErrVerify        Status = 0x07 // Programmed memory failed verification
	StatusErrAddress       Status = 0x08 // Received address is out of range
	StatusErrNotDone       Status = 0x09 // Received DNLOAD with wLength = 0 prematurely
	StatusErrFirmware      Status = 0x0A // Device firmware is corrupt
	StatusErrVendor        Status = 0x0B // iString indicates a vendor-specific error
	StatusErrUSBReset      Status = 0x0C // Unexpected USB reset signaling
	StatusErrPowerOnReset  Status = 0x0D // Unexpected power on reset
	StatusErrUnknown       Status = 0x0E // Something went wrong
	StatusErrStalledPacket Status = 0x0F // Device stalled an unexpected request
)

var statusNames = [...]string{
	StatusOK:               "OK",
	StatusErrTarget:        "errTARGET",
	StatusErrFile:          "errFILE",
	StatusErrWrite:         "errWRITE",
	StatusErrErase:         "errERASE",
	StatusErrCheckErased:   "errCHECK_ERASED",
	StatusErrProg:          "errPROG",
	StatusErrVerify:        "errVERIFY",
	StatusErrAddress:       "errADDRESS",
	StatusErrNotDone:       "errNOTDONE",
	StatusErrFirmware:      "errFIRMWARE",
	StatusErrVendor:        "errVENDOR",
	StatusErrUSBReset:      "errUSBR",
	StatusErrPowerOnReset:  "errPOR",
	StatusErrUnknown:       "errUNKNOWN",
	StatusErrStalledPacket: "errSTALLEDPKT",
}

// String returns the DFU name of the status.
func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// OK reports whether s is StatusOK.
func (s Status) OK() bool {
	return s == StatusOK
}

// State is a DFU bState value (DFU 1.1 Section 6.1.2).
type State uint8

// DFU states.
const (
	StateAppIdle           State = 0
	StateAppDetach         State = 1
	StateIdle              State = 2
	StateDnloadSync        State = 3
	StateDnbusy            State = 4
	StateDnloadIdle        State = 5
	StateManifestSync      State = 6
	StateManifest          State = 7
	StateManifestWaitReset State = 8
	StateUploadIdle        State = 9
	StateError             State = 10
)

var stateNames = [...]string{
	StateAppIdle:           "appIDLE",
	StateAppDetach:         "appDETACH",
	StateIdle:              "dfuIDLE",
	StateDnloadSync:        "dfuDNLOAD-SYNC",
	StateDnbusy:            "dfuDNBUSY",
	StateDnloadIdle:        "dfuDNLOAD-IDLE",
	StateManifestSync:      "dfuMANIFEST-SYNC",
	StateManifest:          "dfuMANIFEST",
	StateManifestWaitReset: "dfuMANIFEST-WAIT-RESET",
	StateUploadIdle:        "dfuUPLOAD-IDLE",
	StateError:             "dfuERROR",
}

// String returns the DFU name of the state.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Request type bytes for DFU class requests addressed to an interface.
const (
	RequestTypeOut = 0x21 // Host to device, class, interface
	RequestTypeIn  = 0xA1 // Device to host, class, interface
)
