package core

// Registers is raw 32-bit access to the TCU register block. Offsets are
// relative to the block's base address.
type Registers interface {
	Read32(off uint32) uint32
	Write32(off uint32, val uint32)
}

// TCU register offsets
const (
	RegTER        = 0x10 // Counter enable
	RegTESR       = 0x14 // Counter enable set
	RegTECR       = 0x18 // Counter enable clear
	RegTSR        = 0x1c // Channel clock stop
	RegTFR        = 0x20 // Match flags
	RegTFSR       = 0x24 // Match flags set
	RegTFCR       = 0x28 // Match flags clear
	RegTSSR       = 0x2c // Stop set
	RegTMR        = 0x30 // Match interrupt mask
	RegTMSR       = 0x34 // Mask set
	RegTMCR       = 0x38 // Mask clear
	RegTSCR       = 0x3c // Stop clear
	RegTDFR0      = 0x40 // Channel 0 full data
	RegTDHR0      = 0x44 // Channel 0 half data
	RegTCNT0      = 0x48 // Channel 0 counter
	RegTCSR0      = 0x4c // Channel 0 control
	RegOSTDR      = 0xe0 // OST compare data
	RegOSTCNTL    = 0xe4 // OST counter low word (latches high word)
	RegOSTCNTH    = 0xe8 // OST counter high word
	RegOSTCSR     = 0xec // OST control
	RegTSTR       = 0xf0
	RegTSTSR      = 0xf4
	RegTSTCR      = 0xf8
	RegOSTCNTHBUF = 0xfc // OST high word latched by the last low word read

	ChannelStride = 0x10
	RegBlockSize  = 0x100
)

// Per-channel registers
func RegTDFR(c int) uint32 { return RegTDFR0 + uint32(c)*ChannelStride }
func RegTDHR(c int) uint32 { return RegTDHR0 + uint32(c)*ChannelStride }
func RegTCNT(c int) uint32 { return RegTCNT0 + uint32(c)*ChannelStride }
func RegTCSR(c int) uint32 { return RegTCSR0 + uint32(c)*ChannelStride }

// Half match flag and mask bits sit this far above the full match bits.
const HalfShift = 16

// Control register (TCSRn and OSTCSR) fields
const (
	CSRPCKEn         = 1 << 0
	CSRRTCEn         = 1 << 1
	CSRExtEn         = 1 << 2
	CSRSrcMask       = CSRExtEn | CSRRTCEn | CSRPCKEn
	CSRPrescaleShift = 3
	CSRPrescaleMask  = 0x7 << CSRPrescaleShift
	CSRPWMEn         = 1 << 7 // Drive the channel's output pin
	CSRInitHigh      = 1 << 8 // Output level at the start of a period

	OSTCSRCntMD = 1 << 15 // Free running, no reset on compare match
)

// Narrow channels have 16-bit data and counter registers.
const narrowMax = 0xffff
