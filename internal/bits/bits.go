// Package bits provides primitives for bitwise operations on in-memory
// uint32 register images, used to stage DWC2 host channel register values
// before they are committed through the Registers trait.
//
// Adapted from the bit-twiddling helpers in usbarmory/tamago's bits package
// (github.com/usbarmory/tamago, soc/nxp/usb callers), generalized from
// addr *uint32 receivers with no change in semantics.
package bits

// Get returns whether a specific bit position is set.
func Get(v uint32, pos int) bool {
	return (v>>uint(pos))&1 == 1
}

// GetN returns the value at a specific bit position with a bitmask applied.
func GetN(v uint32, pos int, mask uint32) uint32 {
	return (v >> uint(pos)) & mask
}

// Set returns v with an individual bit set at pos.
func Set(v uint32, pos int) uint32 {
	return v | (1 << uint(pos))
}

// Clear returns v with an individual bit cleared at pos.
func Clear(v uint32, pos int) uint32 {
	return v &^ (1 << uint(pos))
}

// SetTo returns v with the bit at pos set or cleared depending on val.
func SetTo(v uint32, pos int, val bool) uint32 {
	if val {
		return Set(v, pos)
	}
	return Clear(v, pos)
}

// SetN returns v with a masked field at pos replaced by val.
func SetN(v uint32, pos int, mask uint32, val uint32) uint32 {
	return (v &^ (mask << uint(pos))) | ((val & mask) << uint(pos))
}
