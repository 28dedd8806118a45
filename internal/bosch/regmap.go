package bosch

import "fmt"

// BitField describes a field within a register.
type BitField struct {
	Bits        string `json:"bits"` // "7:4" or "2"
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterInfo describes one register for the debug console.
type RegisterInfo struct {
	Address     byte       `json:"-"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// Hex returns the address as "0xNN".
func (r RegisterInfo) Hex() string { return fmt.Sprintf("0x%02X", r.Address) }

// Writable reports whether the register accepts writes.
func (r RegisterInfo) Writable() bool { return r.Access == "W" || r.Access == "RW" }

// Readable reports whether the register can be read back.
func (r RegisterInfo) Readable() bool { return r.Access == "R" || r.Access == "RW" }

// Lookup finds addr in regs.
func Lookup(regs []RegisterInfo, addr byte) (RegisterInfo, bool) {
	for _, r := range regs {
		if r.Address == addr {
			return r, true
		}
	}
	return RegisterInfo{}, false
}
