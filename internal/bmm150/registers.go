package bmm150

import "github.com/relabs-tech/bosch_imu/internal/bosch"

// RegisterMap returns the registers the adapter touches.
func RegisterMap() []bosch.RegisterInfo {
	return []bosch.RegisterInfo{
		{Address: RegChipID, Name: "CHIP_ID", Description: "Chip identification (0x32)", Access: "R"},
		{Address: RegDataXLSB, Name: "DATA_X_LSB", Description: "Start of the 8 byte X/Y/Z/RHALL block", Access: "R"},
		{Address: RegPowerCtrl, Name: "POWER_CTRL", Description: "Power control", Access: "RW",
			BitFields: []bosch.BitField{
				{Bits: "7", Name: "soft_reset_7", Description: "Soft reset (with bit 1)"},
				{Bits: "0", Name: "power_control", Description: "Suspend mode exit", Values: "0=suspend, 1=sleep"},
			}},
		{Address: RegOpMode, Name: "OP_MODE", Description: "Operation mode and data rate", Access: "RW",
			BitFields: []bosch.BitField{
				{Bits: "5:3", Name: "data_rate", Description: "Output data rate", Values: "0=10, 1=2, 2=6, 3=8, 4=15, 5=20, 6=25, 7=30 Hz"},
				{Bits: "2:1", Name: "opmode", Description: "Operation mode", Values: "0=normal, 1=forced, 3=sleep"},
				{Bits: "0", Name: "self_test", Description: "Self test"},
			}},
		{Address: RegIntConfig, Name: "INT_CONFIG", Description: "Interrupt enables", Access: "RW"},
		{Address: RegAxesEnable, Name: "AXES_ENABLE", Description: "Data ready pin and axes enable", Access: "RW",
			BitFields: []bosch.BitField{
				{Bits: "7", Name: "drdy_pin_en", Description: "Data ready pin enable"},
				{Bits: "2", Name: "drdy_polarity", Description: "Data ready polarity"},
			}},
		{Address: RegRepXY, Name: "REP_XY", Description: "XY repetitions (n = 2*val + 1)", Access: "RW"},
		{Address: RegRepZ, Name: "REP_Z", Description: "Z repetitions (n = val + 1)", Access: "RW"},
		{Address: RegDigX1, Name: "DIG_X1", Description: "Trim x1/y1", Access: "R"},
		{Address: RegDigZ4LSB, Name: "DIG_Z4_LSB", Description: "Trim z4/x2/y2", Access: "R"},
		{Address: RegDigZ2LSB, Name: "DIG_Z2_LSB", Description: "Trim z2/z1/xyz1/z3/xy2/xy1", Access: "R"},
	}
}
