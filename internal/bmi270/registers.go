// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bmi270

import "github.com/relabs-tech/bosch_imu/internal/bosch"

// Register addresses.
const (
	RegChipID         = 0x00
	RegErr            = 0x02
	RegStatus         = 0x03
	RegData8          = 0x0C // ACC_X LSB, start of the 12 byte accel+gyro block
	RegInternalStatus = 0x21
	RegAccConf        = 0x40
	RegAccRange       = 0x41
	RegGyrConf        = 0x42
	RegGyrRange       = 0x43
	RegInt1IOCtrl     = 0x53
	RegInt2IOCtrl     = 0x54
	RegIntLatch       = 0x55
	RegIntMapData     = 0x58
	RegInitCtrl       = 0x59
	RegInitAddr0      = 0x5B
	RegInitAddr1      = 0x5C
	RegInitData       = 0x5E
	RegPwrConf        = 0x7C
	RegPwrCtrl        = 0x7D
	RegCmd            = 0x7E
)

const (
	// ChipID is the CHIP_ID register value of a BMI270.
	ChipID = 0x24

	// DefaultAddr is the primary I2C address (SDO low).
	DefaultAddr = 0x68

	// DefaultReadWriteLen is the burst size used for the config upload.
	// It must be even.
	DefaultReadWriteLen = 30

	cmdSoftReset = 0xB6

	internalStatusMask   = 0x0F
	internalStatusInitOK = 0x01

	pwrCtrlAux = 0x01
	pwrCtrlGyr = 0x02
	pwrCtrlAcc = 0x04
	pwrCtrlTmp = 0x08

	pwrConfAdvPowerSave = 0x01

	intMapDrdyInt1 = 0x04
	intMapDrdyInt2 = 0x40
)

// RegisterMap returns the registers the adapter touches.
func RegisterMap() []bosch.RegisterInfo {
	return []bosch.RegisterInfo{
		{Address: RegChipID, Name: "CHIP_ID", Description: "Chip identification (0x24)", Access: "R"},
		{Address: RegErr, Name: "ERR_REG", Description: "Error flags", Access: "R",
			BitFields: []bosch.BitField{
				{Bits: "7:6", Name: "aux_err", Description: "Aux interface error"},
				{Bits: "4:1", Name: "internal_err", Description: "Internal error code"},
				{Bits: "0", Name: "fatal_err", Description: "Fatal error, POR or soft reset required"},
			}},
		{Address: RegStatus, Name: "STATUS", Description: "Data ready flags", Access: "R",
			BitFields: []bosch.BitField{
				{Bits: "7", Name: "drdy_acc", Description: "Accel data ready"},
				{Bits: "6", Name: "drdy_gyr", Description: "Gyro data ready"},
				{Bits: "4", Name: "cmd_rdy", Description: "Command decoder ready"},
			}},
		{Address: RegData8, Name: "DATA_8", Description: "ACC_X LSB, start of the 12 byte accel/gyro block", Access: "R"},
		{Address: RegInternalStatus, Name: "INTERNAL_STATUS", Description: "Init status", Access: "R",
			BitFields: []bosch.BitField{
				{Bits: "3:0", Name: "message", Description: "Init state", Values: "0=not_init, 1=init_ok, 2=init_err, 3=drv_err"},
			}},
		{Address: RegAccConf, Name: "ACC_CONF", Description: "Accelerometer configuration", Access: "RW",
			BitFields: []bosch.BitField{
				{Bits: "7", Name: "acc_filter_perf", Description: "Filter performance", Values: "0=power, 1=performance"},
				{Bits: "6:4", Name: "acc_bwp", Description: "Bandwidth", Values: "0=osr4, 1=osr2, 2=norm"},
				{Bits: "3:0", Name: "acc_odr", Description: "Output data rate", Values: "Hz = 2^odr * 0.39, 8=100Hz"},
			}},
		{Address: RegAccRange, Name: "ACC_RANGE", Description: "Accelerometer range", Access: "RW",
			BitFields: []bosch.BitField{
				{Bits: "1:0", Name: "acc_range", Description: "Full scale", Values: "0=±2g, 1=±4g, 2=±8g, 3=±16g"},
			}},
		{Address: RegGyrConf, Name: "GYR_CONF", Description: "Gyroscope configuration", Access: "RW",
			BitFields: []bosch.BitField{
				{Bits: "7", Name: "gyr_filter_perf", Description: "Filter performance", Values: "0=power, 1=performance"},
				{Bits: "6", Name: "gyr_noise_perf", Description: "Noise performance", Values: "0=power, 1=performance"},
				{Bits: "5:4", Name: "gyr_bwp", Description: "Bandwidth", Values: "0=osr4, 1=osr2, 2=norm"},
				{Bits: "3:0", Name: "gyr_odr", Description: "Output data rate", Values: "Hz = 2^odr * 0.39, 8=100Hz"},
			}},
		{Address: RegGyrRange, Name: "GYR_RANGE", Description: "Gyroscope range", Access: "RW",
			BitFields: []bosch.BitField{
				{Bits: "3", Name: "ois_range", Description: "OIS full scale", Values: "0=±250°/s, 1=±2000°/s"},
				{Bits: "2:0", Name: "gyr_range", Description: "Full scale", Values: "0=±2000, 1=±1000, 2=±500, 3=±250, 4=±125 °/s"},
			}},
		{Address: RegInt1IOCtrl, Name: "INT1_IO_CTRL", Description: "INT1 electrical behaviour", Access: "RW",
			BitFields: []bosch.BitField{
				{Bits: "4", Name: "input_en", Description: "Input enable"},
				{Bits: "3", Name: "output_en", Description: "Output enable"},
				{Bits: "2", Name: "od", Description: "Open drain", Values: "0=push-pull, 1=open drain"},
				{Bits: "1", Name: "lvl", Description: "Active level", Values: "0=low, 1=high"},
			}},
		{Address: RegInt2IOCtrl, Name: "INT2_IO_CTRL", Description: "INT2 electrical behaviour", Access: "RW"},
		{Address: RegIntLatch, Name: "INT_LATCH", Description: "Interrupt latch mode", Access: "RW",
			BitFields: []bosch.BitField{
				{Bits: "0", Name: "int_latch", Description: "Latch", Values: "0=non-latched, 1=latched"},
			}},
		{Address: RegIntMapData, Name: "INT_MAP_DATA", Description: "Data interrupt mapping", Access: "RW",
			BitFields: []bosch.BitField{
				{Bits: "6", Name: "drdy_int2", Description: "Data ready to INT2"},
				{Bits: "2", Name: "drdy_int1", Description: "Data ready to INT1"},
			}},
		{Address: RegInitCtrl, Name: "INIT_CTRL", Description: "Config load start", Access: "RW"},
		{Address: RegInitAddr0, Name: "INIT_ADDR_0", Description: "Config load word address bits 3:0", Access: "RW"},
		{Address: RegInitAddr1, Name: "INIT_ADDR_1", Description: "Config load word address bits 11:4", Access: "RW"},
		{Address: RegInitData, Name: "INIT_DATA", Description: "Config load data port", Access: "W"},
		{Address: RegPwrConf, Name: "PWR_CONF", Description: "Power mode configuration", Access: "RW",
			BitFields: []bosch.BitField{
				{Bits: "0", Name: "adv_power_save", Description: "Advanced power save", Values: "0=off, 1=on"},
			}},
		{Address: RegPwrCtrl, Name: "PWR_CTRL", Description: "Sensor enable", Access: "RW",
			BitFields: []bosch.BitField{
				{Bits: "3", Name: "temp_en", Description: "Temperature sensor"},
				{Bits: "2", Name: "acc_en", Description: "Accelerometer"},
				{Bits: "1", Name: "gyr_en", Description: "Gyroscope"},
				{Bits: "0", Name: "aux_en", Description: "Auxiliary interface"},
			}},
		{Address: RegCmd, Name: "CMD", Description: "Command register (0xB6 soft reset)", Access: "W"},
	}
}
