// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bosch holds what the BMI270 and BMM150 register drivers share:
// the vendor status taxonomy and the register access contract.
package bosch

import "fmt"

// Status is the result code returned by every vendor driver routine.
// Zero is success; every negative value names a specific fault category.
type Status int8

const (
	StatusOK                    Status = 0
	StatusNullPtr               Status = -1
	StatusComFail               Status = -2
	StatusDevNotFound           Status = -3
	StatusOutOfRange            Status = -4
	StatusAccInvalidCfg         Status = -5
	StatusGyroInvalidCfg        Status = -6
	StatusAccGyrInvalidCfg      Status = -7
	StatusInvalidSensor         Status = -8
	StatusConfigLoad            Status = -9
	StatusInvalidPage           Status = -10
	StatusInvalidFeatBit        Status = -11
	StatusInvalidIntPin         Status = -12
	StatusSetAPSFail            Status = -13
	StatusAuxInvalidCfg         Status = -14
	StatusAuxBusy               Status = -15
	StatusSelfTestFail          Status = -16
	StatusRemapError            Status = -17
	StatusGyrUserGainUpdFail    Status = -18
	StatusSelfTestNotDone       Status = -19
	StatusInvalidInput          Status = -20
	StatusInvalidStatus         Status = -21
	StatusCRTError              Status = -22
	StatusSTAlreadyRunning      Status = -23
	StatusCRTReadyForDLFailAbrt Status = -24
	StatusDLError               Status = -25
	StatusPreconError           Status = -26
	StatusAbortError            Status = -27
	StatusGyroSelfTestError     Status = -28
	StatusGyroSelfTestTimeout   Status = -29
	StatusWriteCycleOngoing     Status = -30
	StatusWriteCycleTimeout     Status = -31
	StatusSTNotRunning          Status = -32
	StatusDataRdyIntFailed      Status = -33
	StatusInvalidFOCPosition    Status = -34
)

// Description is the human readable text and fatality of a status.
type Description struct {
	Message string
	Fatal   bool
}

var unknownStatus = Description{Message: "Unknown error code", Fatal: true}

var descriptions = map[Status]Description{
	StatusOK:                    {Message: "OK"},
	StatusNullPtr:               {Message: "Null pointer", Fatal: true},
	StatusComFail:               {Message: "Communication failure", Fatal: true},
	StatusDevNotFound:           {Message: "Device not found", Fatal: true},
	StatusOutOfRange:            {Message: "Out of range", Fatal: true},
	StatusAccInvalidCfg:         {Message: "Invalid accel configuration", Fatal: true},
	StatusGyroInvalidCfg:        {Message: "Invalid gyro configuration", Fatal: true},
	StatusAccGyrInvalidCfg:      {Message: "Invalid accel/gyro configuration", Fatal: true},
	StatusInvalidSensor:         {Message: "Invalid sensor", Fatal: true},
	StatusConfigLoad:            {Message: "Configuration loading error", Fatal: true},
	StatusInvalidPage:           {Message: "Invalid page ", Fatal: true},
	StatusInvalidFeatBit:        {Message: "Invalid feature bit", Fatal: true},
	StatusInvalidIntPin:         {Message: "Invalid interrupt pin", Fatal: true},
	StatusSetAPSFail:            {Message: "Setting advanced power mode failed", Fatal: true},
	StatusAuxInvalidCfg:         {Message: "Invalid auxilliary configuration", Fatal: true},
	StatusAuxBusy:               {Message: "Auxilliary busy", Fatal: true},
	StatusSelfTestFail:          {Message: "Self test failed", Fatal: true},
	StatusRemapError:            {Message: "Remapping error", Fatal: true},
	StatusGyrUserGainUpdFail:    {Message: "Gyro user gain update failed", Fatal: true},
	StatusSelfTestNotDone:       {Message: "Self test not done", Fatal: true},
	StatusInvalidInput:          {Message: "Invalid input", Fatal: true},
	StatusInvalidStatus:         {Message: "Invalid status", Fatal: true},
	StatusCRTError:              {Message: "CRT error", Fatal: true},
	StatusSTAlreadyRunning:      {Message: "Self test already running", Fatal: true},
	StatusCRTReadyForDLFailAbrt: {Message: "CRT ready for DL fail abort", Fatal: true},
	StatusDLError:               {Message: "DL error", Fatal: true},
	StatusPreconError:           {Message: "PRECON error", Fatal: true},
	StatusAbortError:            {Message: "Abort error", Fatal: true},
	StatusGyroSelfTestError:     {Message: "Gyro self test error", Fatal: true},
	StatusGyroSelfTestTimeout:   {Message: "Gyro self test timeout", Fatal: true},
	StatusWriteCycleOngoing:     {Message: "Write cycle ongoing", Fatal: true},
	StatusWriteCycleTimeout:     {Message: "Write cycle timeout", Fatal: true},
	StatusSTNotRunning:          {Message: "Self test not running", Fatal: true},
	StatusDataRdyIntFailed:      {Message: "Data ready interrupt failed", Fatal: true},
	StatusInvalidFOCPosition:    {Message: "Invalid FOC position", Fatal: true},
}

// Describe returns the message and fatality for s. Codes outside the table
// get the "Unknown error code" fallback, which is fatal.
func Describe(s Status) Description {
	if d, ok := descriptions[s]; ok {
		return d
	}
	return unknownStatus
}

// OK reports whether s is StatusOK.
func (s Status) OK() bool { return s == StatusOK }

// Error implements error so a Status can be returned and compared with errors.Is.
func (s Status) Error() string {
	return fmt.Sprintf("bosch status %d: %s", int8(s), Describe(s).Message)
}

// Known reports whether s has an entry in the description table.
func Known(s Status) bool {
	_, ok := descriptions[s]
	return ok
}
