package imu

import "time"

// Sample is one nine-axis reading in physical units.
type Sample struct {
	Time time.Time `json:"time"`

	Ax float64 `json:"ax"` // accel, g
	Ay float64 `json:"ay"`
	Az float64 `json:"az"`

	Gx float64 `json:"gx"` // gyro, °/s
	Gy float64 `json:"gy"`
	Gz float64 `json:"gz"`

	Mx float64 `json:"mx"` // magnetometer, µT
	My float64 `json:"my"`
	Mz float64 `json:"mz"`
}

// Source produces samples.
type Source interface {
	ReadSample() (Sample, error)
}
