package app

import (
	"strings"
	"testing"

	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/bosch_imu/internal/imu"
)

func litPixels(img *image1bit.VerticalLSB) int {
	n := 0
	for _, b := range img.Pix {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

func TestSampleLines(t *testing.T) {
	lines := sampleLines(imu.Sample{Az: 1, Gz: 1000, Mx: 5, My: -10, Mz: 100})
	want := []string{
		"BMI270 + BMM150",
		"A  0.0   0.0   1.0",
		"G    0     0  1000",
		"M    5   -10   100",
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
		if len(lines[i]) > displayCols {
			t.Errorf("line %d is %d columns wide", i, len(lines[i]))
		}
	}
}

func TestRenderSample(t *testing.T) {
	waiting := renderSample(imu.Sample{}, false)
	if b := waiting.Bounds(); b.Dx() != displayWidth || b.Dy() != displayHeight {
		t.Fatalf("bounds = %v", b)
	}
	live := renderSample(imu.Sample{Az: 1}, true)
	if litPixels(waiting) == 0 || litPixels(live) == 0 {
		t.Fatal("nothing drawn")
	}
	if litPixels(live) <= litPixels(waiting) {
		t.Fatalf("live screen (%d px) should carry more text than the waiting screen (%d px)",
			litPixels(live), litPixels(waiting))
	}
}

func TestFormatSample(t *testing.T) {
	line := FormatSample(imu.Sample{Ax: 0.5, Gz: -250, Mz: 42})
	for _, want := range []string{"[IMU]", "ax= 0.500", "gz= -250.00", "mz=   42.0"} {
		if !strings.Contains(line, want) {
			t.Errorf("%q missing %q", line, want)
		}
	}
}
