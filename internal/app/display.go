package app

import (
	"context"
	"fmt"
	"image"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/bosch_imu/internal/config"
	"github.com/relabs-tech/bosch_imu/internal/imu"
)

const (
	displayWidth  = 128
	displayHeight = 64
	// 128px of 7px glyphs
	displayCols = 18
)

// sampleLines formats s into the four text rows of the OLED.
func sampleLines(s imu.Sample) []string {
	return []string{
		"BMI270 + BMM150",
		fmt.Sprintf("A%5.1f%6.1f%6.1f", s.Ax, s.Ay, s.Az),
		fmt.Sprintf("G%5.0f%6.0f%6.0f", s.Gx, s.Gy, s.Gz),
		fmt.Sprintf("M%5.0f%6.0f%6.0f", s.Mx, s.My, s.Mz),
	}
}

func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawString(line)
	}
	return img
}

// renderSample draws s, or a waiting screen when no sample has arrived.
func renderSample(s imu.Sample, have bool) *image1bit.VerticalLSB {
	if !have {
		return renderLines([]string{"", "IMU", "Waiting..."})
	}
	return renderLines(sampleLines(s))
}

func showSplash(dev *ssd1306.Dev) error {
	img := renderLines([]string{"", "  Relabs Tech", "  Bosch IMU"})
	return dev.Draw(dev.Bounds(), img, image.Point{})
}

// RunDisplay mirrors TOPIC_IMU on the SSD1306 OLED. The driver addresses it
// at 0x3C.
func RunDisplay(ctx context.Context, cfg *config.Config) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.WithField("bus", bus.String()).Info("display: initialized")

	if err := showSplash(dev); err != nil {
		log.WithError(err).Warn("display: error showing splash")
	}

	latest := &LatestSample{}
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeSamples(client, cfg.TopicIMU, latest.Set); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Info("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			img := renderSample(latest.Get())
			if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
				log.WithError(err).Warn("display: error updating display")
			}
		}
	}
}
