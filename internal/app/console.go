package app

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/bosch_imu/internal/config"
	"github.com/relabs-tech/bosch_imu/internal/imu"
)

// FormatSample renders one sample as a console line.
func FormatSample(s imu.Sample) string {
	return fmt.Sprintf(
		"[IMU] ax=%6.3f ay=%6.3f az=%6.3f  gx=%8.2f gy=%8.2f gz=%8.2f  mx=%7.1f my=%7.1f mz=%7.1f",
		s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz, s.Mx, s.My, s.Mz,
	)
}

// RunConsole prints every sample published on TOPIC_IMU to out until ctx is
// done.
func RunConsole(ctx context.Context, cfg *config.Config, out io.Writer) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	err = subscribeSamples(client, cfg.TopicIMU, func(s imu.Sample) {
		fmt.Fprintln(out, FormatSample(s))
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("console: shutting down")
	return nil
}
