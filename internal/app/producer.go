package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/bosch_imu/internal/config"
	"github.com/relabs-tech/bosch_imu/internal/imu"
	"github.com/relabs-tech/bosch_imu/internal/sensors"
)

// Producer reads samples and publishes them as JSON.
type Producer struct {
	Src   imu.Source
	Pub   Publisher
	Topic string
	// Pending returns how many samples are waiting per trigger. Nil means one.
	Pending func() int

	published int
	failed    int
}

// Run publishes on every trigger until ctx is done.
func (p *Producer) Run(ctx context.Context, trigger <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			log.WithFields(log.Fields{
				"published": p.published,
				"failed":    p.failed,
			}).Info("producer: stopped")
			return nil
		case <-trigger:
			p.drain()
		}
	}
}

func (p *Producer) drain() {
	n := 1
	if p.Pending != nil {
		n = p.Pending()
	}
	for ; n > 0; n-- {
		if err := p.publishOne(); err != nil {
			p.failed++
			log.WithError(err).Warn("producer: sample dropped")
			return
		}
		p.published++
	}
}

func (p *Producer) publishOne() error {
	s, err := p.Src.ReadSample()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := p.Pub.Publish(p.Topic, payload); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", p.Topic, err)
	}
	return nil
}

// ticks feeds trigger every d until ctx is done. A slow consumer skips ticks.
func ticks(ctx context.Context, d time.Duration, trigger chan<- struct{}) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case trigger <- struct{}{}:
			default:
			}
		}
	}
}

// RunProducer opens and configures the IMU, then publishes samples to
// TOPIC_IMU. With IRQ_PIN set and SAMPLE_INTERVAL=0 publishing follows the
// data-ready interrupt; otherwise it polls every SAMPLE_INTERVAL ms.
func RunProducer(ctx context.Context, cfg *config.Config) error {
	log.Info("starting IMU producer")

	dev, err := sensors.Open(cfg)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.Initialize(); err != nil {
		return err
	}
	rates := dev.SampleRates()
	log.WithFields(log.Fields{
		"accel": rates.Acceleration.String(),
		"gyro":  rates.Gyroscope.String(),
		"mag":   rates.MagneticField.String(),
	}).Info("producer: sample rates")

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	p := &Producer{Src: dev, Pub: mqttPublisher{client: client}, Topic: cfg.TopicIMU}
	trigger := make(chan struct{}, 1)

	if cfg.IRQPin != "" && cfg.SampleInterval == 0 {
		p.Pending = dev.AccelerationAvailable
		err := dev.SetInterruptCallback(func() {
			select {
			case trigger <- struct{}{}:
			default:
			}
		})
		if err != nil {
			return fmt.Errorf("producer: %w", err)
		}
		log.WithField("pin", cfg.IRQPin).Info("producer: interrupt driven")
	} else {
		interval := time.Duration(cfg.SampleInterval) * time.Millisecond
		go ticks(ctx, interval, trigger)
		log.WithField("interval", interval).Info("producer: polling")
	}

	return p.Run(ctx, trigger)
}
