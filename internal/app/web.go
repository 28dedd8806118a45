package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/bosch_imu/internal/config"
	"github.com/relabs-tech/bosch_imu/internal/imu"
)

// LatestSample keeps the most recent sample seen on MQTT and serves it as
// JSON.
type LatestSample struct {
	mu     sync.RWMutex
	sample imu.Sample
	have   bool
}

func (l *LatestSample) Set(s imu.Sample) {
	l.mu.Lock()
	l.sample = s
	l.have = true
	l.mu.Unlock()
}

// Get returns the latest sample and whether one has arrived yet.
func (l *LatestSample) Get() (imu.Sample, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sample, l.have
}

func (l *LatestSample) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s, ok := l.Get()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		log.WithError(err).Warn("web: json encode error")
	}
}

// Serve runs srv until ctx is done, then shuts it down.
func Serve(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("web server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunWeb subscribes to TOPIC_IMU and serves the latest sample on /api/imu.
func RunWeb(ctx context.Context, cfg *config.Config) error {
	latest := &LatestSample{}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeSamples(client, cfg.TopicIMU, latest.Set); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/api/imu", latest)

	return Serve(ctx, &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: mux,
	})
}
