package service

import (
	"context"
	"log/slog"
	"time"
)

// StaleDeviceMarker flips devices offline when their last inform is older
// than a cutoff.
type StaleDeviceMarker interface {
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int, error)
}

// CleanupService sweeps the device table so the online flag tracks reality.
// A CPE that stops informing never tells us it went away.
type CleanupService struct {
	devices   StaleDeviceMarker
	staleness time.Duration
	log       *slog.Logger
}

func NewCleanupService(devices StaleDeviceMarker, staleness time.Duration, log *slog.Logger) *CleanupService {
	if staleness <= 0 {
		staleness = 10 * time.Minute
	}
	return &CleanupService{devices: devices, staleness: staleness, log: log}
}

// StartScheduler runs the sweep at the specified interval. Call in a goroutine.
func (s *CleanupService) StartScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("offline sweep started", "interval", interval, "staleness", s.staleness)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("offline sweep stopped")
			return
		case <-ticker.C:
			s.RunSweep(ctx)
		}
	}
}

func (s *CleanupService) RunSweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.staleness)
	n, err := s.devices.MarkStaleOffline(ctx, cutoff)
	if err != nil {
		s.log.Warn("offline sweep", "err", err)
		return
	}
	if n > 0 {
		s.log.Info("devices marked offline", "count", n)
	}
}
