package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"PaykiPlatform/pkg/logger"
)

// ConnectivityProbe проверяет доступность удаленной стороны
type ConnectivityProbe func(ctx context.Context) error

// Heartbeat периодически пингует провайдера идентификации и проверяет связь.
// Результат проверки переводит синхронизатор в Online или Offline.
type Heartbeat struct {
	cron   *cron.Cron
	sync   *Synchronizer
	probe  ConnectivityProbe
	logger logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHeartbeat создает планировщик. Расписания в формате robfig/cron,
// например "@every 15m" или "*/5 * * * *".
func NewHeartbeat(s *Synchronizer, probe ConnectivityProbe, heartbeatSpec, probeSpec string, log logger.Logger) (*Heartbeat, error) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Heartbeat{
		cron:   cron.New(),
		sync:   s,
		probe:  probe,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := h.cron.AddFunc(heartbeatSpec, func() { h.RunPingOnce(h.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid heartbeat schedule %q: %w", heartbeatSpec, err)
	}

	if probe != nil && probeSpec != "" {
		if _, err := h.cron.AddFunc(probeSpec, func() { h.RunProbeOnce(h.ctx) }); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid probe schedule %q: %w", probeSpec, err)
		}
	}

	return h, nil
}

// Start запускает планировщик
func (h *Heartbeat) Start() {
	h.cron.Start()
	h.logger.Info("Heartbeat started", logger.Int("entries", len(h.cron.Entries())))
}

// Stop останавливает планировщик и ждет завершения запущенных задач
func (h *Heartbeat) Stop() {
	h.cancel()
	<-h.cron.Stop().Done()
	h.logger.Info("Heartbeat stopped")
}

// RunPingOnce выполняет один пинг сессии
func (h *Heartbeat) RunPingOnce(ctx context.Context) {
	h.sync.Ping(ctx)
}

// RunProbeOnce выполняет одну проверку связи
func (h *Heartbeat) RunProbeOnce(ctx context.Context) {
	if h.probe == nil {
		return
	}
	if err := h.probe(ctx); err != nil {
		if h.sync.State().Online {
			h.logger.Warn("Connectivity lost", logger.Error(err))
		}
		h.sync.Offline()
		return
	}
	h.sync.Online()
}
