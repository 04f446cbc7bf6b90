package bitkua

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "accountflow/config"
	"accountflow/internal/hub"
	"accountflow/logger"
	"accountflow/models"
)

// Service keeps the bot list fresh and routes control actions back to the
// platform. Unlike the exchange services it has no cache partition and no
// stream; the platform is polled only.
type Service struct {
	cfg  appconfig.BitkuaConfig
	hub  *hub.Hub
	rest *Client

	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	stopCh    chan struct{}
	refreshCh chan struct{}

	bots []models.Bot

	log *logger.Log
}

func NewService(cfg appconfig.BitkuaConfig, h *hub.Hub) *Service {
	return &Service{
		cfg:       cfg,
		hub:       h,
		rest:      NewClient(cfg.BaseURL, cfg.Username, cfg.Token),
		refreshCh: make(chan struct{}, 1),
		log:       logger.GetLogger(),
	}
}

func (s *Service) Name() string { return "bitkua" }

// SetCredentials swaps the account and drops the held bot list.
func (s *Service) SetCredentials(username, token string) {
	s.rest.SetCredentials(username, token)
	s.mu.Lock()
	s.bots = nil
	s.mu.Unlock()
}

// Start runs one fetch immediately and then polls on the configured interval.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("bitkua service already running")
	}
	if s.cfg.Username == "" || s.cfg.Token == "" {
		s.mu.Unlock()
		return fmt.Errorf("bitkua service has no credentials")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	log := s.log.WithComponent("bitkua_service")
	log.WithField("interval", s.cfg.RefreshInterval.String()).Info("starting auto refresh")

	s.wg.Add(1)
	go s.refreshLoop(ctx)
	return nil
}

// Stop cancels the poll loop. Idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.WithComponent("bitkua_service").Info("stopped")
}

func (s *Service) refreshLoop(ctx context.Context) {
	defer s.wg.Done()

	s.loadBots(ctx)

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.loadBots(ctx)
		case <-s.refreshCh:
			s.loadBots(ctx)
		}
	}
}

// loadBots fetches and publishes the bot list. A failed fetch keeps the
// previous list and publishes nothing; the next tick retries.
func (s *Service) loadBots(ctx context.Context) {
	log := s.log.WithComponent("bitkua_service")

	raw, err := s.rest.FetchBots(ctx)
	if err != nil {
		log.WithError(err).Warn("bot list fetch failed, keeping previous value")
		return
	}

	bots := TransformBots(raw)
	s.mu.Lock()
	s.bots = bots
	s.mu.Unlock()

	s.hub.Publish(models.NotifyMessage{Store: "bots", Bots: bots})
	log.WithField("bots", len(bots)).Info("refresh complete")
}

// ProcessAction dispatches one control action and reports the outcome as a
// notifications event. A successful action also schedules an immediate
// bot-list refresh so subscribers see the new state without waiting a tick.
func (s *Service) ProcessAction(ctx context.Context, action Action) {
	log := s.log.WithComponent("bitkua_service").WithFields(logger.Fields{
		"action": action.Name,
		"bot":    action.BotID,
	})

	var err error
	switch action.Name {
	case ActionUpdateStatus:
		err = s.rest.UpdateStatus(ctx, action.BotID, action.Status)
	case ActionUpdateAmount:
		err = s.rest.UpdateAmount(ctx, action.BotID, action.Amount)
	case ActionCreateBot:
		err = s.rest.CreateBot(ctx, action)
	case ActionDelete:
		err = s.rest.DeleteBot(ctx, action.BotID)
	case ActionReset:
		err = s.rest.ResetBot(ctx, action.BotID)
	default:
		err = fmt.Errorf("unknown action %q", action.Name)
	}

	if err != nil {
		log.WithError(err).Error("action failed")
		s.notify("error", "Bot action failed", action.Name, err.Error())
		return
	}

	log.Info("action applied")
	s.notify("success", "Bot updated", action.Name, fmt.Sprintf("%s applied", action.Name))
	s.requestRefresh()
}

// Bots returns the current normalized bot list.
func (s *Service) Bots() []models.Bot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bots
}

func (s *Service) notify(kind, title, action, message string) {
	s.hub.Publish(models.NotifyMessage{
		Store: "notifications",
		Notification: &models.Notification{
			ID:      uuid.NewString(),
			Type:    kind,
			Title:   title,
			Action:  action,
			Message: message,
		},
	})
}

func (s *Service) requestRefresh() {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		return
	}
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}
