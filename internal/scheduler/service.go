package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/interfaces"
	"github.com/ternarybob/nuntio/internal/models"
)

// Cadence names, used for logging and the next-run report
const (
	cadenceRSSFetch     = "rss_fetch"
	cadenceAIProcessing = "ai_processing"
	cadenceHealthCheck  = "health_check"
	cadenceCleanup      = "cleanup"
)

// Service implements SchedulerService on robfig/cron. Each cadence fires a
// request event; the coordinator translates events into queue jobs. Cadences
// are independent timers and may overlap.
type Service struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	running bool

	config  common.SchedulerConfig
	cleanup common.CleanupConfig

	events  interfaces.EventService
	storage interfaces.ArticleStorage
	logger  arbor.ILogger
}

// NewService creates a scheduler service. The storage dependency feeds the
// AI sweep; everything else goes through events.
func NewService(config common.SchedulerConfig, cleanup common.CleanupConfig, events interfaces.EventService, storage interfaces.ArticleStorage, logger arbor.ILogger) *Service {
	return &Service{
		entries: make(map[string]cron.EntryID),
		config:  config,
		cleanup: cleanup,
		events:  events,
		storage: storage,
		logger:  logger,
	}
}

// Start registers and starts all cadences. Idempotent.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.cron = cron.New(cron.WithSeconds())
	s.entries = make(map[string]cron.EntryID)

	cadences := []struct {
		name     string
		schedule string
		run      func()
	}{
		{cadenceRSSFetch, s.config.RSSFetchSchedule, s.fireRSSFetch},
		{cadenceAIProcessing, s.config.AIProcessingSchedule, s.fireAISweep},
		{cadenceHealthCheck, s.config.HealthCheckSchedule, s.fireHealthCheck},
		{cadenceCleanup, s.config.CleanupSchedule, s.fireCleanup},
	}

	for _, c := range cadences {
		cadence := c
		entryID, err := s.cron.AddFunc(cadence.schedule, func() {
			s.executeCadence(cadence.name, cadence.run)
		})
		if err != nil {
			s.cron = nil
			return fmt.Errorf("failed to register %s cadence: %w", cadence.name, err)
		}
		s.entries[cadence.name] = entryID

		s.logger.Info().
			Str("cadence", cadence.name).
			Str("schedule", cadence.schedule).
			Msg("Cadence registered")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Int("cadences", len(s.entries)).Msg("Scheduler started")
	return nil
}

// Stop halts all cadences. Idempotent. A cadence mid-fire runs to
// completion.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.cron = nil
	s.entries = make(map[string]cron.EntryID)
	s.running = false
	s.mu.Unlock()

	// Wait outside the lock; a cadence mid-fire may still need it
	ctx := c.Stop()
	<-ctx.Done()

	s.logger.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether cadences are active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// UpdateConfig merges a partial update. A running scheduler is stopped and
// restarted so the new cadences apply atomically, with no partial-timer
// state.
func (s *Service) UpdateConfig(update interfaces.SchedulerUpdate) error {
	merged := s.mergedConfig(update)

	schedules := map[string]string{
		"rss_fetch_schedule":     merged.RSSFetchSchedule,
		"ai_processing_schedule": merged.AIProcessingSchedule,
		"health_check_schedule":  merged.HealthCheckSchedule,
		"cleanup_schedule":       merged.CleanupSchedule,
	}
	for name, schedule := range schedules {
		if err := common.ValidateJobSchedule(schedule); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if merged.SweepLimit <= 0 {
		return fmt.Errorf("sweep_limit must be positive, got %d", merged.SweepLimit)
	}
	if merged.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", merged.BatchSize)
	}

	s.mu.Lock()
	wasRunning := s.running
	s.config = merged
	s.mu.Unlock()

	if wasRunning {
		s.Stop()
		if err := s.Start(); err != nil {
			return fmt.Errorf("failed to restart scheduler with new config: %w", err)
		}
	}

	s.logger.Info().Bool("restarted", wasRunning).Msg("Scheduler configuration updated")
	return nil
}

func (s *Service) mergedConfig(update interfaces.SchedulerUpdate) common.SchedulerConfig {
	s.mu.Lock()
	merged := s.config
	s.mu.Unlock()

	if update.RSSFetchSchedule != nil {
		merged.RSSFetchSchedule = *update.RSSFetchSchedule
	}
	if update.AIProcessingSchedule != nil {
		merged.AIProcessingSchedule = *update.AIProcessingSchedule
	}
	if update.HealthCheckSchedule != nil {
		merged.HealthCheckSchedule = *update.HealthCheckSchedule
	}
	if update.CleanupSchedule != nil {
		merged.CleanupSchedule = *update.CleanupSchedule
	}
	if update.SweepLimit != nil {
		merged.SweepLimit = *update.SweepLimit
	}
	if update.BatchSize != nil {
		merged.BatchSize = *update.BatchSize
	}
	return merged
}

// NextScheduledJobs reports each cadence with its estimated next fire time.
// Advisory only; the cron entries are the source of truth.
func (s *Service) NextScheduledJobs() []interfaces.ScheduledJobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules := map[string]string{
		cadenceRSSFetch:     s.config.RSSFetchSchedule,
		cadenceAIProcessing: s.config.AIProcessingSchedule,
		cadenceHealthCheck:  s.config.HealthCheckSchedule,
		cadenceCleanup:      s.config.CleanupSchedule,
	}

	infos := make([]interfaces.ScheduledJobInfo, 0, len(s.entries))
	for name, entryID := range s.entries {
		entry := s.cron.Entry(entryID)
		infos = append(infos, interfaces.ScheduledJobInfo{
			Name:     name,
			Schedule: schedules[name],
			NextRun:  entry.Next,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].NextRun.Before(infos[j].NextRun)
	})
	return infos
}

// executeCadence wraps a cadence fire with panic recovery so one bad run
// never kills the timer
func (s *Service) executeCadence(name string, run func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("cadence", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Cadence panicked")
		}
	}()

	s.logger.Debug().Str("cadence", name).Msg("Cadence fired")
	run()
}

func (s *Service) fireRSSFetch() {
	s.publishRequest(interfaces.EventRSSFetchRequested, nil)
}

func (s *Service) fireHealthCheck() {
	s.publishRequest(interfaces.EventHealthCheckRequested, models.HealthCheckPayload{Deep: false})
}

func (s *Service) fireCleanup() {
	s.publishRequest(interfaces.EventCleanupRequested, models.CleanupPayload{OlderThanDays: s.cleanup.OlderThanDays})
}

// fireAISweep queries articles awaiting processing, chunks them and emits
// one batch request per chunk. The payload is a snapshot; retries reuse it
// without re-fetching. Errors are logged and swallowed so the timer keeps
// firing.
func (s *Service) fireAISweep() {
	s.mu.Lock()
	sweepLimit := s.config.SweepLimit
	batchSize := s.config.BatchSize
	s.mu.Unlock()

	ctx := context.Background()

	articles, err := s.storage.GetPendingArticles(ctx, sweepLimit)
	if err != nil {
		s.logger.Error().Err(err).Msg("AI sweep failed to query pending articles")
		return
	}
	if len(articles) == 0 {
		s.logger.Debug().Msg("AI sweep found no pending articles")
		return
	}

	categories, err := s.storage.GetCategories(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("AI sweep failed to query categories")
		return
	}

	ids := make([]string, 0, len(articles))
	for _, article := range articles {
		ids = append(ids, article.ID)
	}

	batches := 0
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}

		s.publishRequest(interfaces.EventBatchProcessingRequested, models.BatchPayload{
			ArticleIDs: ids[start:end],
			Categories: categories,
		})
		batches++
	}

	s.logger.Info().
		Int("articles", len(ids)).
		Int("batches", batches).
		Int("batch_size", batchSize).
		Msg("AI sweep dispatched")
}

func (s *Service) publishRequest(eventType interfaces.EventType, payload any) {
	if err := s.events.Publish(context.Background(), interfaces.Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}); err != nil {
		s.logger.Error().
			Err(err).
			Str("event_type", string(eventType)).
			Msg("Failed to publish cadence request")
	}
}
