package backup

import (
	"context"
	"fmt"
	"time"

	"huddle/internal/core/ports"
	"huddle/pkg/backup"

	"go.uber.org/zap"
)

// Scheduler snapshots channels and their recent history on a fixed interval.
type Scheduler struct {
	backupService *backup.BackupService
	channels      ports.ChannelRepository
	messages      ports.MessageRepository
	interval      time.Duration
	retentionDays int
	perChannel    int
	logger        *zap.SugaredLogger
	stopChan      chan struct{}
}

type Config struct {
	Interval           time.Duration
	RetentionDays      int
	MessagesPerChannel int
}

func NewScheduler(
	backupService *backup.BackupService,
	channels ports.ChannelRepository,
	messages ports.MessageRepository,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		backupService: backupService,
		channels:      channels,
		messages:      messages,
		interval:      cfg.Interval,
		retentionDays: cfg.RetentionDays,
		perChannel:    cfg.MessagesPerChannel,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start blocks until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Errorw("scheduled backup failed", "error", err)
			}
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// RunOnce takes one backup and prunes expired ones.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	data, err := s.collectData(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to collect backup data: %w", err)
	}

	name, err := s.backupService.CreateBackup(ctx, data)
	if err != nil {
		return "", err
	}
	s.logger.Infow("backup created",
		"backup_name", name,
		"channels", data.Metadata["channel_count"],
		"messages", data.Metadata["message_count"],
	)

	if s.retentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
		deleted, err := s.backupService.Prune(ctx, cutoff)
		if err != nil {
			s.logger.Warnw("failed to cleanup old backups", "error", err)
		} else if deleted > 0 {
			s.logger.Infow("deleted old backups", "count", deleted)
		}
	}
	return name, nil
}

func (s *Scheduler) collectData(ctx context.Context) (*backup.BackupData, error) {
	channels, err := s.channels.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}

	channelRecords := make([]channelRecord, 0, len(channels))
	var messageRecords []messageRecord
	for _, ch := range channels {
		channelRecords = append(channelRecords, toChannelRecord(ch))

		msgs, err := s.messages.ListRecent(ctx, ch.ID, s.perChannel)
		if err != nil {
			s.logger.Warnw("failed to list messages for channel", "channel_id", ch.ID, "error", err)
			continue
		}
		for _, m := range msgs {
			messageRecords = append(messageRecords, toMessageRecord(m))
		}
	}

	data := &backup.BackupData{
		Metadata: map[string]interface{}{
			"channel_count": len(channelRecords),
			"message_count": len(messageRecords),
			"backup_type":   "scheduled",
		},
	}
	if err := data.SetSection(sectionChannels, channelRecords); err != nil {
		return nil, err
	}
	if err := data.SetSection(sectionMessages, messageRecords); err != nil {
		return nil, err
	}
	return data, nil
}
