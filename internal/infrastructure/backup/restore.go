package backup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/pkg/backup"

	"go.uber.org/zap"
)

type RestoreService struct {
	backupService *backup.BackupService
	channels      ports.ChannelRepository
	messages      ports.MessageRepository
	logger        *zap.SugaredLogger
}

func NewRestoreService(
	backupService *backup.BackupService,
	channels ports.ChannelRepository,
	messages ports.MessageRepository,
	logger *zap.SugaredLogger,
) *RestoreService {
	return &RestoreService{
		backupService: backupService,
		channels:      channels,
		messages:      messages,
		logger:        logger,
	}
}

type RestoreOptions struct {
	OverwriteExisting bool
	RestoreMessages   bool
}

func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{RestoreMessages: true}
}

// RestoreLatestIfEmpty loads the newest backup when the store has no
// channels. It reports whether anything was restored.
func (rs *RestoreService) RestoreLatestIfEmpty(ctx context.Context) (bool, error) {
	count, err := rs.channels.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count channels: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	name, err := rs.backupService.Latest(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list backups: %w", err)
	}
	if name == "" {
		return false, nil
	}
	if err := rs.RestoreFromBackup(ctx, name, DefaultRestoreOptions()); err != nil {
		return false, err
	}
	return true, nil
}

func (rs *RestoreService) RestoreFromBackup(ctx context.Context, name string, options RestoreOptions) error {
	rs.logger.Infow("starting restore", "backup_name", name)

	data, err := rs.backupService.RestoreBackup(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load backup: %w", err)
	}

	var channels []channelRecord
	if err := data.Section(sectionChannels, &channels); err != nil {
		return err
	}
	restored, err := rs.restoreChannels(ctx, channels, options)
	if err != nil {
		return fmt.Errorf("failed to restore channels: %w", err)
	}

	messageCount := 0
	if options.RestoreMessages {
		var messages []messageRecord
		if err := data.Section(sectionMessages, &messages); err != nil {
			return err
		}
		messageCount, err = rs.restoreMessages(ctx, messages, restored)
		if err != nil {
			return fmt.Errorf("failed to restore messages: %w", err)
		}
	}

	rs.logger.Infow("restore completed", "backup_name", name, "channels", len(restored), "messages", messageCount)
	return nil
}

func (rs *RestoreService) restoreChannels(ctx context.Context, records []channelRecord, options RestoreOptions) (map[domain.ChannelID]bool, error) {
	restored := make(map[domain.ChannelID]bool, len(records))
	for _, rec := range records {
		ch := rec.toDomain()

		existing, err := rs.channels.GetByID(ctx, ch.ID)
		if err != nil && !errors.Is(err, domain.ErrChannelNotFound) {
			return nil, err
		}
		if existing != nil && !options.OverwriteExisting {
			rs.logger.Debugw("skipping existing channel", "channel_id", ch.ID)
			continue
		}
		if existing != nil {
			if err := rs.channels.Delete(ctx, ch.ID); err != nil {
				return nil, err
			}
		}
		if err := rs.channels.Create(ctx, ch); err != nil {
			return nil, err
		}
		restored[ch.ID] = true
	}
	return restored, nil
}

func (rs *RestoreService) restoreMessages(ctx context.Context, records []messageRecord, channels map[domain.ChannelID]bool) (int, error) {
	// ListRecent hands them out newest first; replay in posting order.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	count := 0
	for _, rec := range records {
		msg := rec.toDomain()
		if !channels[msg.ChannelID] {
			continue
		}
		if err := rs.messages.Save(ctx, msg); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// FindBackupByTime returns the newest backup taken at or before target.
func (rs *RestoreService) FindBackupByTime(ctx context.Context, target time.Time) (string, error) {
	names, err := rs.backupService.ListBackups(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}

	var found string
	for _, name := range names {
		ts, ok := backup.BackupTime(name)
		if !ok || ts.After(target) {
			continue
		}
		found = name
	}
	if found == "" {
		return "", fmt.Errorf("no backup found before or at target time: %v", target)
	}
	return found, nil
}
