package chats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew  = "chats.service.new"
	opApplyUpdate = "chats.apply_update"
	opCreateChat  = "chats.create_chat"
	opGetChat     = "chats.get_chat"
	opListChats   = "chats.list_chats"
	opDeleteChat  = "chats.delete_chat"

	logFieldOwnerID = "owner_id"
	logFieldChatID  = "chat_id"
	logFieldStage   = "stage"

	columnID        = "id"
	columnTitle     = "title"
	columnPinned    = "pinned"
	columnUpdatedAt = "updated_at"

	queryChatOwner      = "id = ? AND owner_id = ?"
	queryOwner          = "owner_id = ?"
	queryChildChatOwner = "chat_id = ? AND owner_id = ?"
	orderChatsForOwner  = "pinned DESC, updated_at DESC"
	orderMessages       = "position ASC, created_at ASC"
	orderCheckpoints    = "message_index ASC, id ASC"

	messageConflictGuard    = "chat_messages.chat_id = excluded.chat_id AND chat_messages.owner_id = excluded.owner_id"
	checkpointConflictGuard = "chat_checkpoints.chat_id = excluded.chat_id AND chat_checkpoints.owner_id = excluded.owner_id"

	reasonMissingDatabase      = "missing_database"
	reasonMissingIDProvider    = "missing_id_provider"
	reasonChatLookupFailed     = "chat_lookup_failed"
	reasonMetadataUpdateFailed = "metadata_update_failed"
	reasonUpsertFailedSuffix   = "_upsert_failed"
	reasonIDGenerationFailed   = "id_generation_failed"
	reasonInsertFailed         = "insert_failed"
	reasonQueryFailed          = "query_failed"
	reasonDeleteFailed         = "delete_failed"

	defaultChatTitle = "New chat"
)

var noOpLogger = zap.NewNop()

// ServiceConfig describes the dependencies of the chat reconciler.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service reconciles client updates against the durable chat store. Every read and
// write is scoped by owner.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// ApplyUpdate applies a validated partial update for the chat owned by ownerID.
//
// Ownership is confirmed before anything is written and enforced again by the owner
// predicate on the metadata patch. Messages and checkpoints are written after the
// metadata patch commits; when they fail the result is tagged ApplyStatusMetadataOnly
// and a *PartialApplyError is returned alongside it.
func (s *Service) ApplyUpdate(ctx context.Context, ownerID OwnerID, request UpdateRequest) (UpdateResult, error) {
	rejected := UpdateResult{Status: ApplyStatusRejected}
	if s.db == nil {
		s.logError(opApplyUpdate, reasonMissingDatabase, errMissingDatabase)
		return rejected, newServiceError(opApplyUpdate, reasonMissingDatabase, errMissingDatabase)
	}

	chatID := request.ChatID.String()
	var chat Chat
	err := s.db.WithContext(ctx).
		Where(queryChatOwner, chatID, ownerID.String()).
		Take(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rejected, ErrChatNotFound
	}
	if err != nil {
		s.logError(opApplyUpdate, reasonChatLookupFailed, err,
			zap.String(logFieldOwnerID, ownerID.String()),
			zap.String(logFieldChatID, chatID))
		return rejected, newServiceError(opApplyUpdate, reasonChatLookupFailed, err)
	}

	updatedAt := s.clock().UTC()
	patch := map[string]interface{}{columnUpdatedAt: updatedAt}
	if request.Title != nil {
		patch[columnTitle] = *request.Title
		chat.Title = *request.Title
	}
	if request.Pinned != nil {
		patch[columnPinned] = *request.Pinned
		chat.Pinned = *request.Pinned
	}
	chat.UpdatedAt = updatedAt

	patchResult := s.db.WithContext(ctx).
		Model(&Chat{}).
		Where(queryChatOwner, chatID, ownerID.String()).
		Updates(patch)
	if patchResult.Error != nil {
		s.logError(opApplyUpdate, reasonMetadataUpdateFailed, patchResult.Error,
			zap.String(logFieldOwnerID, ownerID.String()),
			zap.String(logFieldChatID, chatID))
		return rejected, newServiceError(opApplyUpdate, reasonMetadataUpdateFailed, patchResult.Error)
	}
	if patchResult.RowsAffected == 0 {
		return rejected, ErrChatNotFound
	}

	result := UpdateResult{Status: ApplyStatusApplied, Chat: summarize(chat)}
	if len(request.Messages) == 0 && len(request.Checkpoints) == 0 {
		return result, nil
	}

	stage := StageMessages
	var messagesWritten, checkpointsWritten int
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		written, err := upsertMessages(tx, chatID, ownerID.String(), request.Messages)
		if err != nil {
			return err
		}
		messagesWritten = written

		stage = StageCheckpoints
		if len(request.Messages) > 0 {
			stage = StageMessagesAndCheckpoints
		}
		written, err = upsertCheckpoints(tx, chatID, ownerID.String(), request.Checkpoints)
		if err != nil {
			return err
		}
		checkpointsWritten = written
		return nil
	})
	if txErr != nil {
		reason := stage + reasonUpsertFailedSuffix
		s.logError(opApplyUpdate, reason, txErr,
			zap.String(logFieldOwnerID, ownerID.String()),
			zap.String(logFieldChatID, chatID),
			zap.String(logFieldStage, stage))
		result.Status = ApplyStatusMetadataOnly
		return result, &PartialApplyError{
			ChatID: chatID,
			Stage:  stage,
			Err:    newServiceError(opApplyUpdate, reason, txErr),
		}
	}

	result.MessagesWritten = messagesWritten
	result.CheckpointsWritten = checkpointsWritten
	return result, nil
}

func upsertMessages(tx *gorm.DB, chatID, ownerID string, updates []MessageUpdate) (int, error) {
	for position, update := range updates {
		row := Message{
			ID:              NormalizeMessageID(update.ID),
			ChatID:          chatID,
			OwnerID:         ownerID,
			Role:            update.Role,
			Content:         update.Content.Serialize(),
			Parts:           update.Content.columnParts(),
			Position:        position,
			ClientCreatedAt: update.CreatedAt,
		}
		upsert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: columnID}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "content", "parts", "position", "created_at"}),
			Where:     clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: messageConflictGuard}}},
		}).Create(&row)
		if upsert.Error != nil {
			return 0, upsert.Error
		}
		if upsert.RowsAffected == 0 {
			return 0, fmt.Errorf("%w: message %s", errRecordConflict, row.ID)
		}
	}
	return len(updates), nil
}

func upsertCheckpoints(tx *gorm.DB, chatID, ownerID string, updates []CheckpointUpdate) (int, error) {
	for _, update := range updates {
		row := Checkpoint{
			ID:           update.ID,
			ChatID:       chatID,
			OwnerID:      ownerID,
			MessageIndex: update.MessageIndex,
			Timestamp:    update.Timestamp,
		}
		upsert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: columnID}},
			DoUpdates: clause.AssignmentColumns([]string{"message_index", "timestamp"}),
			Where:     clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: checkpointConflictGuard}}},
		}).Create(&row)
		if upsert.Error != nil {
			return 0, upsert.Error
		}
		if upsert.RowsAffected == 0 {
			return 0, fmt.Errorf("%w: checkpoint %s", errRecordConflict, row.ID)
		}
	}
	return len(updates), nil
}

// CreateChat stores a new empty chat for ownerID.
func (s *Service) CreateChat(ctx context.Context, ownerID OwnerID, title string) (ChatSummary, error) {
	if s.db == nil {
		s.logError(opCreateChat, reasonMissingDatabase, errMissingDatabase)
		return ChatSummary{}, newServiceError(opCreateChat, reasonMissingDatabase, errMissingDatabase)
	}
	if s.idProvider == nil {
		s.logError(opCreateChat, reasonMissingIDProvider, errMissingIDProvider)
		return ChatSummary{}, newServiceError(opCreateChat, reasonMissingIDProvider, errMissingIDProvider)
	}

	chatID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateChat, reasonIDGenerationFailed, err, zap.String(logFieldOwnerID, ownerID.String()))
		return ChatSummary{}, newServiceError(opCreateChat, reasonIDGenerationFailed, err)
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultChatTitle
	}
	now := s.clock().UTC()
	chat := Chat{
		ID:        chatID,
		OwnerID:   ownerID.String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&chat).Error; err != nil {
		s.logError(opCreateChat, reasonInsertFailed, err,
			zap.String(logFieldOwnerID, ownerID.String()),
			zap.String(logFieldChatID, chatID))
		return ChatSummary{}, newServiceError(opCreateChat, reasonInsertFailed, err)
	}
	return summarize(chat), nil
}

// GetChat returns the chat with its messages in snapshot order and its checkpoints.
func (s *Service) GetChat(ctx context.Context, ownerID OwnerID, chatID ChatID) (ChatDetail, error) {
	if s.db == nil {
		s.logError(opGetChat, reasonMissingDatabase, errMissingDatabase)
		return ChatDetail{}, newServiceError(opGetChat, reasonMissingDatabase, errMissingDatabase)
	}

	var chat Chat
	err := s.db.WithContext(ctx).
		Where(queryChatOwner, chatID.String(), ownerID.String()).
		Take(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ChatDetail{}, ErrChatNotFound
	}
	if err != nil {
		s.logError(opGetChat, reasonQueryFailed, err,
			zap.String(logFieldOwnerID, ownerID.String()),
			zap.String(logFieldChatID, chatID.String()))
		return ChatDetail{}, newServiceError(opGetChat, reasonQueryFailed, err)
	}

	var messages []Message
	if err := s.db.WithContext(ctx).
		Where(queryChildChatOwner, chatID.String(), ownerID.String()).
		Order(orderMessages).
		Find(&messages).Error; err != nil {
		s.logError(opGetChat, reasonQueryFailed, err, zap.String(logFieldChatID, chatID.String()))
		return ChatDetail{}, newServiceError(opGetChat, reasonQueryFailed, err)
	}

	var checkpoints []Checkpoint
	if err := s.db.WithContext(ctx).
		Where(queryChildChatOwner, chatID.String(), ownerID.String()).
		Order(orderCheckpoints).
		Find(&checkpoints).Error; err != nil {
		s.logError(opGetChat, reasonQueryFailed, err, zap.String(logFieldChatID, chatID.String()))
		return ChatDetail{}, newServiceError(opGetChat, reasonQueryFailed, err)
	}

	return ChatDetail{
		Chat:        summarize(chat),
		CreatedAt:   chat.CreatedAt.UTC(),
		Messages:    messages,
		Checkpoints: checkpoints,
	}, nil
}

// ListChats returns the owner's chats, pinned first, then most recently updated.
func (s *Service) ListChats(ctx context.Context, ownerID OwnerID) ([]ChatSummary, error) {
	if s.db == nil {
		s.logError(opListChats, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opListChats, reasonMissingDatabase, errMissingDatabase)
	}

	var chats []Chat
	if err := s.db.WithContext(ctx).
		Where(queryOwner, ownerID.String()).
		Order(orderChatsForOwner).
		Find(&chats).Error; err != nil {
		s.logError(opListChats, reasonQueryFailed, err, zap.String(logFieldOwnerID, ownerID.String()))
		return nil, newServiceError(opListChats, reasonQueryFailed, err)
	}

	summaries := make([]ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summaries = append(summaries, summarize(chat))
	}
	return summaries, nil
}

// DeleteChat removes the chat together with its messages and checkpoints.
func (s *Service) DeleteChat(ctx context.Context, ownerID OwnerID, chatID ChatID) error {
	if s.db == nil {
		s.logError(opDeleteChat, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(opDeleteChat, reasonMissingDatabase, errMissingDatabase)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted := tx.Where(queryChatOwner, chatID.String(), ownerID.String()).Delete(&Chat{})
		if deleted.Error != nil {
			return deleted.Error
		}
		if deleted.RowsAffected == 0 {
			return ErrChatNotFound
		}
		if err := tx.Where(queryChildChatOwner, chatID.String(), ownerID.String()).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Where(queryChildChatOwner, chatID.String(), ownerID.String()).Delete(&Checkpoint{}).Error
	})
	if errors.Is(txErr, ErrChatNotFound) {
		return ErrChatNotFound
	}
	if txErr != nil {
		s.logError(opDeleteChat, reasonDeleteFailed, txErr,
			zap.String(logFieldOwnerID, ownerID.String()),
			zap.String(logFieldChatID, chatID.String()))
		return newServiceError(opDeleteChat, reasonDeleteFailed, txErr)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("chats service error", attrs...)
}
