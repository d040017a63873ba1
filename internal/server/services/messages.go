package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/dbx"
	"github.com/dmitrijs2005/carenest/internal/logging"
	"github.com/dmitrijs2005/carenest/internal/server/config"
	"github.com/dmitrijs2005/carenest/internal/server/metrics"
	"github.com/dmitrijs2005/carenest/internal/server/mirror"
	"github.com/dmitrijs2005/carenest/internal/server/models"
	"github.com/dmitrijs2005/carenest/internal/server/notify"
	"github.com/dmitrijs2005/carenest/internal/server/presence"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/repomanager"
)

const (
	defaultPageSize      = 50
	maxPageSize          = 200
	conversationsLimit   = 100
	previewLength        = 80
	attachmentPreview    = "Sent an attachment"
	defaultMirrorTimeout = 2 * time.Second
	defaultAttachTimeout = 10 * time.Second
)

var errNoBlobStore = errors.New("attachment storage is not configured")

// BlobStore persists attachment bytes.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, mimeType string) error
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Mirror is the secondary low-latency message store.
type Mirror interface {
	Append(ctx context.Context, msg *models.Message) (string, error)
	Recent(ctx context.Context, conversationID string, limit int64) ([]mirror.Record, error)
}

// Emitter fans events out to connected clients.
type Emitter interface {
	Emit(ctx context.Context, room, event string, payload any) error
	IsOnline(userID string) bool
}

// SendRequest targets either an existing conversation or a recipient.
type SendRequest struct {
	ConversationID string
	RecipientID    string
	JobID          string
	Text           string
	Attachments    []AttachmentUpload
}

type HistoryRequest struct {
	ConversationID string
	RequesterID    string
	Page           int
	PageSize       int
	// IncludeMirror merges recent mirror records into the first page.
	IncludeMirror bool
}

// MessageService writes messages to the authoritative store, mirrors them,
// and fans them out. Secondary effects never fail a request whose
// authoritative write succeeded.
type MessageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager

	blobs    BlobStore
	mirror   Mirror
	emitter  Emitter
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   logging.Logger
	now      func() time.Time

	mirrorTimeout      time.Duration
	attachmentTimeout  time.Duration
	attachmentMaxBytes int64
}

type MessageOption func(*MessageService)

func WithBlobStore(b BlobStore) MessageOption { return func(s *MessageService) { s.blobs = b } }
func WithMirror(m Mirror) MessageOption       { return func(s *MessageService) { s.mirror = m } }
func WithEmitter(e Emitter) MessageOption     { return func(s *MessageService) { s.emitter = e } }
func WithMetrics(m *metrics.Metrics) MessageOption {
	return func(s *MessageService) { s.metrics = m }
}

func WithNotifier(n notify.Notifier) MessageOption {
	return func(s *MessageService) { s.notifier = n }
}

func WithMessageLogger(l logging.Logger) MessageOption {
	return func(s *MessageService) { s.logger = l }
}

func WithMessageClock(now func() time.Time) MessageOption {
	return func(s *MessageService) { s.now = now }
}

func NewMessageService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, opts ...MessageOption) *MessageService {
	s := &MessageService{
		db:                 db,
		repomanager:        m,
		notifier:           notify.Noop{},
		logger:             logging.Nop{},
		now:                time.Now,
		mirrorTimeout:      cfg.MirrorTimeout,
		attachmentTimeout:  cfg.AttachmentTimeout,
		attachmentMaxBytes: cfg.AttachmentMaxBytes,
	}
	if s.mirrorTimeout <= 0 {
		s.mirrorTimeout = defaultMirrorTimeout
	}
	if s.attachmentTimeout <= 0 {
		s.attachmentTimeout = defaultAttachTimeout
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("module", "messages")
	return s
}

// Send validates, stores and distributes one message. Nothing is written
// until the request is known to be valid, and a conversation created for a
// new pair is committed together with its first message.
func (s *MessageService) Send(ctx context.Context, senderID string, req SendRequest) (*models.Message, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && len(req.Attachments) == 0 {
		return nil, common.ErrEmptyMessage
	}
	if (req.ConversationID == "") == (req.RecipientID == "") {
		return nil, common.ErrInvalidTarget
	}
	if id, ok := models.CanonicalID(senderID); ok {
		senderID = id
	}

	decoded := s.decodeAttachments(ctx, req.Attachments)
	if text == "" && len(decoded) == 0 {
		return nil, common.ErrAttachmentsFailed
	}

	conv, err := s.resolveTarget(ctx, senderID, req)
	if err != nil {
		return nil, err
	}

	atts := s.uploadAttachments(ctx, decoded)
	if text == "" && len(atts) == 0 {
		return nil, common.ErrAttachmentsFailed
	}

	msg := &models.Message{SenderID: senderID, Text: text}
	err = s.storeMessage(ctx, conv, msg, atts)
	if errors.Is(err, errDirectTaken) {
		// another sender created the pair's conversation first
		conv, err = s.repomanager.Conversations(s.db).FindDirect(ctx, conv.DirectKey)
		if err == nil {
			err = s.storeMessage(ctx, conv, msg, atts)
		}
	}
	if err != nil {
		s.discardAttachments(ctx, atts)
		return nil, err
	}
	msg.Attachments = atts
	s.metrics.MessageSent()

	s.mirrorMessage(ctx, msg)
	s.signAttachments(ctx, []*models.Message{msg})
	s.fanOut(ctx, conv, msg)
	s.notifyRecipients(ctx, conv, msg)

	return msg, nil
}

// resolveTarget returns the conversation a message goes to without writing.
// A pair that has never talked gets an unsaved conversation (empty ID) that
// storeMessage creates.
func (s *MessageService) resolveTarget(ctx context.Context, senderID string, req SendRequest) (*models.Conversation, error) {
	if req.ConversationID != "" {
		return s.participantConversation(ctx, req.ConversationID, senderID)
	}

	recipient, ok := req.RecipientID, false
	if id, valid := models.CanonicalID(recipient); valid {
		recipient, ok = id, true
	}
	if recipient == senderID {
		return nil, common.ErrSelfConversation
	}
	if !ok {
		return nil, common.ErrRecipientNotFound
	}
	if _, err := s.repomanager.Users(s.db).GetByID(ctx, recipient); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrRecipientNotFound
		}
		return nil, fmt.Errorf("lookup recipient: %w", err)
	}

	key := models.DirectKey(senderID, recipient, req.JobID)
	conv, err := s.repomanager.Conversations(s.db).FindDirect(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, common.ErrConversationNotFound) {
		return nil, err
	}

	typ := models.ConversationDirect
	if req.JobID != "" {
		typ = models.ConversationJob
	}
	return &models.Conversation{
		Type:         typ,
		JobID:        req.JobID,
		DirectKey:    key,
		Participants: []string{senderID, recipient},
	}, nil
}

// errDirectTaken reports that the unique direct_key was claimed by a
// concurrent creator while storeMessage ran.
var errDirectTaken = errors.New("direct conversation created concurrently")

// storeMessage writes the message, its attachments and the conversation
// activity in one transaction, creating the conversation first when it is
// unsaved.
func (s *MessageService) storeMessage(ctx context.Context, conv *models.Conversation, msg *models.Message, atts []models.Attachment) error {
	pending := conv.ID == ""
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if pending {
			convRepo := s.repomanager.Conversations(tx)
			if _, err := convRepo.Create(ctx, conv); err != nil {
				if errors.Is(err, common.ErrConflict) {
					return errDirectTaken
				}
				return fmt.Errorf("error creating conversation: %w", err)
			}
			for _, p := range conv.Participants {
				if err := convRepo.AddParticipant(ctx, conv.ID, p); err != nil {
					return fmt.Errorf("error adding participant: %w", err)
				}
			}
		}

		msg.ConversationID = conv.ID
		if _, err := s.repomanager.Messages(tx).Create(ctx, msg); err != nil {
			return fmt.Errorf("error creating message: %w", err)
		}
		attRepo := s.repomanager.Attachments(tx)
		for i := range atts {
			atts[i].MessageID = msg.ID
			if err := attRepo.Create(ctx, &atts[i]); err != nil {
				return fmt.Errorf("error creating attachment: %w", err)
			}
		}
		return s.repomanager.Conversations(tx).Touch(ctx, conv.ID, msg.ID)
	})
	if err != nil && pending {
		conv.ID = ""
	}
	return err
}

// participantConversation loads the conversation and checks membership.
func (s *MessageService) participantConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	conversationID, ok := models.CanonicalID(conversationID)
	if !ok {
		return nil, common.ErrConversationNotFound
	}
	conv, err := s.repomanager.Conversations(s.db).GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, common.ErrAccessDenied
	}
	return conv, nil
}

// CanAccess reports nil when userID participates in conversationID.
func (s *MessageService) CanAccess(ctx context.Context, conversationID, userID string) error {
	_, err := s.participantConversation(ctx, conversationID, userID)
	return err
}

func (s *MessageService) mirrorMessage(ctx context.Context, msg *models.Message) {
	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.mirrorTimeout)
	defer cancel()

	if _, err := s.mirror.Append(ctx, msg); err != nil {
		s.logger.Warn(ctx, "mirror write failed", "message_id", msg.ID, "error", err)
		s.metrics.MirrorFailed()
	}
}

func (s *MessageService) fanOut(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, conv.ID, presence.EventMessageNew, NewMessagePayload(msg)); err != nil {
		s.logger.Warn(ctx, "fan-out failed", "message_id", msg.ID, "error", err)
	}

	for _, p := range conv.OtherParticipants(msg.SenderID) {
		if !s.emitter.IsOnline(p) {
			continue
		}
		if err := s.repomanager.Messages(s.db).MarkDelivered(ctx, msg.ID); err != nil {
			s.logger.Warn(ctx, "mark delivered failed", "message_id", msg.ID, "error", err)
			return
		}
		msg.DeliveryState = models.DeliveryDelivered
		return
	}
}

func (s *MessageService) notifyRecipients(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	text := preview(msg)
	for _, p := range conv.OtherParticipants(msg.SenderID) {
		err := s.notifier.Notify(ctx, notify.Notification{
			RecipientID:    p,
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			SenderID:       msg.SenderID,
			Preview:        text,
		})
		if err != nil {
			s.logger.Warn(ctx, "notification failed", "message_id", msg.ID, "recipient_id", p, "error", err)
			s.metrics.NotifyFailed()
		}
	}
}

func preview(m *models.Message) string {
	if m.Text == "" {
		return attachmentPreview
	}
	if utf8.RuneCountInString(m.Text) <= previewLength {
		return m.Text
	}
	r := []rune(m.Text)
	return string(r[:previewLength]) + "…"
}

// MarkRead marks the reader's unread incoming messages as read. It is
// idempotent; a repeated call reports zero.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, readerID string) (int64, time.Time, error) {
	conv, err := s.participantConversation(ctx, conversationID, readerID)
	if err != nil {
		return 0, time.Time{}, err
	}
	conversationID = conv.ID

	at := s.now().UTC()
	n, err := s.repomanager.Messages(s.db).MarkRead(ctx, conversationID, readerID, at)
	if err != nil {
		return 0, time.Time{}, err
	}

	if n > 0 && s.emitter != nil {
		payload := ReadPayload{ConversationID: conversationID, ReaderID: readerID, MarkedCount: n, ReadAt: at}
		if err := s.emitter.Emit(ctx, conversationID, presence.EventMessageRead, payload); err != nil {
			s.logger.Warn(ctx, "read receipt fan-out failed", "conversation_id", conversationID, "error", err)
		}
	}
	return n, at, nil
}

// History returns one page of messages oldest first.
func (s *MessageService) History(ctx context.Context, req HistoryRequest) ([]*models.Message, error) {
	conv, err := s.participantConversation(ctx, req.ConversationID, req.RequesterID)
	if err != nil {
		return nil, err
	}

	page, size := req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	// the offset is bound as a Postgres integer
	if last := math.MaxInt32 / size; page > last {
		page = last
	}

	repo := s.repomanager.Messages(s.db)
	msgs, err := repo.ListPage(ctx, conv.ID, size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if req.IncludeMirror && page == 1 && s.mirror != nil {
		msgs = s.mergeMirror(ctx, conv.ID, msgs, size)
	}

	if err := s.loadAttachments(ctx, msgs); err != nil {
		return nil, err
	}
	s.signAttachments(ctx, msgs)
	return msgs, nil
}

// mergeMirror adds messages the mirror knows about but the first page
// lacks. Mirror records only contribute ids; content comes from the
// authoritative store in one query, and ids it does not have, has deleted,
// or that predate the page are dropped. The page never grows past limit.
func (s *MessageService) mergeMirror(ctx context.Context, conversationID string, msgs []*models.Message, limit int) []*models.Message {
	recs, err := s.mirror.Recent(ctx, conversationID, int64(limit))
	if err != nil {
		s.logger.Warn(ctx, "mirror read failed", "conversation_id", conversationID, "error", err)
		s.metrics.MirrorFailed()
		return msgs
	}

	seen := make(map[string]struct{}, len(msgs)+len(recs))
	for _, m := range msgs {
		seen[m.ID] = struct{}{}
	}
	var ids []string
	for _, rec := range recs {
		id, ok := models.CanonicalID(rec.MessageID)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return msgs
	}

	var since time.Time
	if len(msgs) > 0 {
		since = msgs[0].CreatedAt
	}
	extra, err := s.repomanager.Messages(s.db).ListByIDs(ctx, conversationID, ids, since)
	if err != nil {
		s.logger.Warn(ctx, "mirror reconcile lookup failed", "conversation_id", conversationID, "error", err)
		return msgs
	}
	if len(extra) == 0 {
		return msgs
	}

	msgs = append(msgs, extra...)
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

func (s *MessageService) loadAttachments(ctx context.Context, msgs []*models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	byMessage, err := s.repomanager.Attachments(s.db).ListByMessageIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		m.Attachments = byMessage[m.ID]
	}
	return nil
}

// Delete soft-deletes a message. Only its sender may do so.
func (s *MessageService) Delete(ctx context.Context, messageID, requesterID string) error {
	messageID, ok := models.CanonicalID(messageID)
	if !ok {
		return common.ErrMessageNotFound
	}
	repo := s.repomanager.Messages(s.db)
	msg, err := repo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Deleted {
		return common.ErrMessageNotFound
	}
	if msg.SenderID != requesterID {
		return common.ErrNotSender
	}
	if err := repo.SoftDelete(ctx, messageID, requesterID); err != nil {
		return err
	}

	if s.emitter != nil {
		payload := DeletedPayload{ConversationID: msg.ConversationID, MessageID: msg.ID}
		if err := s.emitter.Emit(ctx, msg.ConversationID, presence.EventMessageDeleted, payload); err != nil {
			s.logger.Warn(ctx, "delete fan-out failed", "message_id", msg.ID, "error", err)
		}
	}
	return nil
}

// Conversations lists the user's conversations, most recently active first.
func (s *MessageService) Conversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	return s.repomanager.Conversations(s.db).ListForUser(ctx, userID, conversationsLimit)
}
