package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/dbx"
	"github.com/dmitrijs2005/carenest/internal/server/mirror"
	"github.com/dmitrijs2005/carenest/internal/server/models"
	"github.com/dmitrijs2005/carenest/internal/server/notify"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/attachments"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/conversations"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/messages"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/users"
	"github.com/google/uuid"
)

var errBoom = errors.New("boom")

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// memStore backs every fake repository. Writes are not transactional; the
// sqlmock DB only checks that transactions are opened and finished.
type memStore struct {
	mu            sync.Mutex
	clock         time.Time
	users         map[string]*models.User
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	attachments   []models.Attachment
	refresh       map[string]*models.RefreshToken

	writes     int
	lastOffset int

	beforeConversationCreate func()
	failMessageCreate        error
	failAttachmentCreate     error
	failTouch                error
	failMarkDelivered        error
}

func newMemStore() *memStore {
	return &memStore{
		clock:         time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		users:         map[string]*models.User{},
		conversations: map[string]*models.Conversation{},
		messages:      map[string]*models.Message{},
		refresh:       map[string]*models.RefreshToken{},
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addUser(email string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: uuid.NewString(), Email: email, Role: models.RoleParent}
	s.users[u.ID] = u
	return u
}

func (s *memStore) addConversation(participants ...string) *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &models.Conversation{ID: uuid.NewString(), Type: models.ConversationGroup, Participants: participants, UpdatedAt: s.tick()}
	s.conversations[c.ID] = c
	return c
}

func (s *memStore) addMessage(convID, senderID, text string) *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &models.Message{ID: uuid.NewString(), ConversationID: convID, SenderID: senderID, Text: text,
		DeliveryState: models.DeliverySent, CreatedAt: s.tick()}
	s.messages[m.ID] = m
	return m
}

func (s *memStore) conversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return memUsers{m.s} }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return memRefresh{m.s}
}
func (m *fakeRepoManager) Conversations(dbx.DBTX) conversations.Repository {
	return memConversations{m.s}
}
func (m *fakeRepoManager) Messages(dbx.DBTX) messages.Repository       { return memMessages{m.s} }
func (m *fakeRepoManager) Attachments(dbx.DBTX) attachments.Repository { return memAttachments{m.s} }

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return nil, common.ErrConflict
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = r.s.tick()
	r.s.users[u.ID] = u
	r.s.writes++
	return u, nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) GetByExternalID(context.Context, string) (*models.User, error) {
	return nil, common.ErrorNotFound
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) SetExternalID(context.Context, string, string) error { return nil }

type memRefresh struct{ s *memStore }

func (r memRefresh) Create(_ context.Context, userID, token string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.refresh[token] = &models.RefreshToken{ID: uuid.NewString(), UserID: userID, Token: token, Expires: expiresAt}
	return nil
}

func (r memRefresh) Consume(_ context.Context, token string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.refresh[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(r.s.refresh, token)
	return t, nil
}

func (r memRefresh) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, t := range r.s.refresh {
		if t.ExpiredAt(now) {
			delete(r.s.refresh, k)
			n++
		}
	}
	return n, nil
}

type memConversations struct{ s *memStore }

func (r memConversations) Create(_ context.Context, c *models.Conversation) (*models.Conversation, error) {
	if hook := r.s.beforeConversationCreate; hook != nil {
		r.s.beforeConversationCreate = nil
		hook()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.conversations {
		if c.DirectKey != "" && existing.DirectKey == c.DirectKey {
			return nil, common.ErrConflict
		}
	}
	c.ID = uuid.NewString()
	c.CreatedAt = r.s.tick()
	c.UpdatedAt = c.CreatedAt
	stored := *c
	r.s.conversations[c.ID] = &stored
	r.s.writes++
	return c, nil
}

func (r memConversations) AddParticipant(_ context.Context, conversationID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[conversationID]
	if !ok {
		return common.ErrConversationNotFound
	}
	if !c.HasParticipant(userID) {
		c.Participants = append(c.Participants, userID)
	}
	return nil
}

func (r memConversations) get(id string) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return nil, common.ErrConversationNotFound
	}
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	return &cp, nil
}

func (r memConversations) GetByID(_ context.Context, id string) (*models.Conversation, error) {
	return r.get(id)
}

func (r memConversations) FindDirect(_ context.Context, key string) (*models.Conversation, error) {
	r.s.mu.Lock()
	var id string
	for _, c := range r.s.conversations {
		if c.DirectKey == key {
			id = c.ID
		}
	}
	r.s.mu.Unlock()
	if id == "" {
		return nil, common.ErrConversationNotFound
	}
	return r.get(id)
}

func (r memConversations) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	c, err := r.get(conversationID)
	if err != nil {
		return false, nil
	}
	return c.HasParticipant(userID), nil
}

func (r memConversations) Touch(_ context.Context, conversationID, messageID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failTouch != nil {
		return r.s.failTouch
	}
	c, ok := r.s.conversations[conversationID]
	if !ok {
		return common.ErrConversationNotFound
	}
	c.LastMessageID = messageID
	c.UpdatedAt = r.s.tick()
	r.s.writes++
	return nil
}

func (r memConversations) ListForUser(_ context.Context, userID string, limit int) ([]*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Conversation
	for _, c := range r.s.conversations {
		if c.HasParticipant(userID) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memMessages struct{ s *memStore }

func (r memMessages) Create(_ context.Context, m *models.Message) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failMessageCreate != nil {
		return nil, r.s.failMessageCreate
	}
	m.ID = uuid.NewString()
	m.DeliveryState = models.DeliverySent
	m.CreatedAt = r.s.tick()
	stored := *m
	r.s.messages[m.ID] = &stored
	r.s.writes++
	return m, nil
}

func (r memMessages) GetByID(_ context.Context, id string) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, common.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (r memMessages) ListPage(_ context.Context, conversationID string, limit, offset int) ([]*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lastOffset = offset
	var all []*models.Message
	for _, m := range r.s.messages {
		if m.ConversationID == conversationID && !m.Deleted {
			cp := *m
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r memMessages) ListByIDs(_ context.Context, conversationID string, ids []string, since time.Time) ([]*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Message
	for _, id := range ids {
		m, ok := r.s.messages[id]
		if !ok || m.ConversationID != conversationID || m.Deleted || m.CreatedAt.Before(since) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memMessages) MarkRead(_ context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.messages {
		if m.ConversationID == conversationID && m.SenderID != readerID && !m.Read && !m.Deleted {
			m.Read = true
			ts := at
			m.ReadAt = &ts
			n++
		}
	}
	return n, nil
}

func (r memMessages) MarkDelivered(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failMarkDelivered != nil {
		return r.s.failMarkDelivered
	}
	if m, ok := r.s.messages[id]; ok && m.DeliveryState == models.DeliverySent {
		m.DeliveryState = models.DeliveryDelivered
	}
	return nil
}

func (r memMessages) SoftDelete(_ context.Context, id, senderID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok || m.SenderID != senderID || m.Deleted {
		return common.ErrMessageNotFound
	}
	m.Deleted = true
	return nil
}

type memAttachments struct{ s *memStore }

func (r memAttachments) Create(_ context.Context, a *models.Attachment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failAttachmentCreate != nil {
		return r.s.failAttachmentCreate
	}
	a.ID = uuid.NewString()
	r.s.attachments = append(r.s.attachments, *a)
	r.s.writes++
	return nil
}

func (r memAttachments) ListByMessageIDs(_ context.Context, ids []string) (map[string][]models.Attachment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := map[string][]models.Attachment{}
	for _, a := range r.s.attachments {
		if want[a.MessageID] {
			out[a.MessageID] = append(out[a.MessageID], a)
		}
	}
	return out, nil
}

// --- collaborators ---

type fakeBlobs struct {
	mu      sync.Mutex
	puts    map[string][]byte
	deleted []string
	failFor map[string]bool
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{puts: map[string][]byte{}, failFor: map[string]bool{}} }

func (b *fakeBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name := range b.failFor {
		if len(key) >= len(name) && key[len(key)-len(name):] == name {
			return errBoom
		}
	}
	b.puts[key] = data
	return nil
}

func (b *fakeBlobs) URL(_ context.Context, key string) (string, error) {
	return "https://blobs.example/" + key, nil
}

func (b *fakeBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.puts, key)
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *fakeBlobs) stored() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.puts)
}

type fakeMirror struct {
	mu       sync.Mutex
	appended []*models.Message
	appendFn func(ctx context.Context) error
	records  []mirror.Record
	readErr  error
	// recentFn runs before Recent returns, standing in for a send that
	// lands between the page query and the mirror read.
	recentFn func()
}

func (m *fakeMirror) Append(ctx context.Context, msg *models.Message) (string, error) {
	if m.appendFn != nil {
		if err := m.appendFn(ctx); err != nil {
			return "", err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.appended = append(m.appended, &cp)
	return "1-0", nil
}

func (m *fakeMirror) Recent(context.Context, string, int64) ([]mirror.Record, error) {
	if m.recentFn != nil {
		m.recentFn()
	}
	return m.records, m.readErr
}

type emitted struct {
	room, event string
	payload     any
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
	online map[string]bool
}

func (e *fakeEmitter) Emit(_ context.Context, room, event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{room, event, payload})
	return nil
}

func (e *fakeEmitter) IsOnline(userID string) bool { return e.online[userID] }

type fakeNotifier struct {
	sent []notify.Notification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, msg notify.Notification) error {
	n.sent = append(n.sent, msg)
	return n.err
}
