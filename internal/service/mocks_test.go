package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"sourcetrader/internal/models"
	"sourcetrader/internal/repository"
	"sourcetrader/internal/telegram"
)

// ============ Mock SignalRepository ============

// MockSignalRepository хранит сигналы в памяти и повторяет семантику SQL:
// SetPnl пишет один раз, MarkClosed не перезаписывает closed_at.
type MockSignalRepository struct {
	mu      sync.Mutex
	signals map[int64]*models.Signal
	nextID  int64
	now     func() time.Time

	insertErr     error
	getErr        error
	latestErr     error
	setPnlErr     error
	setRefErr     error
	extRefErr     error
	markClosedErr error
	listErr       error
	rangeErr      error
	setPnlCalls   int
	latestCalls   int
	getByIDCalls  int
}

func NewMockSignalRepository() *MockSignalRepository {
	return &MockSignalRepository{
		signals: make(map[int64]*models.Signal),
		nextID:  1,
		now:     time.Now,
	}
}

func (m *MockSignalRepository) Insert(ctx context.Context, s *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	s.ID = m.nextID
	m.nextID++
	s.CreatedAt = m.now()
	stored := *s
	m.signals[s.ID] = &stored
	return nil
}

// seed добавляет сигнал напрямую, минуя сервис
func (m *MockSignalRepository) seed(s models.Signal) *models.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.nextID
	}
	if s.ID >= m.nextID {
		m.nextID = s.ID + 1
	}
	m.signals[s.ID] = &s
	copied := s
	return &copied
}

func (m *MockSignalRepository) get(id int64) *models.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[id]
	if !ok {
		return nil
	}
	copied := *s
	return &copied
}

func (m *MockSignalRepository) SetReference(ctx context.Context, id int64, refOpenID *int64) error {
	if refOpenID == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setRefErr != nil {
		return m.setRefErr
	}
	s, ok := m.signals[id]
	if !ok {
		return repository.ErrSignalNotFound
	}
	ref := *refOpenID
	s.RefOpenID = &ref
	return nil
}

func (m *MockSignalRepository) SetExternalRef(ctx context.Context, id int64, ref *int64) error {
	if ref == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.extRefErr != nil {
		return m.extRefErr
	}
	s, ok := m.signals[id]
	if !ok {
		return repository.ErrSignalNotFound
	}
	v := *ref
	s.ExternalRef = &v
	return nil
}

func (m *MockSignalRepository) MarkClosed(ctx context.Context, id int64, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markClosedErr != nil {
		return m.markClosedErr
	}
	if s, ok := m.signals[id]; ok && s.ClosedAt == nil {
		t := closedAt
		s.ClosedAt = &t
	}
	return nil
}

func (m *MockSignalRepository) SetPnl(ctx context.Context, id int64, pnl float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setPnlCalls++
	if m.setPnlErr != nil {
		return false, m.setPnlErr
	}
	s, ok := m.signals[id]
	if !ok || s.PnlPct != nil {
		return false, nil
	}
	v := pnl
	s.PnlPct = &v
	return true, nil
}

func (m *MockSignalRepository) GetByID(ctx context.Context, id int64) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.signals[id]
	if !ok {
		return nil, repository.ErrSignalNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *MockSignalRepository) LatestOpen(ctx context.Context, symbol string, side models.Side, beforeID int64) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latestCalls++
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	var best *models.Signal
	for _, s := range m.signals {
		if s.Symbol != symbol || s.Side != side {
			continue
		}
		if beforeID > 0 && s.ID >= beforeID {
			continue
		}
		if best == nil || s.ID > best.ID {
			best = s
		}
	}
	if best == nil {
		return nil, repository.ErrSignalNotFound
	}
	copied := *best
	return &copied, nil
}

func (m *MockSignalRepository) sortedIDs(desc bool) []int64 {
	ids := make([]int64, 0, len(m.signals))
	for id := range m.signals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if desc {
			return ids[i] > ids[j]
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (m *MockSignalRepository) Recent(ctx context.Context, limit int) ([]*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*models.Signal, 0, limit)
	for _, id := range m.sortedIDs(true) {
		if len(result) >= limit {
			break
		}
		copied := *m.signals[id]
		result = append(result, &copied)
	}
	return result, nil
}

func (m *MockSignalRepository) ListUnpricedCloses(ctx context.Context) ([]models.UnpricedClose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []models.UnpricedClose
	for _, id := range m.sortedIDs(false) {
		c := m.signals[id]
		if !c.Side.IsClose() || c.PnlPct != nil || c.RefOpenID == nil {
			continue
		}
		open, ok := m.signals[*c.RefOpenID]
		if !ok {
			continue
		}
		result = append(result, models.UnpricedClose{
			ID:        c.ID,
			Side:      c.Side,
			Price:     c.Price,
			RefOpenID: open.ID,
			OpenPrice: open.Price,
		})
	}
	return result, nil
}

func (m *MockSignalRepository) ListClosedInRange(ctx context.Context, from, to time.Time) ([]models.ClosedTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rangeErr != nil {
		return nil, m.rangeErr
	}
	var trades []models.ClosedTrade
	for _, id := range m.sortedIDs(false) {
		s := m.signals[id]
		if !s.Side.IsClose() || s.PnlPct == nil || s.ClosedAt == nil {
			continue
		}
		if s.ClosedAt.Before(from) || s.ClosedAt.After(to) {
			continue
		}
		trades = append(trades, models.ClosedTrade{
			ID:       s.ID,
			Symbol:   s.Symbol,
			Side:     s.Side,
			PnlPct:   *s.PnlPct,
			ClosedAt: *s.ClosedAt,
		})
	}
	return trades, nil
}

func (m *MockSignalRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.signals), nil
}

// ============ Mock SubscriberRepository ============

type MockSubscriberRepository struct {
	mu          sync.Mutex
	subscribers map[int64]*models.Subscriber

	ensureErr error
	activeErr error
	extendErr error
}

func NewMockSubscriberRepository() *MockSubscriberRepository {
	return &MockSubscriberRepository{subscribers: make(map[int64]*models.Subscriber)}
}

func (m *MockSubscriberRepository) add(sub models.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[sub.ID] = &sub
}

func (m *MockSubscriberRepository) get(id int64) *models.Subscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscribers[id]
	if !ok {
		return nil
	}
	copied := *s
	return &copied
}

func (m *MockSubscriberRepository) Ensure(ctx context.Context, id, chatID int64) (*models.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ensureErr != nil {
		return nil, m.ensureErr
	}
	s, ok := m.subscribers[id]
	if !ok {
		s = &models.Subscriber{ID: id, CreatedAt: time.Now()}
		m.subscribers[id] = s
	}
	s.ChatID = chatID
	copied := *s
	return &copied, nil
}

func (m *MockSubscriberRepository) GetByID(ctx context.Context, id int64) (*models.Subscriber, error) {
	if s := m.get(id); s != nil {
		return s, nil
	}
	return nil, repository.ErrSubscriberNotFound
}

func (m *MockSubscriberRepository) ActiveChatIDs(ctx context.Context, now time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeErr != nil {
		return nil, m.activeErr
	}
	var ids []int64
	for _, s := range m.subscribers {
		if s.IsActive(now) {
			ids = append(ids, s.ChatID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MockSubscriberRepository) ActivateTrial(ctx context.Context, id int64, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscribers[id]
	if !ok || s.TrialStartedAt != nil {
		return false, nil
	}
	if s.ExpiresAt != nil && !s.ExpiresAt.Before(until) {
		return false, nil
	}
	started := time.Now()
	u := until
	s.TrialStartedAt = &started
	s.ExpiresAt = &u
	return true, nil
}

func (m *MockSubscriberRepository) SetAwaitingTx(ctx context.Context, id int64, awaiting bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscribers[id]
	if !ok {
		return repository.ErrSubscriberNotFound
	}
	s.AwaitingTx = awaiting
	return nil
}

func (m *MockSubscriberRepository) Extend(ctx context.Context, id int64, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.extendErr != nil {
		return m.extendErr
	}
	s, ok := m.subscribers[id]
	if !ok {
		return repository.ErrSubscriberNotFound
	}
	u := until
	s.ExpiresAt = &u
	s.AwaitingTx = false
	return nil
}

func (m *MockSubscriberRepository) CountActive(ctx context.Context, now time.Time) (int, error) {
	ids, err := m.ActiveChatIDs(ctx, now)
	return len(ids), err
}

// ============ Mock StateRepository ============

type MockStateRepository struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
	setErr error
	sets   int
}

func NewMockStateRepository() *MockStateRepository {
	return &MockStateRepository{values: make(map[string]string)}
}

func (m *MockStateRepository) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", repository.ErrStateNotFound
	}
	return v, nil
}

func (m *MockStateRepository) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	m.sets++
	return nil
}

// ============ Mock Sender ============

type MockSender struct {
	mu      sync.Mutex
	sent    []telegram.OutgoingMessage
	failFor map[int64]error
	sendErr error
	afterOK func(ctx context.Context, delivered int) // вызывается вне блокировки
}

func NewMockSender() *MockSender {
	return &MockSender{failFor: make(map[int64]error)}
}

func (m *MockSender) SendMessage(ctx context.Context, msg telegram.OutgoingMessage) error {
	m.mu.Lock()
	if m.sendErr != nil {
		m.mu.Unlock()
		return m.sendErr
	}
	if err, ok := m.failFor[msg.ChatID]; ok {
		m.mu.Unlock()
		return err
	}
	m.sent = append(m.sent, msg)
	delivered, hook := len(m.sent), m.afterOK
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, delivered)
	}
	return nil
}

func (m *MockSender) Messages() []telegram.OutgoingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]telegram.OutgoingMessage(nil), m.sent...)
}

// ============ Mock LiveBroadcaster ============

type MockLiveBroadcaster struct {
	mu        sync.Mutex
	signals   []models.Signal
	stats     []*models.Performance
	summaries []*models.SummaryResult
}

func (m *MockLiveBroadcaster) BroadcastSignal(signal *models.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, *signal)
}

func (m *MockLiveBroadcaster) BroadcastStats(perf *models.Performance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = append(m.stats, perf)
}

func (m *MockLiveBroadcaster) BroadcastSummary(result *models.SummaryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, result)
}

func (m *MockLiveBroadcaster) counts() (signals, stats, summaries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.signals), len(m.stats), len(m.summaries)
}

// ============ Mock EventPublisher ============

type MockEventPublisher struct {
	mu         sync.Mutex
	published  []models.Signal
	publishErr error
}

func (m *MockEventPublisher) PublishSignal(ctx context.Context, s *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, *s)
	return nil
}

func (m *MockEventPublisher) Published() []models.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Signal(nil), m.published...)
}
