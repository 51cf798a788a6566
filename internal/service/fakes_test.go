package service

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/gateway"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// MockCampaignRepo keeps campaigns in memory and counts writes.
type MockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	nextID    int
	writes    int
	statuses  []model.CampaignStatus
	getErr    error
	updateErr error
}

func newMockCampaignRepo(cs ...*model.Campaign) *MockCampaignRepo {
	r := &MockCampaignRepo{campaigns: map[int]*model.Campaign{}, nextID: 100}
	for _, c := range cs {
		r.campaigns[c.ID] = c
	}
	return r
}

func (m *MockCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	c.CreatedAt = time.Now()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *MockCampaignRepo) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *MockCampaignRepo) UpdateStatus(ctx context.Context, id int, status model.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	if !model.CanTransition(c.Status, status) {
		return appErrors.NewInvalidTransition(id, string(c.Status), string(status))
	}
	m.writes++
	m.statuses = append(m.statuses, status)
	c.Status = status
	return nil
}

func (m *MockCampaignRepo) IncrementSentCount(ctx context.Context, id, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.campaigns[id].SentCount += n
	return nil
}

func (m *MockCampaignRepo) ListByUser(ctx context.Context, userID int) ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Campaign
	for _, c := range m.campaigns {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *model.Campaign) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (m *MockCampaignRepo) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	all, _ := m.ListByUser(ctx, 1)
	if status != "" {
		all = slices.DeleteFunc(all, func(c *model.Campaign) bool { return string(c.Status) != status })
	}
	if offset >= len(all) {
		return []*model.Campaign{}, len(all), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

func (m *MockCampaignRepo) get(id int) model.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.campaigns[id]
}

type MockUserRepo struct {
	users map[int]*model.User
}

func (m *MockUserRepo) GetByID(ctx context.Context, id int) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, appErrors.NewUserNotFound(id)
	}
	return u, nil
}

// MockLogRepo is an append-only in-memory log table.
type MockLogRepo struct {
	mu        sync.Mutex
	entries   []model.LogEntry
	nextID    int
	deleteErr error
}

func (m *MockLogRepo) Create(ctx context.Context, campaignID int, status model.LogStatus, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.entries = append(m.entries, model.LogEntry{ID: m.nextID, CampaignID: campaignID, Status: status, Message: message, CreatedAt: time.Now()})
	return nil
}

func (m *MockLogRepo) ListByCampaign(ctx context.Context, campaignID int) ([]*model.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.LogEntry
	for i := range m.entries {
		if m.entries[i].CampaignID == campaignID {
			e := m.entries[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

func (m *MockLogRepo) CountByStatus(ctx context.Context, campaignID int) (map[model.LogStatus]int, error) {
	stats := map[model.LogStatus]int{model.LogSent: 0, model.LogFailed: 0, model.LogPaused: 0}
	entries, _ := m.ListByCampaign(ctx, campaignID)
	for _, e := range entries {
		stats[e.Status]++
	}
	return stats, nil
}

func (m *MockLogRepo) DeleteByCampaignIDs(ctx context.Context, campaignIDs []int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	before := len(m.entries)
	m.entries = slices.DeleteFunc(m.entries, func(e model.LogEntry) bool {
		return slices.Contains(campaignIDs, e.CampaignID)
	})
	return int64(before - len(m.entries)), nil
}

func (m *MockLogRepo) count(campaignID int, status model.LogStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.CampaignID == campaignID && e.Status == status {
			n++
		}
	}
	return n
}

func (m *MockLogRepo) messages(campaignID int, status model.LogStatus) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		if e.CampaignID == campaignID && e.Status == status {
			out = append(out, e.Message)
		}
	}
	return out
}

type enqueued struct {
	job   model.Job
	delay time.Duration
}

type MockQueue struct {
	mu    sync.Mutex
	jobs  []enqueued
	calls int
	err   error
}

func (m *MockQueue) Enqueue(ctx context.Context, job model.Job, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, enqueued{job: job, delay: delay})
	return nil
}

// MockGateway answers from a per-address script; unlisted addresses succeed.
type MockGateway struct {
	mu       sync.Mutex
	outcomes map[string]gateway.Outcome
	attempts []string
	onSend   func(email string)
}

func (m *MockGateway) Send(ctx context.Context, user *model.User, lead model.Lead, msg gateway.Message) gateway.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, lead.Email)
	if m.onSend != nil {
		m.onSend(lead.Email)
	}
	if out, ok := m.outcomes[lead.Email]; ok {
		return out
	}
	return gateway.Sent()
}

type notification struct {
	userID        int
	subject, body string
}

type MockNotifier struct {
	mu    sync.Mutex
	calls []notification
	err   error
}

func (m *MockNotifier) Notify(ctx context.Context, user *model.User, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, notification{userID: user.ID, subject: subject, body: body})
	return m.err
}

func leads(emails ...string) []model.Lead {
	out := make([]model.Lead, len(emails))
	for i, e := range emails {
		out[i] = model.Lead{Email: e, Fields: map[string]string{"name": e}}
	}
	return out
}

func gatewayLimit() gateway.Outcome {
	return gateway.Classify(403, "Daily Limit Exceeded")
}
