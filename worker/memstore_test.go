package worker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HeltonFraga01/cortexx-sub017/models"
	"github.com/HeltonFraga01/cortexx-sub017/utils"
)

// memStore is an in-memory Store with the same conditional-update
// semantics as the database-backed one.
type memStore struct {
	mu            sync.Mutex
	campaigns     map[uint]*models.Campaign
	contacts      map[uint][]*models.CampaignContact
	nextID        uint
	nextContactID uint
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[uint]*models.Campaign),
		contacts:  make(map[uint][]*models.CampaignContact),
	}
}

func (s *memStore) CreateCampaign(_ context.Context, campaign *models.Campaign, contacts []models.CampaignContact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	campaign.ID = s.nextID
	copied := *campaign
	s.campaigns[campaign.ID] = &copied

	rows := make([]*models.CampaignContact, len(contacts))
	for i := range contacts {
		s.nextContactID++
		contacts[i].ID = s.nextContactID
		contacts[i].CampaignID = campaign.ID
		row := contacts[i]
		rows[i] = &row
	}
	s.contacts[campaign.ID] = rows
	return nil
}

func (s *memStore) GetCampaign(_ context.Context, id uint) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaign, ok := s.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %d not found", id)
	}
	copied := *campaign
	return &copied, nil
}

func (s *memStore) UpdateCampaignStatus(_ context.Context, id uint, from []string, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaign, ok := s.campaigns[id]
	if !ok {
		return false, fmt.Errorf("campaign %d not found", id)
	}
	for _, status := range from {
		if campaign.Status == status {
			campaign.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) MarkStarted(_ context.Context, id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if campaign, ok := s.campaigns[id]; ok && campaign.StartedAt == nil {
		campaign.StartedAt = &at
	}
	return nil
}

func (s *memStore) MarkCompleted(_ context.Context, id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if campaign, ok := s.campaigns[id]; ok {
		campaign.CompletedAt = &at
	}
	return nil
}

func (s *memStore) SetLastError(_ context.Context, id uint, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if campaign, ok := s.campaigns[id]; ok {
		campaign.LastError = message
	}
	return nil
}

func (s *memStore) NextPendingContact(_ context.Context, campaignID uint, position int) (*models.CampaignContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, contact := range s.contacts[campaignID] {
		if contact.ProcessingOrder == position && contact.Status == models.ContactStatusPending {
			copied := *contact
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) ApplyContactOutcome(_ context.Context, contactID uint, outcome ContactOutcome) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rows := range s.contacts {
		for _, contact := range rows {
			if contact.ID != contactID {
				continue
			}
			if contact.Status != models.ContactStatusPending {
				return false, nil
			}
			contact.Status = outcome.Status
			contact.SentAt = outcome.SentAt
			contact.GatewayMessageID = outcome.GatewayMessageID
			contact.ErrorMessage = outcome.ErrorMessage
			contact.ErrorReason = outcome.ErrorReason
			contact.MissingVariables = outcome.MissingVariables
			return true, nil
		}
	}
	return false, fmt.Errorf("contact %d not found", contactID)
}

func (s *memStore) IncrementCounters(_ context.Context, campaignID uint, sent, failed, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaign, ok := s.campaigns[campaignID]
	if !ok {
		return fmt.Errorf("campaign %d not found", campaignID)
	}
	campaign.SentCount += sent
	campaign.FailedCount += failed
	campaign.CurrentPosition += position
	return nil
}

func (s *memStore) CancelPendingContacts(_ context.Context, campaignID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, contact := range s.contacts[campaignID] {
		if contact.Status == models.ContactStatusPending {
			contact.Status = models.ContactStatusCancelled
			n++
		}
	}
	if campaign, ok := s.campaigns[campaignID]; ok {
		campaign.CancelledCount += int(n)
	}
	return n, nil
}

func (s *memStore) ListContacts(_ context.Context, campaignID uint) ([]models.CampaignContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]models.CampaignContact, 0, len(s.contacts[campaignID]))
	for _, contact := range s.contacts[campaignID] {
		rows = append(rows, *contact)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProcessingOrder < rows[j].ProcessingOrder })
	return rows, nil
}

func (s *memStore) ListByStatus(_ context.Context, status string) ([]models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Campaign
	for _, campaign := range s.campaigns {
		if campaign.Status == status {
			out = append(out, *campaign)
		}
	}
	return out, nil
}

func (s *memStore) ListDueScheduled(_ context.Context, now time.Time) ([]models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Campaign
	for _, campaign := range s.campaigns {
		if campaign.Status != models.CampaignStatusScheduled {
			continue
		}
		at := campaign.Schedule.ScheduledAt
		if at != nil && !at.After(now) {
			out = append(out, *campaign)
		}
	}
	return out, nil
}

// fakeGateway records sends in order and fails the phones it is told
// to fail.
type fakeGateway struct {
	mu        sync.Mutex
	sent      []utils.SendRequest
	failWith  map[string]error
	nextMsgID int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failWith: make(map[string]error)}
}

func (g *fakeGateway) failPhone(phone string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith[phone] = err
}

func (g *fakeGateway) Send(_ context.Context, req utils.SendRequest) (*utils.SendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.failWith[req.Phone]; ok {
		return nil, err
	}
	g.sent = append(g.sent, req)
	g.nextMsgID++
	return &utils.SendResult{MessageID: fmt.Sprintf("wamid-%d", g.nextMsgID)}, nil
}

func (g *fakeGateway) sends() []utils.SendRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]utils.SendRequest, len(g.sent))
	copy(out, g.sent)
	return out
}

// blockingGateway holds every send until release is closed, so a test
// can line up a control call while the send is in flight.
type blockingGateway struct {
	*fakeGateway
	entered chan struct{}
	release chan struct{}
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{
		fakeGateway: newFakeGateway(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
}

func (g *blockingGateway) Send(ctx context.Context, req utils.SendRequest) (*utils.SendResult, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.fakeGateway.Send(ctx, req)
}

// fakeQuota allows a fixed budget of sends and records every commit.
type fakeQuota struct {
	mu      sync.Mutex
	budget  int
	commits []int
}

func newFakeQuota(budget int) *fakeQuota {
	return &fakeQuota{budget: budget}
}

func (q *fakeQuota) CheckAndReserve(_ context.Context, _ uint, cost int) (*utils.QuotaDecision, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.budget < cost {
		return &utils.QuotaDecision{Allowed: false}, nil
	}
	q.budget -= cost
	return &utils.QuotaDecision{Allowed: true, RemainingCredits: q.budget}, nil
}

func (q *fakeQuota) Commit(_ context.Context, _ uint, actualCost int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.commits = append(q.commits, actualCost)
	// Reservations were always for one message here.
	if actualCost == 0 {
		q.budget++
	}
	return nil
}

func (q *fakeQuota) committed() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int, len(q.commits))
	copy(out, q.commits)
	return out
}

func testDispatcher(store Store, quota utils.QuotaGuard, gateway utils.MessageGateway, opts Options) *Dispatcher {
	return testDispatcherWithLease(store, quota, gateway, NewLocalLease(), opts)
}

func testDispatcherWithLease(store Store, quota utils.QuotaGuard, gateway utils.MessageGateway, lease Lease, opts Options) *Dispatcher {
	silent := logrus.New()
	silent.SetOutput(io.Discard)
	return NewDispatcher(store, quota, gateway, lease, silent, opts)
}

func seedCampaign(t *testing.T, store *memStore, campaign *models.Campaign, phones []string) uint {
	t.Helper()
	contacts := make([]models.CampaignContact, len(phones))
	for i, phone := range phones {
		contacts[i] = models.CampaignContact{
			Phone:           phone,
			Status:          models.ContactStatusPending,
			ProcessingOrder: i,
		}
	}
	campaign.TotalContacts = len(contacts)
	if campaign.Status == "" {
		campaign.Status = models.CampaignStatusPending
	}
	if campaign.Templates == nil {
		campaign.Templates = []string{"hello {{name}}"}
	}
	if err := store.CreateCampaign(context.Background(), campaign, contacts); err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
	return campaign.ID
}

func waitForStatus(t *testing.T, store *memStore, id uint, status string) *models.Campaign {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		campaign, err := store.GetCampaign(context.Background(), id)
		if err != nil {
			t.Fatalf("get campaign: %v", err)
		}
		if campaign.Status == status {
			return campaign
		}
		time.Sleep(5 * time.Millisecond)
	}
	campaign, _ := store.GetCampaign(context.Background(), id)
	t.Fatalf("campaign %d never reached %s (still %s)", id, status, campaign.Status)
	return nil
}

func waitForSends(t *testing.T, gateway *fakeGateway, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(gateway.sends()) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("gateway never saw %d sends (got %d)", n, len(gateway.sends()))
}
