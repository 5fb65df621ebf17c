package dunning

import (
	"errors"
	"testing"
	"time"

	"github.com/campushq/campusbill/app/models"
	"gorm.io/gorm"
)

type fakeRepo struct {
	rules     []models.DunningRule
	campaigns map[uint]*models.DunningCampaign
	nextID    uint
}

func newFakeRepo(rules []models.DunningRule) *fakeRepo {
	return &fakeRepo{rules: rules, campaigns: map[uint]*models.DunningCampaign{}}
}

func (r *fakeRepo) ActiveRules() ([]models.DunningRule, error) {
	return r.rules, nil
}

func (r *fakeRepo) CreateCampaign(campaign *models.DunningCampaign) error {
	r.nextID++
	campaign.ID = r.nextID
	clone := *campaign
	r.campaigns[campaign.ID] = &clone
	return nil
}

func (r *fakeRepo) GetActiveCampaign(subscriptionID uint) (*models.DunningCampaign, error) {
	for _, c := range r.campaigns {
		if c.SubscriptionID == subscriptionID && c.Status == models.DunningCampaignStatusActive {
			clone := *c
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) ActiveCampaignsForSubscription(subscriptionID uint) ([]models.DunningCampaign, error) {
	var out []models.DunningCampaign
	for _, c := range r.campaigns {
		if c.SubscriptionID == subscriptionID && c.Status == models.DunningCampaignStatusActive {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeRepo) DueCampaigns(now time.Time) ([]models.DunningCampaign, error) {
	var out []models.DunningCampaign
	for _, c := range r.campaigns {
		if c.Status == models.DunningCampaignStatusActive && c.NextActionAt != nil && !c.NextActionAt.After(now) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateCampaign(campaign *models.DunningCampaign) error {
	clone := *campaign
	r.campaigns[campaign.ID] = &clone
	return nil
}

type fakeActions struct {
	suspended  []uint
	canceled   []uint
	suspendErr error
	cancelErr  error
}

func (a *fakeActions) Suspend(subscriptionID uint) error {
	if a.suspendErr != nil {
		return a.suspendErr
	}
	a.suspended = append(a.suspended, subscriptionID)
	return nil
}

func (a *fakeActions) CancelForNonPayment(subscriptionID uint) error {
	if a.cancelErr != nil {
		return a.cancelErr
	}
	a.canceled = append(a.canceled, subscriptionID)
	return nil
}

type fakeNotifier struct {
	sent []models.DunningRule
	err  error
}

func (n *fakeNotifier) NotifyOverdue(subscriptionID uint, rule models.DunningRule) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, rule)
	return nil
}

func defaultRules() []models.DunningRule {
	return []models.DunningRule{
		{ID: 1, TriggerDays: 1, Action: models.DunningActionEmail, IsActive: true},
		{ID: 2, TriggerDays: 3, Action: models.DunningActionEmail, IsActive: true},
		{ID: 3, TriggerDays: 7, Action: models.DunningActionEmail, IsActive: true},
		{ID: 4, TriggerDays: 14, Action: models.DunningActionSuspend, IsActive: true},
		{ID: 5, TriggerDays: 30, Action: models.DunningActionCancel, IsActive: true},
	}
}

func testEngine(rules []models.DunningRule) (*Engine, *fakeRepo, *fakeActions, *fakeNotifier) {
	repo := newFakeRepo(rules)
	actions := &fakeActions{}
	notifier := &fakeNotifier{}
	return &Engine{repo: repo, subscriptions: actions, notifier: notifier}, repo, actions, notifier
}

func TestStartCampaign(t *testing.T) {
	engine, repo, _, _ := testEngine(defaultRules())

	if err := engine.StartCampaign(42); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}

	campaign, err := repo.GetActiveCampaign(42)
	if err != nil {
		t.Fatalf("no campaign created: %v", err)
	}
	if campaign.CurrentStep != 0 || campaign.TotalSteps != 5 {
		t.Fatalf("campaign = %+v", campaign)
	}
	if campaign.NextActionAt == nil {
		t.Fatalf("expected NextActionAt to be scheduled")
	}
	wantFirst := campaign.StartedAt.AddDate(0, 0, 1)
	if !campaign.NextActionAt.Equal(wantFirst) {
		t.Fatalf("NextActionAt = %v, want %v", campaign.NextActionAt, wantFirst)
	}
}

func TestStartCampaignIdempotent(t *testing.T) {
	engine, repo, _, _ := testEngine(defaultRules())

	if err := engine.StartCampaign(42); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	if err := engine.StartCampaign(42); err != nil {
		t.Fatalf("second StartCampaign: %v", err)
	}
	if len(repo.campaigns) != 1 {
		t.Fatalf("got %d campaigns, want 1", len(repo.campaigns))
	}
}

func TestStartCampaignWithoutRules(t *testing.T) {
	engine, repo, _, _ := testEngine(nil)
	if err := engine.StartCampaign(42); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	if len(repo.campaigns) != 0 {
		t.Fatalf("a campaign without steps must not be created")
	}
}

// Walk a campaign through the whole escalation ladder by advancing the clock
// past each step's offset.
func TestEscalationLadder(t *testing.T) {
	engine, repo, actions, notifier := testEngine(defaultRules())

	if err := engine.StartCampaign(42); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	stored, _ := repo.GetActiveCampaign(42)
	started := stored.StartedAt

	// Offsets relative to campaign start, one tick per step.
	for _, offsetDays := range []int{1, 3, 7, 14, 30} {
		now := started.AddDate(0, 0, offsetDays).Add(time.Hour)
		processed, err := engine.ProcessDueCampaigns(now)
		if err != nil {
			t.Fatalf("ProcessDueCampaigns(day %d): %v", offsetDays, err)
		}
		if processed != 1 {
			t.Fatalf("day %d: processed = %d, want 1", offsetDays, processed)
		}
	}

	if len(notifier.sent) != 5 {
		t.Fatalf("got %d notifications, want 5 (three reminders plus suspend and cancel notices)", len(notifier.sent))
	}
	if len(actions.suspended) != 1 || actions.suspended[0] != 42 {
		t.Fatalf("suspended = %v, want [42]", actions.suspended)
	}
	if len(actions.canceled) != 1 || actions.canceled[0] != 42 {
		t.Fatalf("canceled = %v, want [42]", actions.canceled)
	}

	final := repo.campaigns[1]
	if final.Status != models.DunningCampaignStatusCompleted {
		t.Fatalf("status = %q, want completed", final.Status)
	}
	if final.CompletedAt == nil || final.NextActionAt != nil {
		t.Fatalf("completed campaign = %+v", final)
	}
}

func TestOffsetsRelativeToCampaignStart(t *testing.T) {
	engine, repo, _, _ := testEngine(defaultRules())

	if err := engine.StartCampaign(42); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	stored, _ := repo.GetActiveCampaign(42)
	started := stored.StartedAt

	// Process the first step late, on day 5. The next step is still due on
	// start+3 (already past), not on day 5+3.
	if _, err := engine.ProcessDueCampaigns(started.AddDate(0, 0, 5)); err != nil {
		t.Fatalf("ProcessDueCampaigns: %v", err)
	}

	after, _ := repo.GetActiveCampaign(42)
	want := started.AddDate(0, 0, 3)
	if after.NextActionAt == nil || !after.NextActionAt.Equal(want) {
		t.Fatalf("NextActionAt = %v, want %v (relative to campaign start)", after.NextActionAt, want)
	}
}

func TestFailedSuspendDoesNotAdvance(t *testing.T) {
	engine, repo, actions, _ := testEngine(defaultRules())
	actions.suspendErr = errors.New("lifecycle unavailable")

	if err := engine.StartCampaign(42); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	stored, _ := repo.GetActiveCampaign(42)
	stored.CurrentStep = 3 // the suspend step
	if err := repo.UpdateCampaign(stored); err != nil {
		t.Fatalf("UpdateCampaign: %v", err)
	}

	now := stored.StartedAt.AddDate(0, 0, 14).Add(time.Hour)
	processed, err := engine.ProcessDueCampaigns(now)
	if err != nil {
		t.Fatalf("ProcessDueCampaigns: %v", err)
	}
	if processed != 0 {
		t.Fatalf("processed = %d, a failed suspend must not count", processed)
	}

	after, _ := repo.GetActiveCampaign(42)
	if after.CurrentStep != 3 {
		t.Fatalf("CurrentStep = %d, want 3 (step retried next tick)", after.CurrentStep)
	}

	// Once the lifecycle manager recovers, the retry succeeds and advances.
	actions.suspendErr = nil
	if _, err := engine.ProcessDueCampaigns(now); err != nil {
		t.Fatalf("ProcessDueCampaigns retry: %v", err)
	}
	after, _ = repo.GetActiveCampaign(42)
	if after.CurrentStep != 4 {
		t.Fatalf("CurrentStep = %d, want 4 after successful retry", after.CurrentStep)
	}
	if len(actions.suspended) != 1 {
		t.Fatalf("suspended = %v, want exactly one suspension", actions.suspended)
	}
}

func TestFailedNotificationAdvancesAnyway(t *testing.T) {
	engine, repo, _, notifier := testEngine(defaultRules())
	notifier.err = errors.New("smtp down")

	if err := engine.StartCampaign(42); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	stored, _ := repo.GetActiveCampaign(42)

	now := stored.StartedAt.AddDate(0, 0, 1).Add(time.Hour)
	processed, err := engine.ProcessDueCampaigns(now)
	if err != nil {
		t.Fatalf("ProcessDueCampaigns: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	after, _ := repo.GetActiveCampaign(42)
	if after.CurrentStep != 1 {
		t.Fatalf("CurrentStep = %d, a failed reminder must not block the ladder", after.CurrentStep)
	}
}

func TestStopCampaigns(t *testing.T) {
	engine, repo, _, _ := testEngine(defaultRules())

	if err := engine.StartCampaign(42); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	if err := engine.StopCampaigns(42); err != nil {
		t.Fatalf("StopCampaigns: %v", err)
	}

	if _, err := repo.GetActiveCampaign(42); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected no active campaign after stop, got %v", err)
	}
	stopped := repo.campaigns[1]
	if stopped.Status != models.DunningCampaignStatusCompleted || stopped.CompletedAt == nil {
		t.Fatalf("stopped campaign = %+v", stopped)
	}

	// Stopping again is a no-op.
	if err := engine.StopCampaigns(42); err != nil {
		t.Fatalf("second StopCampaigns: %v", err)
	}
}

func TestStopThenRestartCreatesFreshCampaign(t *testing.T) {
	engine, repo, _, _ := testEngine(defaultRules())

	if err := engine.StartCampaign(42); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	if err := engine.StopCampaigns(42); err != nil {
		t.Fatalf("StopCampaigns: %v", err)
	}
	if err := engine.StartCampaign(42); err != nil {
		t.Fatalf("restart: %v", err)
	}

	fresh, err := repo.GetActiveCampaign(42)
	if err != nil {
		t.Fatalf("no fresh campaign: %v", err)
	}
	if fresh.ID == 1 || fresh.CurrentStep != 0 {
		t.Fatalf("fresh campaign = %+v, want a new row at step 0", fresh)
	}
}

func TestProcessDueCampaignsIsolation(t *testing.T) {
	engine, repo, actions, _ := testEngine(defaultRules())
	actions.cancelErr = errors.New("gateway timeout")

	if err := engine.StartCampaign(1); err != nil {
		t.Fatalf("StartCampaign(1): %v", err)
	}
	if err := engine.StartCampaign(2); err != nil {
		t.Fatalf("StartCampaign(2): %v", err)
	}

	// Move subscription 1's campaign onto its cancel step so it fails.
	var broken *models.DunningCampaign
	for _, c := range repo.campaigns {
		if c.SubscriptionID == 1 {
			broken = c
		}
	}
	broken.CurrentStep = 4
	if err := repo.UpdateCampaign(broken); err != nil {
		t.Fatalf("UpdateCampaign: %v", err)
	}

	now := broken.StartedAt.AddDate(0, 0, 30).Add(time.Hour)
	processed, err := engine.ProcessDueCampaigns(now)
	if err != nil {
		t.Fatalf("ProcessDueCampaigns: %v", err)
	}
	// The healthy campaign still ran; the broken one did not abort the batch.
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}
}
