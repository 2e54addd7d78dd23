package breach

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/safespotlabs/geowatch/internal/geo"
)

// mockStore implements Store for testing.
type mockStore struct {
	mu        sync.Mutex
	fences    []*Geofence
	events    map[string]*Event
	order     []string
	nextID    int
	listErr   error
	insertErr map[string]error // geofence ID -> error
	markErr   error
}

func newMockStore() *mockStore {
	return &mockStore{
		events:    make(map[string]*Event),
		insertErr: make(map[string]error),
	}
}

func (m *mockStore) addFence(gf *Geofence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fences = append(m.fences, gf)
}

func (m *mockStore) seedEvent(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id] = &Event{ID: id}
	m.order = append(m.order, id)
}

func (m *mockStore) alerted(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	return ok && ev.AlertSent
}

func (m *mockStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

func (m *mockStore) ListActiveGeofences(_ context.Context) ([]*Geofence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*Geofence, 0, len(m.fences))
	for _, gf := range m.fences {
		if gf.Active {
			cp := *gf
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) InsertBreach(_ context.Context, userID int64, geofenceID string, at geo.Point, score int) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertErr[geofenceID]; err != nil {
		return nil, err
	}
	m.nextID++
	ev := &Event{
		ID:         fmt.Sprintf("ev-%d", m.nextID),
		UserID:     userID,
		GeofenceID: geofenceID,
		Location:   at,
		RiskScore:  score,
		OccurredAt: time.Now(),
	}
	m.events[ev.ID] = ev
	m.order = append(m.order, ev.ID)
	cp := *ev
	return &cp, nil
}

func (m *mockStore) MarkAlerted(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	if ev, ok := m.events[eventID]; ok {
		ev.AlertSent = true
	}
	return nil
}

func (m *mockStore) GetBreach(_ context.Context, eventID string) (*Event, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return nil, false, nil
	}
	cp := *ev
	return &cp, true, nil
}

func (m *mockStore) ListBreachesByUser(_ context.Context, userID int64, _ int) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for i := len(m.order) - 1; i >= 0; i-- {
		if ev := m.events[m.order[i]]; ev.UserID == userID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &Stats{TotalGeofences: len(m.fences), TotalBreaches: len(m.order)}, nil
}

func squareFence(id, name string, tier RiskTier, latLo, latHi, lngLo, lngHi float64) *Geofence {
	return &Geofence{
		ID:   id,
		Name: name,
		Vertices: []geo.Point{
			{Lat: latLo, Lng: lngLo},
			{Lat: latLo, Lng: lngHi},
			{Lat: latHi, Lng: lngHi},
			{Lat: latHi, Lng: lngLo},
		},
		Tier:   tier,
		Kind:   KindAlertZone,
		Active: true,
	}
}

func newTestService(st Store, ch Channel) *Service {
	scorer := NewScorer(rand.New(rand.NewPCG(7, 11)))
	d := NewDispatcher(ch, st, log.Nop(), nil)
	return NewService(st, scorer, d, log.Nop(), nil)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestCheckLocation_Validation(t *testing.T) {
	t.Parallel()

	st := newMockStore()
	st.addFence(squareFence("gf-1", "Dockside", TierHigh, 40.70, 40.72, -74.02, -74.00))
	svc := newTestService(st, &mockChannel{})

	tests := []struct {
		name   string
		lat    float64
		lng    float64
		userID int64
	}{
		{"latitude too high", 91, -74.01, 1},
		{"latitude too low", -90.5, -74.01, 1},
		{"longitude too high", 40.71, 181, 1},
		{"longitude too low", 40.71, -180.1, 1},
		{"zero user id", 40.71, -74.01, 0},
		{"negative user id", 40.71, -74.01, -3},
		{"everything wrong", 200, 200, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaches, err := svc.CheckLocation(context.Background(), tt.lat, tt.lng, tt.userID)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			if breaches != nil {
				t.Errorf("breaches = %v, want nil", breaches)
			}
		})
	}

	if st.eventCount() != 0 {
		t.Errorf("events persisted = %d, want 0 (validation must have no side effects)", st.eventCount())
	}
}

func TestCheckLocation_HighRiskSquare(t *testing.T) {
	t.Parallel()

	st := newMockStore()
	st.addFence(squareFence("gf-1", "Dockside", TierHigh, 40.70, 40.72, -74.02, -74.00))
	svc := newTestService(st, &mockChannel{})

	breaches, err := svc.CheckLocation(context.Background(), 40.71, -74.01, 7)
	if err != nil {
		t.Fatalf("CheckLocation: %v", err)
	}
	if len(breaches) != 1 {
		t.Fatalf("breaches = %d, want 1", len(breaches))
	}

	b := breaches[0]
	if b.GeofenceID != "gf-1" || b.GeofenceName != "Dockside" {
		t.Errorf("breach identifies %s/%s, want gf-1/Dockside", b.GeofenceID, b.GeofenceName)
	}
	if b.Tier != TierHigh {
		t.Errorf("tier = %s, want HIGH", b.Tier)
	}
	if b.RiskScore < 80 || b.RiskScore > 100 {
		t.Errorf("score = %d, want within [80, 100]", b.RiskScore)
	}
	if len(b.Recommendations) == 0 {
		t.Error("breach should carry recommendations")
	}
	if b.EventID == "" {
		t.Error("breach should reference its persisted event")
	}
	if st.eventCount() != 1 {
		t.Errorf("events persisted = %d, want 1", st.eventCount())
	}
}

func TestCheckLocation_OutsideAllFences(t *testing.T) {
	t.Parallel()

	st := newMockStore()
	st.addFence(squareFence("gf-1", "Dockside", TierHigh, 40.70, 40.72, -74.02, -74.00))
	svc := newTestService(st, &mockChannel{})

	breaches, err := svc.CheckLocation(context.Background(), 40.69, -74.01, 7)
	if err != nil {
		t.Fatalf("CheckLocation: %v", err)
	}
	if len(breaches) != 0 {
		t.Errorf("breaches = %d, want 0", len(breaches))
	}
	if st.eventCount() != 0 {
		t.Errorf("events persisted = %d, want 0", st.eventCount())
	}
}

func TestCheckLocation_AdjacentFencesSelectByLongitude(t *testing.T) {
	t.Parallel()

	st := newMockStore()
	st.addFence(squareFence("gf-low", "West Strip", TierLow, 40.71, 40.72, -74.03, -74.02))
	st.addFence(squareFence("gf-med", "East Strip", TierMedium, 40.71, 40.72, -74.02, -74.01))
	svc := newTestService(st, &mockChannel{})

	breaches, err := svc.CheckLocation(context.Background(), 40.715, -74.025, 7)
	if err != nil {
		t.Fatalf("CheckLocation: %v", err)
	}
	if len(breaches) != 1 || breaches[0].Tier != TierLow {
		t.Fatalf("west point: got %d breaches (first tier %v), want exactly 1 LOW",
			len(breaches), tierOf(breaches))
	}

	breaches, err = svc.CheckLocation(context.Background(), 40.715, -74.015, 7)
	if err != nil {
		t.Fatalf("CheckLocation: %v", err)
	}
	if len(breaches) != 1 || breaches[0].Tier != TierMedium {
		t.Fatalf("east point: got %d breaches (first tier %v), want exactly 1 MEDIUM",
			len(breaches), tierOf(breaches))
	}
}

func tierOf(bs []*Breach) RiskTier {
	if len(bs) == 0 {
		return ""
	}
	return bs[0].Tier
}

func TestCheckLocation_OverlappingFencesNoDedup(t *testing.T) {
	t.Parallel()

	st := newMockStore()
	st.addFence(squareFence("gf-1", "Outer", TierLow, 40.70, 40.80, -74.10, -74.00))
	st.addFence(squareFence("gf-2", "Middle", TierMedium, 40.70, 40.75, -74.05, -74.00))
	st.addFence(squareFence("gf-3", "Inner", TierHigh, 40.70, 40.72, -74.02, -74.00))
	svc := newTestService(st, &mockChannel{})

	breaches, err := svc.CheckLocation(context.Background(), 40.71, -74.01, 7)
	if err != nil {
		t.Fatalf("CheckLocation: %v", err)
	}
	if len(breaches) != 3 {
		t.Fatalf("breaches = %d, want 3 (overlapping fences are independent)", len(breaches))
	}
	if st.eventCount() != 3 {
		t.Errorf("events persisted = %d, want 3", st.eventCount())
	}

	seen := make(map[string]bool)
	for _, b := range breaches {
		seen[b.EventID] = true
	}
	if len(seen) != 3 {
		t.Errorf("distinct event IDs = %d, want 3", len(seen))
	}
}

func TestCheckLocation_InactiveFenceIgnored(t *testing.T) {
	t.Parallel()

	st := newMockStore()
	gf := squareFence("gf-1", "Dockside", TierHigh, 40.70, 40.72, -74.02, -74.00)
	gf.Active = false
	st.addFence(gf)
	svc := newTestService(st, &mockChannel{})

	breaches, err := svc.CheckLocation(context.Background(), 40.71, -74.01, 7)
	if err != nil {
		t.Fatalf("CheckLocation: %v", err)
	}
	if len(breaches) != 0 {
		t.Errorf("breaches = %d, want 0 for inactive fence", len(breaches))
	}
}

func TestCheckLocation_DegenerateRingSkipped(t *testing.T) {
	t.Parallel()

	st := newMockStore()
	st.addFence(&Geofence{
		ID:       "gf-bad",
		Name:     "Broken",
		Vertices: []geo.Point{{Lat: 40.71, Lng: -74.01}},
		Tier:     TierHigh,
		Kind:     KindAlertZone,
		Active:   true,
	})
	svc := newTestService(st, &mockChannel{})

	breaches, err := svc.CheckLocation(context.Background(), 40.71, -74.01, 7)
	if err != nil {
		t.Fatalf("CheckLocation: %v", err)
	}
	if len(breaches) != 0 {
		t.Errorf("breaches = %d, want 0 for degenerate ring", len(breaches))
	}
}

func TestCheckLocation_RepeatedCallsProduceFreshEvents(t *testing.T) {
	t.Parallel()

	st := newMockStore()
	st.addFence(squareFence("gf-1", "Dockside", TierMedium, 40.70, 40.72, -74.02, -74.00))
	svc := newTestService(st, &mockChannel{})

	first, err := svc.CheckLocation(context.Background(), 40.71, -74.01, 7)
	if err != nil {
		t.Fatalf("first CheckLocation: %v", err)
	}
	second, err := svc.CheckLocation(context.Background(), 40.71, -74.01, 7)
	if err != nil {
		t.Fatalf("second CheckLocation: %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("breach counts = %d, %d, want 1, 1", len(first), len(second))
	}
	if first[0].EventID == second[0].EventID {
		t.Error("repeated checks must persist independent events")
	}
	if first[0].GeofenceID != second[0].GeofenceID {
		t.Error("repeated checks must match the same geofence")
	}
	for _, b := range []*Breach{first[0], second[0]} {
		if b.RiskScore < 40 || b.RiskScore > 79 {
			t.Errorf("score = %d, want within [40, 79]", b.RiskScore)
		}
	}
}

func TestCheckLocation_InsertFailureSkipsFenceOnly(t *testing.T) {
	t.Parallel()

	st := newMockStore()
	st.addFence(squareFence("gf-1", "Outer", TierLow, 40.70, 40.80, -74.10, -74.00))
	st.addFence(squareFence("gf-2", "Inner", TierHigh, 40.70, 40.72, -74.02, -74.00))
	st.insertErr["gf-1"] = errors.New("disk full")
	svc := newTestService(st, &mockChannel{})

	breaches, err := svc.CheckLocation(context.Background(), 40.71, -74.01, 7)
	if err == nil {
		t.Fatal("expected a storage error for the failed fence")
	}
	if errors.Is(err, ErrValidation) {
		t.Fatal("storage failure must not be a validation error")
	}
	if len(breaches) != 1 || breaches[0].GeofenceID != "gf-2" {
		t.Fatalf("breaches = %v, want only the successfully persisted gf-2 hit", breaches)
	}
	if st.eventCount() != 1 {
		t.Errorf("events persisted = %d, want 1", st.eventCount())
	}
}

func TestCheckLocation_ListFailure(t *testing.T) {
	t.Parallel()

	st := newMockStore()
	st.listErr = errors.New("connection refused")
	svc := newTestService(st, &mockChannel{})

	_, err := svc.CheckLocation(context.Background(), 40.71, -74.01, 7)
	if err == nil {
		t.Fatal("expected error when listing geofences fails")
	}
}

func TestCheckLocation_ChannelFailureInvisible(t *testing.T) {
	t.Parallel()

	st := newMockStore()
	st.addFence(squareFence("gf-1", "Dockside", TierHigh, 40.70, 40.72, -74.02, -74.00))
	ch := &mockChannel{
		userErr:     errors.New("gateway down"),
		operatorErr: errors.New("gateway down"),
	}
	svc := newTestService(st, ch)

	breaches, err := svc.CheckLocation(context.Background(), 40.71, -74.01, 7)
	if err != nil {
		t.Fatalf("CheckLocation: %v", err)
	}
	if len(breaches) != 1 {
		t.Fatalf("breaches = %d, want 1 despite channel failure", len(breaches))
	}
	if st.eventCount() != 1 {
		t.Fatalf("events persisted = %d, want 1", st.eventCount())
	}

	// Dispatch is async; the flag still flips once the attempt completes.
	evID := breaches[0].EventID
	waitFor(t, func() bool { return st.alerted(evID) },
		"event never marked alerted after failed dispatch attempt")
}

func TestCheckLocation_DispatchMarksAlerted(t *testing.T) {
	t.Parallel()

	st := newMockStore()
	st.addFence(squareFence("gf-1", "Dockside", TierHigh, 40.70, 40.72, -74.02, -74.00))
	ch := &mockChannel{}
	svc := newTestService(st, ch)

	breaches, err := svc.CheckLocation(context.Background(), 7, 7, 7)
	if err != nil {
		t.Fatalf("CheckLocation: %v", err)
	}
	if len(breaches) != 0 {
		t.Fatalf("point (7,7) should miss the fence, got %d breaches", len(breaches))
	}

	breaches, err = svc.CheckLocation(context.Background(), 40.71, -74.01, 7)
	if err != nil {
		t.Fatalf("CheckLocation: %v", err)
	}
	evID := breaches[0].EventID
	waitFor(t, func() bool { return st.alerted(evID) }, "event never marked alerted")

	waitFor(t, func() bool {
		user, operator := ch.counts()
		return user == 1 && operator == 1
	}, "HIGH breach should reach user and operators")
}

func TestCheckLocation_NilChannelConfiguration(t *testing.T) {
	t.Parallel()

	st := newMockStore()
	st.addFence(squareFence("gf-1", "Dockside", TierHigh, 40.70, 40.72, -74.02, -74.00))
	svc := newTestService(st, nil)

	breaches, err := svc.CheckLocation(context.Background(), 40.71, -74.01, 7)
	if err != nil {
		t.Fatalf("CheckLocation: %v", err)
	}
	if len(breaches) != 1 {
		t.Fatalf("breaches = %d, want 1 with no channel configured", len(breaches))
	}

	evID := breaches[0].EventID
	waitFor(t, func() bool { return st.alerted(evID) }, "event never marked alerted without a channel")
}
