package fleet

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/benchdash/internal/display"
	"github.com/nerrad567/benchdash/internal/render"
	"github.com/nerrad567/benchdash/internal/sensor"
	"github.com/nerrad567/benchdash/internal/telemetry"
)

// fakeInventory records calls.
type fakeInventory struct {
	mu       sync.Mutex
	devices  map[string]sensor.Identity
	attaches map[string]int
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{devices: make(map[string]sensor.Identity), attaches: make(map[string]int)}
}

func (f *fakeInventory) RecordDevice(_ context.Context, address string, id sensor.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[address] = id
	return nil
}

func (f *fakeInventory) RecordAttach(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attaches[address]++
	return nil
}

// gatedOpener blocks opens of one address until release is closed.
type gatedOpener struct {
	*sensor.SimOpener
	gate    string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedOpener(sim *sensor.SimOpener, gate string) *gatedOpener {
	return &gatedOpener{
		SimOpener: sim,
		gate:      gate,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (o *gatedOpener) Open(ctx context.Context, address string) (sensor.Link, error) {
	if address == o.gate {
		o.once.Do(func() { close(o.entered) })
		select {
		case <-o.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.SimOpener.Open(ctx, address)
}

type attachResult struct {
	c   *telemetry.Context
	err error
}

func attachAsync(m *Manager, address, sessionID string) <-chan attachResult {
	out := make(chan attachResult, 1)
	go func() {
		c, err := m.Attach(context.Background(), address, sessionID)
		out <- attachResult{c, err}
	}()
	return out
}

// blankRenderer returns a tiny frame for every state.
type blankRenderer struct{}

func (blankRenderer) Render(render.State) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

type testRig struct {
	m         *Manager
	opener    *sensor.SimOpener
	displays  []*display.VirtualDisplay
	inventory *fakeInventory
}

func newRig(t *testing.T, boards []sensor.SimBoard, displays int) *testRig {
	t.Helper()
	opener := sensor.NewSimOpener(boards...)
	transport := display.NewVirtualTransport(0, display.VirtualConfig{})
	rig := &testRig{opener: opener, inventory: newFakeInventory()}
	for i := 0; i < displays; i++ {
		d := display.NewVirtualDisplay(serialFor(i), display.VirtualConfig{})
		transport.Add(d)
		rig.displays = append(rig.displays, d)
	}
	rig.m = New(Config{
		Opener:            opener,
		Scanner:           opener,
		HistoryCapacity:   50,
		PollInterval:      5 * time.Millisecond,
		Transport:         transport,
		Renderer:          blankRenderer{},
		TickInterval:      5 * time.Millisecond,
		KeepAliveInterval: 20 * time.Millisecond,
		BarrierTimeout:    time.Second,
		CleanupTimeout:    2 * time.Second,
		Inventory:         rig.inventory,
	})
	t.Cleanup(func() {
		done := make(chan struct{})
		go func() {
			rig.m.GracefulShutdown()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("cleanup shutdown hung")
		}
	})
	return rig
}

func serialFor(i int) string {
	return "VDISP" + string(rune('0'+i))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestAttach_FanOutScenario(t *testing.T) {
	rig := newRig(t, []sensor.SimBoard{{Address: "COM7", Identity: sensor.Identity{UID: "ABC"}}}, 0)
	ctx := context.Background()

	a, err := rig.m.Attach(ctx, "COM7", "sessionA")
	if err != nil {
		t.Fatalf("Attach(A) error = %v", err)
	}
	if rig.m.PollerCount() != 1 {
		t.Fatalf("PollerCount() = %d, want 1", rig.m.PollerCount())
	}

	b, err := rig.m.Attach(ctx, "COM7", "sessionB")
	if err != nil {
		t.Fatalf("Attach(B) error = %v", err)
	}
	if a != b {
		t.Fatal("second attach created a new context")
	}
	if rig.m.PollerCount() != 1 {
		t.Errorf("PollerCount() = %d after fan-out, want 1", rig.m.PollerCount())
	}
	if rig.opener.OpenCount("COM7") != 1 {
		t.Errorf("OpenCount(COM7) = %d, want 1", rig.opener.OpenCount("COM7"))
	}
	if got := a.SessionCount(); got != 2 {
		t.Errorf("SessionCount() = %d, want 2", got)
	}

	waitFor(t, time.Second, func() bool { return a.History().Len() > 0 })
	sa := a.History().LatestSnapshot()
	sb := b.History().LatestSnapshot()
	if sa[telemetry.TimestampKey] == nil {
		t.Fatal("snapshot has no timestamp")
	}
	if sa["CPU_Power"] == nil || sb["CPU_Power"] == nil {
		t.Error("snapshot missing CPU_Power")
	}

	devices := rig.m.Devices()
	if len(devices) != 1 || !devices[0].InUse || devices[0].Identity.UID != "ABC" {
		t.Errorf("Devices() = %+v", devices)
	}
}

func TestAttach_PollerCountMatchesDistinctAddresses(t *testing.T) {
	rig := newRig(t, sensor.DefaultSimBoards(3), 0)
	ctx := context.Background()

	attaches := []struct{ address, session string }{
		{"SIM0", "s1"}, {"SIM0", "s2"}, {"SIM0", "s3"},
		{"SIM1", "s4"}, {"SIM1", "s5"},
		{"SIM2", "s6"},
	}
	var wg sync.WaitGroup
	for _, a := range attaches {
		a := a
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rig.m.Attach(ctx, a.address, a.session); err != nil {
				t.Errorf("Attach(%s) error = %v", a.address, err)
			}
		}()
	}
	wg.Wait()

	if got := rig.m.PollerCount(); got != 3 {
		t.Errorf("PollerCount() = %d, want 3", got)
	}
	for _, addr := range []string{"SIM0", "SIM1", "SIM2"} {
		if got := rig.opener.OpenCount(addr); got != 1 {
			t.Errorf("OpenCount(%s) = %d, want 1", addr, got)
		}
	}
}

func TestDetach_KeepsPollerAndHistory(t *testing.T) {
	rig := newRig(t, sensor.DefaultSimBoards(1), 0)
	c, err := rig.m.Attach(context.Background(), "SIM0", "s1")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return c.History().Len() > 0 })

	rig.m.Detach("SIM0", "s1")
	if c.SessionCount() != 0 {
		t.Errorf("SessionCount() = %d, want 0", c.SessionCount())
	}

	before := c.History().Len()
	waitFor(t, time.Second, func() bool { return c.History().Len() > before || c.History().Len() == 50 })

	again, err := rig.m.Attach(context.Background(), "SIM0", "s2")
	if err != nil {
		t.Fatal(err)
	}
	if again != c {
		t.Error("re-attach created a new context")
	}
	if rig.m.PollerCount() != 1 {
		t.Errorf("PollerCount() = %d, want 1", rig.m.PollerCount())
	}
	if rig.opener.OpenLinks("SIM0") != 1 {
		t.Errorf("OpenLinks(SIM0) = %d, want 1", rig.opener.OpenLinks("SIM0"))
	}
}

func TestAttach_SlowOpenDoesNotBlockOthers(t *testing.T) {
	boards := append(sensor.DefaultSimBoards(1), sensor.SimBoard{Address: "SLOW"})
	rig := newRig(t, boards, 0)
	gated := newGatedOpener(rig.opener, "SLOW")
	rig.m.cfg.Opener = gated

	slow := attachAsync(rig.m, "SLOW", "a")
	<-gated.entered
	defer close(gated.release)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"devices", func() error { rig.m.Devices(); return nil }},
		{"attach other address", func() error {
			_, err := rig.m.Attach(context.Background(), "SIM0", "b")
			return err
		}},
		{"detach", func() error { rig.m.Detach("SIM0", "b"); return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan error, 1)
			go func() { done <- tt.fn() }()
			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("error = %v", err)
				}
			case <-time.After(500 * time.Millisecond):
				t.Fatal("blocked behind an unrelated open")
			}
		})
	}

	select {
	case <-slow:
		t.Fatal("slow attach finished before its open was released")
	default:
	}
}

func TestAttach_ConcurrentSameAddressOpensOnce(t *testing.T) {
	rig := newRig(t, sensor.DefaultSimBoards(1), 0)
	gated := newGatedOpener(rig.opener, "SIM0")
	rig.m.cfg.Opener = gated

	first := attachAsync(rig.m, "SIM0", "a")
	<-gated.entered
	second := attachAsync(rig.m, "SIM0", "b")
	time.Sleep(20 * time.Millisecond)
	close(gated.release)

	a, b := <-first, <-second
	if a.err != nil || b.err != nil {
		t.Fatalf("Attach errors = %v, %v", a.err, b.err)
	}
	if a.c != b.c {
		t.Error("concurrent attaches got different contexts")
	}
	if got := rig.opener.OpenCount("SIM0"); got != 1 {
		t.Errorf("OpenCount = %d, want 1", got)
	}
	if got := rig.m.PollerCount(); got != 1 {
		t.Errorf("PollerCount() = %d, want 1", got)
	}
	if got := a.c.SessionCount(); got != 2 {
		t.Errorf("SessionCount() = %d, want 2", got)
	}
}

func TestAttach_ShutdownDuringOpenReleasesLink(t *testing.T) {
	rig := newRig(t, sensor.DefaultSimBoards(1), 0)
	gated := newGatedOpener(rig.opener, "SIM0")
	rig.m.cfg.Opener = gated

	res := attachAsync(rig.m, "SIM0", "a")
	<-gated.entered
	rig.m.GracefulShutdown()
	close(gated.release)

	r := <-res
	if !errors.Is(r.err, ErrShutdownInProgress) {
		t.Fatalf("Attach error = %v, want ErrShutdownInProgress", r.err)
	}
	if got := rig.opener.OpenLinks("SIM0"); got != 0 {
		t.Errorf("OpenLinks = %d, want 0", got)
	}
	if got := rig.m.PollerCount(); got != 0 {
		t.Errorf("PollerCount() = %d, want 0", got)
	}
}

func TestAttach_OpenFailure(t *testing.T) {
	rig := newRig(t, []sensor.SimBoard{{Address: "COM9", FailOpen: true}}, 0)

	_, err := rig.m.Attach(context.Background(), "COM9", "s1")
	if !errors.Is(err, telemetry.ErrLinkOpen) {
		t.Fatalf("Attach() error = %v, want ErrLinkOpen", err)
	}
	if rig.m.PollerCount() != 0 {
		t.Errorf("PollerCount() = %d, want 0", rig.m.PollerCount())
	}
	if _, ok := rig.m.Context("COM9"); ok {
		t.Error("context registered after failed open")
	}
}

func TestDiscoverSensorDevices(t *testing.T) {
	rig := newRig(t, sensor.DefaultSimBoards(2), 0)
	ctx := context.Background()

	got := rig.m.DiscoverSensorDevices(ctx)
	if len(got) != 2 || got[0].Address != "SIM0" || got[1].Address != "SIM1" {
		t.Fatalf("DiscoverSensorDevices() = %+v", got)
	}
	if got[0].Identity.UID == "" {
		t.Error("identity not read")
	}
	for _, addr := range []string{"SIM0", "SIM1"} {
		if rig.opener.OpenLinks(addr) != 0 {
			t.Errorf("probe left %s open", addr)
		}
	}
	if len(rig.inventory.devices) != 2 {
		t.Errorf("inventory devices = %d, want 2", len(rig.inventory.devices))
	}

	if _, err := rig.m.Attach(ctx, "SIM0", "s1"); err != nil {
		t.Fatal(err)
	}
	opens := rig.opener.OpenCount("SIM0")

	rig.opener.RemoveBoard("SIM1")
	got = rig.m.DiscoverSensorDevices(ctx)
	if len(got) != 2 {
		t.Errorf("known device purged: %+v", got)
	}
	if rig.opener.OpenCount("SIM0") != opens {
		t.Error("discovery reopened an address owned by a poller")
	}
	if rig.inventory.attaches["SIM0"] != 1 {
		t.Errorf("inventory attaches = %d, want 1", rig.inventory.attaches["SIM0"])
	}
}

func TestStartSessions_SkipsFailedAndRunning(t *testing.T) {
	rig := newRig(t, nil, 3)
	rig.displays[1].SetFailConnect(true)
	ctx := context.Background()

	n, err := rig.m.StartSessions(ctx)
	if err != nil {
		t.Fatalf("StartSessions() error = %v", err)
	}
	if n != 2 {
		t.Errorf("started = %d, want 2", n)
	}
	if len(rig.m.Sessions()) != 2 {
		t.Errorf("Sessions() = %d, want 2", len(rig.m.Sessions()))
	}

	n, err = rig.m.StartSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("rediscovery started %d sessions, want 0", n)
	}

	rig.displays[1].SetFailConnect(false)
	if n, _ := rig.m.StartSessions(ctx); n != 1 {
		t.Errorf("recovered display: started = %d, want 1", n)
	}
}

func TestWatch_PicksUpNewBoardsAndDisplays(t *testing.T) {
	rig := newRig(t, nil, 2)
	rig.displays[1].SetFailConnect(true)
	if n, _ := rig.m.StartSessions(context.Background()); n != 1 {
		t.Fatalf("started = %d, want 1", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rig.m.Watch(ctx, 5*time.Millisecond)
		close(done)
	}()

	rig.opener.AddBoard(sensor.DefaultSimBoards(1)[0])
	rig.displays[1].SetFailConnect(false)
	waitFor(t, 2*time.Second, func() bool {
		return len(rig.m.Devices()) == 1 && len(rig.m.Sessions()) == 2
	})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_NonPositiveIntervalReturns(t *testing.T) {
	rig := newRig(t, nil, 0)
	done := make(chan struct{})
	go func() {
		rig.m.Watch(context.Background(), 0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch(0) blocked")
	}
}

func TestGracefulShutdown_ThreeSessions(t *testing.T) {
	rig := newRig(t, sensor.DefaultSimBoards(1), 3)
	ctx := context.Background()

	if n, err := rig.m.StartSessions(ctx); err != nil || n != 3 {
		t.Fatalf("StartSessions() = %d, %v", n, err)
	}
	if _, err := rig.m.Attach(ctx, "SIM0", "observer"); err != nil {
		t.Fatal(err)
	}
	for _, d := range rig.displays {
		waitFor(t, time.Second, func() bool { return d.Frames() > 1 })
	}
	sessions := rig.m.Sessions()

	rig.m.GracefulShutdown()

	for _, s := range sessions {
		select {
		case <-s.Done():
		default:
			t.Errorf("session %s not cleaned up when shutdown returned", s.Serial())
		}
		if s.Running() {
			t.Errorf("session %s still running", s.Serial())
		}
	}
	for _, d := range rig.displays {
		if d.IsConnected() {
			t.Errorf("display %s still connected", d.Serial())
		}
	}
	if rig.opener.OpenLinks("SIM0") != 0 {
		t.Error("poller did not close its link")
	}
	if len(rig.m.Sessions()) != 0 {
		t.Error("sessions not cleared")
	}
	for _, dev := range rig.m.Devices() {
		if dev.InUse {
			t.Errorf("device %s still in use", dev.Address)
		}
	}
	if _, err := rig.m.Attach(ctx, "SIM0", "late"); !errors.Is(err, ErrShutdownInProgress) {
		t.Errorf("Attach after shutdown error = %v, want ErrShutdownInProgress", err)
	}
}

func TestGracefulShutdown_NonArrivingParticipant(t *testing.T) {
	rig := newRig(t, nil, 2)
	rig.m.cfg.BarrierTimeout = 50 * time.Millisecond
	rig.m.cfg.absentParties = 1

	if _, err := rig.m.StartSessions(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		rig.m.GracefulShutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown hung on a missing participant")
	}
	for _, d := range rig.displays {
		if d.IsConnected() {
			t.Errorf("display %s still connected after broken barrier", d.Serial())
		}
	}
}

func TestGracefulShutdown_Idempotent(t *testing.T) {
	rig := newRig(t, nil, 2)
	if _, err := rig.m.StartSessions(context.Background()); err != nil {
		t.Fatal(err)
	}

	rig.m.GracefulShutdown()
	rig.m.GracefulShutdown()

	select {
	case <-rig.m.Done():
	default:
		t.Fatal("Done() not closed")
	}
	for _, d := range rig.displays {
		if d.Disconnects() != 1 {
			t.Errorf("display %s disconnects = %d, want 1", d.Serial(), d.Disconnects())
		}
	}
}

func TestGracefulShutdown_NoSessions(t *testing.T) {
	rig := newRig(t, sensor.DefaultSimBoards(1), 0)
	if _, err := rig.m.Attach(context.Background(), "SIM0", "s1"); err != nil {
		t.Fatal(err)
	}
	rig.m.GracefulShutdown()
	rig.m.Wait()
	if rig.opener.OpenLinks("SIM0") != 0 {
		t.Error("poller link left open")
	}
}
