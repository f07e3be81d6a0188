package session

import (
	"context"
	"time"

	"github.com/nerrad567/benchdash/internal/render"
	"github.com/nerrad567/benchdash/internal/telemetry"
)

// handleTouch feeds one press to the current page.
func (s *Session) handleTouch(ctx context.Context, x, y int) {
	s.mu.Lock()
	page := s.page
	recent := time.Since(s.pageSince) < s.opts.Debounce
	s.mu.Unlock()

	if recent {
		return
	}

	switch page {
	case PageFleet:
		s.touchFleet(ctx, x, y)
	case PageOverview:
		s.touchOverview(x, y)
	case PageGraph:
		s.touchGraph(x, y)
	}
}

// footerHit returns the footer button under the point, if any.
func footerHit(kind render.Kind, x, y int) (render.ButtonID, bool) {
	for _, b := range render.FooterButtons(kind) {
		if render.Hit(b.Rect, x, y) {
			return b.ID, true
		}
	}
	return "", false
}

func (s *Session) touchFleet(ctx context.Context, x, y int) {
	if id, ok := footerHit(render.KindFleet, x, y); ok && id == render.ButtonShutdown {
		s.log.Info("shutdown requested from display", "session", s.id)
		go s.opts.Fleet.GracefulShutdown()
		return
	}

	devices := s.opts.Fleet.Devices()
	for i, rect := range render.FleetRows(len(devices)) {
		if !render.Hit(rect, x, y) {
			continue
		}
		s.selectDevice(ctx, devices[i].Address)
		return
	}
}

// selectDevice attaches to address and opens the overview. On failure the
// session stays on the fleet page.
func (s *Session) selectDevice(ctx context.Context, address string) {
	tctx, err := s.opts.Fleet.Attach(ctx, address, s.id)
	if err != nil {
		s.log.Warn("device attach failed", "session", s.id, "address", address, "error", err)
		return
	}

	s.mu.Lock()
	s.tctx = tctx
	s.address = address
	s.setPage(PageOverview)
	s.mu.Unlock()
	s.log.Info("device attached", "session", s.id, "address", address)
}

func (s *Session) touchOverview(x, y int) {
	if id, ok := footerHit(render.KindOverview, x, y); ok {
		switch id {
		case render.ButtonShutdown:
			s.log.Info("shutdown requested from display", "session", s.id)
			go s.opts.Fleet.GracefulShutdown()
		case render.ButtonSelectDevice:
			s.leaveDevice()
		}
		return
	}

	var snap telemetry.Sample
	if c := s.Context(); c != nil {
		snap = c.History().LatestSnapshot()
	}
	for _, card := range render.OverviewCards(snap) {
		if !render.Hit(card.Rect, x, y) || len(card.Metrics) == 0 {
			continue
		}
		s.openGraph(card.Metrics)
		return
	}
}

// openGraph switches to the graph page carrying metrics.
func (s *Session) openGraph(metrics []string) {
	s.mu.Lock()
	s.metrics = append([]string(nil), metrics...)
	s.hidden = make(map[string]bool)
	s.setPage(PageGraph)
	s.mu.Unlock()
}

// leaveDevice detaches from the current context and returns to the fleet page.
func (s *Session) leaveDevice() {
	s.mu.Lock()
	address := s.address
	s.tctx = nil
	s.address = ""
	s.metrics = nil
	s.mu.Unlock()

	if address != "" {
		s.opts.Fleet.Detach(address, s.id)
	}

	s.mu.Lock()
	s.setPage(PageFleet)
	s.mu.Unlock()
	s.log.Info("device detached", "session", s.id, "address", address)
}

func (s *Session) touchGraph(x, y int) {
	if id, ok := footerHit(render.KindGraph, x, y); ok && id == render.ButtonOverview {
		s.mu.Lock()
		s.setPage(PageOverview)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chip := range render.GraphChips(s.metrics) {
		if render.Hit(chip.Rect, x, y) {
			s.hidden[chip.Metric] = !s.hidden[chip.Metric]
			return
		}
	}
}

// setPage switches page and restarts the debounce window. Caller holds s.mu.
func (s *Session) setPage(p Page) {
	s.page = p
	s.pageSince = time.Now()
}

// state builds the render state for the current page.
func (s *Session) state() render.State {
	s.mu.Lock()
	page := s.page
	tctx := s.tctx
	address := s.address
	metrics := append([]string(nil), s.metrics...)
	hidden := make(map[string]bool, len(s.hidden))
	for k, v := range s.hidden {
		hidden[k] = v
	}
	s.mu.Unlock()

	st := render.State{Kind: page.kind(), Display: s.Serial(), Address: address}
	switch page {
	case PageFleet:
		st.Devices = s.opts.Fleet.Devices()
	case PageOverview:
		if tctx != nil {
			st.Identity = tctx.Identity()
			st.Snapshot = tctx.History().LatestSnapshot()
		}
	case PageGraph:
		st.Metrics = metrics
		st.Hidden = hidden
		if tctx != nil {
			st.Identity = tctx.Identity()
			h := tctx.History()
			st.Series = make(map[string][]telemetry.Point, len(metrics))
			for _, m := range metrics {
				st.Series[m] = h.Points(m)
			}
		}
	}
	return st
}
