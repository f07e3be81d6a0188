package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type healthEvents struct {
	mu     sync.Mutex
	events []string
}

func (h *healthEvents) Info(msg string, args ...any) { h.add(msg, args) }
func (h *healthEvents) Warn(msg string, args ...any) { h.add(msg, args) }

func (h *healthEvents) add(msg string, args []any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == "backend" {
			msg += " " + args[i+1].(string)
		}
	}
	h.events = append(h.events, msg)
}

func (h *healthEvents) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

// scriptedCheck returns the next scripted result on every call and repeats
// the last one when the script runs out.
type scriptedCheck struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (s *scriptedCheck) check(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i]
}

func (s *scriptedCheck) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestHealthCheckAll(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := errors.New("connection refused")

	tests := []struct {
		name    string
		checks  []healthCheck
		wantErr string
	}{
		{"no backends", nil, ""},
		{"all healthy", []healthCheck{{"mqtt", ok}, {"database", ok}}, ""},
		{
			name: "first failure wins",
			checks: []healthCheck{
				{"mqtt", ok},
				{"influxdb", func(context.Context) error { return down }},
				{"database", func(context.Context) error { return errors.New("locked") }},
			},
			wantErr: "influxdb: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := healthCheckAll(context.Background(), tt.checks)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("healthCheckAll() error = %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("healthCheckAll() error = %v, want %q", err, tt.wantErr)
			}
			if !errors.Is(err, down) {
				t.Error("error does not wrap the backend failure")
			}
		})
	}
}

func TestMonitorHealth_LogsTransitionsOnly(t *testing.T) {
	fail := errors.New("broker unreachable")
	mqtt := &scriptedCheck{results: []error{nil, fail, fail, nil}}
	db := &scriptedCheck{results: []error{nil}}
	log := &healthEvents{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		monitorHealth(ctx, 5*time.Millisecond, log, []healthCheck{
			{"mqtt", mqtt.check},
			{"database", db.check},
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for mqtt.count() < 6 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitorHealth did not return after cancel")
	}

	got := strings.Join(log.snapshot(), "; ")
	want := "backend unhealthy mqtt; backend recovered mqtt"
	if got != want {
		t.Errorf("events = %q, want %q", got, want)
	}
}

func TestMonitorHealth_Disabled(t *testing.T) {
	check := &scriptedCheck{results: []error{nil}}

	tests := []struct {
		name     string
		interval time.Duration
		checks   []healthCheck
	}{
		{"zero interval", 0, []healthCheck{{"mqtt", check.check}}},
		{"no backends", time.Millisecond, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan struct{})
			go func() {
				defer close(done)
				monitorHealth(context.Background(), tt.interval, &healthEvents{}, tt.checks)
			}()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("monitorHealth ran with nothing to do")
			}
		})
	}
	if check.count() != 0 {
		t.Errorf("checks run = %d, want 0", check.count())
	}
}
