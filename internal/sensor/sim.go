package sensor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// SimBoard describes a simulated sensor board.
type SimBoard struct {
	Address  string
	Identity Identity

	// FailOpen makes Open return ErrOpen for this board.
	FailOpen bool

	// FailIdentity makes ReadIdentity return ErrIdentity.
	FailIdentity bool

	// FailEvery makes every n-th ReadBlock fail with ErrRead (0 disables).
	FailEvery int
}

// SimOpener is an in-memory Opener and Scanner of simulated boards.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type SimOpener struct {
	mu     sync.Mutex
	boards map[string]SimBoard
	opens  map[string]int
	closes map[string]int
}

// NewSimOpener creates a simulator with the given boards.
func NewSimOpener(boards ...SimBoard) *SimOpener {
	s := &SimOpener{
		boards: make(map[string]SimBoard),
		opens:  make(map[string]int),
		closes: make(map[string]int),
	}
	for _, b := range boards {
		s.AddBoard(b)
	}
	return s
}

// DefaultSimBoards returns n boards named SIM0..SIMn-1 with stable UIDs.
func DefaultSimBoards(n int) []SimBoard {
	boards := make([]SimBoard, 0, n)
	for i := 0; i < n; i++ {
		boards = append(boards, SimBoard{
			Address: fmt.Sprintf("SIM%d", i),
			Identity: Identity{
				VendorID:  VendorID,
				ProductID: ProductID,
				Firmware:  1,
				UID:       fmt.Sprintf("5349%020X", i),
			},
		})
	}
	return boards
}

// AddBoard registers or replaces a simulated board.
func (s *SimOpener) AddBoard(b SimBoard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[b.Address] = b
}

// RemoveBoard unplugs a simulated board. Links already open keep working.
func (s *SimOpener) RemoveBoard(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.boards, address)
}

// Scan implements Scanner.
func (s *SimOpener) Scan(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]string, 0, len(s.boards))
	for addr := range s.boards {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs, nil
}

// Open implements Opener.
func (s *SimOpener) Open(_ context.Context, address string) (Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such device", ErrOpen, address)
	}
	if b.FailOpen {
		return nil, fmt.Errorf("%w: %s: device busy", ErrOpen, address)
	}
	s.opens[address]++
	return &simLink{board: b, owner: s}, nil
}

// OpenCount returns how many times address was opened successfully.
func (s *SimOpener) OpenCount(address string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[address]
}

// CloseCount returns how many links to address were closed.
func (s *SimOpener) CloseCount(address string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes[address]
}

// OpenLinks returns the number of links to address not yet closed.
func (s *SimOpener) OpenLinks(address string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[address] - s.closes[address]
}

func (s *SimOpener) recordClose(address string) {
	s.mu.Lock()
	s.closes[address]++
	s.mu.Unlock()
}

// simLink produces a slowly varying synthetic load profile.
type simLink struct {
	board SimBoard
	owner *SimOpener

	mu     sync.Mutex
	reads  int
	closed bool
}

func (l *simLink) ReadIdentity(_ context.Context) (Identity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return Identity{}, ErrClosed
	}
	if l.board.FailIdentity {
		return Identity{}, fmt.Errorf("%w: %s: no response", ErrIdentity, l.board.Address)
	}
	return l.board.Identity, nil
}

func (l *simLink) ReadBlock(ctx context.Context) (RawBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	l.reads++
	if l.board.FailEvery > 0 && l.reads%l.board.FailEvery == 0 {
		return nil, fmt.Errorf("%w: %s: timeout", ErrRead, l.board.Address)
	}
	return simBlock(l.reads).Marshal(), nil
}

func (l *simLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.closed = true
	l.owner.recordClose(l.board.Address)
	return nil
}

// simBlock builds the n-th synthetic reading.
func simBlock(n int) Block {
	phase := float64(n) / 20
	load := 0.5 + 0.5*math.Sin(phase)

	var b Block
	for i := range b.Vin {
		b.Vin[i] = int16(1000 + 100*i)
	}
	b.Vdd = 3300
	b.Vref = 1200
	b.Tchip = int16(350 + 100*load)
	for i := range b.Ts {
		b.Ts[i] = int16(300 + 20*i + int(150*load))
	}
	b.Tamb = 240
	b.Hum = 455

	rail := func(mv int16, ma float64) PowerSensor {
		return PowerSensor{
			Voltage: mv,
			Current: int32(ma),
			Power:   int32(float64(mv) * ma / 1000),
		}
	}
	b.Power[0] = rail(12000, 2000+8000*load)  // EPS1
	b.Power[1] = rail(12000, 1000+6000*load)  // EPS2
	b.Power[2] = rail(3300, 2000)             // 3.3V
	b.Power[3] = rail(5000, 1500)             // 5V
	b.Power[4] = rail(5000, 200)              // 5VSB
	b.Power[5] = rail(12000, 3000)            // 12V
	b.Power[6] = rail(12000, 4000+12000*load) // PCIE8_1
	b.Power[7] = rail(12000, 4000+12000*load) // PCIE8_2
	b.Power[8] = rail(12000, 0)               // PCIE8_3
	b.Power[9] = rail(12000, 0)               // HPWR1
	b.Power[10] = rail(12000, 0)              // HPWR2

	for i := range b.Fans {
		if i < 4 {
			b.Fans[i] = FanSensor{Enable: 1, Duty: uint8(30 + 60*load), Tach: uint16(600 + 1200*load)}
		}
	}
	b.FanExtDuty = uint8(40 + 50*load)
	return b
}
