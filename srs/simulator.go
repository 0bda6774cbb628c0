package srs

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nasa-jpl/instrumentkit/comm"
)

// Simulator is a comm.Channel that behaves like an SR830.  It remembers
// settings, fills its buffer at the programmed sample rate while a scan runs,
// and answers SNAP? from its reference amplitude and phase.
type Simulator struct {
	// ChannelKind is reported by Kind, GPIB by default
	ChannelKind comm.Kind

	// Now is the simulator's clock, time.Now if nil
	Now func() time.Time

	mu       sync.Mutex
	settings map[string]string
	started  time.Time
	running  bool
	points   int
	log      []string
}

// NewSimulator returns a Simulator in the SR830's power-on state
func NewSimulator() *Simulator {
	return &Simulator{
		ChannelKind: comm.GPIB,
		settings: map[string]string{
			"FMOD": "1", "FREQ": "1000", "PHAS": "0", "SLVL": "1",
			"IGND": "0", "ICPL": "0", "SRAT": "4", "SEND": "1",
			"FAST": "0", "OUTX": "1",
		},
	}
}

// Kind returns s.ChannelKind
func (s *Simulator) Kind() comm.Kind {
	return s.ChannelKind
}

func (s *Simulator) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Log returns every command received, in order
func (s *Simulator) Log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.log))
	copy(out, s.log)
	return out
}

func (s *Simulator) rateHz() float64 {
	idx, err := strconv.Atoi(s.settings["SRAT"])
	if err != nil || idx < 0 || idx >= len(sampleRates) {
		return 0
	}
	return sampleRates[idx]
}

func (s *Simulator) fill() {
	if !s.running {
		return
	}
	n := int(s.now().Sub(s.started).Seconds() * s.rateHz())
	if n > MaxSamples {
		n = MaxSamples
	}
	s.points = n
}

// xy returns the in-phase and quadrature outputs
func (s *Simulator) xy() (float64, float64) {
	amp, _ := strconv.ParseFloat(s.settings["SLVL"], 64)
	ph, _ := strconv.ParseFloat(s.settings["PHAS"], 64)
	rad := ph * math.Pi / 180
	return amp * math.Cos(rad), amp * math.Sin(rad)
}

func (s *Simulator) snap(code int) float64 {
	x, y := s.xy()
	switch code {
	case 1, 10:
		return x
	case 2, 11:
		return y
	case 3:
		return math.Hypot(x, y)
	case 4:
		return math.Atan2(y, x) * 180 / math.Pi
	case 9:
		f, _ := strconv.ParseFloat(s.settings["FREQ"], 64)
		return f
	default:
		return 0
	}
}

func formatValue(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Send handles a command
func (s *Simulator) Send(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, cmd)
	mnemonic, arg, _ := strings.Cut(strings.TrimSpace(cmd), " ")
	switch mnemonic {
	case "REST":
		s.running = false
		s.points = 0
	case "STRD":
		s.running = true
		s.started = s.now()
	case "PAUS":
		s.fill()
		s.running = false
	case "APHS":
		s.settings["PHAS"] = "0"
	default:
		if _, ok := s.settings[mnemonic]; ok {
			s.settings[mnemonic] = strings.TrimSpace(arg)
		}
	}
	return nil
}

// Query handles a query, unknown queries are answered with nothing
func (s *Simulator) Query(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, cmd)
	cmd = strings.TrimSpace(cmd)
	switch {
	case cmd == "*IDN?":
		return "Stanford_Research_Systems,SR830,s/n00000,ver1.07", nil
	case cmd == "SPTS?":
		s.fill()
		return strconv.Itoa(s.points), nil
	case strings.HasPrefix(cmd, "TRCA?"):
		args := strings.Split(strings.TrimPrefix(cmd, "TRCA?"), ",")
		if len(args) != 3 {
			return "", nil
		}
		ch, _ := strconv.Atoi(args[0])
		start, _ := strconv.Atoi(args[1])
		n, _ := strconv.Atoi(args[2])
		if start+n > s.points {
			return "", nil
		}
		x, y := s.xy()
		v := x
		if ch == 2 {
			v = y
		}
		vals := make([]string, n)
		for i := range vals {
			vals[i] = formatValue(v)
		}
		return strings.Join(vals, ","), nil
	case strings.HasPrefix(cmd, "SNAP?"):
		args := strings.Split(strings.TrimSpace(strings.TrimPrefix(cmd, "SNAP?")), ",")
		vals := make([]string, len(args))
		for i, a := range args {
			code, _ := strconv.Atoi(strings.TrimSpace(a))
			vals[i] = formatValue(s.snap(code))
		}
		return strings.Join(vals, ","), nil
	case strings.HasSuffix(cmd, "?"):
		return s.settings[strings.TrimSuffix(cmd, "?")], nil
	}
	return "", nil
}

// Read has nothing to read, the SR830 only speaks when queried
func (s *Simulator) Read() (string, error) {
	return "", comm.ErrNoReply
}
