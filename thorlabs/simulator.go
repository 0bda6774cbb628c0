package thorlabs

import (
	"strconv"
	"strings"
	"sync"

	"github.com/nasa-jpl/instrumentkit/comm"
	"github.com/nasa-jpl/instrumentkit/util"
)

// Simulator is a comm.Channel that talks like a TC200 framed on its prompt.
// Every reply starts with the echo of the command; queries and rejections
// add a line.  The temperature steps a tenth of the way to the setpoint per
// tact? while the heater is enabled.
type Simulator struct {
	// Undefined answers the next Undefined commands with CMD_NOT_DEFINED
	Undefined int

	mu     sync.Mutex
	status Status
	ints   map[string]int
	floats map[string]float64
	sensor string
	temp   float64
	log    []string
}

// NewSimulator returns a disabled TC200 in normal mode displaying Celsius
func NewSimulator() *Simulator {
	return &Simulator{
		status: 1 << celsiusBit,
		ints:   map[string]int{"pvalue": 150, "ivalue": 25, "dvalue": 0, "beta": 3988},
		floats: map[string]float64{"PMAX": 18, "TMAX": 60, "tset": 25},
		sensor: PTC100.String(),
		temp:   22,
	}
}

// Kind is always Serial
func (s *Simulator) Kind() comm.Kind {
	return comm.Serial
}

// Log returns every command received, in order
func (s *Simulator) Log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.log))
	copy(out, s.log)
	return out
}

// Send handles a command and drops the reply
func (s *Simulator) Send(cmd string) error {
	_, err := s.Query(cmd)
	return err
}

// Read has nothing to read, every reply is returned by Query
func (s *Simulator) Read() (string, error) {
	return "", comm.ErrNoReply
}

func frame(cmd string, lines ...string) string {
	var b strings.Builder
	b.WriteString(cmd)
	b.WriteString(Terminator)
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString(Terminator)
	}
	return b.String()
}

// Query handles a command and returns the framed reply without the prompt
func (s *Simulator) Query(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, cmd)
	if s.Undefined > 0 {
		s.Undefined--
		return frame(cmd, "Command error "+undefinedSentinel), nil
	}
	invalid := frame(cmd, "Command error "+invalidSentinel)
	key, arg, assign := strings.Cut(cmd, "=")
	if assign {
		if !s.assign(key, arg) {
			return invalid, nil
		}
		return frame(cmd), nil
	}
	switch cmd {
	case "*idn?":
		return frame(cmd, "THORLABS TC200 VERSION 2.0"), nil
	case "ens":
		s.status = Status(util.SetBit(byte(s.status), enableBit, !s.status.Enabled()))
		return frame(cmd), nil
	case "stat?":
		return frame(cmd, strconv.Itoa(int(s.status))), nil
	case "pid?":
		return frame(cmd, strconv.Itoa(s.ints["pvalue"])+","+strconv.Itoa(s.ints["ivalue"])+","+strconv.Itoa(s.ints["dvalue"])), nil
	case "beta?":
		return frame(cmd, strconv.Itoa(s.ints["beta"])), nil
	case "sns?":
		return frame(cmd, s.sensor), nil
	case "PMAX?", "TMAX?", "tset?":
		return frame(cmd, formatFloat(s.floats[strings.TrimSuffix(cmd, "?")])), nil
	case "tact?":
		if s.status.Enabled() {
			s.temp += (s.floats["tset"] - s.temp) / 10
		}
		return frame(cmd, formatFloat(s.temp)+" C"), nil
	}
	return frame(cmd, "Command error "+undefinedSentinel), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}

// assign applies key=arg and returns false if the TC200 would refuse it
func (s *Simulator) assign(key, arg string) bool {
	switch key {
	case "mode":
		switch arg {
		case "normal", "cycle":
			s.status = Status(util.SetBit(byte(s.status), modeBit, arg == "cycle"))
		default:
			return false
		}
	case "unit":
		if arg != "c" && arg != "f" && arg != "k" {
			return false
		}
		b := util.SetBit(byte(s.status), celsiusBit, arg == "c")
		s.status = Status(util.SetBit(b, fahrenheitBit, arg == "f"))
	case "sns":
		switch arg {
		case PTC100.String(), PTC1000.String(), TH10K.String():
			s.sensor = arg
		default:
			return false
		}
	case "pvalue", "ivalue", "dvalue", "beta":
		i, err := strconv.Atoi(arg)
		if err != nil {
			return false
		}
		s.ints[key] = i
	case "PMAX", "TMAX", "tset":
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return false
		}
		s.floats[key] = f
	default:
		return false
	}
	return true
}
