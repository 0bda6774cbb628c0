/*Command ikctl talks to a single SR830 or TC200 from the command line.

	ikctl [flags] <sr830|tc200> <command> [args]

An SR830 behind a TCP bridge needs -outx to say which interface it answers on.

Commands are

	get <setting>          print one setting
	set <setting> <value>  write one setting, e.g. set amplitude 100mV
	dump                   print every setting
	raw <command>          send a command and print the reply
	snap [a b]             print a snapshot; on an SR830 with two mode names, SNAP? of them
	measure                (sr830) fill the buffer and write channel 1 and 2

measure takes -rate, -n, and -o; with -o the data is written as FITS,
otherwise one line of ch1 ch2 per sample is printed.
*/
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/l0nax/go-spew/spew"
	"github.com/sirupsen/logrus"
	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/instrumentkit/comm"
	"github.com/nasa-jpl/instrumentkit/connect"
	"github.com/nasa-jpl/instrumentkit/property"
	"github.com/nasa-jpl/instrumentkit/srs"
	"github.com/nasa-jpl/instrumentkit/thorlabs"
	"github.com/nasa-jpl/instrumentkit/units"
)

var errUsage = errors.New("usage: ikctl [flags] <sr830|tc200> <get|set|dump|raw|snap|measure> [args]")

var dumper = spew.ConfigState{
	Indent:                  "\t",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// app is the state shared by every command
type app struct {
	out io.Writer
	log logrus.FieldLogger

	// sleep waits out an acquisition
	sleep func(time.Duration)

	// now is the clock simulators run on
	now func() time.Time
}

// instrument is whichever device was opened
type instrument struct {
	settings []property.Bound
	raw      func(string) (string, error)
	snapshot func() (map[string]float64, error)
	close    func() error

	// sr is nil unless the instrument is an SR830
	sr *srs.SR830
}

func (in instrument) find(name string) (property.Bound, error) {
	for _, b := range in.settings {
		if b.SettingName() == name {
			return b, nil
		}
	}
	names := make([]string, len(in.settings))
	for i, b := range in.settings {
		names[i] = b.SettingName()
	}
	return property.Bound{}, fmt.Errorf("no setting %q, have %s", name, strings.Join(names, ", "))
}

func (a app) open(typ string, spec connect.Spec, outx string, mock bool) (instrument, error) {
	log := a.log.WithField("type", typ)
	switch strings.ToLower(typ) {
	case "sr830", "lockin", "srs":
		var (
			ch  comm.Channel
			err error
		)
		if mock {
			sim := srs.NewSimulator()
			sim.Now = a.now
			ch = sim
		} else {
			ch, err = connect.Open(spec, comm.Terminators{Tx: '\r', Rx: '\r'}, 9600, log)
			if err != nil {
				return instrument{}, err
			}
		}
		oi, err := srs.ParseOutputInterface(outx)
		if err != nil {
			return instrument{}, err
		}
		sr, err := srs.NewSR830(ch, srs.Config{OutputInterface: oi, Sleep: a.sleep, Log: log})
		if err != nil {
			return instrument{}, err
		}
		return instrument{settings: sr.Settings(), raw: sr.Raw, snapshot: sr.Snapshot, close: sr.Close, sr: sr}, nil
	case "tc200", "thorlabs-tc200":
		var (
			ch  comm.Channel
			err error
		)
		if mock {
			ch = thorlabs.NewSimulator()
		} else {
			ch, err = connect.Open(spec, thorlabs.Terminators, thorlabs.Baud, log)
			if err != nil {
				return instrument{}, err
			}
		}
		tc := thorlabs.NewTC200(ch, log)
		return instrument{settings: tc.Settings(), raw: tc.Raw, snapshot: tc.Snapshot, close: tc.Close}, nil
	default:
		return instrument{}, fmt.Errorf("type %q not understood, use sr830 or tc200", typ)
	}
}

func (a app) run(args []string) error {
	var (
		spec    connect.Spec
		outx    string
		mock    bool
		verbose bool
	)
	fs := flag.NewFlagSet("ikctl", flag.ContinueOnError)
	fs.SetOutput(a.out)
	fs.StringVar(&spec.Conn, "conn", "serial", "connection: serial, tcp, gpib or usbtmc")
	fs.StringVar(&spec.Addr, "addr", "", "device path, host:port, or vid:pid")
	fs.IntVar(&spec.GPIBAddr, "gpib", 8, "instrument address on the GPIB bus")
	fs.IntVar(&spec.Baud, "baud", 0, "serial baud rate, the instrument's default if 0")
	fs.StringVar(&outx, "outx", "", "interface the SR830 answers on, gpib or serial; chosen from -conn if empty")
	fs.BoolVar(&mock, "mock", false, "talk to a simulator")
	fs.BoolVar(&verbose, "v", false, "log every command")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return errUsage
	}
	if verbose {
		if l, ok := a.log.(*logrus.Logger); ok {
			l.SetLevel(logrus.DebugLevel)
		}
	}
	in, err := a.open(rest[0], spec, outx, mock)
	if err != nil {
		return err
	}
	defer in.close()

	cmd, cargs := rest[1], rest[2:]
	switch cmd {
	case "get":
		if len(cargs) != 1 {
			return errors.New("usage: get <setting>")
		}
		b, err := in.find(cargs[0])
		if err != nil {
			return err
		}
		v, err := b.Get()
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, v)
	case "set":
		if len(cargs) != 2 {
			return errors.New("usage: set <setting> <value>")
		}
		b, err := in.find(cargs[0])
		if err != nil {
			return err
		}
		return b.SetString(cargs[1])
	case "dump":
		all := map[string]interface{}{}
		for _, b := range in.settings {
			v, err := b.Get()
			if err != nil {
				a.log.WithError(err).WithField("setting", b.SettingName()).Warn("read failed")
				continue
			}
			all[b.SettingName()] = v
		}
		dumper.Fdump(a.out, all)
	case "raw":
		if len(cargs) == 0 {
			return errors.New("usage: raw <command>")
		}
		reply, err := in.raw(strings.Join(cargs, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, reply)
	case "snap":
		return a.snap(in, cargs)
	case "measure":
		if in.sr == nil {
			return fmt.Errorf("%s cannot measure", rest[0])
		}
		return a.measure(in.sr, cargs)
	default:
		return errUsage
	}
	return nil
}

func (a app) snap(in instrument, args []string) error {
	if len(args) == 2 && in.sr != nil {
		ma, err := srs.ParseMode(args[0])
		if err != nil {
			return err
		}
		mb, err := srs.ParseMode(args[1])
		if err != nil {
			return err
		}
		vals, err := in.sr.DataSnap(ma, mb)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s\t%g\n%s\t%g\n", ma, vals[0], mb, vals[1])
		return nil
	}
	if len(args) != 0 {
		return errors.New("usage: snap [a b]")
	}
	m, err := in.snapshot()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(a.out, "%s\t%g\n", k, m[k])
	}
	return nil
}

func (a app) measure(sr *srs.SR830, args []string) error {
	var (
		rateS string
		n     int
		path  string
	)
	fs := flag.NewFlagSet("measure", flag.ContinueOnError)
	fs.SetOutput(a.out)
	fs.StringVar(&rateS, "rate", "64 Hz", "sample rate")
	fs.IntVar(&n, "n", 1024, "number of samples")
	fs.StringVar(&path, "o", "", "FITS file to write")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rate, err := units.Parse(rateS)
	if err != nil {
		return err
	}
	start := time.Now()
	data, err := sr.TakeMeasurement(rate, n)
	if err != nil {
		return err
	}
	if path == "" {
		for i := range data[0] {
			var y float64
			if i < len(data[1]) {
				y = data[1][i]
			}
			fmt.Fprintf(a.out, "%g\t%g\n", data[0][i], y)
		}
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	meta := []fitsio.Card{
		{Name: "RATE", Value: units.Assume(rate, units.Hertz).String(), Comment: "sample rate"},
		{Name: "DATE-OBS", Value: start.UTC().Format(time.RFC3339), Comment: "acquisition start"},
	}
	if err = srs.WriteFits(f, meta, data); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %d points per channel to %s\n", len(data[0]), path)
	return nil
}

// spinSleep sleeps for d with a spinner counting down on stderr
func spinSleep(d time.Duration) {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " acquiring",
		SuffixAutoColon:   true,
		StopCharacter:     "done",
		StopFailCharacter: "failed",
		Writer:            os.Stderr,
	})
	if err == nil {
		err = spinner.Start()
	}
	if err != nil {
		time.Sleep(d)
		return
	}
	deadline := time.Now().Add(d)
	for left := d; left > 0; left = time.Until(deadline) {
		spinner.Message(left.Round(time.Second).String() + " left")
		time.Sleep(min(left, time.Second))
	}
	spinner.Stop()
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	a := app{out: os.Stdout, log: log, sleep: spinSleep, now: time.Now}
	if err := a.run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
}
