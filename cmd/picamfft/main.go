package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/theckman/yacspin"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/imgrec"
	"github.jpl.nasa.gov/bdube/picamfft/picam"
	"github.jpl.nasa.gov/bdube/picamfft/pipeline"
	"github.jpl.nasa.gov/bdube/picamfft/preview"
	"github.jpl.nasa.gov/bdube/picamfft/telemetry"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "picamfft.yml"
)

const long = `picamfft acquires frames from Princeton Instruments cameras,
computes their row-wise Fourier transform, and previews or records them.

Configuration is layered: built-in defaults, then picamfft.yml, then
PICAMFFT_ environment variables, then command line flags.  The command
mkconf writes the defaults to picamfft.yml as a starting point.

When no camera is found and --demo is given, a simulated camera is used.
Set demomodel in the config to pick which one.`

// app is the state shared by the commands
type app struct {
	cfgFile string
	cfg     config
	log     zerolog.Logger
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func (a *app) load(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(a.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = newLogger(cfg.Verbose)
	return nil
}

// session initializes the library and opens the configured camera.  The
// returned func closes both.
func (a *app) session() (*camera.Session, func(), error) {
	opts, err := a.cfg.openOptions()
	if err != nil {
		return nil, nil, err
	}
	opts.Logger = &a.log
	lib := picam.Initialize()
	s, err := camera.Open(lib, opts)
	if err != nil {
		lib.Uninitialize()
		return nil, nil, err
	}
	a.log.Info().Str("camera", s.Describe()).Msg("camera open")
	return s, func() {
		s.Close()
		lib.Uninitialize()
	}, nil
}

// sinks builds the configured outputs.  The returned func releases them.
func (a *app) sinks(runPreview bool) (pipeline.Sinks, func(), error) {
	var (
		out     pipeline.Sinks
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	c := a.cfg

	rec, err := c.recorder()
	if err != nil {
		return out, cleanup, err
	}
	if rec != nil {
		out.Records = rec
	}
	if c.Raw != "" {
		out.Raw = imgrec.NewRawRecorder(c.Raw)
	}

	if runPreview {
		var multi preview.Multi
		if c.Preview.Window {
			win := preview.NewWindow("picamfft", c.Preview.Wait)
			closers = append(closers, func() { win.Close() })
			multi = append(multi, win)
		}
		if c.Preview.HTTP != "" {
			st := preview.NewStream(preview.StreamOptions{
				Wait:     c.Preview.Wait,
				MaxWidth: c.Preview.MaxWidth,
				Rotate:   c.Preview.Rotate,
				Recorder: rec,
				Logger:   &a.log,
			})
			srv, err := st.Start(c.Preview.HTTP)
			if err != nil {
				return out, cleanup, err
			}
			closers = append(closers, func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
					a.log.Warn().Err(err).Msg("preview server shutdown")
				}
			})
			multi = append(multi, st)
		}
		if len(multi) > 0 {
			out.Preview = multi
		}
	}

	if c.Telemetry.Broker != "" {
		opts := c.Telemetry
		opts.Logger = &a.log
		pub, err := telemetry.DialMQTT(opts)
		if err != nil {
			return out, cleanup, err
		}
		closers = append(closers, func() { pub.Close() })
		out.Telemetry = pub
	}
	return out, cleanup, nil
}

// spinner shows progress when not logging verbosely.  Call stop when the
// run ends, however it ends.
func (a *app) spinner(shots int) (progress func(index, shots int), stop func()) {
	stop = func() {}
	if a.cfg.Verbose {
		return nil, stop
	}
	sp, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " acquiring",
		SuffixAutoColon:   true,
		Message:           fmt.Sprintf("0 of %d", shots),
		StopCharacter:     "✓",
		StopFailCharacter: "✗",
	})
	if err != nil {
		a.log.Debug().Err(err).Msg("no spinner")
		return nil, stop
	}
	if err := sp.Start(); err != nil {
		return nil, stop
	}
	progress = func(index, n int) {
		sp.Message(fmt.Sprintf("%d of %d", index+1, n))
	}
	return progress, func() { sp.Stop() }
}

func printSummary(s pipeline.Summary) {
	fmt.Printf("run %s: %s\n", s.RunID, s.Report)
	if !s.Commit.OK() {
		fmt.Println("parameters refused:", strings.Join(s.Commit.Names(), ", "))
	}
	if s.Cancelled {
		fmt.Println("cancelled from the preview")
	}
	for _, fn := range s.Persisted {
		fmt.Println("wrote", fn)
	}
	if s.RawBytes > 0 {
		fmt.Printf("appended %d bytes to the raw dump\n", s.RawBytes)
	}
}

func (a *app) acquire(cfg pipeline.Config, runPreview bool) error {
	sess, done, err := a.session()
	if err != nil {
		return err
	}
	defer done()
	sinks, release, err := a.sinks(runPreview)
	defer release()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	progress, stopSpinner := a.spinner(cfg.Shots)
	p := pipeline.Pipeline{Session: sess, Config: cfg, Sinks: sinks, Logger: &a.log, Progress: progress}
	sum, err := p.Run(ctx)
	stopSpinner()
	printSummary(sum)
	if err != nil {
		return err
	}
	if !sum.Report.Complete() && !sum.Cancelled {
		a.log.Warn().Err(sum.Report.Err()).Msg("partial capture")
	}
	return nil
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	cfg, err := a.cfg.pipelineConfig()
	if err != nil {
		return err
	}
	return a.acquire(cfg, true)
}

func (a *app) snap(cmd *cobra.Command, args []string) error {
	cfg, err := a.cfg.pipelineConfig()
	if err != nil {
		return err
	}
	a.cfg.Preview.Wait = 0
	return a.acquire(snapConfig(cfg), true)
}

// snapConfig takes one frame in bulk without a transform and writes no
// records
func snapConfig(cfg pipeline.Config) pipeline.Config {
	cfg.Shots = 1
	cfg.Mode = camera.Bulk
	cfg.Transform = pipeline.None
	cfg.PersistEvery = 0
	cfg.PersistFrame = -1
	return cfg
}

func (a *app) gating(cmd *cobra.Command, args []string) error {
	cfg, err := a.cfg.pipelineConfig()
	if err != nil {
		return err
	}
	cfg.Parameters = nil
	sess, done, err := a.session()
	if err != nil {
		return err
	}
	defer done()
	sinks, release, err := a.sinks(true)
	defer release()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	p := pipeline.Pipeline{Session: sess, Config: cfg, Sinks: sinks, Logger: &a.log}
	sums, err := p.RunGating(ctx, a.cfg.Gating)
	for _, s := range sums {
		printSummary(s)
	}
	return err
}

func (a *app) mkconf(cmd *cobra.Command, args []string) {
	f, err := os.Create(a.cfgFile)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := writeConfig(f, defaults()); err != nil {
		log.Fatal(err)
	}
}

func (a *app) printconf(cmd *cobra.Command, args []string) {
	if err := writeConfig(os.Stdout, a.cfg); err != nil {
		log.Fatal(err)
	}
}

func newRoot() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "picamfft",
		Short:             "acquire, transform and record PICam frames",
		Long:              long,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", ConfigFileName, "config file")
	pf.BoolP("verbose", "v", false, "log every step")
	pf.String("serial", "", "serial number of the camera to open")
	pf.Bool("demo", false, "use a demo camera when none is connected")

	acq := func(c *cobra.Command) {
		f := c.Flags()
		f.Bool("window", false, "show frames in a window")
		f.String("http", "", "serve frames on this address, e.g. :8000")
		f.Duration("wait", 0, "how long each frame waits for a cancel")
		f.String("record", "", "root folder for records")
		f.String("format", "", "record format, fits or yaml")
		f.String("broker", "", "MQTT broker for telemetry, e.g. tcp://localhost:1883")
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "acquire frames, transform them and route them to the sinks",
		RunE:  a.run,
	}
	f := run.Flags()
	f.IntP("shots", "n", 10, "number of frames")
	f.String("mode", "bulk", "bulk or repeat")
	f.Duration("timeout", 0, "acquisition timeout, 0 waits forever")
	f.String("transform", "real-imaginary", "none, magnitude or real-imaginary")
	f.Bool("center", false, "swap the spectrum halves to center zero frequency")
	f.Bool("full", false, "record whole frames instead of the region")
	f.String("raw", "", "append every frame to this raw dump file")
	f.Float64("rate", 0, "frames per second in repeat mode, 0 is as fast as possible")
	acq(run)

	snap := &cobra.Command{
		Use:   "snap",
		Short: "acquire and show one frame",
		RunE:  a.snap,
	}
	acq(snap)

	gating := &cobra.Command{
		Use:   "gating",
		Short: "run a repetitive then a sequential gating acquisition",
		RunE:  a.gating,
	}
	acq(gating)

	mkconf := &cobra.Command{
		Use:   "mkconf",
		Short: "write the default configuration to the config file",
		Run:   a.mkconf,
	}
	conf := &cobra.Command{
		Use:   "conf",
		Short: "print the configuration in effect",
		Run:   a.printconf,
	}
	version := &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("picamfft version %v\n", Version)
		},
	}
	root.AddCommand(run, snap, gating, mkconf, conf, version)
	return root
}

func main() {
	err := newRoot().Execute()
	if err == nil {
		return
	}
	if errors.Is(err, picam.ErrDeviceNotFound) {
		os.Exit(2)
	}
	os.Exit(1)
}
