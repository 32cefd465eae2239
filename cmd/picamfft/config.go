package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/pflag"

	yml "gopkg.in/yaml.v2"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/imgrec"
	"github.jpl.nasa.gov/bdube/picamfft/picam"
	"github.jpl.nasa.gov/bdube/picamfft/pipeline"
	"github.jpl.nasa.gov/bdube/picamfft/telemetry"
)

// EnvPrefix marks environment variables read as config.  Underscores after
// the prefix separate levels, PICAMFFT_RECORD_ROOT sets record.root.
const EnvPrefix = "PICAMFFT_"

type recorderConf struct {
	// Root is the root folder to write to.  Empty disables records.
	Root string `yaml:"root"`

	// Prefix is the filename prefix to use
	Prefix string `yaml:"prefix"`

	// Format is fits or yaml
	Format string `yaml:"format"`
}

type previewConf struct {
	// Window shows frames in an OpenCV window
	Window bool `yaml:"window"`

	// HTTP is the address to serve frames on.  Empty disables the server.
	HTTP string `yaml:"http"`

	// Wait is how long each frame waits for a cancel
	Wait time.Duration `yaml:"wait"`

	MaxWidth int `yaml:"maxwidth"`
	Rotate   int `yaml:"rotate"`
}

type config struct {
	Verbose bool `yaml:"verbose"`

	// Serial selects the camera.  Empty opens the first one.
	Serial    string        `yaml:"serial"`
	Demo      bool          `yaml:"demo"`
	DemoModel string        `yaml:"demomodel"`
	Discovery time.Duration `yaml:"discovery"`
	Rows      int           `yaml:"rows"`
	Cols      int           `yaml:"cols"`

	Shots        int           `yaml:"shots"`
	Mode         string        `yaml:"mode"`
	Timeout      time.Duration `yaml:"timeout"`
	Transform    string        `yaml:"transform"`
	Center       bool          `yaml:"center"`
	Full         bool          `yaml:"full"`
	Region       camera.AOI    `yaml:"region"`
	PersistEvery int           `yaml:"persistevery"`
	PersistFrame int           `yaml:"persistframe"`
	RateHz       float64       `yaml:"ratehz"`

	// Raw is the raw dump file.  Empty disables it.
	Raw string `yaml:"raw"`

	Preview   previewConf           `yaml:"preview"`
	Record    recorderConf          `yaml:"record"`
	Telemetry telemetry.MQTTOptions `yaml:"telemetry"`
	Gating    pipeline.GatingPlan   `yaml:"gating"`

	// Parameters are committed to the camera before acquiring
	Parameters map[string]interface{} `yaml:"parameters"`
}

func defaults() config {
	d := pipeline.DefaultConfig()
	return config{
		DemoModel:    picam.ModelPixis400.String(),
		Shots:        d.Shots,
		Mode:         d.Mode.String(),
		Transform:    d.Transform.String(),
		Region:       d.Region,
		PersistFrame: d.PersistFrame,
		Preview:      previewConf{Wait: 30 * time.Millisecond, MaxWidth: 1024},
		Record:       recorderConf{Prefix: "picam", Format: imgrec.YAML.String()},
		Telemetry:    telemetry.MQTTOptions{Topic: "picamfft", Timeout: 5 * time.Second},
		Gating:       pipeline.DefaultGatingPlan(),
		Parameters: map[string]interface{}{
			"AdcSpeed":             4.0,
			"TriggerResponse":      "Expose During Trigger Pulse",
			"TriggerDetermination": "Rising Edge",
		},
	}
}

var unmarshalConf = koanf.UnmarshalConf{Tag: "yaml"}

// loadConfig layers the defaults, the config file, the environment and then
// any flags set on the command line
func loadConfig(fn string, flags *pflag.FlagSet) (*koanf.Koanf, config, error) {
	k := koanf.New(".")
	c := config{}
	if err := k.Load(structs.Provider(defaults(), "yaml"), nil); err != nil {
		return k, c, err
	}
	if err := k.Load(file.Provider(fn), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) { // file missing, who cares
			return k, c, fmt.Errorf("error loading config: %w", err)
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.Replace(strings.ToLower(s), "_", ".", -1)
	}), nil)
	if err != nil {
		return k, c, err
	}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey(flags)), nil); err != nil {
			return k, c, err
		}
	}
	err = k.UnmarshalWithConf("", &c, unmarshalConf)
	return k, c, err
}

// flagKey maps a flag to its config key.  Flags that are not config keys are
// dropped.
func flagKey(flags *pflag.FlagSet) func(*pflag.Flag) (string, interface{}) {
	return func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}
}

var flagKeys = map[string]string{
	"verbose":   "verbose",
	"serial":    "serial",
	"demo":      "demo",
	"shots":     "shots",
	"mode":      "mode",
	"timeout":   "timeout",
	"transform": "transform",
	"center":    "center",
	"full":      "full",
	"raw":       "raw",
	"rate":      "ratehz",
	"window":    "preview.window",
	"http":      "preview.http",
	"wait":      "preview.wait",
	"record":    "record.root",
	"format":    "record.format",
	"broker":    "telemetry.broker",
}

func (c config) openOptions() (camera.OpenOptions, error) {
	opts := camera.OpenOptions{
		Serial:           c.Serial,
		Demo:             c.Demo,
		DiscoveryTimeout: c.Discovery,
		Rows:             c.Rows,
		Cols:             c.Cols,
	}
	if c.Demo {
		m, ok := picam.ModelByName(c.DemoModel)
		if !ok {
			return opts, fmt.Errorf("unknown demo camera model %q", c.DemoModel)
		}
		opts.DemoModel = m
		opts.DemoOptions = []picam.DemoOption{picam.WithRealtime(true)}
	}
	return opts, nil
}

func (c config) pipelineConfig() (pipeline.Config, error) {
	mode, err := camera.ParseMode(c.Mode)
	if err != nil {
		return pipeline.Config{}, err
	}
	tf, err := pipeline.ParseTransform(c.Transform)
	if err != nil {
		return pipeline.Config{}, err
	}
	ps, err := picam.ParseParameterSet(c.Parameters)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("parameters: %w", err)
	}
	out := pipeline.Config{
		Shots:        c.Shots,
		Mode:         mode,
		Timeout:      c.Timeout,
		Transform:    tf,
		Center:       c.Center,
		Output:       pipeline.ROI,
		Region:       c.Region,
		PersistEvery: c.PersistEvery,
		PersistFrame: c.PersistFrame,
		Raw:          c.Raw != "",
		RateHz:       c.RateHz,
		Parameters:   ps,
	}
	if c.Full {
		out.Output = pipeline.Full
	}
	return out, nil
}

func (c config) recorder() (*imgrec.Recorder, error) {
	if c.Record.Root == "" {
		return nil, nil
	}
	f, err := imgrec.ParseFormat(c.Record.Format)
	if err != nil {
		return nil, err
	}
	return &imgrec.Recorder{Root: c.Record.Root, Prefix: c.Record.Prefix, Format: f, Enabled: true}, nil
}

func writeConfig(w io.Writer, c config) error {
	return yml.NewEncoder(w).Encode(c)
}
