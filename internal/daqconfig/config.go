// Package daqconfig holds the configuration tree described in the design's
// §3 data model, the reload protocol of §4.3, and the file search path
// rules that locate it on disk.
//
// The tree is read once at startup into a default-initialized value, then
// overlaid by whatever the configuration file (TOML) provides. The live
// value is held by a *Store guarded by a sync.RWMutex: the main thread
// writes during reload, every worker thread reads under RLock.
package daqconfig

import "time"

// NumServoPeriods is the number of rolling-window periods the primary
// servo blends per channel (design §4.4).
const NumServoPeriods = 3

// NumRadiantChannels is the primary board's channel count.
const NumRadiantChannels = 24

// NumFlowerChannels is the auxiliary board's channel count.
const NumFlowerChannels = 4

// NumFlowerBeams is the auxiliary board's beam count.
const NumFlowerBeams = 4

// SamplesPerChannel is the LAB4 sample depth captured per channel for both
// a pedestal row and an event waveform.
const SamplesPerChannel = 2048

// MaxWaveformBytes bounds a full-event waveform: every radiant channel's
// samples, two bytes each, sized for the arena that hands acquire its
// waveform buffers (design §4.2).
const MaxWaveformBytes = NumRadiantChannels * SamplesPerChannel * 2

// Config is the full configuration tree, mutated only by the main thread
// under the write lock and read by all workers under the read lock.
type Config struct {
	Output   OutputConfig   `toml:"output"`
	Runtime  RuntimeConfig  `toml:"runtime"`
	Radiant  RadiantConfig  `toml:"radiant"`
	Flower   FlowerConfig   `toml:"flower"`
	Calpulser CalpulserConfig `toml:"calpulser"`
}

// OutputConfig governs where and how output files are written.
type OutputConfig struct {
	BaseDir          string        `toml:"base_dir"`
	MaxKBPerFile     int64         `toml:"max_kB_per_file"`
	MaxRecordsPerFile int          `toml:"max_records_per_file"`
	MaxSecondsPerFile time.Duration `toml:"max_seconds_per_file"`
	MinFreeMB        float64       `toml:"min_free_MB"`
	SecondsPerRun    time.Duration `toml:"seconds_per_run"`
	Comment          string        `toml:"comment"`
	AllowOverwrite   bool          `toml:"allow_overwrite"`
	PrintInterval    time.Duration `toml:"print_interval"`
	StatePublishInterval time.Duration `toml:"state_publish_interval"`
}

// RuntimeConfig governs queue sizing and the shared-status path.
type RuntimeConfig struct {
	AcqBufSize    int    `toml:"acq_buf_size"`
	StatusBufSize int    `toml:"status_buf_size"`
	SharedStatusPath string `toml:"shared_status_path"`
	RunfilePath   string `toml:"runfile_path"`
	StationFile   string `toml:"station_file"`
	HealthStatePath string `toml:"health_state_path"`
}

// RadiantConfig is the primary device's configuration.
type RadiantConfig struct {
	SPIDevice  string `toml:"spi_device"`
	UARTDevice string `toml:"uart_device"`
	GPIOReset  int    `toml:"gpio_reset"`
	GPIOPPS    int    `toml:"gpio_pps"`

	Readout  RadiantReadoutConfig  `toml:"readout"`
	Scalers  RadiantScalerConfig   `toml:"scalers"`
	Thresholds RadiantThresholdConfig `toml:"thresholds"`
	Servo    RadiantServoConfig    `toml:"servo"`
	Trigger  RadiantTriggerConfig  `toml:"trigger"`
	Pedestals RadiantPedestalConfig `toml:"pedestals"`
	Analog   RadiantAnalogConfig   `toml:"analog"`
}

type RadiantReadoutConfig struct {
	ReadoutMask       uint32 `toml:"readout_mask"`
	NBuffersPerReadout int   `toml:"nbuffers_per_readout"`
	PollMS            int    `toml:"poll_ms"`
}

type RadiantScalerConfig struct {
	UsePPS       bool                          `toml:"use_pps"`
	Period       float64                       `toml:"period"`
	PrescalerM1  [NumRadiantChannels]uint8      `toml:"prescal_m1"`
	UpdateInterval time.Duration               `toml:"update_interval"`
}

type RadiantThresholdConfig struct {
	LoadFromStatusFile bool                        `toml:"load_from_status_file"`
	Initial            [NumRadiantChannels]float64 `toml:"initial"`
	Min                float64                     `toml:"min"`
	Max                float64                     `toml:"max"`
}

// RadiantServoConfig is the PID controller configuration for the primary
// board's per-channel thresholds (design §4.4).
type RadiantServoConfig struct {
	Enable                     bool                            `toml:"enable"`
	ScalerUpdateInterval       time.Duration                   `toml:"scaler_update_interval"`
	ServoInterval              time.Duration                   `toml:"servo_interval"`
	NScalerPeriodsPerServoPeriod [NumServoPeriods]int           `toml:"nscaler_periods_per_servo_period"`
	PeriodWeights              [NumServoPeriods]float64        `toml:"period_weights"`
	ScalerGoals                [NumRadiantChannels]float64      `toml:"scaler_goals"`
	LogTransform               bool                             `toml:"log_transform"`
	LogOffset                  float64                          `toml:"log_offset"`
	MaxThreshChange            float64                          `toml:"max_thresh_change"`
	MaxSumErr                  float64                          `toml:"max_sum_err"`
	P, I, D                    float64
}

type RadiantTriggerConfig struct {
	Soft SoftTriggerConfig `toml:"soft"`
	Ext  struct {
		Enabled bool `toml:"enabled"`
	} `toml:"ext"`
	PPS struct {
		Enabled        bool `toml:"enabled"`
		OutputEnabled  bool `toml:"output_enabled"`
	} `toml:"pps"`
	RF [2]RFTriggerConfig `toml:"rf"`
}

// SoftTriggerConfig configures the monitor thread's soft-trigger generator
// (design §4.6): either a fixed-interval-with-jitter schedule or an
// exponential inter-arrival process.
type SoftTriggerConfig struct {
	Enabled                 bool          `toml:"enabled"`
	UseExponentialDistribution bool       `toml:"use_exponential_distribution"`
	Interval                time.Duration `toml:"interval"`
	IntervalJitter          time.Duration `toml:"interval_jitter"`
	OutputEnabled           bool          `toml:"output_enabled"`
}

type RFTriggerConfig struct {
	Enabled         bool    `toml:"enabled"`
	Mask            uint32  `toml:"mask"`
	Window          float64 `toml:"window"`
	NumCoincidences int     `toml:"num_coincidences"`
}

type RadiantPedestalConfig struct {
	ComputeAtStart       bool    `toml:"compute_at_start"`
	NTriggersPerComputation int  `toml:"ntriggers_per_computation"`
	ApplyAttenuation     bool    `toml:"apply_attenuation"`
	Attenuation          float64 `toml:"attenuation"`
	PedestalFile         string  `toml:"pedestal_file"`
	PedestalSubtract     bool    `toml:"pedestal_subtract"`
}

type RadiantAnalogConfig struct {
	ApplyLab4Vbias  bool                          `toml:"apply_lab4_vbias"`
	Lab4Vbias       [2]float64                    `toml:"lab4_vbias"`
	ApplyDiodeVbias bool                          `toml:"apply_diode_vbias"`
	DiodeVbias      [NumRadiantChannels]float64    `toml:"diode_vbias"`
	ApplyAttenuations bool                        `toml:"apply_attenuations"`
	DigiAttenuation [NumRadiantChannels]float64    `toml:"digi_attenuation"`
	TrigAttenuation [NumRadiantChannels]float64    `toml:"trig_attenuation"`
	SettleTime      time.Duration                 `toml:"settle_time"`
	BiasScan        BiasScanConfig                `toml:"bias_scan"`
}

// BiasScanConfig holds the calibration bias-sweep settings (design
// Glossary: "Bias scan"). They are parsed and dumped with the rest of the
// configuration; the daemon does not run a bias scan.
type BiasScanConfig struct {
	Enabled  bool    `toml:"enabled"`
	SkipRuns int     `toml:"skip_runs"`
	Start    float64 `toml:"start"`
	Stop     float64 `toml:"stop"`
	Step     float64 `toml:"step"`
	StepDuration time.Duration `toml:"step_duration"`
}

// FlowerConfig is the auxiliary device's configuration.
type FlowerConfig struct {
	Device   string              `toml:"device"`
	Required bool                `toml:"required"`

	Trigger  FlowerTriggerConfig `toml:"trigger"`
	Servo    FlowerServoConfig   `toml:"servo"`
	GainCodes [NumFlowerChannels]int `toml:"gain_codes"`
}

type FlowerTriggerConfig struct {
	Enabled    bool                          `toml:"enabled"`
	Thresholds [NumFlowerChannels]float64    `toml:"thresholds"`
}

// FlowerServoConfig is the PID controller configuration for the auxiliary
// board (design §4.4). fast_factor is derived at runtime from the
// device's firmware revision, not configured here.
type FlowerServoConfig struct {
	Enable               bool                        `toml:"enable"`
	ScalerUpdateInterval time.Duration               `toml:"scaler_update_interval"`
	ServoInterval        time.Duration               `toml:"servo_interval"`
	FastScalerWeight     float64                     `toml:"fast_scaler_weight"`
	SlowScalerWeight     float64                     `toml:"slow_scaler_weight"`
	SubtractGated        bool                        `toml:"subtract_gated"`
	ScalerGoals          [NumFlowerChannels]float64  `toml:"scaler_goals"`
	MaxThreshChange      float64                     `toml:"max_thresh_change"`
	MaxSumErr            float64                     `toml:"max_sum_err"`
	P, I, D              float64
	ServoThreshOffset    float64                     `toml:"servo_thresh_offset"`
	ServoThreshFrac      float64                     `toml:"servo_thresh_frac"`
	InitialTriggerThresholds [NumFlowerChannels]float64 `toml:"initial_trigger_thresholds"`
	LoadFromThresholdFile bool                       `toml:"load_from_threshold_file"`
}

// CalpulserConfig is the calibration pulser configuration.
type CalpulserConfig struct {
	Type        string        `toml:"type"`
	Channel     int           `toml:"channel"`
	Attenuation float64       `toml:"attenuation"`
	Sweep       PulserSweepConfig `toml:"sweep"`
}

type PulserSweepConfig struct {
	Enabled      bool          `toml:"enabled"`
	StartAtten   float64       `toml:"start_atten"`
	StopAtten    float64       `toml:"stop_atten"`
	Step         float64       `toml:"step"`
	StepDuration time.Duration `toml:"step_duration"`
}

// Default returns a default-initialized configuration tree, overlaid by
// whatever the configuration file provides during Load.
func Default() *Config {
	cfg := &Config{}

	cfg.Output = OutputConfig{
		BaseDir:           "/rno-g/data",
		MaxKBPerFile:      20 * 1024,
		MaxRecordsPerFile: 1000,
		MaxSecondsPerFile: 10 * time.Minute,
		MinFreeMB:         1024,
		SecondsPerRun:     6 * time.Hour,
		PrintInterval:     60 * time.Second,
		StatePublishInterval: 2 * time.Second,
	}

	cfg.Runtime = RuntimeConfig{
		AcqBufSize:       32,
		StatusBufSize:    32,
		SharedStatusPath: "/rno-g/run/daqstatus.dat",
		RunfilePath:      "/rno-g/run/runfile.dat",
		StationFile:      "/rno-g/station",
		HealthStatePath:  "/rno-g/run/daqstate.json",
	}

	cfg.Radiant = RadiantConfig{
		SPIDevice:  "/dev/spidev0.0",
		UARTDevice: "/dev/ttyRadiant",
		Readout: RadiantReadoutConfig{
			ReadoutMask:        0xFFFFFF,
			NBuffersPerReadout: 1,
			PollMS:             100,
		},
		Scalers: RadiantScalerConfig{
			UsePPS:         true,
			UpdateInterval: time.Second,
		},
		Thresholds: RadiantThresholdConfig{
			Min: 0,
			Max: 2.5,
		},
		Servo: RadiantServoConfig{
			ScalerUpdateInterval:        time.Second,
			ServoInterval:               2 * time.Second,
			NScalerPeriodsPerServoPeriod: [NumServoPeriods]int{1, 10, 60},
			PeriodWeights:               [NumServoPeriods]float64{1, 0, 0},
			MaxThreshChange:             0.05,
			MaxSumErr:                   1e6,
			P:                           0.0001,
		},
		Trigger: RadiantTriggerConfig{
			Soft: SoftTriggerConfig{Interval: time.Second},
		},
		Pedestals: RadiantPedestalConfig{
			NTriggersPerComputation: 512,
		},
		Analog: RadiantAnalogConfig{
			SettleTime: 2 * time.Second,
			BiasScan:   BiasScanConfig{SkipRuns: 10},
		},
	}

	cfg.Flower = FlowerConfig{
		Device: "/dev/ttyFlower",
		Servo: FlowerServoConfig{
			ScalerUpdateInterval: time.Second,
			ServoInterval:        2 * time.Second,
			FastScalerWeight:     1,
			SlowScalerWeight:     1,
			MaxThreshChange:      5,
			MaxSumErr:            1e6,
			ServoThreshFrac:      1,
		},
	}

	return cfg
}

// Clone returns a deep copy, used to snapshot the live record before a
// reload (design §4.3 step 1) so reload can be compared against it.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// RadiantChanged reports whether the primary device subtree differs
// between two configurations (design §4.3 step 6: reconfigure only if
// changed).
func (c *Config) RadiantChanged(other *Config) bool {
	return c.Radiant != other.Radiant
}

// FlowerChanged reports whether the auxiliary device subtree differs.
func (c *Config) FlowerChanged(other *Config) bool {
	return c.Flower != other.Flower
}

// CalpulserChanged reports whether the calibration pulser subtree differs.
func (c *Config) CalpulserChanged(other *Config) bool {
	return c.Calpulser != other.Calpulser
}
