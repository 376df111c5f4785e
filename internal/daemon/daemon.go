// Package daemon orchestrates the main thread (design §4.9 and §5): setup,
// worker thread startup, signal-driven reload/quit, and ordered teardown.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rno-g/rno-g-acq/internal/acquire"
	"github.com/rno-g/rno-g-acq/internal/arena"
	"github.com/rno-g/rno-g-acq/internal/daq"
	"github.com/rno-g/rno-g-acq/internal/daqconfig"
	"github.com/rno-g/rno-g-acq/internal/daqerr"
	"github.com/rno-g/rno-g-acq/internal/daqstatus"
	"github.com/rno-g/rno-g-acq/internal/device"
	"github.com/rno-g/rno-g-acq/internal/health"
	"github.com/rno-g/rno-g-acq/internal/httpstatus"
	"github.com/rno-g/rno-g-acq/internal/logging"
	"github.com/rno-g/rno-g-acq/internal/metrics"
	"github.com/rno-g/rno-g-acq/internal/monitor"
	"github.com/rno-g/rno-g-acq/internal/pedestal"
	"github.com/rno-g/rno-g-acq/internal/ringqueue"
	"github.com/rno-g/rno-g-acq/internal/runctx"
	"github.com/rno-g/rno-g-acq/internal/servo"
	"github.com/rno-g/rno-g-acq/internal/writer"
)

// Deps configures one daemon run: where configuration and runtime state
// live on disk, and how to open the two devices. Device open functions
// are injected so tests can supply simdevice fakes instead of real
// hardware.
type Deps struct {
	ConfigPath string
	InstallDir string

	OpenPrimary   func() (device.Primary, error)
	OpenAuxiliary func() (device.Auxiliary, error) // nil if no auxiliary board configured

	FreeSpaceCheck FreeSpaceChecker
	DropPageCache  func()

	HTTPAddr string // "" disables the status-serve thread

	Log *logging.Logger
}

// Handles bundles everything a daemon run keeps alive between Setup and
// teardown.
type Handles struct {
	Config *daqconfig.Store
	Health *health.Store
	Status *daqstatus.Store
	Shared *daqstatus.SharedFile

	Pedestals       *pedestal.Table
	PedestalMapping *pedestal.Mapping

	Primary   device.Primary
	PrimaryMu sync.RWMutex

	Auxiliary   device.Auxiliary
	AuxiliaryMu sync.RWMutex

	ConfigMu sync.RWMutex

	RunNumber uint32
	RunDir    string
	StationID uint16

	EventQueue    *ringqueue.Queue[daq.EventItem]
	StatusQueue   *ringqueue.Queue[daq.StatusItem]
	WaveformArena *arena.Arena
	Metrics       *metrics.Metrics

	PrimaryServo   *servo.PrimaryServo
	AuxiliaryServo *servo.AuxiliaryServo

	HTTP *httpstatus.Server
}

// Setup runs the main-thread sequence of design §4.9 steps 1-7: load
// configuration, enforce free space, read the station ID, reserve a run
// number and directory, open devices, perform initial device
// configuration, and build the queues and servos every worker thread
// needs.
func Setup(d Deps) (*Handles, error) {
	log := d.Log.With("daemon")

	configPath, err := daqconfig.Find(d.ConfigPath, d.InstallDir)
	if err != nil {
		log.Warn("configuration file not found, proceeding with defaults", "error", err)
		configPath = ""
	}
	cfg, err := daqconfig.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := daqconfig.ConsumeOnceDir(cfg, configPath+".once", log); err != nil {
		log.Error("once-dir consumption failed", "error", err)
	}

	if err := WaitForFreeSpace(d.FreeSpaceCheck, cfg.Output.MinFreeMB, func() {}, time.Sleep); err != nil {
		return nil, err
	}

	stationID, err := ReadStationID(cfg.Runtime.StationFile)
	if err != nil {
		log.Warn("station ID unavailable, defaulting to 0", "error", err)
		stationID = 0
	}

	runNumber, err := runctx.LoadAndIncrement(cfg.Runtime.RunfilePath)
	if err != nil {
		return nil, err
	}
	runNumber, runDir := runctx.ReserveOutputDir(cfg.Output.BaseDir, runNumber, cfg.Output.AllowOverwrite)
	if err := runctx.MakeTree(runDir); err != nil {
		return nil, err
	}
	runStart := time.Now()

	// The configuration dump directory lives inside the run directory
	// (design §6: "cfg/acq.cfg" at start, "cfg/acq.<counter>.<unix_ts>.cfg"
	// per reload), so the store can only be built once runDir is known.
	configStore := daqconfig.NewStore(cfg, configPath, d.InstallDir, filepath.Join(runDir, "cfg"))
	if err := configStore.DumpInitial(); err != nil {
		log.Error("initial configuration dump failed", "error", err)
	}

	h := &Handles{
		Config:    configStore,
		Health:    health.NewStore(),
		Status:    daqstatus.NewStore(stationID),
		RunNumber: runNumber,
		RunDir:    runDir,
		StationID: stationID,
	}

	if cfg.Runtime.SharedStatusPath != "" {
		shared, err := daqstatus.OpenSharedFile(cfg.Runtime.SharedStatusPath)
		if err != nil {
			log.Error("shared status file open failed", "error", err)
		} else {
			h.Shared = shared
		}
	}

	if cfg.Radiant.Pedestals.PedestalFile != "" {
		table, mapping, err := pedestal.LoadOrNew(cfg.Radiant.Pedestals.PedestalFile, daqconfig.NumRadiantChannels, 2048)
		if err != nil {
			log.Error("pedestal table load failed", "error", err)
		} else {
			h.Pedestals = table
			h.PedestalMapping = mapping
		}
	}

	primary, err := OpenPrimaryWithRetries(d.OpenPrimary, d.DropPageCache, log)
	if err != nil {
		return nil, err
	}
	h.Primary = primary

	aux, err := OpenAuxiliary(d.OpenAuxiliary, cfg.Flower.Required, log)
	if err != nil {
		primary.Close()
		return nil, err
	}
	h.Auxiliary = aux

	if err := configureDevices(cfg, h, log); err != nil {
		return nil, err
	}

	h.EventQueue = ringqueue.New[daq.EventItem](cfg.Runtime.AcqBufSize)
	h.StatusQueue = ringqueue.New[daq.StatusItem](cfg.Runtime.StatusBufSize)
	h.WaveformArena = arena.New(cfg.Runtime.AcqBufSize, daqconfig.MaxWaveformBytes, "waveform")
	h.Metrics = metrics.New()

	var active [daqconfig.NumRadiantChannels]bool
	for _, rf := range cfg.Radiant.Trigger.RF {
		if !rf.Enabled {
			continue
		}
		for ch := 0; ch < daqconfig.NumRadiantChannels; ch++ {
			if rf.Mask&(1<<uint(ch)) != 0 {
				active[ch] = true
			}
		}
	}
	h.PrimaryServo = servo.NewPrimaryServo(primaryServoConfig(cfg), cfg.Radiant.Thresholds.Initial, active)

	if h.Auxiliary != nil {
		fw, err := h.Auxiliary.FirmwareVersion()
		if err != nil {
			log.Error("auxiliary firmware version read failed", "error", err)
		}
		old := servo.IsFirmwareOld(fw.Major, fw.Minor, fw.Rev)
		h.AuxiliaryServo = servo.NewAuxiliaryServo(auxServoConfig(cfg), old, cfg.Flower.Trigger.Thresholds)
	}

	if err := writeRunInfo(h, cfg, runStart); err != nil {
		log.Error("run-information file write failed", "error", err)
	}

	if d.HTTPAddr != "" {
		routes := map[string]httpstatus.Handler{
			"/metrics": httpstatus.MetricsHandler(h.Metrics),
		}
		handler := httpstatus.Route(routes, httpstatus.HealthHandler(h.Health))
		srv, err := httpstatus.New(d.HTTPAddr, handler, log)
		if err != nil {
			log.Error("status-serve listen failed", "error", err)
		} else {
			h.HTTP = srv
		}
	}

	return h, nil
}

func primaryServoConfig(cfg *daqconfig.Config) servo.PrimaryConfig {
	s := cfg.Radiant.Servo
	return servo.PrimaryConfig{
		NPeriodsPerPeriod:    s.NScalerPeriodsPerServoPeriod,
		PeriodWeights:        s.PeriodWeights,
		ScalerGoals:          s.ScalerGoals,
		LogTransform:         s.LogTransform,
		LogOffset:            s.LogOffset,
		P:                    s.P,
		I:                    s.I,
		D:                    s.D,
		MaxThreshChangeVolts: s.MaxThreshChange,
		MaxSumErr:            s.MaxSumErr,
		MinVolts:             cfg.Radiant.Thresholds.Min,
		MaxVolts:             cfg.Radiant.Thresholds.Max,
	}
}

func auxServoConfig(cfg *daqconfig.Config) servo.AuxConfig {
	s := cfg.Flower.Servo
	return servo.AuxConfig{
		FastWeight:      s.FastScalerWeight,
		SlowWeight:      s.SlowScalerWeight,
		SubtractGated:   s.SubtractGated,
		ScalerGoals:     s.ScalerGoals,
		P:               s.P,
		I:               s.I,
		D:               s.D,
		MaxThreshChange: s.MaxThreshChange,
		MaxSumErr:       s.MaxSumErr,
		ThreshOffset:    s.ServoThreshOffset,
		ThreshFrac:      s.ServoThreshFrac,
	}
}

// configureDevices applies design §4.9 step 6: stop sampling, apply
// biases, pedestal capture, apply attenuations, set initial thresholds,
// and configure trigger groups and enables. No bias scan is run.
func configureDevices(cfg *daqconfig.Config, h *Handles, log *logging.Logger) error {
	if err := h.Primary.StopLabs(); err != nil {
		return daqerr.Wrap("daemon.configureDevices", daqerr.KindDeviceIO, err)
	}

	if cfg.Radiant.Analog.ApplyLab4Vbias {
		if err := h.Primary.ApplyLab4Vbias(cfg.Radiant.Analog.Lab4Vbias); err != nil {
			log.Error("lab4 vbias apply failed", "error", err)
		}
	}
	if cfg.Radiant.Analog.ApplyDiodeVbias {
		if err := h.Primary.ApplyDiodeVbias(cfg.Radiant.Analog.DiodeVbias); err != nil {
			log.Error("diode vbias apply failed", "error", err)
		}
	}
	if cfg.Radiant.Analog.SettleTime > 0 {
		time.Sleep(cfg.Radiant.Analog.SettleTime)
	}

	if cfg.Radiant.Pedestals.ComputeAtStart {
		if cfg.Radiant.Pedestals.ApplyAttenuation {
			var atten [daqconfig.NumRadiantChannels]float64
			for i := range atten {
				atten[i] = cfg.Radiant.Pedestals.Attenuation
			}
			h.Primary.ApplyAttenuations(atten, atten)
		}
		rows, err := h.Primary.CapturePedestals(cfg.Radiant.Pedestals.NTriggersPerComputation)
		if err != nil {
			log.Error("pedestal capture failed", "error", err)
		} else if h.Pedestals != nil {
			for ch, row := range rows {
				h.Pedestals.SetChannel(ch, row)
			}
			if h.PedestalMapping != nil {
				h.PedestalMapping.Flush(h.Pedestals)
			}
		}
		if cfg.Radiant.Pedestals.ApplyAttenuation {
			h.Primary.ApplyAttenuations(cfg.Radiant.Analog.DigiAttenuation, cfg.Radiant.Analog.TrigAttenuation)
		}
	}

	if cfg.Radiant.Analog.ApplyAttenuations {
		if err := h.Primary.ApplyAttenuations(cfg.Radiant.Analog.DigiAttenuation, cfg.Radiant.Analog.TrigAttenuation); err != nil {
			log.Error("attenuation apply failed", "error", err)
		}
	}

	initial := cfg.Radiant.Thresholds.Initial
	if err := h.Primary.WriteThresholds(initial); err != nil {
		return daqerr.Wrap("daemon.configureDevices", daqerr.KindDeviceIO, err)
	}

	var groups [2]device.TriggerGroupConfig
	for i, rf := range cfg.Radiant.Trigger.RF {
		groups[i] = device.TriggerGroupConfig{
			Enabled:         rf.Enabled,
			ChannelMask:     rf.Mask,
			Window:          time.Duration(rf.Window * float64(time.Second)),
			NumCoincidences: rf.NumCoincidences,
		}
	}
	if err := h.Primary.ConfigureTriggerGroups(groups); err != nil {
		log.Error("trigger group configuration failed", "error", err)
	}
	if err := h.Primary.SetSoftTriggerEnabled(cfg.Radiant.Trigger.Soft.Enabled); err != nil {
		log.Error("soft trigger enable failed", "error", err)
	}
	if err := h.Primary.SetPPSEnabled(cfg.Radiant.Trigger.PPS.Enabled, cfg.Radiant.Trigger.PPS.OutputEnabled); err != nil {
		log.Error("pps enable failed", "error", err)
	}
	if err := h.Primary.SetExtTriggerEnabled(cfg.Radiant.Trigger.Ext.Enabled); err != nil {
		log.Error("ext trigger enable failed", "error", err)
	}

	if h.Auxiliary != nil {
		if err := h.Auxiliary.WriteThresholds(cfg.Flower.Trigger.Thresholds); err != nil {
			log.Error("auxiliary threshold write failed", "error", err)
		}
		if err := h.Auxiliary.SetGainCodes(cfg.Flower.GainCodes); err != nil {
			log.Error("auxiliary gain code write failed", "error", err)
		}
	}

	return nil
}

// applyReload invokes the re-configure procedure for every device subtree
// a reload found changed (design §4.3 step 6), re-pushing the affected
// servo and device state under the same locks acquire/monitor hold for
// their own device access.
func applyReload(h *Handles, result *daqconfig.ReloadResult, log *logging.Logger) {
	cfg := h.Config.Get()

	if result.RadiantChanged {
		reconfigurePrimary(cfg, h, log)
	}
	if result.FlowerChanged && h.Auxiliary != nil {
		reconfigureAuxiliary(cfg, h, log)
	}
}

// reconfigurePrimary re-derives the primary servo's gains and active-
// channel mask from cfg, syncs its in-memory thresholds to
// radiant.thresholds.initial, and re-pushes thresholds and trigger
// configuration to the device so the change is visible before the next
// event is acquired.
func reconfigurePrimary(cfg *daqconfig.Config, h *Handles, log *logging.Logger) {
	h.PrimaryServo.Reconfigure(primaryServoConfig(cfg))
	h.PrimaryServo.SetThresholdsVolts(cfg.Radiant.Thresholds.Initial)

	var active [daqconfig.NumRadiantChannels]bool
	for _, rf := range cfg.Radiant.Trigger.RF {
		if !rf.Enabled {
			continue
		}
		for ch := 0; ch < daqconfig.NumRadiantChannels; ch++ {
			if rf.Mask&(1<<uint(ch)) != 0 {
				active[ch] = true
			}
		}
	}
	h.PrimaryServo.SetActive(active)

	h.PrimaryMu.Lock()
	defer h.PrimaryMu.Unlock()

	if err := h.Primary.WriteThresholds(cfg.Radiant.Thresholds.Initial); err != nil {
		log.Error("reload: primary threshold write failed", "error", err)
	}

	var groups [2]device.TriggerGroupConfig
	for i, rf := range cfg.Radiant.Trigger.RF {
		groups[i] = device.TriggerGroupConfig{
			Enabled:         rf.Enabled,
			ChannelMask:     rf.Mask,
			Window:          time.Duration(rf.Window * float64(time.Second)),
			NumCoincidences: rf.NumCoincidences,
		}
	}
	if err := h.Primary.ConfigureTriggerGroups(groups); err != nil {
		log.Error("reload: trigger group configuration failed", "error", err)
	}
	if err := h.Primary.SetSoftTriggerEnabled(cfg.Radiant.Trigger.Soft.Enabled); err != nil {
		log.Error("reload: soft trigger enable failed", "error", err)
	}
	if err := h.Primary.SetPPSEnabled(cfg.Radiant.Trigger.PPS.Enabled, cfg.Radiant.Trigger.PPS.OutputEnabled); err != nil {
		log.Error("reload: pps enable failed", "error", err)
	}
	if err := h.Primary.SetExtTriggerEnabled(cfg.Radiant.Trigger.Ext.Enabled); err != nil {
		log.Error("reload: ext trigger enable failed", "error", err)
	}
}

// reconfigureAuxiliary re-derives the auxiliary servo's gains from cfg,
// syncs its in-memory servo thresholds to flower.trigger.thresholds, and
// re-pushes thresholds and gain codes to the device.
func reconfigureAuxiliary(cfg *daqconfig.Config, h *Handles, log *logging.Logger) {
	h.AuxiliaryServo.Reconfigure(auxServoConfig(cfg))
	h.AuxiliaryServo.SetTriggerThresholdsVolts(cfg.Flower.Trigger.Thresholds)

	h.AuxiliaryMu.Lock()
	defer h.AuxiliaryMu.Unlock()

	if err := h.Auxiliary.WriteThresholds(cfg.Flower.Trigger.Thresholds); err != nil {
		log.Error("reload: auxiliary threshold write failed", "error", err)
	}
	if err := h.Auxiliary.SetGainCodes(cfg.Flower.GainCodes); err != nil {
		log.Error("reload: auxiliary gain code write failed", "error", err)
	}
}

// Run performs Setup, starts the worker threads, watches reread/quit, and
// tears everything down in the order design §5 specifies: acquire ->
// monitor -> writer joined, status-serve independent.
func Run(d Deps, quit, reread *atomic.Bool) error {
	log := d.Log.With("daemon")

	h, err := Setup(d)
	if err != nil {
		return err
	}
	cfg := h.Config.Get()

	acqDone := make(chan struct{})
	go func() {
		acquire.Loop(acquire.Deps{
			ConfigMu:    &h.ConfigMu,
			Config:      h.Config,
			PrimaryMu:   &h.PrimaryMu,
			Primary:     h.Primary,
			AuxiliaryMu: &h.AuxiliaryMu,
			Auxiliary:   h.Auxiliary,
			Queue:         h.EventQueue,
			WaveformArena: h.WaveformArena,
			Metrics:       h.Metrics,
			RunNumber:     h.RunNumber,
			StationID:   h.StationID,
			Log:         d.Log,
		}, quit)
		close(acqDone)
	}()

	cadences := monitor.NewCadences(
		cfg.Radiant.Scalers.UpdateInterval,
		cfg.Radiant.Servo.ServoInterval,
		cfg.Flower.Servo.ScalerUpdateInterval,
		cfg.Flower.Servo.ServoInterval,
		cfg.Output.StatePublishInterval,
	)
	var softTrig *monitor.SoftTriggerScheduler
	if cfg.Radiant.Trigger.Soft.Enabled {
		softTrig = monitor.NewSoftTriggerScheduler(true, cfg.Radiant.Trigger.Soft.UseExponentialDistribution,
			cfg.Radiant.Trigger.Soft.Interval, cfg.Radiant.Trigger.Soft.IntervalJitter, int64(h.RunNumber)+1, time.Now())
	}
	var sweep *monitor.CalpulserSweep
	if cfg.Calpulser.Sweep.Enabled {
		sweep = monitor.NewCalpulserSweep(cfg.Calpulser.Sweep.StartAtten, cfg.Calpulser.Sweep.StopAtten,
			cfg.Calpulser.Sweep.Step, cfg.Calpulser.Sweep.StepDuration)
	}

	monDone := make(chan struct{})
	go func() {
		monitor.Loop(monitor.Deps{
			ConfigMu:       &h.ConfigMu,
			Config:         h.Config,
			PrimaryMu:      &h.PrimaryMu,
			Primary:        h.Primary,
			AuxiliaryMu:    &h.AuxiliaryMu,
			Auxiliary:      h.Auxiliary,
			Status:         h.Status,
			Shared:         h.Shared,
			StatusQueue:    h.StatusQueue,
			PrimaryServo:   h.PrimaryServo,
			AuxiliaryServo: h.AuxiliaryServo,
			Sweep:          sweep,
			SoftTrigger:    softTrig,
			Metrics:        h.Metrics,
			Log:            d.Log,
		}, cadences, quit)
		close(monDone)
	}()

	writerDone := make(chan struct{})
	go func() {
		writer.Loop(writer.Deps{
			ConfigMu:      &h.ConfigMu,
			Config:        h.Config,
			EventQueue:    h.EventQueue,
			StatusQueue:   h.StatusQueue,
			WaveformArena: h.WaveformArena,
			Status:        h.Status,
			Shared:        h.Shared,
			Health:        h.Health,
			HealthPath:    cfg.Runtime.HealthStatePath,
			RunDir:        h.RunDir,
			Log:           d.Log,
		}, quit)
		close(writerDone)
	}()

	var httpDone chan struct{}
	if h.HTTP != nil {
		httpDone = make(chan struct{})
		go func() {
			h.HTTP.Serve(quit)
			close(httpDone)
		}()
	}

	for !quit.Load() {
		if reread.CompareAndSwap(true, false) {
			result, err := h.Config.Reload(d.Log)
			if err != nil {
				log.Error("config reload failed", "error", err)
			} else {
				log.Info("config reloaded", "radiant_changed", result.RadiantChanged,
					"flower_changed", result.FlowerChanged, "calpulser_changed", result.CalpulserChanged)
				applyReload(h, result, log)
			}
		}
		time.Sleep(time.Second)
	}

	<-acqDone
	<-monDone
	<-writerDone
	if httpDone != nil {
		<-httpDone
	}

	if h.Auxiliary != nil {
		h.Auxiliary.Close()
	}
	if h.Primary != nil {
		h.Primary.Close()
	}
	if h.Shared != nil {
		h.Shared.Close()
	}
	if h.PedestalMapping != nil {
		h.PedestalMapping.Close()
	}
	if h.HTTP != nil {
		h.HTTP.Close()
	}

	return nil
}

// RunInfoPath returns the fixed run-information file path within runDir.
func RunInfoPath(runDir string) string {
	return filepath.Join(runDir, "run_info.txt")
}

// writeRunInfo records the run number, station id, run-start timestamp,
// auxiliary firmware version, and output base directory into the run
// directory. It is written once at setup. The primary device's firmware
// version, the sample rate, free-space snapshots, and the run-end
// timestamp are not recorded.
func writeRunInfo(h *Handles, cfg *daqconfig.Config, runStart time.Time) error {
	var auxFirmware device.FirmwareVersion
	if h.Auxiliary != nil {
		auxFirmware, _ = h.Auxiliary.FirmwareVersion()
	}

	body := fmt.Sprintf(
		"run_number=%d\nstation_id=%d\nrun_start=%s\nauxiliary_firmware=%d.%d.%d\nbase_dir=%s\n",
		h.RunNumber, h.StationID, runStart.Format(time.RFC3339),
		auxFirmware.Major, auxFirmware.Minor, auxFirmware.Rev, cfg.Output.BaseDir,
	)
	return os.WriteFile(RunInfoPath(h.RunDir), []byte(body), 0o644)
}
