// Command rno-g-acq is the acquisition daemon's entrypoint: it wires flags
// to daemon.Deps, opens the (out-of-scope, per design §1) primary and
// auxiliary device handles via simdevice, and runs until a termination
// signal arrives.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/rno-g/rno-g-acq/internal/daemon"
	"github.com/rno-g/rno-g-acq/internal/daqconfig"
	"github.com/rno-g/rno-g-acq/internal/device"
	"github.com/rno-g/rno-g-acq/internal/device/simdevice"
	"github.com/rno-g/rno-g-acq/internal/logging"
)

func main() {
	var (
		configPath  string
		installDir  string
		httpAddr    string
		noAuxiliary bool
		auxFirmware []int
		verbose     bool
	)

	root := &cobra.Command{
		Use:   "rno-g-acq [config-path]",
		Short: "run the in-ice radio-detector acquisition daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				configPath = args[0]
			}
			logConfig := logging.DefaultConfig()
			if verbose {
				logConfig.Level = zerolog.DebugLevel
			}
			log := logging.NewLogger(logConfig)
			logging.SetDefault(log)

			if len(auxFirmware) != 3 {
				return fmt.Errorf("--aux-firmware requires exactly 3 components, got %d", len(auxFirmware))
			}
			fw := device.FirmwareVersion{
				Major: uint8(auxFirmware[0]),
				Minor: uint8(auxFirmware[1]),
				Rev:   uint8(auxFirmware[2]),
			}

			baseDir := "/rno-g/data"
			if found, err := daqconfig.Find(configPath, installDir); err == nil {
				if cfg, err := daqconfig.Load(found); err == nil {
					baseDir = cfg.Output.BaseDir
				}
			}

			d := daemon.Deps{
				ConfigPath: configPath,
				InstallDir: installDir,
				HTTPAddr:   httpAddr,
				OpenPrimary: func() (device.Primary, error) {
					return simdevice.NewPrimary(), nil
				},
				FreeSpaceCheck: func() (float64, error) { return freeMB(baseDir) },
				DropPageCache:  dropPageCache,
				Log:            log,
			}
			if !noAuxiliary {
				d.OpenAuxiliary = func() (device.Auxiliary, error) {
					return simdevice.NewAuxiliary(fw), nil
				}
			}

			var quit, reread atomic.Bool

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info("received shutdown signal")
				quit.Store(true)
			}()

			reloadCh := make(chan os.Signal, 1)
			signal.Notify(reloadCh, syscall.SIGUSR1)
			go func() {
				for range reloadCh {
					log.Info("received reload signal")
					reread.Store(true)
				}
			}()

			return daemon.Run(d, &quit, &reread)
		},
	}

	root.Flags().StringVar(&configPath, "config", "rno-g-acq.cfg", "configuration file name or path")
	root.Flags().StringVar(&installDir, "install-dir", "/rno-g", "installation directory consulted for the config search path")
	root.Flags().StringVar(&httpAddr, "http-addr", "", "address for the status-serve HTTP listener (empty disables)")
	root.Flags().BoolVar(&noAuxiliary, "no-auxiliary", false, "run without an auxiliary (low-threshold) device")
	root.Flags().IntSliceVar(&auxFirmware, "aux-firmware", []int{2, 0, 0}, "simulated auxiliary firmware version, major,minor,rev")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// freeMB reports the free space available at path, in megabytes, for the
// low-free-space pre-start check (design §4.9 step 2).
func freeMB(path string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return float64(st.Bavail) * float64(st.Bsize) / (1024 * 1024), nil
}

// dropPageCache asks the kernel to drop clean page cache, matching
// ice-common.c's retry behavior between primary-device open attempts
// (design §7). Failure is silent: this is a best-effort nudge, not a
// required step.
func dropPageCache() {
	f, err := os.OpenFile("/proc/sys/vm/drop_caches", os.O_WRONLY, 0)
	if err != nil {
		return
	}
	defer f.Close()
	f.WriteString("1\n")
}
