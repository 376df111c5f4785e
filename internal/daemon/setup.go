package daemon

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rno-g/rno-g-acq/internal/daqerr"
	"github.com/rno-g/rno-g-acq/internal/device"
	"github.com/rno-g/rno-g-acq/internal/logging"
)

// FreeSpacePollInterval is how often a low-free-space pre-start check
// retries, per design §4.9 step 2 / §7 ("poll every 20s, continue
// heartbeating, never exit").
const FreeSpacePollInterval = 20 * time.Second

// DeviceOpenRetries is how many times the primary device open is retried
// before the failure is treated as fatal (design §7).
const DeviceOpenRetries = 3

// DeviceOpenRetryInterval is the pause between primary device open
// attempts.
const DeviceOpenRetryInterval = time.Second

// AuxiliaryOpenWait is how long a required-but-failing auxiliary device
// open waits before being treated as fatal (design §7).
const AuxiliaryOpenWait = 20 * time.Second

// FreeSpaceChecker reports the free space, in megabytes, available at the
// monitored path.
type FreeSpaceChecker func() (freeMB float64, err error)

// WaitForFreeSpace blocks until check reports at least minMB free,
// calling heartbeat before each sleep so the process-supervisor watchdog
// is still fed while waiting (design §4.9 step 2). A nil or zero minMB
// check is a no-op.
func WaitForFreeSpace(check FreeSpaceChecker, minMB float64, heartbeat func(), sleep func(time.Duration)) error {
	if check == nil || minMB <= 0 {
		return nil
	}
	for {
		free, err := check()
		if err != nil {
			return daqerr.Wrap("daemon.WaitForFreeSpace", daqerr.KindLowSpace, err)
		}
		if free >= minMB {
			return nil
		}
		if heartbeat != nil {
			heartbeat()
		}
		sleep(FreeSpacePollInterval)
	}
}

// ReadStationID reads the station identifier from a fixed file path
// (design §4.9 step 3), trimming surrounding whitespace.
func ReadStationID(path string) (uint16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, daqerr.Wrap("daemon.ReadStationID", daqerr.KindConfigMissing, err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 16)
	if err != nil {
		return 0, daqerr.Wrap("daemon.ReadStationID", daqerr.KindConfigParse, err)
	}
	return uint16(n), nil
}

// OpenPrimaryWithRetries opens the primary device, retrying up to
// DeviceOpenRetries times with dropPageCache invoked between attempts
// (design §4.9 step 5 / §7: "retry up to 3 times, 1s apart, dropping
// caches between. Fatal after.").
func OpenPrimaryWithRetries(open func() (device.Primary, error), dropPageCache func(), log *logging.Logger) (device.Primary, error) {
	var lastErr error
	for attempt := 0; attempt < DeviceOpenRetries; attempt++ {
		p, err := open()
		if err == nil {
			return p, nil
		}
		lastErr = err
		log.Error("primary device open failed", "attempt", attempt, "error", err)
		if dropPageCache != nil {
			dropPageCache()
		}
		time.Sleep(DeviceOpenRetryInterval)
	}
	return nil, daqerr.Wrap("daemon.OpenPrimaryWithRetries", daqerr.KindDeviceOpen, lastErr)
}

// OpenAuxiliary opens the auxiliary device. A failure is fatal only when
// required is true, after waiting AuxiliaryOpenWait (design §7); when
// optional, the daemon proceeds with a nil Auxiliary.
func OpenAuxiliary(open func() (device.Auxiliary, error), required bool, log *logging.Logger) (device.Auxiliary, error) {
	if open == nil {
		return nil, nil
	}
	a, err := open()
	if err == nil {
		return a, nil
	}
	log.Error("auxiliary device open failed", "required", required, "error", err)
	if !required {
		return nil, nil
	}
	time.Sleep(AuxiliaryOpenWait)
	return nil, daqerr.Wrap("daemon.OpenAuxiliary", daqerr.KindDeviceOpen, err)
}
