// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package amdgpu

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sustainable-computing-io/smi-telemetry/internal/device/smi"
)

const driverName = "amdgpu"

var errNoHwmon = errors.New("no hwmon directory")

// isCardDevice reports whether name is a DRM card entry such as "card0"
// and not a connector such as "card0-DP-1"
func isCardDevice(name string) bool {
	n, ok := strings.CutPrefix(name, "card")
	if !ok || n == "" {
		return false
	}
	_, err := strconv.Atoi(n)
	return err == nil
}

// cardNumber returns N of "cardN"; callers check isCardDevice first
func cardNumber(name string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(name, "card"))
	return n
}

func readDriverName(devicePath string) string {
	link, err := os.Readlink(filepath.Join(devicePath, "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(link)
}

// parsePCISlot returns PCI_SLOT_NAME from the device uevent
func parsePCISlot(devicePath string) string {
	data, err := os.ReadFile(filepath.Join(devicePath, "uevent"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if v, ok := strings.CutPrefix(line, "PCI_SLOT_NAME="); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// socketKey groups devices by PCI domain and bus, e.g. "0000:c3"
func socketKey(pciSlot string) string {
	parts := strings.SplitN(pciSlot, ":", 3)
	if len(parts) < 2 {
		return pciSlot
	}
	return parts[0] + ":" + parts[1]
}

// findHwmon returns the first hwmon directory of a device
func findHwmon(devicePath string) string {
	matches, _ := filepath.Glob(filepath.Join(devicePath, "hwmon", "hwmon*"))
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

// temperatureSensors maps sensor locations to hwmon "tempN" prefixes using
// the tempN_label files. Without labels, temp1 is taken as the edge sensor.
func temperatureSensors(hwmon string) map[smi.TemperatureType]string {
	sensors := map[smi.TemperatureType]string{}
	if hwmon == "" {
		return sensors
	}

	labels, _ := filepath.Glob(filepath.Join(hwmon, "temp*_label"))
	for _, path := range labels {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		prefix := strings.TrimSuffix(filepath.Base(path), "_label")
		switch strings.TrimSpace(string(data)) {
		case "edge":
			sensors[smi.TemperatureEdge] = prefix
		case "junction":
			sensors[smi.TemperatureHotspot] = prefix
		case "mem":
			sensors[smi.TemperatureVRAM] = prefix
		}
	}

	if len(sensors) == 0 {
		if _, err := os.Stat(filepath.Join(hwmon, "temp1_input")); err == nil {
			sensors[smi.TemperatureEdge] = "temp1"
		}
	}
	return sensors
}

// renderNode returns the /dev/dri render node name of a device, e.g. "renderD128"
func renderNode(devicePath string) string {
	entries, err := os.ReadDir(filepath.Join(devicePath, "drm"))
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "renderD") {
			return e.Name()
		}
	}
	return ""
}

func readUint(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}

func readInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func readString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// partitionCount maps a compute partition mode to its partition count. CPX
// exposes one partition per XCC, so numXCC is used when the device reports it.
func partitionCount(mode string, numXCC int) int {
	switch strings.ToUpper(mode) {
	case "SPX":
		return 1
	case "DPX":
		return 2
	case "TPX":
		return 3
	case "QPX":
		return 4
	case "CPX":
		if numXCC > 0 {
			return min(numXCC, smi.MaxXCP)
		}
		return smi.MaxXCP
	default:
		return 0
	}
}

// parseVersion splits "6.7.0" style module versions
func parseVersion(s string) smi.Version {
	v := smi.Version{Build: s}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == '-' })
	nums := []*uint32{&v.Major, &v.Minor, &v.Release}
	for i := 0; i < len(fields) && i < len(nums); i++ {
		n, err := strconv.ParseUint(fields[i], 10, 32)
		if err != nil {
			break
		}
		*nums[i] = uint32(n)
	}
	return v
}

// statusOf maps a file read error to a driver status
func statusOf(err error) smi.Status {
	switch {
	case err == nil:
		return smi.StatusSuccess
	case errors.Is(err, errNoHwmon), errors.Is(err, fs.ErrNotExist):
		return smi.StatusNotSupported
	case errors.Is(err, fs.ErrPermission):
		return smi.StatusNoPerm
	case errors.Is(err, strconv.ErrSyntax), errors.Is(err, strconv.ErrRange):
		return smi.StatusNoData
	default:
		return smi.StatusFileError
	}
}
