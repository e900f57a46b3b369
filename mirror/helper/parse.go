package helper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spance/minicap-go/mirror/definitions"
)

var (
	deviceLinePattern  = regexp.MustCompile(`^(\S+)\tdevice$`)
	displaySizePattern = regexp.MustCompile(`^Physical size: (\d+)x(\d+)$`)
	propLinePattern    = regexp.MustCompile(`^\[([^\]]+)\]: \[([^\]]*)\]$`)
	// user pid ppid vsize rss wchan pc state command
	processLinePattern = regexp.MustCompile(`^(\S+)\s+(\d+)\s+(\d+)\s+(\d+)\s+(\d+)\s+(\S+)\s+(\S+)\s+(\S)\s+(\S+)$`)
)

// Lines splits remote output into trimmed, non-empty lines.
func Lines(output string) []string {
	lines := lo.Map(strings.Split(output, "\n"), func(line string, _ int) string {
		return strings.TrimSpace(line)
	})
	return lo.Filter(lines, func(line string, _ int) bool {
		return line != ""
	})
}

// ParseDevices extracts the serials of every "<serial>\tdevice" line of
// `adb devices` output. Offline, unauthorized and header lines are skipped.
func ParseDevices(output string) []definitions.DeviceInfo {
	var devices []definitions.DeviceInfo
	for _, line := range Lines(output) {
		match := deviceLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		deviceID := match[1]

		connType := definitions.USB
		if strings.Contains(deviceID, ":") {
			connType = definitions.Remote
		}

		devices = append(devices, definitions.DeviceInfo{
			DeviceID:       deviceID,
			Status:         "device",
			ConnectionType: connType,
		})
	}
	return devices
}

// ParseDisplaySize reads the physical size line of `wm size`. An override
// line, if present, is ignored.
func ParseDisplaySize(output string) (width, height int, ok bool) {
	for _, line := range Lines(output) {
		match := displaySizePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		w, errW := ParsePositiveInt(match[1])
		h, errH := ParsePositiveInt(match[2])
		if errW != nil || errH != nil {
			return 0, 0, false
		}
		return w, h, true
	}
	return 0, 0, false
}

// ParseProps parses `getprop` output of the form "[key]: [value]".
func ParseProps(output string) map[string]string {
	props := make(map[string]string)
	for _, line := range Lines(output) {
		match := propLinePattern.FindStringSubmatch(line)
		if match != nil {
			props[match[1]] = match[2]
		}
	}
	return props
}

// ParseFileList returns the file names printed by `ls`.
func ParseFileList(output string) []string {
	return lo.Uniq(strings.Fields(output))
}

type ProcessEntry struct {
	User  string
	PID   int
	PPID  int
	VSize int64
	RSS   int64
	WChan string
	PC    string
	State string
	Name  string
}

// ParseProcessTable parses the rows of `ps` output. Header and malformed
// lines are skipped.
func ParseProcessTable(output string) []ProcessEntry {
	var entries []ProcessEntry
	for _, line := range Lines(output) {
		match := processLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		pid, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		ppid, _ := strconv.Atoi(match[3])
		vsize, _ := strconv.ParseInt(match[4], 10, 64)
		rss, _ := strconv.ParseInt(match[5], 10, 64)

		entries = append(entries, ProcessEntry{
			User:  match[1],
			PID:   pid,
			PPID:  ppid,
			VSize: vsize,
			RSS:   rss,
			WChan: match[6],
			PC:    match[7],
			State: match[8],
			Name:  match[9],
		})
	}
	return entries
}

// FindProcess returns the first process whose command contains name.
func FindProcess(output, name string) (ProcessEntry, bool) {
	return lo.Find(ParseProcessTable(output), func(entry ProcessEntry) bool {
		return strings.Contains(entry.Name, name)
	})
}

// SelfTestPassed reports whether the helper's self-test printed only "ok".
// Every non-empty line must read "ok" ignoring case and surrounding
// whitespace; repeated "ok" lines are accepted; no output at all fails.
func SelfTestPassed(output string) bool {
	lines := Lines(output)
	if len(lines) == 0 {
		return false
	}
	return lo.EveryBy(lines, func(line string) bool {
		return strings.ToLower(line) == "ok"
	})
}

// MissingFiles returns the required names absent from installed.
func MissingFiles(required, installed []string) []string {
	return lo.Without(required, installed...)
}

// NeedsDeployment applies the deployment heuristic: a directory with at
// most one required file missing counts as deployed.
func NeedsDeployment(required, installed []string) bool {
	return len(MissingFiles(required, installed)) > 1
}

func ParsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
