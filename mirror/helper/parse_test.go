package helper

import (
	"reflect"
	"testing"

	"github.com/spance/minicap-go/constants"
	"github.com/spance/minicap-go/mirror/definitions"
)

func TestParseDevices(t *testing.T) {
	output := "List of devices attached\n" +
		"emulator-5554\tdevice\n" +
		"0123456789ABCDEF\tdevice\r\n" +
		"192.168.1.20:5555\tdevice\n" +
		"FA69F0301234\toffline\n" +
		"R58M123\tunauthorized\n" +
		"* daemon started successfully *\n" +
		"\n"

	devices := ParseDevices(output)
	want := []string{"emulator-5554", "0123456789ABCDEF", "192.168.1.20:5555"}
	if len(devices) != len(want) {
		t.Fatalf("expected %d devices, got %d: %+v", len(want), len(devices), devices)
	}
	for i, d := range devices {
		if d.DeviceID != want[i] {
			t.Errorf("device %d: got %q, want %q", i, d.DeviceID, want[i])
		}
	}
	if devices[2].ConnectionType != definitions.Remote {
		t.Errorf("expected remote connection for %s", devices[2].DeviceID)
	}
	if devices[0].ConnectionType != definitions.USB {
		t.Errorf("expected usb connection for %s", devices[0].DeviceID)
	}
}

func TestParseDevicesEmpty(t *testing.T) {
	if devices := ParseDevices("List of devices attached\n\n"); len(devices) != 0 {
		t.Fatalf("expected no devices, got %+v", devices)
	}
}

func TestParseDisplaySize(t *testing.T) {
	cases := []struct {
		input string
		w, h  int
		ok    bool
	}{
		{"Physical size: 1080x1920", 1080, 1920, true},
		{"Physical size: 1440x3040\nOverride size: 1080x2280\n", 1440, 3040, true},
		{"Override size: 1080x2280", 0, 0, false},
		{"size: 1080x1920", 0, 0, false},
		{"Physical size: widexhigh", 0, 0, false},
		{"Physical size: 0x1920", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, c := range cases {
		w, h, ok := ParseDisplaySize(c.input)
		if w != c.w || h != c.h || ok != c.ok {
			t.Errorf("ParseDisplaySize(%q) = %d, %d, %v; want %d, %d, %v", c.input, w, h, ok, c.w, c.h, c.ok)
		}
	}
}

func TestParseProps(t *testing.T) {
	output := "[ro.product.cpu.abi]: [arm64-v8a]\n[ro.build.version.sdk]: [30]\n[persist.empty]: []\ngarbage line\n"
	props := ParseProps(output)
	want := map[string]string{
		"ro.product.cpu.abi":   "arm64-v8a",
		"ro.build.version.sdk": "30",
		"persist.empty":        "",
	}
	if !reflect.DeepEqual(props, want) {
		t.Fatalf("got %v, want %v", props, want)
	}
}

func TestParseProcessTable(t *testing.T) {
	output := "USER     PID   PPID  VSIZE  RSS     WCHAN    PC         NAME\n" +
		"shell     4321  4310  12345  6789  ffffffff 00000000 S /data/local/tmp/minicap\n" +
		"  shell\t 5000   1    2000   300   0  0   R   grep  \n"

	entries := ParseProcessTable(output)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].PID != 4321 || entries[0].PPID != 4310 || entries[0].Name != "/data/local/tmp/minicap" {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].PID != 5000 || entries[1].State != "R" {
		t.Errorf("unexpected second entry %+v", entries[1])
	}
}

func TestFindProcess(t *testing.T) {
	output := "USER PID PPID VSZ RSS WCHAN ADDR S NAME\n" +
		"shell 5000 4999 10000 2000 do_wait 0 S grep\n" +
		"shell 4321 1 2151536 12345 0 0 S minicap\n"

	entry, ok := FindProcess(output, constants.HelperName)
	if !ok {
		t.Fatalf("expected to find %s", constants.HelperName)
	}
	if entry.PID != 4321 {
		t.Errorf("got pid %d, want 4321", entry.PID)
	}

	if _, ok := FindProcess("USER PID PPID VSZ RSS WCHAN ADDR S NAME\n", constants.HelperName); ok {
		t.Errorf("header-only output should not match")
	}
}

func TestSelfTestPassed(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   bool
	}{
		{"single upper", "OK", true},
		{"duplicate ok", "ok\nok\n", true},
		{"padded", "  Ok \r\n\n", true},
		{"warning", "ok\nwarning: x", false},
		{"empty", "", false},
		{"blank lines", "\n\n", false},
		{"error", "CANNOT LINK EXECUTABLE", false},
	}
	for _, c := range cases {
		if got := SelfTestPassed(c.output); got != c.want {
			t.Errorf("%s: SelfTestPassed(%q) = %v, want %v", c.name, c.output, got, c.want)
		}
	}
}

func TestNeedsDeployment(t *testing.T) {
	required := []string{"A", "B", "C"}
	cases := []struct {
		installed []string
		want      bool
	}{
		{[]string{"A", "B", "C"}, false},
		{[]string{"A", "B"}, false},
		{[]string{"A"}, true},
		{nil, true},
		{[]string{"X", "Y", "Z"}, true},
	}
	for _, c := range cases {
		if got := NeedsDeployment(required, c.installed); got != c.want {
			t.Errorf("NeedsDeployment(%v) = %v, want %v", c.installed, got, c.want)
		}
	}
}

func TestParseFileList(t *testing.T) {
	got := ParseFileList("minicap\nminicap.so\r\n\nother.txt\n")
	want := []string{"minicap", "minicap.so", "other.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParsePositiveInt(t *testing.T) {
	if n, err := ParsePositiveInt(" 28\n"); err != nil || n != 28 {
		t.Errorf("got %d, %v", n, err)
	}
	for _, s := range []string{"", "0", "-3", "abc"} {
		if _, err := ParsePositiveInt(s); err == nil {
			t.Errorf("ParsePositiveInt(%q): expected error", s)
		}
	}
}
