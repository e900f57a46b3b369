package constants

import (
	"strconv"

	"github.com/valyala/fasttemplate"
)

// Remote shell command templates. Tags are {name}.
const (
	DisplaySizeTemplate = "wm size"
	AbiTemplate         = "getprop ro.product.cpu.abi"
	APILevelTemplate    = "getprop ro.build.version.sdk"
	ModelTemplate       = "getprop ro.product.model"
	PropsTemplate       = "getprop"
	ListFilesTemplate   = "ls {dir}"
	ChmodTemplate       = "cd {dir} && chmod 777 {name}*"
	ValidateTemplate    = "LD_LIBRARY_PATH={dir} {dir}/{name} -P {width}x{height}@{width}x{height}/0 -t"
	LaunchTemplate      = "LD_LIBRARY_PATH={dir} {dir}/{name} -P {width}x{height}@{vwidth}x{vheight}/{rotation}"
	ProcessTemplate     = "ps -A 2>/dev/null | grep {name}; ps | grep {name}"
	KillTemplate        = "kill {pid}"
)

func render(template string, tags map[string]interface{}) string {
	return fasttemplate.ExecuteString(template, "{", "}", tags)
}

func ListFilesCommand(dir string) string {
	return render(ListFilesTemplate, map[string]interface{}{"dir": dir})
}

func ChmodCommand(dir string) string {
	return render(ChmodTemplate, map[string]interface{}{"dir": dir, "name": HelperName})
}

func ValidateCommand(dir string, width, height int) string {
	return render(ValidateTemplate, map[string]interface{}{
		"dir":    dir,
		"name":   HelperName,
		"width":  strconv.Itoa(width),
		"height": strconv.Itoa(height),
	})
}

func LaunchCommand(dir string, width, height, vwidth, vheight, rotation int) string {
	return render(LaunchTemplate, map[string]interface{}{
		"dir":      dir,
		"name":     HelperName,
		"width":    strconv.Itoa(width),
		"height":   strconv.Itoa(height),
		"vwidth":   strconv.Itoa(vwidth),
		"vheight":  strconv.Itoa(vheight),
		"rotation": strconv.Itoa(rotation),
	})
}

func ProcessCommand(name string) string {
	return render(ProcessTemplate, map[string]interface{}{"name": name})
}

func KillCommand(pid int) string {
	return render(KillTemplate, map[string]interface{}{"pid": strconv.Itoa(pid)})
}
