package speed

import (
	"bufio"
	"os"
	"strings"
)

// cpuModelName returns the CPU name from /proc/cpuinfo, or "unknown".
// ARM boards have no "model name" line and are named by "Hardware".
func cpuModelName() string {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return "unknown"
	}
	defer f.Close()
	fields := map[string]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), ":")
		k = strings.TrimSpace(k)
		if _, seen := fields[k]; ok && !seen {
			fields[k] = strings.TrimSpace(v)
		}
	}
	for _, k := range []string{"model name", "Hardware"} {
		if v := fields[k]; v != "" {
			return v
		}
	}
	return "unknown"
}
