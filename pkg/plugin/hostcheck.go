package plugin

import (
	"os"
	"strings"
)

// RunningInContainer reports whether the current process appears to run
// inside a container. Used to gate plugins that declare
// need_running_on_host_machine.
func RunningInContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return cgroupMentionsContainer("/proc/1/cgroup")
}

func cgroupMentionsContainer(path string) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.Contains(line, "docker") ||
			strings.Contains(line, "containerd") ||
			strings.Contains(line, "kubepods") {
			return true
		}
	}
	return false
}
