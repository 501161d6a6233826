package metadata

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"

	"EnigmaNetz/Enigma-Wifi-Sensor/internal/version"
)

// maxHostIPs limits the number of host addresses reported
const maxHostIPs = 10

// interfaces is replaced in tests
var interfaces = net.Interfaces

// Generate describes the sensor host and the adapter it drives. The
// sensor_id is stable across restarts: it hashes the adapter's hardware
// address, or the host's primary one when the adapter is gone (its managed
// interface is deleted while in monitor mode).
func Generate(adapter string) map[string]string {
	ifaces, _ := interfaces()

	md := map[string]string{
		"sensor_id":      sensorID(ifaces, adapter),
		"sensor_version": version.Version,
		"os_name":        runtime.GOOS,
		"os_version":     osVersion(),
		"architecture":   runtime.GOARCH,
		"interface":      adapter,
	}
	if mac := hardwareAddr(ifaces, adapter); mac != "" {
		md["interface_mac"] = mac
	}
	if hn, err := os.Hostname(); err == nil {
		md["hostname"] = hn
	}
	if ips := hostIPs(ifaces); len(ips) > 0 {
		md["host_ips"] = strings.Join(ips, ",")
	}
	return md
}

// Format renders md as sorted key=value lines
func Format(md map[string]string) string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, md[k])
	}
	return b.String()
}

func sensorID(ifaces []net.Interface, adapter string) string {
	mac := hardwareAddr(ifaces, adapter)
	if mac == "" {
		mac = primaryMAC(ifaces)
	}
	if mac == "" {
		mac = "unknown-device"
	}
	sum := sha256.Sum256([]byte(mac))
	return hex.EncodeToString(sum[:])
}

func hardwareAddr(ifaces []net.Interface, name string) string {
	for _, iface := range ifaces {
		if iface.Name == name && len(iface.HardwareAddr) > 0 {
			return iface.HardwareAddr.String()
		}
	}
	return ""
}

// primaryMAC prefers ethernet, then wifi, then anything with an address
func primaryMAC(ifaces []net.Interface) string {
	sorted := append([]net.Interface(nil), ifaces...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, prefix := range []string{"eth", "en", "wlan", "wl", ""} {
		for _, iface := range sorted {
			if strings.HasPrefix(iface.Name, prefix) &&
				iface.Flags&net.FlagLoopback == 0 &&
				len(iface.HardwareAddr) > 0 {
				return iface.HardwareAddr.String()
			}
		}
	}
	return ""
}

// hostIPs returns private IPv4 addresses of up, non-loopback interfaces
func hostIPs(ifaces []net.Interface) []string {
	var ips []string
	seen := make(map[string]bool)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil || !ip.IsPrivate() || seen[ip.String()] {
				continue
			}
			seen[ip.String()] = true
			ips = append(ips, ip.String())
			if len(ips) >= maxHostIPs {
				return ips
			}
		}
	}
	return ips
}

func osVersion() string {
	if runtime.GOOS != "linux" {
		return runtime.GOOS
	}
	file, err := os.Open("/etc/os-release")
	if err != nil {
		return "Linux"
	}
	defer file.Close()

	var name, ver string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "NAME=") {
			name = strings.Trim(strings.TrimPrefix(line, "NAME="), "\"")
		} else if strings.HasPrefix(line, "VERSION=") {
			ver = strings.Trim(strings.TrimPrefix(line, "VERSION="), "\"")
		}
	}
	switch {
	case name != "" && ver != "":
		return name + " " + ver
	case name != "":
		return name
	}
	return "Linux"
}
