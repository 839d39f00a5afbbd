package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
)

// Fallback placeholders used when a hardware factor cannot be read.
// Fingerprint stability matters more than completeness: a fixed
// placeholder keeps the digest deterministic across restarts.
const (
	unknownMAC      = "unknown-mac"
	unknownHostname = "unknown-host"
	unknownCPU      = "unknown-cpu"
)

// DeviceFingerprint represents device identification information
type DeviceFingerprint struct {
	Fingerprint string `json:"fingerprint"`
	Hostname    string `json:"hostname"`
	MACAddress  string `json:"mac_address"`
	CPUInfo     string `json:"cpu_info"`
	OS          string `json:"os"`
	Platform    string `json:"platform"`
}

// FingerprintManager handles device fingerprinting operations.
// The fingerprint is derived only from stable machine attributes, so it
// is computed once and memoized for the process lifetime.
type FingerprintManager struct {
	once   sync.Once
	cached *DeviceFingerprint
}

// NewFingerprintManager creates a new fingerprint manager
func NewFingerprintManager() *FingerprintManager {
	return &FingerprintManager{}
}

// GetMACAddress retrieves the primary network interface MAC address
func (fm *FingerprintManager) GetMACAddress() (string, bool) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", false
	}

	// Prefer the first non-loopback, up interface with a MAC address
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac, true
		}
	}

	// Fallback: any interface with a MAC address
	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac, true
		}
	}

	return "", false
}

// GetHostname retrieves the normalized machine hostname
func (fm *FingerprintManager) GetHostname() (string, bool) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", false
	}

	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "", false
	}

	return hostname, true
}

// GetCPUInfo retrieves stable CPU identification information
func (fm *FingerprintManager) GetCPUInfo() (string, bool) {
	switch runtime.GOOS {
	case "windows":
		if procID := os.Getenv("PROCESSOR_IDENTIFIER"); procID != "" {
			return shortHash(procID), true
		}
	case "linux":
		if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "model name") ||
					strings.HasPrefix(line, "cpu family") {
					return shortHash(line), true
				}
			}
		}
	}

	// Fallback: OS and architecture are stable per machine
	return shortHash(runtime.GOOS + "-" + runtime.GOARCH), true
}

// Compute returns the device fingerprint, deriving it on first call.
// Unreadable factors are replaced with fixed placeholders rather than
// failing, so Compute never returns an error.
func (fm *FingerprintManager) Compute() *DeviceFingerprint {
	fm.once.Do(func() {
		macAddr, ok := fm.GetMACAddress()
		if !ok {
			macAddr = unknownMAC
			slog.Warn("failed to read MAC address, using placeholder")
		}

		hostname, ok := fm.GetHostname()
		if !ok {
			hostname = unknownHostname
			slog.Warn("failed to read hostname, using placeholder")
		}

		cpuInfo, ok := fm.GetCPUInfo()
		if !ok {
			cpuInfo = unknownCPU
		}

		factors := []string{
			runtime.GOOS,
			runtime.GOARCH,
			cpuInfo,
			hostname,
			macAddr,
		}

		hash := sha256.Sum256([]byte(strings.Join(factors, "|")))

		fm.cached = &DeviceFingerprint{
			Fingerprint: hex.EncodeToString(hash[:]),
			Hostname:    hostname,
			MACAddress:  macAddr,
			CPUInfo:     cpuInfo,
			OS:          runtime.GOOS,
			Platform:    runtime.GOARCH,
		}

		slog.Debug("device fingerprint computed",
			slog.String("fingerprint", fm.cached.Fingerprint),
			slog.String("hostname", hostname),
			slog.String("os", runtime.GOOS),
		)
	})

	return fm.cached
}

// HardwareID returns the hex digest that binds licenses to this machine
func (fm *FingerprintManager) HardwareID() string {
	return fm.Compute().Fingerprint
}

// Matches compares a stored hardware id against this machine's fingerprint
func (fm *FingerprintManager) Matches(storedID string) bool {
	return fm.HardwareID() == storedID
}

// Components returns individual fingerprint factors for diagnostics
func (fm *FingerprintManager) Components() map[string]string {
	fp := fm.Compute()
	return map[string]string{
		"mac_address": fp.MACAddress,
		"hostname":    fp.Hostname,
		"cpu_info":    fp.CPUInfo,
		"os":          fp.OS,
		"platform":    fp.Platform,
	}
}

func shortHash(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:8])
}
