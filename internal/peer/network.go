package peer

import (
	"net"
	"strings"
)

var cgnatBlock = func() *net.IPNet {
	_, block, _ := net.ParseCIDR("100.64.0.0/10")
	return block
}()

// ShouldForceRelay reports whether this host looks like it sits behind a
// VPN or carrier-grade NAT, where direct paths rarely work and a TURN
// relay should be forced.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if tunnelName(iface.Name) {
			return true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if behindCGNAT(addr) {
				return true
			}
		}
	}
	return false
}

func tunnelName(name string) bool {
	name = strings.ToLower(name)
	for _, marker := range []string{"tun", "tap", "wg", "ppp", "warp"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

func behindCGNAT(addr net.Addr) bool {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	}
	return ip != nil && cgnatBlock.Contains(ip)
}
