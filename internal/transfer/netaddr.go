package transfer

import (
	"net"
	"strconv"
)

// UnknownHost is reported when no non-loopback IPv4 interface is up.
const UnknownHost = "Unknown"

// Address is where a running Server can be reached by peers.
type Address struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// String returns host:port.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// LocalIPv4 returns the first non-loopback IPv4 address of an up interface,
// or UnknownHost.
func LocalIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return UnknownHost
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if ip := firstIPv4(addrs); ip != "" {
			return ip
		}
	}
	return UnknownHost
}

func firstIPv4(addrs []net.Addr) string {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
