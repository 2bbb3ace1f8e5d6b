package middleware

import (
	"fmt"
	"net"
	"strings"
)

// IPFilter verifica um IP contra a lista estática de bloqueio
type IPFilter struct {
	networks []*net.IPNet
}

// NewIPFilter compila entradas no formato IP literal ou CIDR.
// IPs literais viram redes /32 ou /128.
func NewIPFilter(entries []string) (*IPFilter, error) {
	networks := make([]*net.IPNet, 0, len(entries))

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %s: %w", entry, err)
			}
			networks = append(networks, network)
			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address: %s", entry)
		}

		bits := 128
		if v4 := ip.To4(); v4 != nil {
			ip = v4
			bits = 32
		}
		networks = append(networks, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}

	return &IPFilter{networks: networks}, nil
}

// Empty indica se não há entradas configuradas
func (f *IPFilter) Empty() bool {
	return f == nil || len(f.networks) == 0
}

// Blocked retorna se o IP pertence a alguma entrada. O segundo retorno é
// false quando o endereço não pôde ser interpretado.
func (f *IPFilter) Blocked(address string) (blocked bool, parsed bool) {
	ip := net.ParseIP(strings.TrimSpace(address))
	if ip == nil {
		return false, false
	}

	for _, network := range f.networks {
		if network.Contains(ip) {
			return true, true
		}
	}
	return false, true
}
