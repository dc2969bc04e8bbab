package main

import (
	"testing"

	"github.com/PeterAlaks/lyric-display-app-sub003/internal/mdns"
)

func TestControllerAddr(t *testing.T) {
	tests := []struct {
		name string
		c    mdns.DiscoveredController
		want string
	}{
		{
			name: "ipv4",
			c:    mdns.DiscoveredController{Host: "192.168.1.20", Port: 7160},
			want: "192.168.1.20:7160",
		},
		{
			name: "ipv6 is bracketed",
			c:    mdns.DiscoveredController{Host: "fe80::1", Port: 7160},
			want: "[fe80::1]:7160",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := controllerAddr(tt.c); got != tt.want {
				t.Errorf("controllerAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}
