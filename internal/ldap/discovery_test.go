package ldap

import (
	"testing"

	"go.uber.org/zap"
)

func TestParseLDAPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantErr  bool
		wantHost string
		wantPort int
		wantTLS  bool
	}{
		{
			name:     "ldaps with port",
			url:      "ldaps://dc1.example.com:636",
			wantHost: "dc1.example.com",
			wantPort: 636,
			wantTLS:  true,
		},
		{
			name:     "ldap with port",
			url:      "ldap://dc2.example.com:389",
			wantHost: "dc2.example.com",
			wantPort: 389,
			wantTLS:  false,
		},
		{
			name:     "ldaps default port",
			url:      "ldaps://dc1.example.com",
			wantHost: "dc1.example.com",
			wantPort: 636,
			wantTLS:  true,
		},
		{
			name:     "ldap default port",
			url:      "ldap://dc2.example.com",
			wantHost: "dc2.example.com",
			wantPort: 389,
			wantTLS:  false,
		},
		{
			name:    "empty URL",
			url:     "",
			wantErr: true,
		},
		{
			name:    "unsupported scheme",
			url:     "http://dc1.example.com",
			wantErr: true,
		},
		{
			name:    "invalid port",
			url:     "ldap://dc1.example.com:notaport",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := ParseLDAPURL(tt.url)

			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseLDAPURL(%q) expected error", tt.url)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseLDAPURL(%q) unexpected error: %v", tt.url, err)
			}

			if server.Host != tt.wantHost {
				t.Errorf("Host = %s, want %s", server.Host, tt.wantHost)
			}
			if server.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", server.Port, tt.wantPort)
			}
			if server.UseTLS != tt.wantTLS {
				t.Errorf("UseTLS = %v, want %v", server.UseTLS, tt.wantTLS)
			}
			if server.Source != "config" {
				t.Errorf("Source = %s, want config", server.Source)
			}
		})
	}
}

func TestServerInfoToURL(t *testing.T) {
	tests := []struct {
		name   string
		server *ServerInfo
		want   string
	}{
		{
			name:   "ldaps",
			server: &ServerInfo{Host: "dc1.example.com", Port: 636, UseTLS: true},
			want:   "ldaps://dc1.example.com:636",
		},
		{
			name:   "ldap",
			server: &ServerInfo{Host: "dc2.example.com", Port: 389, UseTLS: false},
			want:   "ldap://dc2.example.com:389",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ServerInfoToURL(tt.server); got != tt.want {
				t.Errorf("ServerInfoToURL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateServerInfo(t *testing.T) {
	tests := []struct {
		name    string
		server  *ServerInfo
		wantErr bool
	}{
		{
			name:    "valid",
			server:  &ServerInfo{Host: "dc1.example.com", Port: 636},
			wantErr: false,
		},
		{
			name:    "nil",
			server:  nil,
			wantErr: true,
		},
		{
			name:    "empty host",
			server:  &ServerInfo{Host: "", Port: 636},
			wantErr: true,
		},
		{
			name:    "zero port",
			server:  &ServerInfo{Host: "dc1.example.com", Port: 0},
			wantErr: true,
		},
		{
			name:    "port too high",
			server:  &ServerInfo{Host: "dc1.example.com", Port: 70000},
			wantErr: true,
		},
		{
			name:    "negative priority",
			server:  &ServerInfo{Host: "dc1.example.com", Port: 636, Priority: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerInfo(tt.server)
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSortServersByPriority(t *testing.T) {
	d := NewSRVDiscovery(zap.NewNop())

	servers := []*ServerInfo{
		{Host: "low-weight", Priority: 0, Weight: 10},
		{Host: "second-priority", Priority: 1, Weight: 100},
		{Host: "high-weight", Priority: 0, Weight: 100},
	}

	d.sortServersByPriority(servers)

	want := []string{"high-weight", "low-weight", "second-priority"}
	for i, host := range want {
		if servers[i].Host != host {
			t.Errorf("servers[%d].Host = %s, want %s", i, servers[i].Host, host)
		}
	}
}

func TestCreateFallbackServers(t *testing.T) {
	d := NewSRVDiscovery(nil)

	servers := d.createFallbackServers("example.com")

	if len(servers) != 2 {
		t.Fatalf("len(servers) = %d, want 2", len(servers))
	}

	// LDAPS preferred
	if !servers[0].UseTLS || servers[0].Port != 636 {
		t.Errorf("first fallback should be LDAPS on 636, got port %d TLS %v", servers[0].Port, servers[0].UseTLS)
	}

	if servers[1].UseTLS || servers[1].Port != 389 {
		t.Errorf("second fallback should be LDAP on 389, got port %d TLS %v", servers[1].Port, servers[1].UseTLS)
	}

	for _, s := range servers {
		if s.Source != "fallback" {
			t.Errorf("Source = %s, want fallback", s.Source)
		}
	}
}
