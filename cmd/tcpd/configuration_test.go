// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const tomlExample = `
[logging]
level = "debug"
report-caller = false
format = "text"

[listen]
address = "127.0.0.1:0"
local-address = "127.0.0.1"
port = 8080

[connection]
mss = 512
rto = "250ms"
initial-cwnd = 2
remove-closed = false

[application]
kind = "log"
preview = 8
`

const yamlExample = `
logging:
  level: info
  format: json
listen:
  address: 127.0.0.1:0
  port: 8080
  ignore-checksum: true
application:
  kind: buffer
  buffer-size: 1024
status:
  listen: 127.0.0.1:0
  report-interval: 1s
`

func writeConfig(t *testing.T, name, content string) string {
	filename := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return filename
}

func TestLoadConfigToml(t *testing.T) {
	conf, err := loadConfig(writeConfig(t, "tcpd.toml", tomlExample))
	if err != nil {
		t.Fatal(err)
	}

	if conf.Logging.Level != "debug" || conf.Listen.Port != 8080 || conf.Listen.LocalAddress != "127.0.0.1" {
		t.Fatalf("unexpected configuration %+v", conf)
	}
	if conf.Application.Kind != "log" || conf.Application.Preview != 8 {
		t.Fatalf("unexpected application %+v", conf.Application)
	}

	tcpConf, err := parseTCPConfig(conf.Connection)
	if err != nil {
		t.Fatal(err)
	}
	if tcpConf.MSS != 512 || tcpConf.RetransmissionTimeout != 250*time.Millisecond || tcpConf.InitialCwnd != 2 {
		t.Fatalf("unexpected tcp.Config %+v", tcpConf)
	}
	if tcpConf.RemoveClosed || tcpConf.Window != 0xffff {
		t.Fatalf("unexpected tcp.Config %+v", tcpConf)
	}
}

func TestLoadConfigYaml(t *testing.T) {
	conf, err := loadConfig(writeConfig(t, "tcpd.yaml", yamlExample))
	if err != nil {
		t.Fatal(err)
	}

	if conf.Logging.Format != "json" || !conf.Listen.IgnoreChecksum || conf.Status.Listen != "127.0.0.1:0" {
		t.Fatalf("unexpected configuration %+v", conf)
	}
	if conf.Application.Kind != "buffer" || conf.Application.BufferSize != 1024 {
		t.Fatalf("unexpected application %+v", conf.Application)
	}

	tcpConf, err := parseTCPConfig(conf.Connection)
	if err != nil {
		t.Fatal(err)
	}
	if !tcpConf.RemoveClosed || tcpConf.RetransmissionTimeout != time.Second {
		t.Fatalf("unexpected tcp.Config %+v", tcpConf)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"broken.toml", "[listen\naddress = 1"},
		{"unknown.yaml", "listen:\n  adress: 127.0.0.1:0\n"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := loadConfig(writeConfig(t, test.name, test.content)); err == nil {
				t.Fatal("invalid configuration was accepted")
			}
		})
	}

	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("missing file was accepted")
	}
}

func TestParseConfigErrors(t *testing.T) {
	if _, err := parseTCPConfig(connectionConf{RTO: "soon"}); err == nil {
		t.Fatal("invalid rto was accepted")
	}
	if _, err := parseTCPConfig(connectionConf{MSS: -1}); err == nil {
		t.Fatal("negative mss was accepted")
	}
	if _, err := parseApplication(applicationConf{Kind: "discard"}); err == nil {
		t.Fatal("unknown application was accepted")
	}

	tests := []daemonConf{
		{Listen: listenConf{Port: 8080}},
		{Listen: listenConf{Address: "127.0.0.1:0"}},
		{Listen: listenConf{Address: "127.0.0.1:0", Port: 8080, LocalAddress: "localhost"}},
	}
	for _, conf := range tests {
		if d, err := newDaemon(conf); err == nil {
			_ = d.Close()
			t.Fatalf("invalid configuration %+v was accepted", conf)
		}
	}
}

func TestDaemonLifecycle(t *testing.T) {
	conf, err := loadConfig(writeConfig(t, "tcpd.yml", yamlExample))
	if err != nil {
		t.Fatal(err)
	}

	d, err := newDaemon(conf)
	if err != nil {
		t.Fatal(err)
	}

	if d.status == nil {
		t.Fatal("status server was not started")
	}
	if d.report == nil {
		t.Fatal("counters are not reported")
	}
	if d.udp.Addr() == nil {
		t.Fatal("UDP layer is not listening")
	}

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
}
