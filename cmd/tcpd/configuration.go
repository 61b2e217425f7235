// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/dtn7/minitcp/pkg/app"
	"github.com/dtn7/minitcp/pkg/eventloop"
	"github.com/dtn7/minitcp/pkg/network"
	"github.com/dtn7/minitcp/pkg/status"
	"github.com/dtn7/minitcp/pkg/tcp"
)

// daemonConf describes the configuration file, either TOML or YAML.
type daemonConf struct {
	Logging     logConf         `toml:"logging" yaml:"logging"`
	Listen      listenConf      `toml:"listen" yaml:"listen"`
	Connection  connectionConf  `toml:"connection" yaml:"connection"`
	Application applicationConf `toml:"application" yaml:"application"`
	Status      statusConf      `toml:"status" yaml:"status"`
	Profiling   bool            `toml:"profiling" yaml:"profiling"`
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string `toml:"level" yaml:"level"`
	ReportCaller bool   `toml:"report-caller" yaml:"report-caller"`
	Format       string `toml:"format" yaml:"format"`
}

// listenConf describes the UDP socket and the listening port.
type listenConf struct {
	Address        string `toml:"address" yaml:"address"`
	LocalAddress   string `toml:"local-address" yaml:"local-address"`
	Port           uint16 `toml:"port" yaml:"port"`
	IgnoreChecksum bool   `toml:"ignore-checksum" yaml:"ignore-checksum"`
}

// connectionConf describes the tcp.Config; unset values fall back to tcp.DefaultConfig.
type connectionConf struct {
	MSS          int    `toml:"mss" yaml:"mss"`
	RTO          string `toml:"rto" yaml:"rto"`
	InitialCwnd  int    `toml:"initial-cwnd" yaml:"initial-cwnd"`
	Window       uint16 `toml:"window" yaml:"window"`
	RemoveClosed *bool  `toml:"remove-closed" yaml:"remove-closed"`
}

// applicationConf selects the application attached to each accepted connection.
type applicationConf struct {
	Kind       string `toml:"kind" yaml:"kind"`
	BufferSize int    `toml:"buffer-size" yaml:"buffer-size"`
	Preview    int    `toml:"preview" yaml:"preview"`
}

// statusConf describes the optional status HTTP server.
type statusConf struct {
	Listen         string `toml:"listen" yaml:"listen"`
	ReportInterval string `toml:"report-interval" yaml:"report-interval"`
}

// loadConfig reads a configuration file. Files ending in .yml or .yaml are YAML, everything else is TOML.
func loadConfig(filename string) (conf daemonConf, err error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yml", ".yaml":
		f, openErr := os.Open(filename)
		if openErr != nil {
			err = openErr
			return
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err = dec.Decode(&conf); err == io.EOF {
			err = nil
		}

	default:
		_, err = toml.DecodeFile(filename, &conf)
	}
	return
}

// setupLogging configures logrus based on the Logging-configuration block.
func setupLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// parseTCPConfig creates a tcp.Config from the Connection-configuration block.
func parseTCPConfig(conf connectionConf) (tcpConf tcp.Config, err error) {
	tcpConf = tcp.DefaultConfig()

	if conf.MSS != 0 {
		tcpConf.MSS = conf.MSS
	}
	if conf.RTO != "" {
		if tcpConf.RetransmissionTimeout, err = time.ParseDuration(conf.RTO); err != nil {
			err = fmt.Errorf("connection.rto: %w", err)
			return
		}
	}
	if conf.InitialCwnd != 0 {
		tcpConf.InitialCwnd = conf.InitialCwnd
	}
	if conf.Window != 0 {
		tcpConf.Window = conf.Window
	}
	if conf.RemoveClosed != nil {
		tcpConf.RemoveClosed = *conf.RemoveClosed
	}

	if tcpConf.MSS <= 0 || tcpConf.RetransmissionTimeout <= 0 || tcpConf.InitialCwnd < 1 {
		err = fmt.Errorf("connection block contains non-positive values")
	}
	return
}

// parseApplication returns the accept hook for the Application-configuration block.
func parseApplication(conf applicationConf) (func(*tcp.Connection), error) {
	switch conf.Kind {
	case "", "echo":
		return app.Echo{}.Attach, nil

	case "log":
		preview := conf.Preview
		if preview <= 0 {
			preview = 32
		}
		return app.Logger{PreviewLen: preview}.Attach, nil

	case "buffer":
		size := conf.BufferSize
		if size <= 0 {
			size = 64 * 1024
		}
		return app.BufferApp(size, func(conn *tcp.Connection, buf *app.Buffer) {
			go func() {
				n, err := buf.WriteTo(os.Stdout)
				log.WithFields(log.Fields{
					"flow":    conn.Key().String(),
					"written": n,
					"error":   err,
				}).Info("Stream finished")
			}()
		}), nil

	default:
		return nil, fmt.Errorf("unknown application.kind \"%s\"", conf.Kind)
	}
}

// daemon bundles all running components.
type daemon struct {
	loop       *eventloop.Loop
	udp        *network.UDP
	dispatcher *tcp.Dispatcher
	status     *status.Server
	report     eventloop.Timer
}

// newDaemon creates and starts all components described by the configuration.
func newDaemon(conf daemonConf) (d *daemon, err error) {
	if conf.Listen.Address == "" {
		return nil, fmt.Errorf("listen.address is empty")
	}
	if conf.Listen.Port == 0 {
		return nil, fmt.Errorf("listen.port is empty")
	}

	udpConf := network.UDPConfig{
		ListenAddress:  conf.Listen.Address,
		IgnoreChecksum: conf.Listen.IgnoreChecksum,
	}
	if conf.Listen.LocalAddress != "" {
		if udpConf.LocalAddress, err = netip.ParseAddr(conf.Listen.LocalAddress); err != nil {
			return nil, fmt.Errorf("listen.local-address: %w", err)
		}
	}

	tcpConf, err := parseTCPConfig(conf.Connection)
	if err != nil {
		return nil, err
	}

	acceptHook, err := parseApplication(conf.Application)
	if err != nil {
		return nil, err
	}

	d = &daemon{
		loop: eventloop.NewLoop(),
		udp:  network.NewUDP(udpConf),
	}

	d.dispatcher = tcp.NewDispatcher(d.udp, d.loop, conf.Listen.Port, tcpConf)
	d.dispatcher.RegisterAcceptHook(acceptHook)

	if err = d.udp.Start(); err != nil {
		_ = d.Close()
		return nil, err
	}

	if conf.Status.Listen != "" {
		d.status = status.NewServer(d.dispatcher, conf.Status.Listen)
		if _, err = d.status.Start(); err != nil {
			d.status = nil
			_ = d.Close()
			return nil, err
		}
	}

	if conf.Status.ReportInterval != "" {
		interval, intervalErr := time.ParseDuration(conf.Status.ReportInterval)
		if intervalErr != nil || interval <= 0 {
			_ = d.Close()
			return nil, fmt.Errorf("status.report-interval: invalid duration \"%s\"", conf.Status.ReportInterval)
		}

		// Counters must be queried from outside the event loop.
		d.report = eventloop.Every(d.loop, interval, func() { go d.reportCounters() })
	}

	log.WithFields(log.Fields{
		"udp":         d.udp.String(),
		"port":        conf.Listen.Port,
		"application": conf.Application.Kind,
	}).Info("Daemon started")

	return d, nil
}

// Close all components, the status server first and the event loop last.
func (d *daemon) Close() error {
	var errs *multierror.Error

	if d.report != nil {
		d.report.Stop()
	}
	if d.status != nil {
		errs = multierror.Append(errs, d.status.Close())
	}
	errs = multierror.Append(errs, d.udp.Close())
	errs = multierror.Append(errs, d.dispatcher.Close())
	errs = multierror.Append(errs, d.loop.Close())

	return errs.ErrorOrNil()
}

// reportCounters logs the Dispatcher's counters.
func (d *daemon) reportCounters() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	counters, err := d.dispatcher.Counters(ctx)
	if err != nil {
		log.WithError(err).Debug("Failed to query counters")
		return
	}

	log.WithFields(log.Fields{
		"active":            counters.Active,
		"accepted":          counters.Accepted,
		"replaced":          counters.Replaced,
		"removed":           counters.Removed,
		"malformed":         counters.Malformed,
		"port_mismatch":     counters.PortMismatch,
		"checksum_mismatch": counters.ChecksumMismatch,
		"unknown_flow":      counters.UnknownFlow,
	}).Info("Dispatcher counters")
}

// parseDaemon loads the configuration file, sets up logging and starts the daemon.
func parseDaemon(filename string) (d *daemon, profiling bool, err error) {
	conf, err := loadConfig(filename)
	if err != nil {
		return
	}

	setupLogging(conf.Logging)

	d, err = newDaemon(conf)
	profiling = conf.Profiling
	return
}
