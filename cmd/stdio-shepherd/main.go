// stdio-shepherd entry point
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// stdio-shepherd drives a resin printer for a parent process. Requests
// arrive one per line on stdin; responses and printer events are written
// one per line to stdout. Diagnostics go to stderr and the optional log
// file.
//
// Usage:
//
//	stdio-shepherd [-config shepherd.cfg] [options]
//
// Options:
//
//	-config string   Configuration file
//	-port string     Preferred serial port, tried before the candidates
//	-baud int        Serial baud rate
//	-backend string  Serial backend: native or tarm
//	-monitor string  Monitor HTTP address, e.g. 127.0.0.1:7130
//	-loglevel string Log level: debug, info, warn, error
//	-logfile string  Rotating log file path
//
// Examples:
//
//	# Probe /dev/ttyUSB* and /dev/ttyACM* at the default baud rate
//	stdio-shepherd
//
//	# Fixed port with the monitor enabled
//	stdio-shepherd -port /dev/ttyACM0 -monitor 127.0.0.1:7130
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"stdio-shepherd/pkg/config"
	"stdio-shepherd/pkg/log"
	"stdio-shepherd/pkg/shepherd"
)

func main() {
	configFile := flag.String("config", "", "Configuration file")
	port := flag.String("port", "", "Preferred serial port")
	baud := flag.Int("baud", 0, "Serial baud rate")
	backend := flag.String("backend", "", "Serial backend (native, tarm)")
	monitorAddr := flag.String("monitor", "", "Monitor HTTP address")
	logLevel := flag.String("loglevel", "", "Log level (debug, info, warn, error)")
	logFile := flag.String("logfile", "", "Rotating log file path")
	flag.Parse()

	raw := config.New()
	if *configFile != "" {
		var err error
		if raw, err = config.Load(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// flags override the file
	overrides := []struct{ section, option, value string }{
		{"serial", "port", *port},
		{"serial", "backend", *backend},
		{"monitor", "address", *monitorAddr},
		{"log", "level", *logLevel},
		{"log", "file", *logFile},
	}
	if *baud > 0 {
		overrides = append(overrides, struct{ section, option, value string }{"serial", "baud", strconv.Itoa(*baud)})
	}
	for _, o := range overrides {
		if o.value != "" {
			raw.Set(o.section, o.option, o.value)
		}
	}

	cfg, err := config.LoadShepherd(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := log.Setup(log.Options{
		Level:  log.ParseLevel(cfg.Log.Level),
		Format: log.ParseFormat(cfg.Log.Format),
		File: log.RotationConfig{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSize,
			MaxBackups: cfg.Log.MaxBackups,
			Compress:   cfg.Log.Compress,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	for _, msg := range raw.Unused() {
		logger.Warn("%s", msg)
	}
	logger.WithFields(log.Fields{
		"ports":   cfg.Serial.Ports(),
		"baud":    cfg.Serial.Baud,
		"backend": cfg.Serial.Backend,
	}).Info("stdio-shepherd starting")

	// The parent owns the process lifetime; terminal signals go to it.
	signal.Ignore(syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT)

	s, err := shepherd.New(shepherd.Options{Config: cfg, Stdout: os.Stdout, Logger: logger})
	if err != nil {
		logger.WithError(err).Error("setup failed")
		os.Exit(1)
	}
	if err := s.Start(); err != nil {
		logger.WithError(err).Error("startup failed")
		os.Exit(1)
	}

	if err := s.Run(os.Stdin); err != nil {
		logger.WithError(err).Error("request loop failed")
	}
	if err := s.Close(); err != nil {
		logger.WithError(err).Warn("shutdown")
	}
	logger.Info("stdio-shepherd exiting")
}
