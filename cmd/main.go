// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package main is the main package of the application
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opiproject/opi-evpn-syncd/pkg/config"
	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
	"github.com/opiproject/opi-evpn-syncd/pkg/evpnmodule"
	"github.com/opiproject/opi-evpn-syncd/pkg/infradb"
	"github.com/opiproject/opi-evpn-syncd/pkg/infradb/taskmanager"
	"github.com/opiproject/opi-evpn-syncd/pkg/metrics"
	"github.com/opiproject/opi-evpn-syncd/pkg/netlink"
	"github.com/opiproject/opi-evpn-syncd/pkg/utils"
	"github.com/opiproject/opi-evpn-syncd/pkg/zapi"
)

const (
	configFilePath = "./"
)

// loadErr keeps the config loading error for validateConfigs
var loadErr error

var rootCmd = &cobra.Command{
	Use:   "opi-evpn-syncd",
	Short: "evpn sync daemon",
	Long:  "EVPN MAC/IP synchronization and duplicate address detection daemon",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return validateConfigs()
	},
	Run: func(_ *cobra.Command, _ []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		run(ctx, config.GetConfig())
	},
}

func run(ctx context.Context, cfg *config.Config) {
	evpnLog := utils.NewModuleLogger("evpn", cfg.LogLevel.Evpn)
	netlinkLog := utils.NewModuleLogger("netlink", cfg.LogLevel.Netlink)
	zapiLog := utils.NewModuleLogger("zapi", cfg.LogLevel.Zapi)
	infradb.SetLogger(utils.NewModuleLogger("infradb", cfg.LogLevel.DB))

	metrics.Register()

	// Starting Task Manager process
	taskmanager.TaskMan.StartTaskManager()

	if err := infradb.NewInfraDB(cfg.DBAddress, cfg.Database); err != nil {
		log.WithError(err).Fatal("error in creating db")
	}
	defer func() {
		if err := infradb.Close(); err != nil {
			log.WithError(err).Error("closing db")
		}
	}()

	topo := netlink.TopologyFromConfig(cfg)
	programmer := netlink.NewProgrammer(netlink.Kernel(), topo, netlinkLog)

	var notifier evpn.Notifier = zapi.Discard{Log: zapiLog}
	var client *zapi.Client
	if cfg.Zapi.Enabled {
		client = zapi.NewClient(cfg.ZapiAddress, time.Duration(cfg.Zapi.MaxBackoff)*time.Second, zapiLog)
		notifier = client
	}

	engine := evpn.New(engineConfig(cfg.Evpn), programmer, notifier, evpn.WithLogger(evpnLog))
	go engine.Run(ctx)

	evpnmodule.Init(evpnmodule.NewHandler(engine, programmer, evpnLog), cfg.Subscribers)
	if err := evpnmodule.Provision(cfg.Evpn); err != nil {
		log.WithError(err).Error("provisioning configured objects")
	}

	if cfg.Netlink.Enabled {
		monitor := netlink.NewMonitor(netlink.Kernel(), topo, engine, programmer.Installs(),
			time.Duration(cfg.Netlink.PollInterval)*time.Second, netlinkLog)
		go monitor.Run(ctx)
	}
	if client != nil {
		go client.Run(ctx, engine)
	}

	go runHTTPServer(ctx, cfg.HTTPPort, engine)

	<-ctx.Done()
	log.Info("shutting down")
}

// engineConfig converts the second based settings of the config file
func engineConfig(c config.EvpnConfig) evpn.Config {
	return evpn.Config{
		DAD: evpn.DADConfig{
			Enabled:    c.DAD.Enabled,
			MaxMoves:   c.DAD.MaxMoves,
			Time:       time.Duration(c.DAD.Time) * time.Second,
			Freeze:     c.DAD.Freeze,
			FreezeTime: time.Duration(c.DAD.FreezeTime) * time.Second,
		},
		PeerHoldTime:     time.Duration(c.PeerHoldTime) * time.Second,
		MaxEntriesPerVNI: c.MaxEntriesPerVNI,
	}
}

func initialize() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&config.GlobalConfig.CfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().IntVar(&config.GlobalConfig.HTTPPort, "httpport", 8082, "The HTTP server port")
	rootCmd.PersistentFlags().StringVar(&config.GlobalConfig.DBAddress, "dbaddress", "127.0.0.1:6379", "db address in ip_address:port format")
	rootCmd.PersistentFlags().StringVar(&config.GlobalConfig.Database, "database", "gomap", "Database type, gomap or redis")
	rootCmd.PersistentFlags().StringVar(&config.GlobalConfig.ZapiAddress, "zapiaddress", "127.0.0.1:2620", "BGP daemon zapi address in ip_address:port format")

	if err := viper.GetViper().BindPFlags(rootCmd.PersistentFlags()); err != nil {
		log.WithError(err).Error("binding flags to viper")
		os.Exit(1)
	}
}

func initConfig() {
	v := viper.GetViper()
	if config.GlobalConfig.CfgFile != "" {
		v.SetConfigFile(config.GlobalConfig.CfgFile)
	} else {
		// Search config in the default location
		v.AddConfigPath(configFilePath)
		v.SetConfigType("yaml")
		v.SetConfigName("config.yaml")
	}
	config.SetDefaults(v)
	loadErr = config.LoadConfig(v)
}

func validateAddress(name, addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid %s format. It should be in ip_address:port format", name)
	}
	if host != "" && net.ParseIP(host) == nil {
		return fmt.Errorf("invalid %s ip address %q", name, host)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("invalid %s port. It must be a positive integer between 1 and 65535", name)
	}
	return nil
}

func validateConfigs() error {
	if loadErr != nil {
		return loadErr
	}

	httpPort := viper.GetInt("httpport")
	if httpPort <= 0 || httpPort > 65535 {
		return fmt.Errorf("httpPort must be a positive integer between 1 and 65535")
	}

	switch viper.GetString("database") {
	case "", "gomap":
	case "redis":
		if err := validateAddress("DBAddress", viper.GetString("dbaddress")); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported database %q", viper.GetString("database"))
	}

	if viper.GetBool("zapi.enabled") {
		if err := validateAddress("ZapiAddress", viper.GetString("zapiaddress")); err != nil {
			return err
		}
	}

	return config.GetConfig().Validate()
}

func main() {
	initialize()
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
