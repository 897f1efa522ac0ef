// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package config has the configuration of the daemon
package config

import (
	"fmt"
	"net/netip"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// SubscriberConfig orders the infradb subscribers of an object type
type SubscriberConfig struct {
	Name     string   `yaml:"name" mapstructure:"name"`
	Priority int      `yaml:"priority" mapstructure:"priority"`
	Events   []string `yaml:"events" mapstructure:"events"`
}

// DADConfig is the duplicate address detection configuration. Times are in
// seconds.
type DADConfig struct {
	Enabled    bool `yaml:"enabled" mapstructure:"enabled"`
	MaxMoves   int  `yaml:"max_moves" mapstructure:"max_moves"`
	Time       int  `yaml:"time" mapstructure:"time"`
	Freeze     bool `yaml:"freeze" mapstructure:"freeze"`
	FreezeTime int  `yaml:"freeze_time" mapstructure:"freeze_time"`
}

// VNIConfig provisions an L2 VNI at startup
type VNIConfig struct {
	VNI          uint32 `yaml:"vni" mapstructure:"vni"`
	VTEP         string `yaml:"vtep" mapstructure:"vtep"`
	McastGroup   string `yaml:"mcast_group" mapstructure:"mcast_group"`
	VxlanDevice  string `yaml:"vxlan_device" mapstructure:"vxlan_device"`
	Svi          string `yaml:"svi" mapstructure:"svi"`
	AccessVlan   uint16 `yaml:"access_vlan" mapstructure:"access_vlan"`
	L3VNI        uint32 `yaml:"l3vni" mapstructure:"l3vni"`
	AdvertiseGW  bool   `yaml:"advertise_gw" mapstructure:"advertise_gw"`
	AdvertiseSVI bool   `yaml:"advertise_svi" mapstructure:"advertise_svi"`
}

// L3VNIConfig provisions an L3 VNI at startup
type L3VNIConfig struct {
	VNI         uint32 `yaml:"vni" mapstructure:"vni"`
	VrfID       uint32 `yaml:"vrf_id" mapstructure:"vrf_id"`
	Rmac        string `yaml:"rmac" mapstructure:"rmac"`
	VTEP        string `yaml:"vtep" mapstructure:"vtep"`
	VxlanDevice string `yaml:"vxlan_device" mapstructure:"vxlan_device"`
	Svi         string `yaml:"svi" mapstructure:"svi"`
}

// ESConfig attaches an access interface to an Ethernet Segment
type ESConfig struct {
	ESI       string `yaml:"esi" mapstructure:"esi"`
	Interface string `yaml:"interface" mapstructure:"interface"`
}

// EvpnConfig is the engine configuration
type EvpnConfig struct {
	DAD              DADConfig     `yaml:"dad" mapstructure:"dad"`
	PeerHoldTime     int           `yaml:"es_peer_hold_time" mapstructure:"es_peer_hold_time"`
	MaxEntriesPerVNI int           `yaml:"max_entries_per_vni" mapstructure:"max_entries_per_vni"`
	VNIs             []VNIConfig   `yaml:"vnis" mapstructure:"vnis"`
	L3VNIs           []L3VNIConfig `yaml:"l3vnis" mapstructure:"l3vnis"`
	EthernetSegments []ESConfig    `yaml:"ethernet_segments" mapstructure:"ethernet_segments"`
}

// NetlinkConfig controls the kernel poller. The dataplane is always
// programmed through netlink, Enabled only turns kernel learning on.
type NetlinkConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	PollInterval int    `yaml:"poll_interval" mapstructure:"poll_interval"`
	Bridge       string `yaml:"bridge" mapstructure:"bridge"`
}

// ZapiConfig controls the BGP daemon connection
type ZapiConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// MaxBackoff caps the reconnect interval, in seconds
	MaxBackoff int `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// LogLevelConfig has one level per module
type LogLevelConfig struct {
	Evpn    string `yaml:"evpn" mapstructure:"evpn"`
	Netlink string `yaml:"netlink" mapstructure:"netlink"`
	Zapi    string `yaml:"zapi" mapstructure:"zapi"`
	DB      string `yaml:"db" mapstructure:"db"`
}

// Config is the whole daemon configuration
type Config struct {
	CfgFile     string
	HTTPPort    int                `yaml:"httpport" mapstructure:"httpport"`
	Database    string             `yaml:"database" mapstructure:"database"`
	DBAddress   string             `yaml:"dbaddress" mapstructure:"dbaddress"`
	ZapiAddress string             `yaml:"zapiaddress" mapstructure:"zapiaddress"`
	Subscribers []SubscriberConfig `yaml:"subscribers" mapstructure:"subscribers"`
	Evpn        EvpnConfig         `yaml:"evpn" mapstructure:"evpn"`
	Netlink     NetlinkConfig      `yaml:"netlink" mapstructure:"netlink"`
	Zapi        ZapiConfig         `yaml:"zapi" mapstructure:"zapi"`
	LogLevel    LogLevelConfig     `yaml:"loglevel" mapstructure:"loglevel"`
}

// GlobalConfig is the configuration in use
var GlobalConfig Config

// SetDefaults registers the defaults of the settings that have no flag
func SetDefaults(v *viper.Viper) {
	v.SetDefault("evpn.dad.enabled", true)
	v.SetDefault("evpn.dad.max_moves", 5)
	v.SetDefault("evpn.dad.time", 180)
	v.SetDefault("evpn.es_peer_hold_time", 1080)
	v.SetDefault("netlink.poll_interval", 1)
	v.SetDefault("netlink.bridge", "br-tenant")
	v.SetDefault("zapi.enabled", true)
	v.SetDefault("zapi.max_backoff", 30)
	v.SetDefault("subscribers", []map[string]any{{"name": "evpn", "priority": 1, "events": []string{"vni", "l3vni", "es"}}})
}

// SetConfig replaces the configuration in use
func SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

// LoadConfig reads the config file, if any, and unmarshals the viper
// settings into GlobalConfig
func LoadConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		log.WithError(err).Warn("no config file read, using flags and defaults")
	} else {
		log.WithField("file", v.ConfigFileUsed()).Info("using config file")
	}
	cfg := GlobalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	if err := SetConfig(cfg); err != nil {
		return err
	}
	log.Debugf("config %+v", GlobalConfig)
	return nil
}

// GetConfig returns the configuration in use
func GetConfig() *Config {
	return &GlobalConfig
}

// Validate checks the semantic constraints viper cannot express
func (c *Config) Validate() error {
	d := c.Evpn.DAD
	if d.Enabled {
		if d.MaxMoves < 2 || d.MaxMoves > 1000 {
			return fmt.Errorf("evpn.dad.max_moves must be between 2 and 1000, got %d", d.MaxMoves)
		}
		if d.Time < 2 || d.Time > 1800 {
			return fmt.Errorf("evpn.dad.time must be between 2 and 1800 seconds, got %d", d.Time)
		}
		if d.FreezeTime != 0 && (d.FreezeTime < 30 || d.FreezeTime > 3600) {
			return fmt.Errorf("evpn.dad.freeze_time must be 0 or between 30 and 3600 seconds, got %d", d.FreezeTime)
		}
	}
	if c.Evpn.PeerHoldTime < 0 || c.Evpn.MaxEntriesPerVNI < 0 {
		return fmt.Errorf("evpn.es_peer_hold_time and evpn.max_entries_per_vni must not be negative")
	}
	seen := make(map[uint32]bool)
	for _, vni := range c.Evpn.VNIs {
		if vni.VNI == 0 || vni.VNI > 1<<24-1 {
			return fmt.Errorf("invalid vni %d", vni.VNI)
		}
		if seen[vni.VNI] {
			return fmt.Errorf("vni %d configured twice", vni.VNI)
		}
		seen[vni.VNI] = true
		if _, err := netip.ParseAddr(vni.VTEP); err != nil {
			return fmt.Errorf("vni %d: invalid vtep %q", vni.VNI, vni.VTEP)
		}
		if vni.McastGroup != "" {
			if ip, err := netip.ParseAddr(vni.McastGroup); err != nil || !ip.IsMulticast() {
				return fmt.Errorf("vni %d: invalid multicast group %q", vni.VNI, vni.McastGroup)
			}
		}
	}
	for _, l3 := range c.Evpn.L3VNIs {
		if l3.VNI == 0 || seen[l3.VNI] {
			return fmt.Errorf("invalid or duplicate l3vni %d", l3.VNI)
		}
		seen[l3.VNI] = true
	}
	for _, es := range c.Evpn.EthernetSegments {
		if es.ESI == "" || es.Interface == "" {
			return fmt.Errorf("ethernet segment needs both esi and interface")
		}
	}
	if c.Netlink.Enabled && c.Netlink.PollInterval <= 0 {
		return fmt.Errorf("netlink.poll_interval must be positive")
	}
	return nil
}
