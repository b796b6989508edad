// Package config loads the YAML configuration recognized by spec.md
// §6: server listen/threading parameters and the ESB endpoint, basic
// auth, routing suffixes, collection accounts, and fee parameters.
package config

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v3"

	"github.com/nxgw/atmgateway/charge"
)

// ServerConfig holds server.* keys.
type ServerConfig struct {
	Port            int `yaml:"port"`
	Threads         int `yaml:"threads"`
	SocketTimeoutMs int `yaml:"socket_timeout_ms"`
}

// EsbConfig holds esb.* keys: endpoint, credentials, path suffixes,
// collection accounts, and fee parameters.
type EsbConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	Withdrawal     string `yaml:"withdrawal"`
	Deposit        string `yaml:"deposit"`
	Purchase       string `yaml:"purchase"`
	BalanceInquiry string `yaml:"balance_inquiry"`
	MiniStatement  string `yaml:"mini_statement"`

	InterSwitchSettlementAccount      string `yaml:"inter_switch_settlement_account"`
	TaxAccount                        string `yaml:"tax_account"`
	PrideChargeAccount                string `yaml:"pride_charge_account"`
	InterSwitchChargeAccount          string `yaml:"inter_switch_charge_account"`
	InterSwitchCommissionsAccount     string `yaml:"inter_switch_commissions_account"`
	PrideCommissionsSettlementAccount string `yaml:"pride_commissions_settlement_account"`

	Charges ChargesConfig `yaml:"charges"`
}

// ChargesConfig holds esb.charges.* keys.
type ChargesConfig struct {
	Base struct {
		Initial   float64 `yaml:"initial"`
		BandSize  float64 `yaml:"band_size"`
		Increment float64 `yaml:"increment"`
	} `yaml:"base"`
	Excise struct {
		Rate float64 `yaml:"rate"`
	} `yaml:"excise"`
	Pride struct {
		SharePercent float64 `yaml:"share_percent"`
	} `yaml:"pride"`
	InterSwitch struct {
		Commission float64 `yaml:"commission"`
	} `yaml:"inter_switch"`
}

// Config is the full application configuration, loaded once at
// startup and passed by value/pointer to every component — there is
// no process-wide config singleton.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Esb    EsbConfig    `yaml:"esb"`
}

// applyDefaults fills in every key spec.md §6 marks with a default.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 7790
	}
	if c.Server.Threads == 0 {
		c.Server.Threads = 20
	}
	if c.Server.SocketTimeoutMs == 0 {
		c.Server.SocketTimeoutMs = 300000
	}
	if c.Esb.Charges.Base.Initial == 0 {
		c.Esb.Charges.Base.Initial = 2500
	}
	if c.Esb.Charges.Base.BandSize == 0 {
		c.Esb.Charges.Base.BandSize = 500000
	}
	if c.Esb.Charges.Base.Increment == 0 {
		c.Esb.Charges.Base.Increment = 1000
	}
	if c.Esb.Charges.Pride.SharePercent == 0 {
		c.Esb.Charges.Pride.SharePercent = 0.20
	}
}

// Load reads and parses the configuration file at path, applying
// spec.md §6's defaults for any unset key. A load failure is a fatal
// startup error (exit code 1) for callers, per spec.md §6's exit
// code table.
func Load(path string) (Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// ChargeConfig projects the esb.charges.* and collection-account keys
// into a charge.Config for the ChargeEngine. esb.charges.inter_switch.commission
// and esb.pride_commissions_settlement_account are not carried over.
func (c Config) ChargeConfig() charge.Config {
	return charge.Config{
		BaseInitial:       c.Esb.Charges.Base.Initial,
		BandSize:          c.Esb.Charges.Base.BandSize,
		BandIncrement:     c.Esb.Charges.Base.Increment,
		ExciseDutyRate:    c.Esb.Charges.Excise.Rate,
		PrideSharePercent: c.Esb.Charges.Pride.SharePercent,

		SettlementAccount:             c.Esb.InterSwitchSettlementAccount,
		TaxAccount:                    c.Esb.TaxAccount,
		PrideChargeAccount:            c.Esb.PrideChargeAccount,
		InterSwitchChargeAccount:      c.Esb.InterSwitchChargeAccount,
		InterSwitchCommissionsAccount: c.Esb.InterSwitchCommissionsAccount,
	}
}
