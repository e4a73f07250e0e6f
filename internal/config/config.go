package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fiscal-note-service/internal/models"
)

type Config struct {
	Server struct {
		Port     int    `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`

	// StandaloneMode swaps the government client for a mock and the
	// Postgres store for an in-memory one, so the full emission flow
	// runs with no external dependencies.
	StandaloneMode bool `yaml:"standalone_mode"`

	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	SEFAZ struct {
		// BaseURL overrides the environment-derived endpoint base.
		// Empty in normal operation; set for test harnesses.
		BaseURL string `yaml:"base_url"`
	} `yaml:"sefaz"`

	// Fiscal seeds the in-memory store in standalone mode. Outside
	// standalone mode the fiscal configuration comes from the
	// fiscal_config row and this block is ignored.
	Fiscal *FiscalSeed `yaml:"fiscal"`
}

type FiscalSeed struct {
	Environment       int    `yaml:"environment"`
	UFCode            string `yaml:"uf_code"`
	CNPJ              string `yaml:"cnpj"`
	StateRegistration string `yaml:"state_registration"`
	CorporateName     string `yaml:"corporate_name"`
	TradeName         string `yaml:"trade_name"`
	TaxRegime         int    `yaml:"tax_regime"`
	Address           struct {
		Street     string `yaml:"street"`
		Number     string `yaml:"number"`
		District   string `yaml:"district"`
		City       string `yaml:"city"`
		CityCode   string `yaml:"city_code"`
		State      string `yaml:"state"`
		PostalCode string `yaml:"postal_code"`
	} `yaml:"address"`
}

// FiscalConfig converts the seed into the runtime fiscal configuration.
// Returns nil when the seed block is absent.
func (s *FiscalSeed) FiscalConfig() *models.FiscalConfig {
	if s == nil {
		return nil
	}
	return &models.FiscalConfig{
		Environment:       s.Environment,
		UFCode:            s.UFCode,
		CNPJ:              s.CNPJ,
		StateRegistration: s.StateRegistration,
		CorporateName:     s.CorporateName,
		TradeName:         s.TradeName,
		TaxRegime:         s.TaxRegime,
		Address: models.Address{
			Street:     s.Address.Street,
			Number:     s.Address.Number,
			District:   s.Address.District,
			City:       s.Address.City,
			CityCode:   s.Address.CityCode,
			State:      s.Address.State,
			PostalCode: s.Address.PostalCode,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}

	return &config, nil
}
