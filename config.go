package doorpanel

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"go.tigermatt.uk/doorpanel/zusi"
)

// Version is announced to the simulator during the handshake.
const Version = "0.1.0"

const (
	DefaultClientName = "GT8-100D/2S-M"
	DefaultQueueDepth = 1024
	MaxQueueDepth     = 1 << 16
)

// Cab data ids the translator needs.
const (
	CabDataSpeed      uint16 = 0x0001
	CabDataDoorStatus uint16 = 0x0066
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server        string `yaml:"server"`
	ClientName    string `yaml:"client_name"`
	ClientVersion string `yaml:"client_version"`

	// QueueDepth is the number of received messages that may wait for the
	// translator before the receiver stops reading.
	QueueDepth int `yaml:"queue_depth"`

	RecordFile  string `yaml:"record_file,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	Panel Panel `yaml:"panel"`
}

func DefaultConfig() Config {
	return Config{
		Server:        zusi.DefaultAddress,
		ClientName:    DefaultClientName,
		ClientVersion: Version,
		QueueDepth:    DefaultQueueDepth,
		Panel:         DefaultPanel(),
	}
}

// LoadConfig reads a YAML file. Keys missing from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("%w: server address is empty", ErrInvalidConfig)
	}
	if c.QueueDepth < 1 || c.QueueDepth > MaxQueueDepth {
		return fmt.Errorf("%w: queue_depth %d outside 1..%d", ErrInvalidConfig, c.QueueDepth, MaxQueueDepth)
	}

	a := c.Panel.Assignments
	if a.Internal == a.External {
		return fmt.Errorf("%w: internal and external assignment are both %d", ErrInvalidConfig, a.Internal)
	}

	if err := c.Panel.Switches.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// NeededData is the subscription the translator depends on.
func NeededData() zusi.NeededDataRequest {
	return zusi.NeededDataRequest{
		CabData:   []uint16{CabDataSpeed, CabDataDoorStatus},
		Operation: true,
	}
}
