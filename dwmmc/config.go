package dwmmc

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"go.yaml.in/yaml/v3"

	"github.com/ardnew/dwmmc/dwmmc/idmac"
	"github.com/ardnew/dwmmc/dwmmc/reg"
	"github.com/ardnew/dwmmc/emmc"
	"github.com/ardnew/dwmmc/pkg"
)

// Config holds the controller parameters supplied once by the platform.
type Config struct {
	RegBase   uint64        `yaml:"reg_base"`   // controller register base address
	DescBase  uint64        `yaml:"desc_base"`  // descriptor ring bus address
	DescSize  uint32        `yaml:"desc_size"`  // descriptor ring size in bytes
	ClockRate uint32        `yaml:"clock_rate"` // source clock in Hz
	BusWidth  emmc.BusWidth `yaml:"bus_width"`  // widest bus the board supports
	DMA       bool          `yaml:"dma"`        // controller has the internal DMA engine
	ChunkMax  int           `yaml:"chunk_max"`  // bytes per descriptor
	BootClock uint32        `yaml:"boot_clock"` // identification clock in Hz
	Budget    Budget        `yaml:"budget"`
}

// Budget bounds every poll loop in the driver. Exhausting any of them is a
// fatal timeout.
//
// Zero retry counts are unset and take their defaults. The delays are
// pointers so that an explicit zero (no pause) is kept; only a nil delay
// takes its default.
type Budget struct {
	BusyRetries        int            `yaml:"busy_retries"`         // STATUS data-busy reads
	CompletionRetries  int            `yaml:"completion_retries"`   // RINTSTS reads per command
	CompletionDelay    *time.Duration `yaml:"completion_delay"`     // pause before each RINTSTS read
	ClockUpdateRetries int            `yaml:"clock_update_retries"` // update-clock issues per handshake
	PollRetries        int            `yaml:"poll_retries"`         // CMD/RINTSTS reads per update-clock issue
	ResetRetries       int            `yaml:"reset_retries"`        // CTRL and BMOD reset reads
	SettleDelay        *time.Duration `yaml:"settle_delay"`         // pause around the initial bus setup
}

// Delay returns a pointer to d for use in [Budget].
func Delay(d time.Duration) *time.Duration {
	return &d
}

func (b *Budget) completionDelay() time.Duration {
	if b.CompletionDelay == nil {
		return 0
	}
	return *b.CompletionDelay
}

func (b *Budget) settleDelay() time.Duration {
	if b.SettleDelay == nil {
		return 0
	}
	return *b.SettleDelay
}

// Defaults.
const (
	DefaultBootClock = 400000
	DefaultRetries   = 100000
)

// DefaultBudget returns the poll budget used when none is configured.
func DefaultBudget() Budget {
	return Budget{
		BusyRetries:        DefaultRetries,
		CompletionRetries:  DefaultRetries,
		CompletionDelay:    Delay(500 * time.Microsecond),
		ClockUpdateRetries: 1000,
		PollRetries:        DefaultRetries,
		ResetRetries:       DefaultRetries,
		SettleDelay:        Delay(100 * time.Microsecond),
	}
}

// DefaultConfig returns the values used for any field left unset.
func DefaultConfig() Config {
	return Config{
		BusWidth:  emmc.BusWidth1,
		ChunkMax:  idmac.DefaultChunk,
		BootClock: DefaultBootClock,
		Budget:    DefaultBudget(),
	}
}

// ParseConfig decodes a YAML configuration and fills unset fields from
// [DefaultConfig]. The result is validated.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", pkg.ErrConfig, err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML configuration at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", pkg.ErrConfig, err)
	}
	return ParseConfig(data)
}

func (c *Config) applyDefaults() error {
	if err := mergo.Merge(c, DefaultConfig(), mergo.WithoutDereference); err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrConfig, err)
	}
	return nil
}

// Validate checks the invariants the driver relies on.
func (c *Config) Validate() error {
	switch {
	case c.RegBase&reg.BlockMask != 0:
		return fmt.Errorf("%w: register base 0x%x not %d-byte aligned", pkg.ErrConfig, c.RegBase, reg.BlockSize)
	case c.DescBase&reg.BlockMask != 0:
		return fmt.Errorf("%w: descriptor base 0x%x not %d-byte aligned", pkg.ErrConfig, c.DescBase, reg.BlockSize)
	case c.DescSize == 0 || c.DescSize&reg.BlockMask != 0:
		return fmt.Errorf("%w: descriptor size %d not a non-zero multiple of %d", pkg.ErrConfig, c.DescSize, reg.BlockSize)
	case c.ClockRate == 0:
		return fmt.Errorf("%w: source clock rate is zero", pkg.ErrConfig)
	case !c.BusWidth.Valid():
		return fmt.Errorf("%w: bus width %d", pkg.ErrConfig, c.BusWidth)
	case c.BootClock == 0:
		return fmt.Errorf("%w: boot clock is zero", pkg.ErrConfig)
	case c.ChunkMax <= 0 || c.ChunkMax > idmac.MaxChunk:
		return fmt.Errorf("%w: chunk size %d outside 1..%d", pkg.ErrConfig, c.ChunkMax, idmac.MaxChunk)
	case c.ChunkMax%idmac.ChunkAlign != 0:
		return fmt.Errorf("%w: chunk size %d not a multiple of %d", pkg.ErrConfig, c.ChunkMax, idmac.ChunkAlign)
	}
	return c.Budget.validate()
}

func (b *Budget) validate() error {
	for _, f := range []struct {
		name string
		n    int
	}{
		{"busy_retries", b.BusyRetries},
		{"completion_retries", b.CompletionRetries},
		{"clock_update_retries", b.ClockUpdateRetries},
		{"poll_retries", b.PollRetries},
		{"reset_retries", b.ResetRetries},
	} {
		if f.n <= 0 {
			return fmt.Errorf("%w: budget %s must be positive, got %d", pkg.ErrConfig, f.name, f.n)
		}
	}
	if b.completionDelay() < 0 || b.settleDelay() < 0 {
		return fmt.Errorf("%w: negative budget delay", pkg.ErrConfig)
	}
	return nil
}
