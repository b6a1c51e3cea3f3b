package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/riskvault/config"
	"github.com/vadiminshakov/riskvault/internal/identity"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

const title = "RISKVAULT CONFIG WIZARD"

// Answers collects the wizard input as typed.
type Answers struct {
	Platform       string
	Pair           string
	StaticPrice    string
	GenerateOwner  bool
	Owner          string
	BaseLimit      string
	PriceThreshold string
	HighMultiplier string
	LowMultiplier  string
	RebalanceBps   string
	MinInterval    string
	UpdateCooldown string
	HistoryLength  string
}

func defaultAnswers() Answers {
	return Answers{
		Platform:       config.PlatformStatic,
		Pair:           "ETH_USDT",
		StaticPrice:    "2000",
		GenerateOwner:  true,
		BaseLimit:      "1000000000",
		PriceThreshold: "2000",
		HighMultiplier: "5000",
		LowMultiplier:  "5000",
		RebalanceBps:   "100",
		MinInterval:    "1h",
		UpdateCooldown: "5m",
		HistoryLength:  "20",
	}
}

// RunTUI launches the terminal configuration wizard and writes configPath.
// A generated owner key goes to envPath.
func RunTUI(configPath, envPath string) error {
	a := defaultAnswers()

	// step 1: price source
	screen("STEP 1: PRICE SOURCE")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("The oracle price drives deposit limits and volatility.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select price source").
				Options(
					huh.NewOption("Binance spot", config.PlatformBinance),
					huh.NewOption("Bybit spot", config.PlatformBybit),
					huh.NewOption("Hyperliquid mid", config.PlatformHyperliquid),
					huh.NewOption("Redis market feed", config.PlatformRedis),
					huh.NewOption("Static (local testing)", config.PlatformStatic),
				).
				Value(&a.Platform),
			huh.NewInput().
				Title("Reference pair").
				Description("BASE_QUOTE, e.g. ETH_USDT").
				Value(&a.Pair).
				Validate(validatePair),
		),
	).Run()
	if err != nil {
		return err
	}

	if a.Platform == config.PlatformStatic {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Static price").
					Value(&a.StaticPrice).
					Validate(validatePositiveDecimal),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// step 2: owner
	screen("STEP 2: OWNER")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Generate a new owner key?").
				Description("The key is written to " + envPath + " as " + config.EnvOwnerKey).
				Value(&a.GenerateOwner),
		),
	).Run()
	if err != nil {
		return err
	}
	if !a.GenerateOwner {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Owner address").
					Value(&a.Owner).
					Validate(func(s string) error {
						_, err := identity.ParseAddress(s)
						return err
					}),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// step 3: deposit limit
	screen("STEP 3: DEPOSIT LIMIT")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Base limit per account").
				Description("Integer amount in token base units").
				Value(&a.BaseLimit).
				Validate(validateInteger),
			huh.NewInput().
				Title("Price threshold").
				Description("At this price the limit equals the base limit").
				Value(&a.PriceThreshold).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("High multiplier (bps)").
				Description("Limit growth when the price is above the threshold").
				Value(&a.HighMultiplier).
				Validate(validateBps),
			huh.NewInput().
				Title("Low multiplier (bps)").
				Description("Limit contraction when the price is below the threshold").
				Value(&a.LowMultiplier).
				Validate(validateBps),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 4: rebalancing
	screen("STEP 4: REBALANCING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Volatility threshold (bps)").
				Value(&a.RebalanceBps).
				Validate(validateBps),
			huh.NewInput().
				Title("Minimum interval between rebalances").
				Value(&a.MinInterval).
				Validate(validateDuration),
			huh.NewInput().
				Title("Volatility update cooldown").
				Value(&a.UpdateCooldown).
				Validate(validateDuration),
			huh.NewInput().
				Title("Price history length").
				Description("At least 2 samples").
				Value(&a.HistoryLength).
				Validate(validateHistory),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	screen("FINAL CONFIRMATION")
	owner := a.Owner
	if a.GenerateOwner {
		owner = "(new key)"
	}
	summary := fmt.Sprintf(
		"Source: %s\nPair: %s\nOwner: %s\nBase limit: %s @ %s\nRebalance: %s bps every %s\n",
		a.Platform, a.Pair, owner, a.BaseLimit, a.PriceThreshold, a.RebalanceBps, a.MinInterval,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	var confirm bool
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return errors.New("setup cancelled by user")
	}

	if a.GenerateOwner {
		signer, err := identity.GenerateKey()
		if err != nil {
			return err
		}
		if err := writeOwnerKey(envPath, signer); err != nil {
			return err
		}
		a.Owner = signer.Address().Hex()
	}

	tmp, err := Build(a)
	if err != nil {
		return err
	}
	data, err := config.Marshal(tmp)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.Wrap(err, "save config file")
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting vault...", configPath)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func screen(step string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render(title))
	fmt.Println(stepStyle.Render(step))
}

// Build converts validated answers into the yaml config.
func Build(a Answers) (config.ConfigTmp, error) {
	high, err := config.ParseBps(a.HighMultiplier)
	if err != nil {
		return config.ConfigTmp{}, err
	}
	low, err := config.ParseBps(a.LowMultiplier)
	if err != nil {
		return config.ConfigTmp{}, err
	}
	threshold, err := config.ParseBps(a.RebalanceBps)
	if err != nil {
		return config.ConfigTmp{}, err
	}
	minInterval, err := time.ParseDuration(a.MinInterval)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "min interval")
	}
	cooldown, err := time.ParseDuration(a.UpdateCooldown)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "update cooldown")
	}
	var history int
	if _, err := fmt.Sscanf(a.HistoryLength, "%d", &history); err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "history length")
	}

	tmp := config.ConfigTmp{
		Platform:              a.Platform,
		Pair:                  strings.ToUpper(strings.TrimSpace(a.Pair)),
		Owner:                 a.Owner,
		BaseLimit:             strings.TrimSpace(a.BaseLimit),
		PriceThreshold:        strings.TrimSpace(a.PriceThreshold),
		HighMultiplierBps:     &high,
		LowMultiplierBps:      &low,
		RebalanceThresholdBps: &threshold,
		MinInterval:           minInterval,
		MaxHistoryLength:      history,
		UpdateCooldown:        cooldown,
	}
	if a.Platform == config.PlatformStatic {
		tmp.StaticPrice = strings.TrimSpace(a.StaticPrice)
	}
	return tmp, nil
}

// writeOwnerKey merges the owner key into the env file, keeping existing entries.
func writeOwnerKey(path string, signer *identity.Signer) error {
	env := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		if env, err = godotenv.Read(path); err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
	}
	env[config.EnvOwnerKey] = signer.KeyHex()
	return errors.Wrapf(godotenv.Write(env, path), "write %s", path)
}

func validatePair(s string) error {
	if !strings.Contains(s, "_") {
		return errors.New("invalid format: must be BASE_QUOTE (e.g. ETH_USDT)")
	}
	return nil
}

func validatePositiveDecimal(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return errors.New("must be a valid number")
	}
	if !d.IsPositive() {
		return errors.New("must be positive")
	}
	return nil
}

func validateInteger(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsInteger() || d.IsNegative() {
		return errors.New("must be a non-negative integer")
	}
	return nil
}

func validateBps(s string) error {
	_, err := config.ParseBps(s)
	return err
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

func validateHistory(s string) error {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 2 {
		return errors.New("must be an integer of at least 2")
	}
	return nil
}
