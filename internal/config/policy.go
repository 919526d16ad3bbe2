// internal/config/policy.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/security"
)

// Policy is the money policy file. Amounts are decimal strings so that no
// value ever passes through a float.
type Policy struct {
	Limits LimitsPolicy `yaml:"limits"`
	Fees   FeesPolicy   `yaml:"fees"`
	Fraud  FraudPolicy  `yaml:"fraud"`
	PIN    PINPolicy    `yaml:"pin"`
}

// LimitsPolicy bounds single transactions and sets the limits given to new accounts.
type LimitsPolicy struct {
	MinAmount string `yaml:"min_amount"`
	MaxAmount string `yaml:"max_amount"`
	Daily     string `yaml:"daily"`
	Monthly   string `yaml:"monthly"`
}

// FeesPolicy is the tariff. Flat is keyed by transaction type.
type FeesPolicy struct {
	PercentRate string            `yaml:"percent_rate"`
	PercentMin  string            `yaml:"percent_min"`
	PercentMax  string            `yaml:"percent_max"`
	Flat        map[string]string `yaml:"flat"`
}

// FraudPolicy holds the fraud rule thresholds.
type FraudPolicy struct {
	NewAccountAge       time.Duration `yaml:"new_account_age"`
	NewAccountMaxAmount string        `yaml:"new_account_max_amount"`
	VelocityWindow      time.Duration `yaml:"velocity_window"`
	VelocityMax         int           `yaml:"velocity_max"`
	SameTargetWindow    time.Duration `yaml:"same_target_window"`
	SameTargetMax       int           `yaml:"same_target_max"`
	RoundAmounts        []string      `yaml:"round_amounts"`
	RoundWindow         time.Duration `yaml:"round_window"`
	RoundMax            int           `yaml:"round_max"`
}

// PINPolicy holds the PIN lockout and hashing settings.
type PINPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Lockout     time.Duration `yaml:"lockout"`
	BcryptCost  int           `yaml:"bcrypt_cost"`
	DenyList    []string      `yaml:"deny_list"`
}

// Rules is a Policy with every amount parsed.
type Rules struct {
	Fees         domain.FeePolicy
	MinAmount    decimal.Decimal
	MaxAmount    decimal.Decimal
	DailyLimit   decimal.Decimal
	MonthlyLimit decimal.Decimal
	Fraud        security.FraudConfig
	PIN          security.PINConfig
}

// DefaultPolicy returns the standard policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Limits: LimitsPolicy{
			MinAmount: "1",
			MaxAmount: "5000",
			Daily:     "25000",
			Monthly:   "100000",
		},
		Fees: FeesPolicy{
			PercentRate: "0.01",
			PercentMin:  "1.00",
			PercentMax:  "50.00",
			Flat: map[string]string{
				string(domain.TransactionTypeAirtime):     "1.00",
				string(domain.TransactionTypeData):        "1.00",
				string(domain.TransactionTypeElectricity): "2.50",
				string(domain.TransactionTypeBill):        "2.50",
			},
		},
		Fraud: FraudPolicy{
			NewAccountAge:       7 * 24 * time.Hour,
			NewAccountMaxAmount: "1000",
			VelocityWindow:      5 * time.Minute,
			VelocityMax:         5,
			SameTargetWindow:    10 * time.Minute,
			SameTargetMax:       3,
			RoundAmounts:        []string{"100", "200", "500", "1000", "2000", "5000"},
			RoundWindow:         time.Hour,
			RoundMax:            3,
		},
		PIN: PINPolicy{
			MaxAttempts: 3,
			Lockout:     30 * time.Minute,
			BcryptCost:  security.DefaultPINConfig().BcryptCost,
			DenyList:    security.DefaultPINConfig().DenyList,
		},
	}
}

// LoadPolicy reads a policy file on top of the defaults, so a file only
// needs the values it changes.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy: %w", err)
	}
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}
	return p, nil
}

// Rules parses and checks every value of the policy.
func (p *Policy) Rules() (*Rules, error) {
	var r Rules
	var err error

	amounts := []struct {
		field string
		raw   string
		dest  *decimal.Decimal
	}{
		{"limits.min_amount", p.Limits.MinAmount, &r.MinAmount},
		{"limits.max_amount", p.Limits.MaxAmount, &r.MaxAmount},
		{"limits.daily", p.Limits.Daily, &r.DailyLimit},
		{"limits.monthly", p.Limits.Monthly, &r.MonthlyLimit},
		{"fees.percent_rate", p.Fees.PercentRate, &r.Fees.PercentRate},
		{"fees.percent_min", p.Fees.PercentMin, &r.Fees.PercentMin},
		{"fees.percent_max", p.Fees.PercentMax, &r.Fees.PercentMax},
		{"fraud.new_account_max_amount", p.Fraud.NewAccountMaxAmount, &r.Fraud.NewAccountMaxAmount},
	}
	for _, a := range amounts {
		if *a.dest, err = parseAmount(a.field, a.raw); err != nil {
			return nil, err
		}
	}
	if !r.MinAmount.IsPositive() || r.MaxAmount.LessThan(r.MinAmount) {
		return nil, fmt.Errorf("policy: limits need 0 < min_amount <= max_amount")
	}
	if r.Fees.PercentMax.LessThan(r.Fees.PercentMin) {
		return nil, fmt.Errorf("policy: fees.percent_max is below fees.percent_min")
	}

	r.Fees.Flat = make(map[domain.TransactionType]decimal.Decimal, len(p.Fees.Flat))
	for name, raw := range p.Fees.Flat {
		txType := domain.TransactionType(name)
		if !txType.RequiresGateway() || txType == domain.TransactionTypeWithdrawal {
			return nil, fmt.Errorf("policy: no flat fee applies to %q", name)
		}
		fee, err := parseAmount("fees.flat."+name, raw)
		if err != nil {
			return nil, err
		}
		r.Fees.Flat[txType] = fee
	}

	r.Fraud.NewAccountAge = p.Fraud.NewAccountAge
	r.Fraud.VelocityWindow = p.Fraud.VelocityWindow
	r.Fraud.VelocityMax = p.Fraud.VelocityMax
	r.Fraud.SameTargetWindow = p.Fraud.SameTargetWindow
	r.Fraud.SameTargetMax = p.Fraud.SameTargetMax
	r.Fraud.RoundWindow = p.Fraud.RoundWindow
	r.Fraud.RoundMax = p.Fraud.RoundMax
	for i, raw := range p.Fraud.RoundAmounts {
		amount, err := parseAmount(fmt.Sprintf("fraud.round_amounts[%d]", i), raw)
		if err != nil {
			return nil, err
		}
		r.Fraud.RoundAmounts = append(r.Fraud.RoundAmounts, amount)
	}

	if p.PIN.MaxAttempts < 1 {
		return nil, fmt.Errorf("policy: pin.max_attempts must be at least 1")
	}
	r.PIN = security.PINConfig{
		MaxAttempts: p.PIN.MaxAttempts,
		Lockout:     p.PIN.Lockout,
		BcryptCost:  p.PIN.BcryptCost,
		DenyList:    p.PIN.DenyList,
	}
	return &r, nil
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("policy: invalid %s %q: %w", field, raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("policy: %s must not be negative", field)
	}
	return d, nil
}
