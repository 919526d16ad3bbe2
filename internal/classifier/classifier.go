// internal/classifier/classifier.go

// Package classifier turns chat text into a deterministic intent with typed
// entities. It never decides amounts or targets on its own: a money intent
// with a missing slot gets no handler and the caller asks the user for it.
package classifier

import (
	"context"
	"regexp"
	"strings"

	"chatpay-wallet/internal/domain"
)

// Intent names a classified user request.
type Intent string

const (
	IntentTypoDetected           Intent = "typo_detected"
	IntentSaveBeneficiary        Intent = "save_beneficiary"
	IntentShowBeneficiaries      Intent = "show_beneficiaries"
	IntentDeleteBeneficiary      Intent = "delete_beneficiary"
	IntentCheckBalance           Intent = "check_balance"
	IntentAccountDetails         Intent = "account_details"
	IntentTransactionHistory     Intent = "transaction_history"
	IntentSetPIN                 Intent = "set_pin"
	IntentBuyAirtime             Intent = "buy_airtime"
	IntentBuyData                Intent = "buy_data"
	IntentBuyElectricity         Intent = "buy_electricity"
	IntentBeneficiaryTransaction Intent = "beneficiary_transaction"
	IntentGreeting               Intent = "greeting"
	IntentHelp                   Intent = "help"
	IntentUnclear                Intent = "unclear"
)

// Handler names for deterministic intents.
const (
	HandlerTypoConfirmation       = "handle_typo_confirmation"
	HandlerSaveBeneficiary        = "handle_save_beneficiary"
	HandlerShowBeneficiaries      = "handle_show_beneficiaries"
	HandlerDeleteBeneficiary      = "handle_delete_beneficiary"
	HandlerCheckBalance           = "handle_check_balance"
	HandlerAccountDetails         = "handle_account_details"
	HandlerTransactionHistory     = "handle_transaction_history"
	HandlerSetPIN                 = "handle_set_pin"
	HandlerBuyAirtime             = "handle_buy_airtime"
	HandlerBuyData                = "handle_buy_data"
	HandlerBuyElectricity         = "handle_buy_electricity"
	HandlerBeneficiaryTransaction = "handle_beneficiary_transaction"
	HandlerSendMenu               = "send_menu"
)

// Slot is a required entity that may be missing from a money intent.
type Slot string

const (
	SlotAmount  Slot = "amount"
	SlotPhone   Slot = "phone"
	SlotNetwork Slot = "network"
	SlotMeter   Slot = "meter"
	SlotTarget  Slot = "target"
)

// Classification is the outcome of classifying one message.
type Classification struct {
	Intent   Intent
	Entities Entities
	// Handler is empty when no deterministic handler may run yet.
	Handler string
	// Missing lists the unfilled slots of a money intent.
	Missing []Slot
	// RequiresGenerative is true only for greeting and unclear messages.
	RequiresGenerative bool
}

// BeneficiaryLookup lists an account's saved beneficiaries.
type BeneficiaryLookup interface {
	ListBeneficiaries(ctx context.Context, accountID int64) ([]domain.Beneficiary, error)
}

// LookupFunc adapts a function to BeneficiaryLookup.
type LookupFunc func(ctx context.Context, accountID int64) ([]domain.Beneficiary, error)

func (f LookupFunc) ListBeneficiaries(ctx context.Context, accountID int64) ([]domain.Beneficiary, error) {
	return f(ctx, accountID)
}

var (
	showKeywords    = []string{"show beneficiar", "list beneficiar", "my beneficiar", "saved contacts"}
	balanceKeywords = []string{"balance", "wallet", "how much money"}
	detailsKeywords = []string{"account details", "my details", "my account", "account info", "show my info"}
	historyKeywords = []string{"history", "transactions", "statement", "recent activity"}
	setPINKeywords  = []string{"set pin", "change pin", "reset pin", "new pin", "create pin"}
	airtimeKeywords = []string{"airtime", "recharge", "topup", "top up"}
	powerKeywords   = []string{"electricity", "power", "token", "eskom", "meter"}
	helpKeywords    = []string{"help", "what can", "commands", "options"}
	actionVerbs     = []string{"recharge", "buy", "pay", "send"}
	greetingWords   = map[string]bool{"hi": true, "hello": true, "hey": true, "start": true, "menu": true}

	dataRe        = regexp.MustCompile(`\b(data|bundles?|gigs?|gb|mb)\b|\d+\s*(gb|mb)\b`)
	savePrefixRe  = regexp.MustCompile(`(?i)^\s*save(\s+beneficiary)?\s+`)
	saveFillerRe  = regexp.MustCompile(`(?i)\s+(number|meter)\s+`)
	deletePrefix  = regexp.MustCompile(`(?i)^\s*(delete|remove)\s+(beneficiary\s+)?`)
	wordSplitter  = regexp.MustCompile(`[^a-z0-9']+`)
	localNumberRe = regexp.MustCompile(`^(\+27|0)\d{9}$`)
	meterValueRe  = regexp.MustCompile(`^\d{11}$`)
)

// Classify runs the first-match-wins pipeline over text. Beneficiaries are
// only looked up when a rule needs them; the only error is a failed lookup.
func Classify(ctx context.Context, text string, accountID int64, lookup BeneficiaryLookup) (Classification, error) {
	msg := strings.ToLower(strings.TrimSpace(text))

	if suggested, ok := suggestCorrection(msg); ok {
		return Classification{
			Intent:   IntentTypoDetected,
			Entities: TypoEntities{Suggested: suggested, Original: text},
			Handler:  HandlerTypoConfirmation,
		}, nil
	}

	if strings.HasPrefix(msg, "save ") || strings.Contains(msg, "save beneficiar") {
		return Classification{
			Intent:   IntentSaveBeneficiary,
			Entities: ParseSaveBeneficiary(text),
			Handler:  HandlerSaveBeneficiary,
		}, nil
	}
	if containsAny(msg, showKeywords...) {
		return simple(IntentShowBeneficiaries, HandlerShowBeneficiaries), nil
	}
	if strings.HasPrefix(msg, "delete ") || strings.HasPrefix(msg, "remove ") {
		return Classification{
			Intent:   IntentDeleteBeneficiary,
			Entities: DeleteBeneficiaryEntities{Nickname: ParseDeleteBeneficiary(text)},
			Handler:  HandlerDeleteBeneficiary,
		}, nil
	}

	switch {
	case containsAny(msg, balanceKeywords...):
		return simple(IntentCheckBalance, HandlerCheckBalance), nil
	case containsAny(msg, detailsKeywords...):
		return simple(IntentAccountDetails, HandlerAccountDetails), nil
	case containsAny(msg, historyKeywords...):
		return simple(IntentTransactionHistory, HandlerTransactionHistory), nil
	case containsAny(msg, setPINKeywords...):
		return simple(IntentSetPIN, HandlerSetPIN), nil
	}

	var beneficiaries []domain.Beneficiary
	loaded := false
	loadBeneficiaries := func() ([]domain.Beneficiary, error) {
		if loaded || lookup == nil {
			return beneficiaries, nil
		}
		var err error
		beneficiaries, err = lookup.ListBeneficiaries(ctx, accountID)
		loaded = err == nil
		return beneficiaries, err
	}

	switch {
	case containsAny(msg, airtimeKeywords...):
		return classifyAirtime(msg, loadBeneficiaries)
	case dataRe.MatchString(msg):
		return classifyData(msg, loadBeneficiaries)
	case containsAny(msg, powerKeywords...):
		return classifyElectricity(msg, loadBeneficiaries)
	}

	if containsAny(msg, actionVerbs...) {
		list, err := loadBeneficiaries()
		if err != nil {
			return Classification{}, err
		}
		if b := mentioned(msg, list, ""); b != nil {
			return classifyBeneficiaryTransaction(msg, *b), nil
		}
	}

	for _, w := range wordSplitter.Split(msg, -1) {
		if greetingWords[w] {
			return Classification{
				Intent:             IntentGreeting,
				Entities:           NoEntities{Intent: IntentGreeting},
				RequiresGenerative: true,
			}, nil
		}
	}
	if containsAny(msg, helpKeywords...) {
		return simple(IntentHelp, HandlerSendMenu), nil
	}

	return Classification{
		Intent:             IntentUnclear,
		Entities:           NoEntities{Intent: IntentUnclear},
		RequiresGenerative: true,
	}, nil
}

func simple(intent Intent, handler string) Classification {
	return Classification{Intent: intent, Entities: NoEntities{Intent: intent}, Handler: handler}
}

func classifyAirtime(msg string, load func() ([]domain.Beneficiary, error)) (Classification, error) {
	e := AirtimeEntities{
		Amount:  ExtractAmount(msg),
		Phone:   ExtractPhone(msg),
		Network: ExtractNetwork(msg),
	}
	if e.Phone == "" {
		list, err := load()
		if err != nil {
			return Classification{}, err
		}
		if b := mentioned(msg, list, domain.BeneficiaryKindPhone); b != nil {
			e.Phone, e.Beneficiary = b.Value, b
			if e.Network == "" {
				e.Network = b.NetworkName()
			}
		}
	}
	if e.Network == "" && e.Phone != "" {
		e.Network = InferNetwork(e.Phone)
	}

	c := Classification{Intent: IntentBuyAirtime, Entities: e}
	c.Missing = missingPhoneSlots(e.Amount.Valid, e.Phone, e.Network)
	if len(c.Missing) == 0 {
		c.Handler = HandlerBuyAirtime
	}
	return c, nil
}

func classifyData(msg string, load func() ([]domain.Beneficiary, error)) (Classification, error) {
	e := DataEntities{
		Amount:  ExtractAmount(msg),
		Phone:   ExtractPhone(msg),
		Network: ExtractNetwork(msg),
		Bundle:  ExtractBundle(msg),
	}
	if e.Phone == "" {
		list, err := load()
		if err != nil {
			return Classification{}, err
		}
		if b := mentioned(msg, list, domain.BeneficiaryKindPhone); b != nil {
			e.Phone, e.Beneficiary = b.Value, b
			if e.Network == "" {
				e.Network = b.NetworkName()
			}
		}
	}
	if e.Network == "" && e.Phone != "" {
		e.Network = InferNetwork(e.Phone)
	}

	c := Classification{Intent: IntentBuyData, Entities: e}
	c.Missing = missingPhoneSlots(e.Amount.Valid, e.Phone, e.Network)
	if len(c.Missing) == 0 {
		c.Handler = HandlerBuyData
	}
	return c, nil
}

func classifyElectricity(msg string, load func() ([]domain.Beneficiary, error)) (Classification, error) {
	e := ElectricityEntities{
		Amount: ExtractAmount(msg),
		Meter:  ExtractMeter(msg),
	}
	if e.Meter == "" {
		list, err := load()
		if err != nil {
			return Classification{}, err
		}
		if b := mentioned(msg, list, domain.BeneficiaryKindMeter); b != nil {
			e.Meter, e.Beneficiary = b.Value, b
		}
	}

	c := Classification{Intent: IntentBuyElectricity, Entities: e}
	if !e.Amount.Valid {
		c.Missing = append(c.Missing, SlotAmount)
	}
	if e.Meter == "" {
		c.Missing = append(c.Missing, SlotMeter)
	}
	if len(c.Missing) == 0 {
		c.Handler = HandlerBuyElectricity
	}
	return c, nil
}

func classifyBeneficiaryTransaction(msg string, b domain.Beneficiary) Classification {
	e := BeneficiaryTransactionEntities{Beneficiary: b, Amount: ExtractAmount(msg)}
	c := Classification{Intent: IntentBeneficiaryTransaction, Entities: e}
	if b.Kind == domain.BeneficiaryKindPhone {
		e.Network = ExtractNetwork(msg)
		if e.Network == "" {
			e.Network = b.NetworkName()
		}
		if e.Network == "" {
			e.Network = InferNetwork(b.Value)
		}
		c.Entities = e
		if e.Network == "" {
			c.Missing = append(c.Missing, SlotNetwork)
		}
	}
	if !e.Amount.Valid {
		c.Missing = append([]Slot{SlotAmount}, c.Missing...)
	}
	if len(c.Missing) == 0 {
		c.Handler = HandlerBeneficiaryTransaction
	}
	return c
}

func missingPhoneSlots(hasAmount bool, phone, network string) []Slot {
	var missing []Slot
	if !hasAmount {
		missing = append(missing, SlotAmount)
	}
	if phone == "" {
		missing = append(missing, SlotPhone)
	}
	if network == "" {
		missing = append(missing, SlotNetwork)
	}
	return missing
}

// mentioned returns the first beneficiary whose nickname appears in msg,
// optionally restricted to one kind.
func mentioned(msg string, list []domain.Beneficiary, kind domain.BeneficiaryKind) *domain.Beneficiary {
	for i := range list {
		b := &list[i]
		if kind != "" && b.Kind != kind {
			continue
		}
		if b.Nickname != "" && strings.Contains(msg, strings.ToLower(b.Nickname)) {
			return b
		}
	}
	return nil
}

// ParseSaveBeneficiary parses "save [beneficiary] <nickname> [number|meter] <value>".
// The last word is the value and everything before it the nickname.
func ParseSaveBeneficiary(text string) SaveBeneficiaryEntities {
	rest := savePrefixRe.ReplaceAllString(strings.TrimSpace(text), "")
	rest = saveFillerRe.ReplaceAllString(" "+rest+" ", " ")
	parts := strings.Fields(rest)
	if len(parts) < 2 {
		return SaveBeneficiaryEntities{}
	}

	value := parts[len(parts)-1]
	e := SaveBeneficiaryEntities{
		Nickname: strings.Join(parts[:len(parts)-1], " "),
		Value:    value,
		Kind:     domain.BeneficiaryKindAccount,
		Complete: true,
	}
	switch {
	case meterValueRe.MatchString(value):
		e.Kind = domain.BeneficiaryKindMeter
	case localNumberRe.MatchString(value):
		e.Kind = domain.BeneficiaryKindPhone
		if phone := ExtractPhone(value); phone != "" {
			e.Value = phone
		}
	}
	return e
}

// ParseDeleteBeneficiary returns the nickname of a "delete <nickname>" command.
func ParseDeleteBeneficiary(text string) string {
	return strings.TrimSpace(deletePrefix.ReplaceAllString(strings.TrimSpace(text), ""))
}
