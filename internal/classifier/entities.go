// internal/classifier/entities.go
package classifier

import (
	"github.com/shopspring/decimal"

	"chatpay-wallet/internal/domain"
)

// Entities is the intent-specific payload of a Classification. Each intent
// has its own concrete type, so a handler only sees the fields its intent
// guarantees.
type Entities interface {
	intent() Intent
}

// NoEntities is carried by intents that need nothing from the message.
type NoEntities struct {
	Intent Intent
}

func (e NoEntities) intent() Intent { return e.Intent }

// TypoEntities carries the command the user probably meant.
type TypoEntities struct {
	Suggested string // canonical command, e.g. "show beneficiaries"
	Original  string
}

func (TypoEntities) intent() Intent { return IntentTypoDetected }

// SaveBeneficiaryEntities is the parsed form of "save <nickname> <value>".
// Complete is false when the message did not contain both parts.
type SaveBeneficiaryEntities struct {
	Nickname string
	Value    string
	Kind     domain.BeneficiaryKind
	Complete bool
}

func (SaveBeneficiaryEntities) intent() Intent { return IntentSaveBeneficiary }

// DeleteBeneficiaryEntities names the beneficiary to remove.
type DeleteBeneficiaryEntities struct {
	Nickname string
}

func (DeleteBeneficiaryEntities) intent() Intent { return IntentDeleteBeneficiary }

// AirtimeEntities are the slots of an airtime purchase.
type AirtimeEntities struct {
	Amount      decimal.NullDecimal
	Phone       string // normalized +27 handle
	Network     string
	Beneficiary *domain.Beneficiary // set when the target came from a saved beneficiary
}

func (AirtimeEntities) intent() Intent { return IntentBuyAirtime }

// DataEntities are the slots of a data bundle purchase.
type DataEntities struct {
	Amount      decimal.NullDecimal
	Phone       string
	Network     string
	Bundle      string // informational, e.g. "1gb"
	Beneficiary *domain.Beneficiary
}

func (DataEntities) intent() Intent { return IntentBuyData }

// ElectricityEntities are the slots of a prepaid electricity purchase.
type ElectricityEntities struct {
	Amount      decimal.NullDecimal
	Meter       string
	Beneficiary *domain.Beneficiary
}

func (ElectricityEntities) intent() Intent { return IntentBuyElectricity }

// BeneficiaryTransactionEntities is a payment to a saved beneficiary named in the message.
type BeneficiaryTransactionEntities struct {
	Beneficiary domain.Beneficiary
	Amount      decimal.NullDecimal
	Network     string // resolved for phone beneficiaries
}

func (BeneficiaryTransactionEntities) intent() Intent { return IntentBeneficiaryTransaction }
