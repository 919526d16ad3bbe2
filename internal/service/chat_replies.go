// internal/service/chat_replies.go
package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"chatpay-wallet/internal/classifier"
	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/security"

	"github.com/shopspring/decimal"
)

// Fixed chat replies.
const (
	ApologyReply       = "Sorry, something went wrong. Please try again later. 😅"
	TypoDeclinedReply  = "Got it! What would you like to do?"
	CancelledReply     = "❌ Transaction cancelled. Let me know if you need anything else!"
	NewPINPrompt       = "🔐 Reply with a new 4-6 digit PIN.\n\nAvoid simple PINs like 1234 or 0000."
	CurrentPINPrompt   = "🔐 Reply with your current PIN to continue, or *cancel*"
	PINDigitsReply     = "Your PIN is 4-6 digits. Reply with your PIN, or *cancel*"
	NoPINReply         = "🔐 You need a PIN before making transactions. Reply 'SET PIN' to create one"
	ExpiredActionReply = "That request has expired. Please start again."
	SaveUsageReply     = "Please use format:\n• save [name] [number]\n\nExamples:\n• save thabo 0821234567\n• save home meter 12345678901\n• save mom number 0827654321"
	DeleteUsageReply   = "Please specify which beneficiary to delete.\n\nExample: delete thabo"
	MenuPrompt         = "How can I help you today?"
)

var menuPrompts = map[string]string{
	"airtime":     "📱 *Buy Airtime*\n\nTell me:\n• Phone number\n• Amount\n• Network (optional)\n\nExample: \"Buy R50 MTN airtime for 0821234567\"",
	"data":        "📊 *Buy Data*\n\nTell me:\n• Phone number\n• Amount\n• Network\n\nExample: \"Buy R49 Vodacom data for 0821234567\"",
	"electricity": "⚡ *Recharge Meter*\n\nTell me:\n• Meter number (11 digits)\n• Amount\n\nExample: \"Pay R100 electricity for meter 12345678901\"",
}

func menuButtons() []Button {
	return []Button{
		{ID: "airtime", Title: "📱 Buy Airtime"},
		{ID: "data", Title: "📊 Buy Data"},
		{ID: "electricity", Title: "⚡ Recharge Meter"},
	}
}

func networkButtons() []Button {
	return []Button{
		{ID: "mtn", Title: "MTN"},
		{ID: "vodacom", Title: "Vodacom"},
		{ID: "cell_c", Title: "Cell C"},
	}
}

func menuReply() *Outbound {
	return &Outbound{Text: MenuPrompt, Buttons: menuButtons()}
}

// menuPrompt answers a tap on one of the menu buttons.
func menuPrompt(id string) (*Outbound, bool) {
	text, ok := menuPrompts[id]
	if !ok {
		return nil, false
	}
	return &Outbound{Text: text}, true
}

func welcomeReply(account *domain.Account) *Outbound {
	name := account.DisplayName
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("Hey %s! 👋 I'm Cyrax, your wallet assistant. I can buy airtime, data and electricity, and remember the numbers you pay often. 😊\n\n"+
		"To keep your account secure, please lock your WhatsApp. 🔒\n\n"+
		"Your account is pending verification. Once it is active you can start transacting.", name)
	return &Outbound{Text: text, Buttons: menuButtons(), Intent: "welcome"}
}

func typoReply(suggested string) *Outbound {
	return &Outbound{
		Text: fmt.Sprintf("Did you mean: *%s*?", titleCase(suggested)),
		Buttons: []Button{
			{ID: "confirm_" + strings.ReplaceAll(suggested, " ", "_"), Title: "✅ Yes"},
			{ID: "cancel_typo", Title: "❌ No"},
		},
		Intent: string(classifier.IntentTypoDetected),
	}
}

// missingSlotReply asks for the first missing piece of a money request.
func missingSlotReply(c classifier.Classification) *Outbound {
	missing := make(map[classifier.Slot]bool, len(c.Missing))
	for _, slot := range c.Missing {
		missing[slot] = true
	}

	switch e := c.Entities.(type) {
	case classifier.AirtimeEntities:
		return phoneSlotReply(missing, "airtime", e.Network, "Example: R20 MTN", "Example: R20, R50, R100")
	case classifier.DataEntities:
		return phoneSlotReply(missing, "data", e.Network, "Example: R49 Vodacom", "Example: R29, R49, R99")
	case classifier.ElectricityEntities:
		if missing[classifier.SlotMeter] {
			return &Outbound{Text: "Which meter number?\n\nExample: 12345678901"}
		}
		return &Outbound{Text: "How much electricity?\n\nExample: R50, R100, R200"}
	case classifier.BeneficiaryTransactionEntities:
		if missing[classifier.SlotAmount] {
			return &Outbound{Text: fmt.Sprintf("How much for %s?\n\nExample: R50, R100, R200", e.Beneficiary.Nickname)}
		}
		return &Outbound{Text: "Which network?", Buttons: networkButtons()}
	}
	return menuReply()
}

func phoneSlotReply(missing map[classifier.Slot]bool, product, network, bothExample, amountExample string) *Outbound {
	switch {
	case missing[classifier.SlotNetwork] && missing[classifier.SlotAmount]:
		return &Outbound{Text: fmt.Sprintf("Which network and how much %s?\n\n%s", product, bothExample)}
	case missing[classifier.SlotPhone]:
		return &Outbound{Text: "For which number?\n\nExample: 0821234567"}
	case missing[classifier.SlotAmount]:
		return &Outbound{Text: fmt.Sprintf("How much %s %s?\n\n%s", networkTitle(network), product, amountExample)}
	default:
		return &Outbound{Text: "Which network?", Buttons: networkButtons()}
	}
}

func confirmReply(a pendingAction, fee, total decimal.Decimal) *Outbound {
	var b strings.Builder
	switch a.Type {
	case domain.TransactionTypeAirtime, domain.TransactionTypeData:
		fmt.Fprintf(&b, "📱 *Confirm %s Purchase*\n\n", titleCase(string(a.Type)))
		if a.Label != "" {
			fmt.Fprintf(&b, "• For: %s\n", a.Label)
		}
		fmt.Fprintf(&b, "• Network: %s\n• Phone: %s\n", networkTitle(a.Network), security.LocalFormat(a.Target))
		if a.Bundle != "" {
			fmt.Fprintf(&b, "• Bundle: %s\n", strings.ToUpper(a.Bundle))
		}
	case domain.TransactionTypeElectricity:
		b.WriteString("⚡ *Confirm Electricity Purchase*\n\n")
		if a.Label != "" {
			fmt.Fprintf(&b, "• For: %s\n", a.Label)
		}
		fmt.Fprintf(&b, "• Meter: %s\n", a.Target)
	default:
		fmt.Fprintf(&b, "💳 *Confirm Payment*\n\n• For: %s\n• Account: %s\n", a.Label, a.Target)
	}
	fmt.Fprintf(&b, "• Amount: %s\n• Fee: %s\n• Total: %s\n\nReply with your PIN to confirm, or *cancel*", rands(a.Amount), rands(fee), rands(total))

	return &Outbound{
		Text:    b.String(),
		Buttons: []Button{{ID: "cancel", Title: "❌ Cancel"}},
		Intent:  "confirm_" + string(a.Type),
	}
}

func resultReply(r *Result) *Outbound {
	if !r.Success {
		return &Outbound{Text: "❌ " + r.Message}
	}
	text := "✅ " + r.Message
	if tx := r.Transaction; tx != nil {
		text += "\n\nReference: " + tx.Reference
		if tx.BalanceAfter != nil {
			text += "\nNew balance: " + rands(*tx.BalanceAfter)
		}
	}
	return &Outbound{Text: text}
}

func lockedReply(account *domain.Account, now time.Time) string {
	minutes := int(math.Ceil(account.PINLockedUntil.Sub(now).Minutes()))
	return fmt.Sprintf("🔒 PIN locked. Try again in %d minutes", minutes)
}

func balanceReply(summary *BalanceSummary) string {
	return fmt.Sprintf("💰 *Wallet Balance*\n\nCurrent balance: %s\nAvailable today: %s",
		rands(summary.Balance), rands(summary.DailyRemaining))
}

func accountDetailsReply(account *domain.Account) string {
	var b strings.Builder
	b.WriteString("📋 *Account Details*\n\n")
	fmt.Fprintf(&b, "Name: %s\n", account.Name())
	fmt.Fprintf(&b, "Phone: %s\n", security.LocalFormat(account.Handle))
	fmt.Fprintf(&b, "Balance: %s\n", rands(account.Balance))
	fmt.Fprintf(&b, "Status: %s\n", account.Status)
	if account.Verified {
		b.WriteString("✅ Verified")
	} else {
		b.WriteString("⚠️ Not verified")
	}
	return b.String()
}

func historyReply(txs []domain.Transaction) string {
	if len(txs) == 0 {
		return "📜 No transactions yet."
	}
	var b strings.Builder
	b.WriteString("📜 *Recent Transactions*\n")
	for i := range txs {
		tx := &txs[i]
		fmt.Fprintf(&b, "\n%s %s %s", statusIcon(tx.Status), titleCase(string(tx.Type)), rands(tx.Amount))
		if cp := tx.CounterpartyValue(); cp != "" {
			fmt.Fprintf(&b, " · %s", security.LocalFormat(cp))
		}
		fmt.Fprintf(&b, "\n   %s · %s", tx.Reference, tx.CreatedAt.Format("02 Jan 15:04"))
	}
	return b.String()
}

func statusIcon(status domain.TransactionStatus) string {
	switch status {
	case domain.TransactionStatusCompleted:
		return "✅"
	case domain.TransactionStatusFailed:
		return "❌"
	default:
		return "⏳"
	}
}

func networkTitle(network string) string {
	switch network {
	case classifier.NetworkMTN:
		return "MTN"
	case "":
		return ""
	default:
		return titleCase(network)
	}
}

// titleCase upper-cases the first letter of every word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
