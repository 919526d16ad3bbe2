// internal/service/chat_service.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatpay-wallet/internal/assistant"
	"chatpay-wallet/internal/classifier"
	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/repository"
	"chatpay-wallet/internal/security"
	"chatpay-wallet/internal/util"
	"chatpay-wallet/internal/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Button is a quick-reply button offered with a reply.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Inbound is a normalized chat message. ButtonID is set when the user tapped
// a quick-reply button and takes precedence over Text.
type Inbound struct {
	Handle   string
	Name     string
	Text     string
	ButtonID string
}

// Outbound is the reply to one inbound message.
type Outbound struct {
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons,omitempty"`
	Intent  string   `json:"intent,omitempty"`
}

// PINManager verifies and sets account PINs.
type PINManager interface {
	SetPIN(ctx context.Context, accountID int64, pin string) (*security.PINResult, error)
	VerifyPIN(ctx context.Context, accountID int64, pin string) (*security.PINResult, error)
}

// ChatConfig holds the conversational settings.
type ChatConfig struct {
	AssistantTimeout time.Duration
	HistoryTurns     int
	QuoteTTL         time.Duration
}

// DefaultChatConfig returns a 10s assistant timeout, five turns of history and
// quotes that stay open for 10 minutes.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{AssistantTimeout: 10 * time.Second, HistoryTurns: assistant.MaxHistory, QuoteTTL: 10 * time.Minute}
}

// ChatService turns inbound chat messages into replies. Money only moves
// through deterministic handlers after PIN confirmation; generative replies
// are filtered and never act.
type ChatService interface {
	HandleMessage(ctx context.Context, in Inbound) (*Outbound, error)
}

type chatService struct {
	dbExecutor    repository.DBExecutor
	accounts      AccountService
	ledger        LedgerService
	beneficiaries BeneficiaryService
	pins          PINManager
	conversations repository.ConversationRepository
	assistant     assistant.Assistant
	validator     *validator.Validator
	cfg           ChatConfig
	logger        *slog.Logger
	now           func() time.Time
}

// NewChatService creates a ChatService.
func NewChatService(
	dbExecutor repository.DBExecutor,
	accounts AccountService,
	ledger LedgerService,
	beneficiaries BeneficiaryService,
	pins PINManager,
	conversations repository.ConversationRepository,
	asst assistant.Assistant,
	v *validator.Validator,
	cfg ChatConfig,
	logger *slog.Logger,
) ChatService {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = assistant.MaxHistory
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = DefaultChatConfig().QuoteTTL
	}
	return &chatService{
		dbExecutor:    dbExecutor,
		accounts:      accounts,
		ledger:        ledger,
		beneficiaries: beneficiaries,
		pins:          pins,
		conversations: conversations,
		assistant:     asst,
		validator:     v,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

// pendingAction is a quoted debit waiting for PIN confirmation. It is
// persisted in the conversation state so it survives a restart.
type pendingAction struct {
	Type           domain.TransactionType `json:"type"`
	Amount         decimal.Decimal        `json:"amount"`
	Target         string                 `json:"target"`
	Network        string                 `json:"network,omitempty"`
	Bundle         string                 `json:"bundle,omitempty"`
	Label          string                 `json:"label,omitempty"` // beneficiary nickname
	BeneficiaryID  *int64                 `json:"beneficiary_id,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key"`
	QuotedAt       time.Time              `json:"quoted_at"`
}

type typoPayload struct {
	Suggested string `json:"suggested"`
}

type detailsPayload struct {
	Text string `json:"text"`
}

// HandleMessage processes one inbound message. Only an invalid handle is
// returned as an error; anything else unexpected becomes an apology reply.
func (s *chatService) HandleMessage(ctx context.Context, in Inbound) (*Outbound, error) {
	account, created, err := s.accounts.GetOrCreate(ctx, in.Handle, in.Name)
	if err != nil {
		if util.IsError(err, util.ErrInvalidInput) {
			return nil, err
		}
		s.logger.Error("failed to load account", "handle", security.MaskHandle(in.Handle), "error", err)
		return &Outbound{Text: ApologyReply}, nil
	}

	text := strings.TrimSpace(in.Text)
	if in.ButtonID != "" {
		text = in.ButtonID
	}

	state, err := s.loadState(ctx, account.ID)
	if err != nil {
		s.logger.Error("failed to load conversation state", "account_id", account.ID, "error", err)
		return &Outbound{Text: ApologyReply}, nil
	}

	logged := text
	switch state.State {
	case domain.StateAwaitingPIN, domain.StateAwaitingCurrentPIN, domain.StateAwaitingNewPIN:
		logged = "[PIN]"
	}
	s.logMessage(ctx, account.ID, domain.DirectionInbound, logged, "")

	var out *Outbound
	if created {
		out = welcomeReply(account)
	} else {
		out, err = s.respond(ctx, account, state, text, in.ButtonID != "")
		if err != nil {
			s.logger.Error("message processing failed", "account_id", account.ID, "error", err)
			out = &Outbound{Text: ApologyReply}
		}
	}

	s.logMessage(ctx, account.ID, domain.DirectionOutbound, out.Text, out.Intent)
	return out, nil
}

func (s *chatService) respond(ctx context.Context, account *domain.Account, state *domain.ConversationState, text string, button bool) (*Outbound, error) {
	lower := strings.ToLower(text)

	switch state.State {
	case domain.StateAwaitingPIN:
		return s.confirmPending(ctx, account, state, text)
	case domain.StateAwaitingCurrentPIN:
		return s.verifyCurrentPIN(ctx, account, text)
	case domain.StateAwaitingNewPIN:
		return s.completeSetPIN(ctx, account, text)
	case domain.StateAwaitingTypoConfirmation:
		if err := s.clearState(ctx, account.ID); err != nil {
			return nil, err
		}
		var p typoPayload
		if lower == "yes" && json.Unmarshal([]byte(state.Payload), &p) == nil && p.Suggested != "" {
			text = p.Suggested
		} else if lower == "no" {
			return &Outbound{Text: TypoDeclinedReply}, nil
		}
	case domain.StateAwaitingDetails:
		if isCancel(lower) {
			if err := s.clearState(ctx, account.ID); err != nil {
				return nil, err
			}
			return &Outbound{Text: CancelledReply}, nil
		}
		merged, err := s.mergeDetails(ctx, account.ID, state, text)
		if err != nil {
			return nil, err
		}
		text = merged
	}

	switch {
	case strings.HasPrefix(lower, "confirm_"):
		text = strings.ReplaceAll(strings.TrimPrefix(lower, "confirm_"), "_", " ")
	case lower == "cancel_typo":
		return &Outbound{Text: TypoDeclinedReply}, nil
	case button:
		if out, ok := menuPrompt(lower); ok {
			return out, nil
		}
	}

	c, err := classifier.Classify(ctx, text, account.ID, s.beneficiaries)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	s.logger.Info("intent classified", "account_id", account.ID, "intent", c.Intent, "handler", c.Handler)

	out, err := s.dispatch(ctx, account, c, text)
	if err != nil {
		return nil, err
	}
	if out.Intent == "" {
		out.Intent = string(c.Intent)
	}
	return out, nil
}

// mergeDetails combines a follow-up with the stored incomplete request. A
// follow-up that stands as a command on its own replaces the old request.
func (s *chatService) mergeDetails(ctx context.Context, accountID int64, state *domain.ConversationState, text string) (string, error) {
	if err := s.clearState(ctx, accountID); err != nil {
		return "", err
	}
	var p detailsPayload
	if json.Unmarshal([]byte(state.Payload), &p) != nil || p.Text == "" {
		return text, nil
	}

	alone, err := classifier.Classify(ctx, text, accountID, s.beneficiaries)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	if alone.Intent != classifier.IntentUnclear {
		return text, nil
	}
	return p.Text + " " + strings.ReplaceAll(text, "_", " "), nil
}

func (s *chatService) dispatch(ctx context.Context, account *domain.Account, c classifier.Classification, text string) (*Outbound, error) {
	if c.RequiresGenerative {
		return s.converse(ctx, account, text, c.Intent)
	}
	if c.Handler == "" {
		return s.askForDetails(ctx, account.ID, c, text)
	}

	switch e := c.Entities.(type) {
	case classifier.TypoEntities:
		return s.askTypoConfirmation(ctx, account.ID, e.Suggested)
	case classifier.SaveBeneficiaryEntities:
		if !e.Complete {
			return &Outbound{Text: SaveUsageReply}, nil
		}
		_, msg, err := s.beneficiaries.Save(ctx, account.ID, e.Nickname, e.Kind, e.Value)
		if err != nil {
			return nil, err
		}
		return &Outbound{Text: msg}, nil
	case classifier.DeleteBeneficiaryEntities:
		if e.Nickname == "" {
			return &Outbound{Text: DeleteUsageReply}, nil
		}
		msg, err := s.beneficiaries.Delete(ctx, account.ID, e.Nickname)
		if err != nil {
			return nil, err
		}
		return &Outbound{Text: msg}, nil
	case classifier.AirtimeEntities:
		return s.quote(ctx, account, pendingAction{
			Type: domain.TransactionTypeAirtime, Amount: e.Amount.Decimal, Target: e.Phone, Network: e.Network,
			Label: nickname(e.Beneficiary), BeneficiaryID: beneficiaryID(e.Beneficiary),
		})
	case classifier.DataEntities:
		return s.quote(ctx, account, pendingAction{
			Type: domain.TransactionTypeData, Amount: e.Amount.Decimal, Target: e.Phone, Network: e.Network, Bundle: e.Bundle,
			Label: nickname(e.Beneficiary), BeneficiaryID: beneficiaryID(e.Beneficiary),
		})
	case classifier.ElectricityEntities:
		return s.quote(ctx, account, pendingAction{
			Type: domain.TransactionTypeElectricity, Amount: e.Amount.Decimal, Target: e.Meter,
			Label: nickname(e.Beneficiary), BeneficiaryID: beneficiaryID(e.Beneficiary),
		})
	case classifier.BeneficiaryTransactionEntities:
		return s.quote(ctx, account, beneficiaryAction(e))
	}

	switch c.Handler {
	case classifier.HandlerShowBeneficiaries:
		list, err := s.beneficiaries.List(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		return &Outbound{Text: FormatBeneficiaryList(list)}, nil
	case classifier.HandlerCheckBalance:
		summary, err := s.ledger.GetBalance(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		return &Outbound{Text: balanceReply(summary)}, nil
	case classifier.HandlerAccountDetails:
		return &Outbound{Text: accountDetailsReply(account)}, nil
	case classifier.HandlerTransactionHistory:
		txs, _, err := s.ledger.GetTransactionHistory(ctx, account.ID, 5, 0)
		if err != nil {
			return nil, err
		}
		return &Outbound{Text: historyReply(txs)}, nil
	case classifier.HandlerSetPIN:
		return s.startSetPIN(ctx, account)
	case classifier.HandlerSendMenu:
		return menuReply(), nil
	}

	s.logger.Warn("no handler for classification", "intent", c.Intent, "handler", c.Handler)
	return menuReply(), nil
}

func (s *chatService) askTypoConfirmation(ctx context.Context, accountID int64, suggested string) (*Outbound, error) {
	if err := s.saveState(ctx, accountID, domain.StateAwaitingTypoConfirmation, typoPayload{Suggested: suggested}); err != nil {
		return nil, err
	}
	return typoReply(suggested), nil
}

// askForDetails prompts for the first missing slot and remembers the request.
func (s *chatService) askForDetails(ctx context.Context, accountID int64, c classifier.Classification, text string) (*Outbound, error) {
	if err := s.saveState(ctx, accountID, domain.StateAwaitingDetails, detailsPayload{Text: text}); err != nil {
		return nil, err
	}
	return missingSlotReply(c), nil
}

// quote prices a complete money request and asks for the PIN. Rejections
// that would happen anyway are reported before the PIN is requested.
func (s *chatService) quote(ctx context.Context, account *domain.Account, action pendingAction) (*Outbound, error) {
	r, err := s.ledger.Precheck(ctx, account.ID, action.Type, action.Amount)
	if err != nil {
		return nil, err
	}
	if r != nil {
		return &Outbound{Text: "❌ " + r.Message}, nil
	}

	switch security.Status(account, s.now()) {
	case security.PINStateNoPIN:
		return &Outbound{Text: NoPINReply, Buttons: []Button{{ID: "set pin", Title: "🔐 Set PIN"}}}, nil
	case security.PINStateLocked:
		return &Outbound{Text: lockedReply(account, s.now())}, nil
	}

	action.IdempotencyKey = uuid.NewString()
	action.QuotedAt = s.now().UTC()
	if err := s.saveState(ctx, account.ID, domain.StateAwaitingPIN, action); err != nil {
		return nil, err
	}
	fee, total := s.ledger.Quote(action.Type, action.Amount)
	return confirmReply(action, fee, total), nil
}

// confirmPending verifies the PIN for the stored action and executes it.
func (s *chatService) confirmPending(ctx context.Context, account *domain.Account, state *domain.ConversationState, text string) (*Outbound, error) {
	if isCancel(strings.ToLower(text)) {
		if err := s.clearState(ctx, account.ID); err != nil {
			return nil, err
		}
		return &Outbound{Text: CancelledReply}, nil
	}

	var action pendingAction
	if err := json.Unmarshal([]byte(state.Payload), &action); err != nil {
		s.logger.Warn("discarding unreadable pending action", "account_id", account.ID, "error", err)
		if err := s.clearState(ctx, account.ID); err != nil {
			return nil, err
		}
		return &Outbound{Text: ExpiredActionReply}, nil
	}
	if s.now().Sub(action.QuotedAt) > s.cfg.QuoteTTL {
		if err := s.clearState(ctx, account.ID); err != nil {
			return nil, err
		}
		return &Outbound{Text: ExpiredActionReply}, nil
	}
	if !looksLikePIN(text) {
		return &Outbound{Text: PINDigitsReply}, nil
	}

	res, err := s.pins.VerifyPIN(ctx, account.ID, text)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		if res.Locked || !account.HasPIN() {
			if err := s.clearState(ctx, account.ID); err != nil {
				return nil, err
			}
			return &Outbound{Text: "🔒 " + res.Message}, nil
		}
		return &Outbound{Text: "❌ " + res.Message + "\n\nReply with your PIN to confirm, or *cancel*"}, nil
	}

	if err := s.clearState(ctx, account.ID); err != nil {
		return nil, err
	}
	result, err := s.execute(ctx, account.ID, action)
	if err != nil {
		return nil, err
	}
	return resultReply(result), nil
}

func (s *chatService) execute(ctx context.Context, accountID int64, a pendingAction) (*Result, error) {
	req := PurchaseRequest{
		AccountID:      accountID,
		Amount:         a.Amount,
		Target:         a.Target,
		Network:        a.Network,
		Bundle:         a.Bundle,
		BeneficiaryID:  a.BeneficiaryID,
		IdempotencyKey: a.IdempotencyKey,
	}
	switch a.Type {
	case domain.TransactionTypeAirtime:
		return s.ledger.BuyAirtime(ctx, req)
	case domain.TransactionTypeData:
		return s.ledger.BuyData(ctx, req)
	case domain.TransactionTypeElectricity:
		return s.ledger.BuyElectricity(ctx, req)
	case domain.TransactionTypeBill:
		req.Provider = a.Label
		return s.ledger.PayBill(ctx, req)
	}
	return nil, fmt.Errorf("execute pending action: unsupported type %q", a.Type)
}

// startSetPIN begins PIN setup. Replacing an existing PIN needs the current
// one first, and is refused while the PIN is locked.
func (s *chatService) startSetPIN(ctx context.Context, account *domain.Account) (*Outbound, error) {
	switch security.Status(account, s.now()) {
	case security.PINStateNoPIN:
		if err := s.saveState(ctx, account.ID, domain.StateAwaitingNewPIN, nil); err != nil {
			return nil, err
		}
		return &Outbound{Text: NewPINPrompt}, nil
	case security.PINStateLocked:
		return &Outbound{Text: lockedReply(account, s.now())}, nil
	}
	if err := s.saveState(ctx, account.ID, domain.StateAwaitingCurrentPIN, nil); err != nil {
		return nil, err
	}
	return &Outbound{Text: CurrentPINPrompt}, nil
}

// verifyCurrentPIN checks the old PIN during a PIN change. A wrong PIN counts
// against the same attempt limit as a payment confirmation.
func (s *chatService) verifyCurrentPIN(ctx context.Context, account *domain.Account, text string) (*Outbound, error) {
	if isCancel(strings.ToLower(text)) {
		if err := s.clearState(ctx, account.ID); err != nil {
			return nil, err
		}
		return &Outbound{Text: CancelledReply}, nil
	}
	if !looksLikePIN(text) {
		return &Outbound{Text: PINDigitsReply}, nil
	}

	res, err := s.pins.VerifyPIN(ctx, account.ID, text)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		if res.Locked || !account.HasPIN() {
			if err := s.clearState(ctx, account.ID); err != nil {
				return nil, err
			}
			return &Outbound{Text: "🔒 " + res.Message}, nil
		}
		return &Outbound{Text: "❌ " + res.Message + "\n\n" + CurrentPINPrompt}, nil
	}

	if err := s.saveState(ctx, account.ID, domain.StateAwaitingNewPIN, nil); err != nil {
		return nil, err
	}
	return &Outbound{Text: NewPINPrompt}, nil
}

func (s *chatService) completeSetPIN(ctx context.Context, account *domain.Account, text string) (*Outbound, error) {
	if isCancel(strings.ToLower(text)) {
		if err := s.clearState(ctx, account.ID); err != nil {
			return nil, err
		}
		return &Outbound{Text: CancelledReply}, nil
	}
	if security.Status(account, s.now()) == security.PINStateLocked {
		if err := s.clearState(ctx, account.ID); err != nil {
			return nil, err
		}
		return &Outbound{Text: lockedReply(account, s.now())}, nil
	}
	res, err := s.pins.SetPIN(ctx, account.ID, text)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return &Outbound{Text: "❌ " + res.Message + "\n\nPlease try another PIN, or reply *cancel*"}, nil
	}
	if err := s.clearState(ctx, account.ID); err != nil {
		return nil, err
	}
	return &Outbound{Text: "✅ " + res.Message}, nil
}

// converse hands greeting and unclear messages to the assistant. Its reply is
// filtered before it is sent and its intent guess is only logged.
func (s *chatService) converse(ctx context.Context, account *domain.Account, text string, intent classifier.Intent) (*Outbound, error) {
	history := s.recentTurns(ctx, account.ID)
	req := assistant.Request{
		Message: security.Sanitize(text),
		Account: assistant.AccountContext{
			Name:           account.Name(),
			Balance:        account.Balance,
			DailyRemaining: account.AvailableDaily(),
			Phone:          security.LocalFormat(account.Handle),
			Verified:       account.Verified,
		},
		History: history,
	}

	actx, cancel := context.WithTimeout(ctx, s.cfg.AssistantTimeout)
	defer cancel()
	reply, err := s.assistant.Reply(actx, req)
	if err != nil {
		s.logger.Warn("assistant unavailable, using fallback", "account_id", account.ID, "error", err)
		return &Outbound{Text: validator.CapabilityFallback, Intent: string(intent)}, nil
	}
	s.logger.Debug("assistant replied", "account_id", account.ID, "guess", reply.Intent, "confidence", reply.Confidence)

	valid, safe := s.validator.Validate(reply.Text)
	if !valid {
		s.logger.Warn("assistant reply replaced", "account_id", account.ID)
	}
	out := &Outbound{Text: safe, Intent: string(intent)}
	if intent == classifier.IntentGreeting && len(history) == 0 {
		out.Buttons = menuButtons()
	}
	return out, nil
}

// recentTurns returns the conversation before the current message.
func (s *chatService) recentTurns(ctx context.Context, accountID int64) []assistant.Turn {
	messages, err := s.conversations.ListRecentMessages(ctx, s.dbExecutor, accountID, s.cfg.HistoryTurns*2+1)
	if err != nil {
		s.logger.Warn("failed to load history", "account_id", accountID, "error", err)
		return nil
	}
	if n := len(messages); n > 0 && messages[n-1].Direction == domain.DirectionInbound {
		messages = messages[:n-1]
	}
	turns := make([]assistant.Turn, 0, len(messages))
	for _, m := range messages {
		role := assistant.RoleUser
		if m.Direction == domain.DirectionOutbound {
			role = assistant.RoleAssistant
		}
		turns = append(turns, assistant.Turn{Role: role, Content: m.Body})
	}
	return turns
}

func (s *chatService) loadState(ctx context.Context, accountID int64) (*domain.ConversationState, error) {
	state, err := s.conversations.GetState(ctx, s.dbExecutor, accountID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return &domain.ConversationState{AccountID: accountID, State: domain.StateIdle}, nil
		}
		return nil, err
	}
	return state, nil
}

func (s *chatService) saveState(ctx context.Context, accountID int64, kind domain.ConversationStateKind, payload interface{}) error {
	raw := "{}"
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s state: %w", kind, err)
		}
		raw = string(b)
	}
	return s.conversations.SaveState(ctx, s.dbExecutor, &domain.ConversationState{
		AccountID: accountID,
		State:     kind,
		Payload:   raw,
		UpdatedAt: s.now().UTC(),
	})
}

func (s *chatService) clearState(ctx context.Context, accountID int64) error {
	return s.conversations.ClearState(ctx, s.dbExecutor, accountID)
}

// logMessage records a chat turn. A failed write is logged and ignored.
func (s *chatService) logMessage(ctx context.Context, accountID int64, dir domain.MessageDirection, body, intent string) {
	m := &domain.Message{
		AccountID: accountID,
		Direction: dir,
		Body:      security.Sanitize(body),
		Intent:    intent,
		CreatedAt: s.now().UTC(),
	}
	if err := s.conversations.AppendMessage(ctx, s.dbExecutor, m); err != nil {
		s.logger.Warn("failed to log message", "account_id", accountID, "direction", dir, "error", err)
	}
}

func beneficiaryAction(e classifier.BeneficiaryTransactionEntities) pendingAction {
	b := e.Beneficiary
	a := pendingAction{Amount: e.Amount.Decimal, Target: b.Value, Label: b.Nickname, BeneficiaryID: &b.ID}
	switch b.Kind {
	case domain.BeneficiaryKindPhone:
		a.Type, a.Network = domain.TransactionTypeAirtime, e.Network
	case domain.BeneficiaryKindMeter:
		a.Type = domain.TransactionTypeElectricity
	default:
		a.Type = domain.TransactionTypeBill
	}
	return a
}

func nickname(b *domain.Beneficiary) string {
	if b == nil {
		return ""
	}
	return b.Nickname
}

func beneficiaryID(b *domain.Beneficiary) *int64 {
	if b == nil {
		return nil
	}
	id := b.ID
	return &id
}

func isCancel(lower string) bool {
	switch lower {
	case "cancel", "no", "stop", "cancel_typo":
		return true
	}
	return false
}

// looksLikePIN reports whether text could be a PIN at all. Anything else is
// re-prompted without spending a verification attempt.
func looksLikePIN(text string) bool {
	if len(text) < 4 || len(text) > 6 {
		return false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
