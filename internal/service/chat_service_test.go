// internal/service/chat_service_test.go
package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chatpay-wallet/internal/assistant"
	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/repository"
	"chatpay-wallet/internal/repository/sqlstore"
	"chatpay-wallet/internal/security"
	"chatpay-wallet/internal/util"
	"chatpay-wallet/internal/validator"
)

// MockAssistant is a mock implementation of assistant.Assistant.
type MockAssistant struct {
	mock.Mock
}

func (m *MockAssistant) Reply(ctx context.Context, req assistant.Request) (*assistant.Reply, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*assistant.Reply), args.Error(1)
}

const chatHandle = "0831112222"

type chatFixture struct {
	*ledgerFixture
	accountSvc    AccountService
	pins          *security.PINService
	conversations repository.ConversationRepository
	chat          ChatService
}

func newChatFixture(t *testing.T, asst assistant.Assistant) *chatFixture {
	t.Helper()
	f := newDefaultFixture(t)
	logger := discardLogger()

	pinCfg := security.DefaultPINConfig()
	pinCfg.BcryptCost = bcrypt.MinCost

	c := &chatFixture{
		ledgerFixture: f,
		accountSvc:    NewAccountService(f.conn, f.accounts, decimal.NewFromInt(25000), decimal.NewFromInt(100000), logger),
		pins:          security.NewPINService(f.conn, f.accounts, f.locker, pinCfg, logger),
		conversations: sqlstore.NewConversationStore(f.conn),
	}
	beneficiaries := NewBeneficiaryService(f.conn, sqlstore.NewBeneficiaryStore(f.conn), logger)
	c.chat = NewChatService(f.conn, c.accountSvc, f.ledger, beneficiaries, c.pins, c.conversations,
		asst, validator.New(logger), DefaultChatConfig(), logger)
	return c
}

func (c *chatFixture) send(t *testing.T, text string) *Outbound {
	t.Helper()
	out, err := c.chat.HandleMessage(context.Background(), Inbound{Handle: chatHandle, Name: "Thabo", Text: text})
	require.NoError(t, err)
	require.NotNil(t, out)
	return out
}

func (c *chatFixture) press(t *testing.T, buttonID string) *Outbound {
	t.Helper()
	out, err := c.chat.HandleMessage(context.Background(), Inbound{Handle: chatHandle, Name: "Thabo", ButtonID: buttonID})
	require.NoError(t, err)
	return out
}

// onboard creates the account through a first message, activates it, funds
// it and optionally sets a PIN.
func (c *chatFixture) onboard(t *testing.T, balance, pin string) *domain.Account {
	t.Helper()
	ctx := context.Background()
	c.send(t, "hi")

	acc, err := c.accountSvc.Activate(ctx, chatHandle)
	require.NoError(t, err)
	if balance != "" {
		res, err := c.ledger.Deposit(ctx, DepositRequest{AccountID: acc.ID, Amount: decimal.RequireFromString(balance)})
		require.NoError(t, err)
		require.True(t, res.Success)
	}
	if pin != "" {
		res, err := c.pins.SetPIN(ctx, acc.ID, pin)
		require.NoError(t, err)
		require.True(t, res.OK)
	}
	return c.reload(t, acc.ID)
}

func TestChat_FirstContactGetsWelcome(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())

	out := c.send(t, "hello")
	assert.True(t, strings.HasPrefix(out.Text, "Hey Thabo! 👋"))
	assert.Len(t, out.Buttons, 3)

	acc, err := c.accountSvc.GetByHandle(context.Background(), chatHandle)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusPendingVerification, acc.Status)
	assert.Equal(t, "Thabo", acc.DisplayName)
}

func TestChat_InvalidHandle(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())
	_, err := c.chat.HandleMessage(context.Background(), Inbound{Handle: "12", Text: "hi"})
	assert.ErrorIs(t, err, util.ErrInvalidInput)
}

func TestChat_SetPINThenBuyAirtime(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())
	acc := c.onboard(t, "500", "")

	assert.Equal(t, NewPINPrompt, c.send(t, "set pin").Text)
	assert.Contains(t, c.send(t, "1234").Text, "PIN is too weak")
	assert.Equal(t, "✅ PIN set successfully! You can now make transactions", c.send(t, "2580").Text)

	quote := c.send(t, "buy R100 airtime for 0821234567")
	assert.Contains(t, quote.Text, "• Network: Vodacom")
	assert.Contains(t, quote.Text, "• Fee: R1.00")
	assert.Contains(t, quote.Text, "• Total: R101.00")
	assert.Contains(t, quote.Text, "Reply with your PIN to confirm")
	assert.True(t, c.reload(t, acc.ID).Balance.Equal(decimal.NewFromInt(500)), "quote must not move money")

	wrong := c.send(t, "9999")
	assert.Contains(t, wrong.Text, "Incorrect PIN. 2 attempts remaining")

	done := c.send(t, "2580")
	assert.Contains(t, done.Text, "✅ R100.00 VODACOM airtime sent to 0821234567")
	assert.Contains(t, done.Text, "New balance: R399.00")
	assert.True(t, c.reload(t, acc.ID).Balance.Equal(decimal.NewFromInt(399)))

	messages, err := c.conversations.ListRecentMessages(context.Background(), c.conn, acc.ID, 50)
	require.NoError(t, err)
	for _, m := range messages {
		assert.NotContains(t, m.Body, "2580")
		assert.NotContains(t, m.Body, "9999")
	}

	_, err = c.conversations.GetState(context.Background(), c.conn, acc.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestChat_SlotFillingAcrossMessages(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())
	acc := c.onboard(t, "500", "2580")

	assert.Equal(t, "Which network and how much airtime?\n\nExample: R20 MTN", c.send(t, "buy airtime").Text)
	assert.Equal(t, "For which number?\n\nExample: 0821234567", c.send(t, "R20 MTN").Text)

	quote := c.send(t, "0831234567")
	assert.Contains(t, quote.Text, "• Network: MTN")
	assert.Contains(t, quote.Text, "• Phone: 0831234567")
	assert.Contains(t, quote.Text, "• Amount: R20.00")

	assert.Equal(t, CancelledReply, c.send(t, "cancel").Text)
	assert.True(t, c.reload(t, acc.ID).Balance.Equal(decimal.NewFromInt(500)))
}

func TestChat_NetworkButtonCompletesRequest(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())
	c.onboard(t, "500", "2580")

	// 069 is not a known prefix, so the user is asked.
	out := c.send(t, "buy airtime R30 for 0691234567")
	require.Equal(t, "Which network?", out.Text)
	require.Len(t, out.Buttons, 3)

	quote := c.press(t, "cell_c")
	assert.Contains(t, quote.Text, "• Network: Cell C")
}

func TestChat_TypoConfirmation(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())
	c.onboard(t, "", "")

	out := c.send(t, "show beneficiries")
	assert.Equal(t, "Did you mean: *Show Beneficiaries*?", out.Text)
	require.Len(t, out.Buttons, 2)
	assert.Equal(t, "confirm_show_beneficiaries", out.Buttons[0].ID)

	assert.Contains(t, c.send(t, "yes").Text, "You have no saved beneficiaries yet")

	c.send(t, "balanse")
	assert.Equal(t, TypoDeclinedReply, c.press(t, "cancel_typo").Text)

	assert.Contains(t, c.press(t, "confirm_check_balance").Text, "💰 *Wallet Balance*")
}

func TestChat_BeneficiaryLifecycle(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())
	c.onboard(t, "500", "2580")

	assert.Equal(t, "✅ Saved *mom*: 0827654321 (VODACOM)", c.send(t, "save mom 0827654321").Text)
	assert.Equal(t, "You already have a beneficiary called 'Mom'.", c.send(t, "save Mom 0821111111").Text)
	assert.Equal(t, SaveUsageReply, c.send(t, "save mom").Text)
	assert.Contains(t, c.send(t, "show beneficiaries").Text, "mom: 0827654321")

	quote := c.send(t, "buy airtime R50 for mom")
	assert.Contains(t, quote.Text, "• For: mom")
	assert.Contains(t, quote.Text, "• Phone: 0827654321")
	assert.Equal(t, CancelledReply, c.send(t, "cancel").Text)

	assert.Equal(t, "How much for mom?\n\nExample: R50, R100, R200", c.send(t, "pay mom").Text)
	assert.Contains(t, c.send(t, "R60").Text, "• Amount: R60.00")
	c.send(t, "cancel")

	assert.Equal(t, "🗑️ Deleted *mom*", c.send(t, "delete mom").Text)
	assert.Equal(t, "No beneficiary called 'mom' found.", c.send(t, "delete mom").Text)
}

func TestChat_MoneyRequestsArePrechecked(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())

	c.send(t, "hi")
	assert.Equal(t, "❌ Account is pending_verification", c.send(t, "buy R20 airtime for 0821234567").Text)

	_, err := c.accountSvc.Activate(context.Background(), chatHandle)
	require.NoError(t, err)
	assert.Equal(t, "❌ Insufficient balance. Available: R0.00", c.send(t, "buy R20 airtime for 0821234567").Text)
}

func TestChat_NoPINMeansNoQuote(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())
	c.onboard(t, "100", "")

	out := c.send(t, "buy R20 airtime for 0821234567")
	assert.Equal(t, NoPINReply, out.Text)
}

func TestChat_BalanceAndDetails(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())
	c.onboard(t, "500", "")

	assert.Contains(t, c.send(t, "check balance").Text, "Current balance: R500.00")
	details := c.send(t, "my details").Text
	assert.Contains(t, details, "Phone: 0831112222")
	assert.Contains(t, details, "✅ Verified")
	assert.Contains(t, c.send(t, "history").Text, "Deposit R500.00")
}

func TestChat_GenerativeRepliesAreFiltered(t *testing.T) {
	t.Run("action claim replaced", func(t *testing.T) {
		m := new(MockAssistant)
		c := newChatFixture(t, m)
		acc := c.onboard(t, "500", "2580")

		m.On("Reply", mock.Anything, mock.MatchedBy(func(req assistant.Request) bool {
			return req.Message == "tell me a joke" && req.Account.Verified
		})).Return(&assistant.Reply{
			Text:   "Sure! Let me check your account and process R50 airtime now.",
			Intent: assistant.GuessAirtime,
		}, nil).Once()

		out := c.send(t, "tell me a joke")
		assert.Equal(t, validator.ActionFallback, out.Text)
		assert.True(t, c.reload(t, acc.ID).Balance.Equal(decimal.NewFromInt(500)))
		m.AssertExpectations(t)
	})

	t.Run("assistant failure falls back", func(t *testing.T) {
		m := new(MockAssistant)
		c := newChatFixture(t, m)
		c.onboard(t, "", "")

		m.On("Reply", mock.Anything, mock.Anything).Return(nil, errors.New("upstream 503")).Once()
		assert.Equal(t, validator.CapabilityFallback, c.send(t, "what's the weather").Text)
		m.AssertExpectations(t)
	})

	t.Run("clean reply passes through", func(t *testing.T) {
		c := newChatFixture(t, assistant.NewStaticAssistant())
		c.onboard(t, "", "")

		out := c.send(t, "hello there")
		assert.Equal(t, "greeting", out.Intent)
		assert.True(t, strings.HasPrefix(out.Text, "Hey Thabo! 👋 I'm Cyrax."))
	})
}

func TestChat_LockedPINCannotBeReplaced(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())
	acc := c.onboard(t, "500", "2580")

	c.send(t, "buy R100 airtime for 0821234567")
	assert.Contains(t, c.send(t, "1111").Text, "Incorrect PIN. 2 attempts remaining")
	assert.Contains(t, c.send(t, "1112").Text, "Incorrect PIN. 1 attempts remaining")
	assert.Equal(t, "🔒 Too many failed attempts. PIN locked for 30 minutes", c.send(t, "1113").Text)

	assert.Equal(t, "🔒 PIN locked. Try again in 30 minutes", c.send(t, "change pin").Text)
	// Without the change flow, a new PIN is just an unclear message.
	assert.NotContains(t, c.send(t, "1357").Text, "PIN set successfully")

	assert.Equal(t, "🔒 PIN locked. Try again in 30 minutes", c.send(t, "buy R100 airtime for 0821234567").Text)
	assert.True(t, c.reload(t, acc.ID).Balance.Equal(decimal.NewFromInt(500)))
}

func TestChat_ChangePINNeedsCurrentPIN(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())
	acc := c.onboard(t, "500", "2580")

	assert.Equal(t, CurrentPINPrompt, c.send(t, "change pin").Text)
	assert.Equal(t, PINDigitsReply, c.send(t, "check balance").Text)
	assert.Equal(t, 0, c.reload(t, acc.ID).PINAttempts, "a non-numeric reply is not an attempt")

	assert.Equal(t, "❌ Incorrect PIN. 2 attempts remaining\n\n"+CurrentPINPrompt, c.send(t, "1111").Text)
	assert.Equal(t, NewPINPrompt, c.send(t, "2580").Text)
	assert.Equal(t, "✅ PIN set successfully! You can now make transactions", c.send(t, "1357").Text)

	c.send(t, "buy R100 airtime for 0821234567")
	assert.Contains(t, c.send(t, "1357").Text, "New balance: R399.00")

	messages, err := c.conversations.ListRecentMessages(context.Background(), c.conn, acc.ID, 50)
	require.NoError(t, err)
	for _, m := range messages {
		assert.NotContains(t, m.Body, "2580")
		assert.NotContains(t, m.Body, "1357")
	}
}

func TestChat_ChangePINLockoutCountsAttempts(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())
	acc := c.onboard(t, "500", "2580")

	c.send(t, "change pin")
	c.send(t, "1111")
	c.send(t, "1112")
	assert.Equal(t, "🔒 Too many failed attempts. PIN locked for 30 minutes", c.send(t, "1113").Text)

	_, err := c.conversations.GetState(context.Background(), c.conn, acc.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)
	assert.Equal(t, security.PINStateLocked, security.Status(c.reload(t, acc.ID), time.Now()))
}

func TestChat_NonNumericReplyKeepsQuote(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())
	acc := c.onboard(t, "500", "2580")

	c.send(t, "buy R100 airtime for 0821234567")
	assert.Equal(t, PINDigitsReply, c.send(t, "check balance").Text)
	assert.Equal(t, 0, c.reload(t, acc.ID).PINAttempts)

	assert.Contains(t, c.send(t, "2580").Text, "New balance: R399.00")
}

func TestChat_StaleQuoteExpires(t *testing.T) {
	c := newChatFixture(t, assistant.NewStaticAssistant())
	acc := c.onboard(t, "500", "2580")
	svc := c.chat.(*chatService)

	start := time.Now()
	svc.now = func() time.Time { return start }
	c.send(t, "buy R100 airtime for 0821234567")

	svc.now = func() time.Time { return start.Add(DefaultChatConfig().QuoteTTL + time.Minute) }
	assert.Equal(t, ExpiredActionReply, c.send(t, "2580").Text)
	assert.True(t, c.reload(t, acc.ID).Balance.Equal(decimal.NewFromInt(500)))

	_, err := c.conversations.GetState(context.Background(), c.conn, acc.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)
}
