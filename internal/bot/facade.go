package bot

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/inky-tools/inkybot/internal/explorer"
	"github.com/inky-tools/inkybot/internal/session"
	"github.com/inky-tools/inkybot/internal/swap"
	"github.com/inky-tools/inkybot/internal/wallet"
)

// TradeExecutor is the sequencer surface the facade invokes at confirm
// time.
type TradeExecutor interface {
	ExecuteBuy(ctx context.Context, wallet common.Address, key *ecdsa.PrivateKey, ethAmount *big.Int, token common.Address) (*swap.Outcome, error)
	ExecuteSell(ctx context.Context, wallet common.Address, key *ecdsa.PrivateKey, token common.Address, amountIn *big.Int) (*swap.Outcome, error)
	WithdrawETH(ctx context.Context, wallet common.Address, key *ecdsa.PrivateKey, to common.Address, amount *big.Int) (string, error)
	WithdrawToken(ctx context.Context, wallet common.Address, key *ecdsa.PrivateKey, token, to common.Address, amount *big.Int) (string, error)
}

// PoolChecker is the mid-flow tradability probe.
type PoolChecker interface {
	HasPrimaryV3Pool(ctx context.Context, token common.Address) bool
}

// BalanceLister enumerates ERC-20 positions, best-effort.
type BalanceLister interface {
	ListTokenBalances(ctx context.Context, addr common.Address) []explorer.TokenBalance
}

// BalanceReader reads native ETH balances.
type BalanceReader interface {
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
}

// Links are the user-facing URLs embedded in replies.
type Links struct {
	ExplorerBase string
	BridgeURL    string
}

// Facade routes chat events to flow handlers. All user interaction passes
// through here; the flow handlers own session transitions and the
// sequencer owns chain writes.
type Facade struct {
	transport Transport
	wallets   *wallet.Manager
	sessions  *session.Store
	trader    TradeExecutor
	pools     PoolChecker
	balances  BalanceLister
	chain     BalanceReader
	links     Links
	log       *zap.Logger
}

func NewFacade(transport Transport, wallets *wallet.Manager, sessions *session.Store, trader TradeExecutor, pools PoolChecker, balances BalanceLister, chainReader BalanceReader, links Links, log *zap.Logger) *Facade {
	return &Facade{
		transport: transport,
		wallets:   wallets,
		sessions:  sessions,
		trader:    trader,
		pools:     pools,
		balances:  balances,
		chain:     chainReader,
		links:     links,
		log:       log,
	}
}

// HandleEvent processes one inbound event to completion. Each event is
// independent; the dispatcher runs one goroutine per event.
func (f *Facade) HandleEvent(ctx context.Context, ev Event) {
	if ev.IsCallback() {
		if ev.CallbackID != "" {
			if err := f.transport.AckCallback(ctx, ev.CallbackID); err != nil {
				f.log.Debug("callback ack failed", zap.Error(err))
			}
		}
		f.handleCallback(ctx, ev)
		return
	}
	if strings.HasPrefix(ev.Text, "/") {
		f.handleCommand(ctx, ev)
		return
	}
	f.handleText(ctx, ev)
}

func (f *Facade) handleCommand(ctx context.Context, ev Event) {
	cmd := strings.ToLower(strings.TrimSpace(ev.Text))
	if i := strings.IndexAny(cmd, " @"); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/start":
		f.sessions.Clear(ev.UserID)
		f.showWelcome(ctx, ev, true)
	case "/wallet":
		f.sessions.Clear(ev.UserID)
		f.showWallet(ctx, ev)
	case "/export_keys":
		f.sessions.Clear(ev.UserID)
		f.exportKeys(ctx, ev)
	case "/reset_wallet":
		f.sessions.Clear(ev.UserID)
		f.resetWallet(ctx, ev)
	case "/buy":
		f.startBuy(ctx, ev)
	case "/sell":
		f.startSell(ctx, ev)
	case "/withdraw":
		f.startWithdraw(ctx, ev)
	case "/cancel":
		f.sessions.Clear(ev.UserID)
		f.respond(ctx, ev, menuReply())
	default:
		f.respond(ctx, ev, menuReply())
	}
}

func (f *Facade) handleCallback(ctx context.Context, ev Event) {
	switch {
	case ev.Callback == "menu_home":
		f.sessions.Clear(ev.UserID)
		f.showWelcome(ctx, ev, false)
	case ev.Callback == "menu_buy":
		f.startBuy(ctx, ev)
	case ev.Callback == "menu_sell":
		f.startSell(ctx, ev)
	case ev.Callback == "menu_withdraw":
		f.startWithdraw(ctx, ev)
	case ev.Callback == "menu_wallet":
		f.sessions.Clear(ev.UserID)
		f.showWallet(ctx, ev)
	case ev.Callback == "menu_manage_wallet":
		f.sessions.Clear(ev.UserID)
		f.respond(ctx, ev, Reply{
			Text: "🛠️ <b>Manage Wallet</b>\nChoose an option:",
			Keyboard: [][]Button{
				{{Label: "🔐 Export Keys", Data: "manage_export_keys"}},
				{{Label: "⬅️ Back to Menu", Data: "menu_home"}},
			},
		})
	case ev.Callback == "manage_export_keys":
		f.exportKeys(ctx, ev)
	case ev.Callback == "buy_confirm" || ev.Callback == "buy_cancel":
		f.buyConfirm(ctx, ev)
	case strings.HasPrefix(ev.Callback, "sell_pct_"):
		f.sellPercent(ctx, ev)
	case ev.Callback == "sell_confirm" || ev.Callback == "sell_cancel":
		f.sellConfirm(ctx, ev)
	case ev.Callback == "withdraw_eth" || ev.Callback == "withdraw_token":
		f.withdrawAssetType(ctx, ev)
	case ev.Callback == "withdraw_confirm" || ev.Callback == "withdraw_cancel":
		f.withdrawConfirm(ctx, ev)
	default:
		f.log.Debug("unhandled callback", zap.String("data", ev.Callback))
		f.respond(ctx, ev, menuReply())
	}
}

// handleText feeds free-form input into whatever state the user's session
// is waiting on.
func (f *Facade) handleText(ctx context.Context, ev Event) {
	sess := f.sessions.Get(ev.UserID)
	if sess == nil {
		f.respond(ctx, ev, menuReply())
		return
	}
	switch {
	case sess.Flow == session.FlowBuy && sess.State == session.StateAwaitToken:
		f.buyToken(ctx, ev, sess)
	case sess.Flow == session.FlowBuy && sess.State == session.StateAwaitAmount:
		f.buyAmount(ctx, ev, sess)
	case sess.Flow == session.FlowSell && sess.State == session.StateAwaitToken:
		f.sellToken(ctx, ev, sess)
	case sess.Flow == session.FlowSell && sess.State == session.StateAwaitAmount:
		f.sellAmount(ctx, ev, sess)
	case sess.Flow == session.FlowWithdraw && sess.State == session.StateAwaitRecipient:
		f.withdrawRecipient(ctx, ev, sess)
	case sess.Flow == session.FlowWithdraw && sess.State == session.StateAwaitTokenSelection:
		f.withdrawTokenSelect(ctx, ev, sess)
	case sess.Flow == session.FlowWithdraw && sess.State == session.StateAwaitAmount:
		f.withdrawAmount(ctx, ev, sess)
	default:
		// Confirm states accept buttons only.
		f.respond(ctx, ev, menuReply())
	}
}

// respond delivers a reply over the right channel: button presses edit the
// originating message, everything else sends a new one.
func (f *Facade) respond(ctx context.Context, ev Event, r Reply) {
	var err error
	if ev.IsCallback() && ev.MessageID != 0 {
		err = f.transport.Edit(ctx, ev.ChatID, ev.MessageID, r)
	} else {
		err = f.transport.Send(ctx, ev.ChatID, r)
	}
	if err != nil {
		f.log.Warn("reply delivery failed", zap.Int64("chat_id", ev.ChatID), zap.Error(err))
	}
}

// sendNew always posts a fresh message, used for the trailing main menu
// after terminal flow messages.
func (f *Facade) sendNew(ctx context.Context, ev Event, r Reply) {
	if err := f.transport.Send(ctx, ev.ChatID, r); err != nil {
		f.log.Warn("reply delivery failed", zap.Int64("chat_id", ev.ChatID), zap.Error(err))
	}
}

func trimInput(s string) string { return strings.TrimSpace(s) }

func (f *Facade) showWelcome(ctx context.Context, ev Event, createIfMissing bool) {
	var address string
	if createIfMissing {
		w, created, err := f.wallets.GetOrCreate(ctx, ev.UserID)
		if err != nil {
			f.respond(ctx, ev, Reply{Text: "❌ <b>Error:</b> could not prepare your wallet.", Keyboard: mainMenuKeyboard()})
			return
		}
		if created {
			f.log.Info("onboarded new user", zap.Int64("user_id", ev.UserID))
		}
		address = w.Address.Hex()
	} else {
		w, err := f.wallets.Get(ctx, ev.UserID)
		if err == nil && w != nil {
			address = w.Address.Hex()
		} else {
			address = "N/A"
		}
	}
	f.respond(ctx, ev, Reply{Text: welcomeText(address, f.links.BridgeURL), Keyboard: mainMenuKeyboard()})
}

func (f *Facade) showWallet(ctx context.Context, ev Event) {
	w, err := f.wallets.Get(ctx, ev.UserID)
	if err != nil || w == nil {
		f.respond(ctx, ev, Reply{Text: "❗️ <b>No wallet found.</b> Use /start to create one.", Keyboard: mainMenuKeyboard()})
		return
	}
	balanceStr := "(unavailable)"
	if wei, err := f.chain.Balance(ctx, w.Address); err == nil {
		balanceStr = session.WeiToEth(wei).StringFixed(6) + " ETH"
	}
	f.respond(ctx, ev, Reply{Text: walletText(w.Address.Hex(), balanceStr, f.links.BridgeURL), Keyboard: mainMenuKeyboard()})
}

func (f *Facade) exportKeys(ctx context.Context, ev Event) {
	key, err := f.wallets.ExportKey(ctx, ev.UserID)
	if err != nil {
		f.respond(ctx, ev, Reply{Text: "❗️ <b>No wallet found.</b> Use /start to create one.", Keyboard: mainMenuKeyboard()})
		return
	}
	f.respond(ctx, ev, Reply{
		Text:     "🔐 <b>Your private key:</b>\n<code>" + key + "</code>",
		Keyboard: mainMenuKeyboard(),
	})
}

func (f *Facade) resetWallet(ctx context.Context, ev Event) {
	w, err := f.wallets.Reset(ctx, ev.UserID)
	if err != nil {
		f.respond(ctx, ev, Reply{Text: "❌ <b>Error:</b> could not reset your wallet.", Keyboard: mainMenuKeyboard()})
		return
	}
	f.respond(ctx, ev, Reply{
		Text:     "♻️ <b>Wallet reset!</b>\nNew address: <code>" + w.Address.Hex() + "</code>",
		Keyboard: mainMenuKeyboard(),
	})
}
