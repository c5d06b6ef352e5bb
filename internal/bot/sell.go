package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inky-tools/inkybot/internal/session"
)

func (f *Facade) startSell(ctx context.Context, ev Event) {
	w, err := f.wallets.Get(ctx, ev.UserID)
	if err != nil || w == nil {
		f.respond(ctx, ev, Reply{Text: "❗️ <b>No wallet found.</b> Use /start to create one.", Keyboard: mainMenuKeyboard()})
		return
	}
	tokens := f.balances.ListTokenBalances(ctx, w.Address)
	if len(tokens) == 0 {
		f.sessions.Clear(ev.UserID)
		f.respond(ctx, ev, Reply{Text: "❗️ <b>No tokens found in your wallet to sell.</b>", Keyboard: mainMenuKeyboard()})
		return
	}
	sess := f.sessions.Begin(ev.UserID, session.FlowSell, session.StateAwaitToken)
	sess.Balances = tokens

	msg := tokenListText("<b>Your tokens:</b>", tokens) + "\n🔗 <b>Enter the token address you want to sell:</b>"
	f.respond(ctx, ev, Reply{Text: msg, Keyboard: backToMenuKeyboard()})
	f.sendNew(ctx, ev, Reply{Text: "Please enter the token address...", ForceReply: true})
}

func (f *Facade) sellToken(ctx context.Context, ev Event, sess *session.Session) {
	text := trimInput(ev.Text)
	if !common.IsHexAddress(text) {
		f.respond(ctx, ev, Reply{
			Text:       "❗️ <b>Invalid token address. Enter a valid token address (0x...):</b>",
			ForceReply: true,
		})
		return
	}
	token := common.HexToAddress(text)
	if !f.pools.HasPrimaryV3Pool(ctx, token) {
		f.respond(ctx, ev, Reply{
			Text:     "❗️ <b>This token cannot be sold. No Inky Factory pool exists for this token.</b>",
			Keyboard: mainMenuKeyboard(),
		})
		return
	}
	w, err := f.wallets.Get(ctx, ev.UserID)
	if err != nil || w == nil {
		f.sessions.Clear(ev.UserID)
		f.respond(ctx, ev, Reply{Text: "❗️ No wallet found. Use /start to create one.", Keyboard: mainMenuKeyboard()})
		return
	}

	// Re-query so the balance shown (and later enforced) is current.
	tokens := f.balances.ListTokenBalances(ctx, w.Address)
	var held *sessionToken
	for _, t := range tokens {
		if t.Address == token {
			held = &sessionToken{symbol: t.Symbol, decimals: t.Decimals, balance: session.FromRaw(t.Raw, t.Decimals)}
			break
		}
	}
	if held == nil {
		f.respond(ctx, ev, Reply{
			Text:       "❗️ <b>Token not found in your wallet or invalid address.</b> Please enter a valid token address:",
			ForceReply: true,
		})
		return
	}

	sess.Token = token
	sess.TokenSymbol = held.symbol
	sess.TokenDecimals = held.decimals
	sess.TokenBalance = held.balance
	sess.State = session.StateAwaitAmount

	f.respond(ctx, ev, Reply{
		Text: "<b>" + held.symbol + "</b> balance: <b>" + held.balance.StringFixed(6) + "</b>\nSelect the percentage to sell, or enter a specific amount:",
		Keyboard: [][]Button{
			{{Label: "10%", Data: "sell_pct_10"}, {Label: "25%", Data: "sell_pct_25"}, {Label: "50%", Data: "sell_pct_50"}},
			{{Label: "75%", Data: "sell_pct_75"}, {Label: "100%", Data: "sell_pct_100"}},
			{{Label: "⬅️ Back to Menu", Data: "menu_home"}},
		},
	})
}

type sessionToken struct {
	symbol   string
	decimals int
	balance  decimal.Decimal
}

func (f *Facade) sellPercent(ctx context.Context, ev Event) {
	sess := f.sessions.Get(ev.UserID)
	if sess == nil || sess.Flow != session.FlowSell || sess.State != session.StateAwaitAmount {
		f.respond(ctx, ev, menuReply())
		return
	}
	pct, err := strconv.Atoi(strings.TrimPrefix(ev.Callback, "sell_pct_"))
	if err != nil {
		f.respond(ctx, ev, Reply{Text: "❗️ <b>Invalid selection.</b>", Keyboard: mainMenuKeyboard()})
		return
	}
	amount, ok := session.PercentOf(sess.TokenBalance, pct, sess.TokenDecimals)
	if !ok {
		f.sessions.Clear(ev.UserID)
		f.respond(ctx, ev, Reply{Text: "❗️ <b>Invalid selection.</b>", Keyboard: mainMenuKeyboard()})
		return
	}
	sess.Amount = amount
	sess.State = session.StateAwaitConfirm
	f.respond(ctx, ev, Reply{
		Text:     sellSummaryText(sess.Token.Hex(), amount, sess.TokenSymbol),
		Keyboard: confirmKeyboard("sell"),
	})
}

func (f *Facade) sellAmount(ctx context.Context, ev Event, sess *session.Session) {
	amount, err := session.ParseAmount(ev.Text)
	if err != nil {
		f.respond(ctx, ev, Reply{Text: "❗️ <b>Please enter a valid numeric amount.</b>", ForceReply: true})
		return
	}
	if amount.Cmp(sess.TokenBalance) > 0 {
		f.respond(ctx, ev, Reply{
			Text:       "❗️ <b>Insufficient token balance or invalid amount.</b> Please enter a valid amount:",
			ForceReply: true,
		})
		return
	}
	sess.Amount = amount
	sess.State = session.StateAwaitConfirm
	f.respond(ctx, ev, Reply{
		Text:     sellSummaryText(sess.Token.Hex(), amount, sess.TokenSymbol),
		Keyboard: confirmKeyboard("sell"),
	})
}

func (f *Facade) sellConfirm(ctx context.Context, ev Event) {
	sess := f.sessions.Get(ev.UserID)
	if sess == nil || sess.Flow != session.FlowSell || sess.State != session.StateAwaitConfirm {
		f.respond(ctx, ev, menuReply())
		return
	}
	if ev.Callback == "sell_cancel" {
		f.sessions.Clear(ev.UserID)
		f.respond(ctx, ev, Reply{Text: "❌ <b>Cancelled.</b>"})
		f.sendNew(ctx, ev, menuReply())
		return
	}

	w, err := f.wallets.Get(ctx, ev.UserID)
	if err != nil || w == nil {
		f.sessions.Clear(ev.UserID)
		f.respond(ctx, ev, Reply{Text: "❗️ <b>No wallet found.</b> Use /start to create one."})
		f.sendNew(ctx, ev, menuReply())
		return
	}
	key, err := f.wallets.SigningKey(ctx, ev.UserID)
	if err != nil {
		f.sessions.Clear(ev.UserID)
		f.respond(ctx, ev, Reply{Text: "❌ <b>Error:</b> could not unlock your wallet."})
		f.sendNew(ctx, ev, menuReply())
		return
	}

	token := sess.Token
	amountRaw := session.ToRaw(sess.Amount, sess.TokenDecimals)
	f.sessions.Clear(ev.UserID)

	f.respond(ctx, ev, Reply{Text: "⏳ <b>Sending swap...</b>"})
	outcome, err := f.trader.ExecuteSell(ctx, w.Address, key, token, amountRaw)
	if err != nil {
		f.log.Warn("sell failed",
			zap.Int64("user_id", ev.UserID),
			zap.String("token", token.Hex()),
			zap.Error(err))
		f.respond(ctx, ev, Reply{Text: "❌ <b>Error:</b> " + err.Error()})
		f.sendNew(ctx, ev, menuReply())
		return
	}
	msg := "✅ <b>Sell sent!</b>\n" + txLink(f.links.ExplorerBase, outcome.SwapHash)
	if outcome.UnwrapError != "" {
		msg += "\n⚠️ <i>Unwrapping proceeds failed; they remain as WETH in your wallet.</i>"
	}
	f.respond(ctx, ev, Reply{Text: msg})
	f.sendNew(ctx, ev, menuReply())
}
