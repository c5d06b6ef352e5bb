package bot

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/inky-tools/inkybot/internal/session"
)

const buyPrompt = "🛒 <b>Buy Tokens</b>\n\n⚠️ <b>Only Inky Factory contracts can be traded.</b>\n\n🔗 <b>Enter the token address you want to buy:</b>"

func (f *Facade) startBuy(ctx context.Context, ev Event) {
	f.sessions.Begin(ev.UserID, session.FlowBuy, session.StateAwaitToken)
	// Always a fresh message: edits cannot carry a ForceReply, so the
	// menu-button entry path would otherwise lose the reply prompt.
	f.sendNew(ctx, ev, Reply{Text: buyPrompt, ForceReply: true})
}

func (f *Facade) buyToken(ctx context.Context, ev Event, sess *session.Session) {
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
		f.sessions.Clear(ev.UserID)
		f.respond(ctx, ev, Reply{
			Text:     "❗️ <b>This token cannot be traded. No Inky Factory pool exists for this token.</b>",
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
	sess.Token = token
	sess.State = session.StateAwaitAmount

	balanceStr := "(unavailable)"
	if wei, err := f.chain.Balance(ctx, w.Address); err == nil {
		balanceStr = session.WeiToEth(wei).StringFixed(6) + " ETH"
	}
	f.respond(ctx, ev, Reply{
		Text:       "💰 <b>Your ETH balance:</b> <code>" + balanceStr + "</code>\nHow much ETH do you want to swap?",
		ForceReply: true,
	})
}

func (f *Facade) buyAmount(ctx context.Context, ev Event, sess *session.Session) {
	amount, err := session.ParseAmount(ev.Text)
	if err != nil {
		f.respond(ctx, ev, Reply{
			Text:     "❗️ <b>Please enter a valid positive ETH amount (e.g., 0.05).</b>",
			Keyboard: [][]Button{{{Label: "❌ Cancel Buy", Data: "buy_cancel"}}},
		})
		return
	}
	sess.Amount = amount
	sess.State = session.StateAwaitConfirm
	f.respond(ctx, ev, Reply{
		Text:     buySummaryText(amount, sess.Token.Hex()),
		Keyboard: confirmKeyboard("buy"),
	})
}

func (f *Facade) buyConfirm(ctx context.Context, ev Event) {
	sess := f.sessions.Get(ev.UserID)
	if sess == nil || sess.Flow != session.FlowBuy || sess.State != session.StateAwaitConfirm {
		f.respond(ctx, ev, menuReply())
		return
	}
	if ev.Callback == "buy_cancel" {
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
	amountWei := session.EthToWei(sess.Amount)
	f.sessions.Clear(ev.UserID)

	f.respond(ctx, ev, Reply{Text: "⏳ <b>Sending swap...</b>"})
	outcome, err := f.trader.ExecuteBuy(ctx, w.Address, key, amountWei, token)
	if err != nil {
		f.log.Warn("buy failed",
			zap.Int64("user_id", ev.UserID),
			zap.String("token", token.Hex()),
			zap.Error(err))
		f.respond(ctx, ev, Reply{Text: "❌ <b>Error:</b> " + err.Error()})
		f.sendNew(ctx, ev, menuReply())
		return
	}
	f.respond(ctx, ev, Reply{Text: "✅ <b>Success!</b>\n" + txLink(f.links.ExplorerBase, outcome.SwapHash)})
	f.sendNew(ctx, ev, menuReply())
}
