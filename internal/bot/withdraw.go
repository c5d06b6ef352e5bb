package bot

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/inky-tools/inkybot/internal/session"
)

func (f *Facade) startWithdraw(ctx context.Context, ev Event) {
	f.sessions.Begin(ev.UserID, session.FlowWithdraw, session.StateAwaitAssetType)
	f.sendNew(ctx, ev, Reply{
		Text: "⬆️ <b>Withdraw</b>\nChoose what to withdraw:",
		Keyboard: [][]Button{
			{{Label: "ETH", Data: "withdraw_eth"}, {Label: "Token", Data: "withdraw_token"}},
			{{Label: "⬅️ Back to Menu", Data: "menu_home"}},
		},
	})
}

func (f *Facade) withdrawAssetType(ctx context.Context, ev Event) {
	sess := f.sessions.Get(ev.UserID)
	if sess == nil || sess.Flow != session.FlowWithdraw || sess.State != session.StateAwaitAssetType {
		f.respond(ctx, ev, menuReply())
		return
	}
	sess.WithdrawETH = ev.Callback == "withdraw_eth"
	sess.State = session.StateAwaitRecipient

	asset := "TOKEN"
	if sess.WithdrawETH {
		asset = "ETH"
	}
	// Drop the choice keyboard, then prompt on a fresh message so the
	// client opens a reply box.
	f.respond(ctx, ev, Reply{Text: "⬆️ <b>Withdraw " + asset + "</b>"})
	f.sendNew(ctx, ev, Reply{
		Text:       "⬆️ <b>Withdraw " + asset + "</b>\nPlease enter the <b>recipient address</b>:",
		ForceReply: true,
	})
}

func (f *Facade) withdrawRecipient(ctx context.Context, ev Event, sess *session.Session) {
	text := trimInput(ev.Text)
	if !common.IsHexAddress(text) {
		f.respond(ctx, ev, Reply{
			Text:       "❗️ <b>Invalid recipient address. Please enter a valid Ethereum address (0x...):</b>",
			ForceReply: true,
		})
		return
	}
	sess.Recipient = common.HexToAddress(text)

	w, err := f.wallets.Get(ctx, ev.UserID)
	if err != nil || w == nil {
		f.sessions.Clear(ev.UserID)
		f.respond(ctx, ev, Reply{Text: "❗️ No wallet found. Use /start to create one.", Keyboard: mainMenuKeyboard()})
		return
	}

	if sess.WithdrawETH {
		balanceStr := "(unavailable)"
		if wei, err := f.chain.Balance(ctx, w.Address); err == nil {
			sess.TokenBalance = session.WeiToEth(wei)
			balanceStr = sess.TokenBalance.StringFixed(6) + " ETH"
		}
		sess.State = session.StateAwaitAmount
		f.respond(ctx, ev, Reply{
			Text:       "💰 <b>Your ETH balance:</b> <code>" + balanceStr + "</code>\nHow much ETH do you want to send?",
			ForceReply: true,
		})
		return
	}

	tokens := f.balances.ListTokenBalances(ctx, w.Address)
	if len(tokens) == 0 {
		f.sessions.Clear(ev.UserID)
		f.respond(ctx, ev, Reply{Text: "❗️ <b>No tokens found in your wallet to withdraw.</b>", Keyboard: mainMenuKeyboard()})
		return
	}
	sess.Balances = tokens
	sess.State = session.StateAwaitTokenSelection
	msg := tokenListText("<b>Your tokens available for withdrawal:</b>", tokens) +
		"\n🔗 <b>Enter the token address you want to withdraw:</b>"
	f.respond(ctx, ev, Reply{Text: msg, ForceReply: true})
}

func (f *Facade) withdrawTokenSelect(ctx context.Context, ev Event, sess *session.Session) {
	text := trimInput(ev.Text)
	if !common.IsHexAddress(text) {
		f.respond(ctx, ev, Reply{
			Text:       "❗️ <b>Invalid token address format.</b> Please enter a valid Ethereum address.",
			ForceReply: true,
		})
		return
	}
	token := common.HexToAddress(text)
	found := false
	for _, t := range sess.Balances {
		if t.Address == token {
			sess.Token = t.Address
			sess.TokenSymbol = t.Symbol
			sess.TokenDecimals = t.Decimals
			sess.TokenBalance = session.FromRaw(t.Raw, t.Decimals)
			found = true
			break
		}
	}
	if !found {
		f.respond(ctx, ev, Reply{
			Text:       "❗️ <b>Token not found in your wallet.</b> Please enter a valid token address from the list above.",
			ForceReply: true,
		})
		return
	}
	sess.State = session.StateAwaitAmount
	f.respond(ctx, ev, Reply{
		Text: "💰 <b>Withdraw " + sess.TokenSymbol + "</b>\n" +
			"• <b>Token:</b> <code>" + sess.Token.Hex() + "</code>\n" +
			"• <b>Your Balance:</b> <b>" + sess.TokenBalance.StringFixed(6) + " " + sess.TokenSymbol + "</b>\n" +
			"• <b>Recipient:</b> <code>" + sess.Recipient.Hex() + "</code>\n\n" +
			"💬 <b>Enter the amount of " + sess.TokenSymbol + " to withdraw:</b>",
		ForceReply: true,
	})
}

func (f *Facade) withdrawAmount(ctx context.Context, ev Event, sess *session.Session) {
	amount, err := session.ParseAmount(ev.Text)
	if err != nil {
		f.respond(ctx, ev, Reply{Text: "❗️ <b>Please enter a valid numeric amount.</b>", ForceReply: true})
		return
	}
	symbol := sess.TokenSymbol
	if sess.WithdrawETH {
		symbol = "ETH"
	}
	if amount.Cmp(sess.TokenBalance) > 0 {
		f.respond(ctx, ev, Reply{
			Text:       "❗️ <b>Transfer request exceeds " + symbol + " balance, please enter a valid amount.</b>",
			ForceReply: true,
		})
		return
	}
	sess.Amount = amount
	sess.State = session.StateAwaitConfirm

	var msg string
	if sess.WithdrawETH {
		msg = "⬆️ <b>Withdraw ETH Summary</b>\n" +
			"• <b>Recipient:</b> <code>" + sess.Recipient.Hex() + "</code>\n" +
			"• <b>Amount:</b> <code>" + amount.String() + " ETH</code>\n\n" +
			"Do you want to proceed?"
	} else {
		msg = "⬆️ <b>Withdraw Token Summary</b>\n" +
			"• <b>Token:</b> <code>" + sess.Token.Hex() + "</code>\n" +
			"• <b>Recipient:</b> <code>" + sess.Recipient.Hex() + "</code>\n" +
			"• <b>Amount:</b> <code>" + amount.String() + " " + symbol + "</code>\n\n" +
			"Do you want to proceed?"
	}
	f.respond(ctx, ev, Reply{Text: msg, Keyboard: confirmKeyboard("withdraw")})
}

func (f *Facade) withdrawConfirm(ctx context.Context, ev Event) {
	sess := f.sessions.Get(ev.UserID)
	if sess == nil || sess.Flow != session.FlowWithdraw || sess.State != session.StateAwaitConfirm {
		f.respond(ctx, ev, menuReply())
		return
	}
	if ev.Callback == "withdraw_cancel" {
		f.sessions.Clear(ev.UserID)
		f.respond(ctx, ev, Reply{Text: "❌ <b>Withdrawal cancelled.</b>"})
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

	isETH := sess.WithdrawETH
	recipient := sess.Recipient
	token := sess.Token
	decimals := sess.TokenDecimals
	amount := sess.Amount
	f.sessions.Clear(ev.UserID)

	f.respond(ctx, ev, Reply{Text: "⏳ <b>Sending withdrawal...</b>"})

	var hash, success string
	if isETH {
		hash, err = f.trader.WithdrawETH(ctx, w.Address, key, recipient, session.EthToWei(amount))
		success = "✅ <b>ETH sent!</b>"
	} else {
		hash, err = f.trader.WithdrawToken(ctx, w.Address, key, token, recipient, session.ToRaw(amount, decimals))
		success = "✅ <b>Token sent!</b>"
	}
	if err != nil {
		f.log.Warn("withdrawal failed",
			zap.Int64("user_id", ev.UserID),
			zap.Bool("eth", isETH),
			zap.Error(err))
		f.respond(ctx, ev, Reply{Text: "❌ <b>Error during withdrawal:</b> " + err.Error()})
		f.sendNew(ctx, ev, menuReply())
		return
	}
	f.respond(ctx, ev, Reply{Text: success + "\n" + txLink(f.links.ExplorerBase, hash)})
	f.sendNew(ctx, ev, menuReply())
}
