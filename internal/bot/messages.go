package bot

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/inky-tools/inkybot/internal/explorer"
	"github.com/inky-tools/inkybot/internal/session"
)

func mainMenuKeyboard() [][]Button {
	return [][]Button{
		{{Label: "🛒 Buy", Data: "menu_buy"}, {Label: "💸 Sell", Data: "menu_sell"}},
		{{Label: "⬆️ Withdraw", Data: "menu_withdraw"}, {Label: "👛 Wallet", Data: "menu_wallet"}},
		{{Label: "🛠️ Manage Wallet", Data: "menu_manage_wallet"}},
	}
}

func confirmKeyboard(prefix string) [][]Button {
	return [][]Button{
		{{Label: "✅ Confirm", Data: prefix + "_confirm"}, {Label: "❌ Cancel", Data: prefix + "_cancel"}},
	}
}

func backToMenuKeyboard() [][]Button {
	return [][]Button{{{Label: "⬅️ Back to Menu", Data: "menu_home"}}}
}

func menuReply() Reply {
	return Reply{
		Text:     "🏠 <b>Main Menu</b>\nChoose an option below.",
		Keyboard: mainMenuKeyboard(),
	}
}

func welcomeText(address, bridgeURL string) string {
	return fmt.Sprintf(
		"🦑 <b>Welcome to <i>Inky Buy Bot</i>!</b>\n\n"+
			"👛 <b>Your wallet:</b> <code>%s</code>\n"+
			"🌉 <b>Bridge ETH to Ink:</b> <a href='%s'>%s</a>\n\n"+
			"💡 <i>Use the menu below or type a command.</i>",
		address, bridgeURL, bridgeURL)
}

func walletText(address, balance, bridgeURL string) string {
	return fmt.Sprintf(
		"👛 <b>Your wallet:</b> <code>%s</code>\n"+
			"💰 <b>Balance:</b> <code>%s</code>\n"+
			"🌉 <b>Bridge ETH:</b> <a href='%s'>%s</a>",
		address, balance, bridgeURL, bridgeURL)
}

func txLink(explorerBase, hash string) string {
	if !strings.HasPrefix(hash, "0x") {
		hash = "0x" + hash
	}
	return fmt.Sprintf("<a href='%s/tx/%s'>View on Explorer</a>", explorerBase, hash)
}

func tokenListText(header string, tokens []explorer.TokenBalance) string {
	var b strings.Builder
	b.WriteString(header + "\n")
	for _, t := range tokens {
		balance := session.FromRaw(t.Raw, t.Decimals)
		fmt.Fprintf(&b, "• <code>%s</code>: <b>%s</b> (<code>%s</code>)\n",
			t.Symbol, balance.StringFixed(2), t.Address.Hex())
	}
	return b.String()
}

func buySummaryText(amount decimal.Decimal, token string) string {
	return fmt.Sprintf(
		"🛒 <b>Swap Summary</b>\n"+
			"• <b>Amount:</b> <code>%s ETH</code>\n"+
			"• <b>Token:</b> <code>%s</code>\n\n"+
			"Do you want to proceed?",
		amount.StringFixed(4), token)
}

func sellSummaryText(token string, amount decimal.Decimal, symbol string) string {
	return fmt.Sprintf(
		"💸 <b>Sell Summary</b>\n"+
			"• <b>Token:</b> <code>%s</code>\n"+
			"• <b>Amount:</b> <code>%s %s</code>\n\n"+
			"Do you want to proceed?",
		token, amount.StringFixed(6), symbol)
}
