package ui

import "strings"

// PairingBlock shows a bridge pairing URI with instructions for pasting
// it into a mobile wallet.
func PairingBlock(uri string) string {
	var sb strings.Builder
	sb.WriteString(StyleTitle.Render("Pair your wallet") + "\n")
	sb.WriteString(Meta("Open your wallet app, choose WalletConnect and paste:") + "\n\n")
	sb.WriteString(Addr(uri) + "\n\n")
	sb.WriteString(Meta("Waiting for approval. Press Ctrl+C to abort."))
	return StyleBorder.Render(sb.String())
}
