package smart

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

type paymasterToken struct {
	chainID int64
	address common.Address
}

// paymasterTokens are the ERC-20 tokens accepted for gas, each on its
// own chain.
var paymasterTokens = map[wallet.TokenPaymaster]paymasterToken{
	wallet.TokenPaymasterBaseUSDC: {8453, common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")},
	wallet.TokenPaymasterCeloCUSD: {42220, common.HexToAddress("0x765DE816845861e75A25fCA122bb6898B8B1282a")},
	wallet.TokenPaymasterLiskLSK:  {1135, common.HexToAddress("0xac485391EB2d7D88253a7F1eF18C37f4242D1A24")},
}

func checkTokenChain(t wallet.TokenPaymaster, chainID int64) error {
	token, ok := paymasterTokens[t]
	if !ok || token.chainID == chainID {
		return nil
	}
	return fmt.Errorf("%w: token paymaster %s is only available on chain %d", wallet.ErrConfiguration, t, token.chainID)
}
