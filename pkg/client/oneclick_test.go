package client

import (
	"testing"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xswap/pkg/ledger"
)

func TestMatchAssets(t *testing.T) {
	now := time.Now()
	tokens := []oneclick.TokenResponse{
		*oneclick.NewTokenResponse("nep141:sol-usdc", 6, "sol", "USDC", 1, now),
		*oneclick.NewTokenResponse("nep141:eth-usdc", 6, "eth", "USDC", 1, now),
		*oneclick.NewTokenResponse("nep141:eth-weth", 18, "eth", "WETH", 3000, now),
	}
	assets := []ledger.AssetInfo{
		{Asset: common.HexToAddress("0xe001"), Symbol: "usdc", Decimals: 6},
		{Asset: common.HexToAddress("0xe002"), Symbol: "WETH", Decimals: 18},
		{Asset: common.HexToAddress("0xe003"), Symbol: "XYZ", Decimals: 18},
	}

	priced := MatchAssets(tokens, assets, "ETH")
	require.Len(t, priced, 3)
	require.NotNil(t, priced[0].Token)
	assert.Equal(t, "nep141:eth-usdc", priced[0].Token.GetAssetId())
	require.NotNil(t, priced[1].Token)
	assert.Equal(t, "nep141:eth-weth", priced[1].Token.GetAssetId())
	assert.Nil(t, priced[2].Token)
	assert.Equal(t, assets[2], priced[2].Asset)

	// without a chain the first listing wins
	priced = MatchAssets(tokens, assets[:1], "")
	require.NotNil(t, priced[0].Token)
	assert.Equal(t, "nep141:sol-usdc", priced[0].Token.GetAssetId())

	// no WETH on sol
	priced = MatchAssets(tokens, assets[1:2], "sol")
	assert.Nil(t, priced[0].Token)
}
