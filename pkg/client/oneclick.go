package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"

	"xswap/pkg/ledger"
)

// OneClickClient wraps the 1Click SDK
type OneClickClient struct {
	client   *oneclick.APIClient
	jwtToken string
}

// NewOneClickClient creates a new 1Click API client
func NewOneClickClient(jwtToken string) *OneClickClient {
	return &OneClickClient{
		client:   oneclick.NewAPIClient(oneclick.NewConfiguration()),
		jwtToken: jwtToken,
	}
}

func (c *OneClickClient) auth(ctx context.Context) context.Context {
	return context.WithValue(ctx, oneclick.ContextAccessToken, c.jwtToken)
}

// GetSupportedTokens retrieves all supported tokens
func (c *OneClickClient) GetSupportedTokens(ctx context.Context) ([]oneclick.TokenResponse, error) {
	resp, httpResp, err := c.client.OneClickAPI.GetTokens(c.auth(ctx)).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != 200 {
		return nil, fmt.Errorf("API returned status code %d", httpResp.StatusCode)
	}

	return resp, nil
}

// FindToken searches for a token by symbol, on chain if chain is not empty
func (c *OneClickClient) FindToken(ctx context.Context, symbol, chain string) (*oneclick.TokenResponse, error) {
	tokens, err := c.GetSupportedTokens(ctx)
	if err != nil {
		return nil, err
	}

	if token, ok := matchToken(tokens, symbol, chain); ok {
		return token, nil
	}

	if chain != "" {
		return nil, fmt.Errorf("token '%s' not found on chain '%s'", symbol, chain)
	}
	return nil, fmt.Errorf("token '%s' not found", symbol)
}

// QuoteParams describes a dry-run quote for an exact input amount
type QuoteParams struct {
	Source    *oneclick.TokenResponse
	Dest      *oneclick.TokenResponse
	Amount    *big.Int // smallest unit of Source
	Recipient string
	RefundTo  string
}

// GetQuote requests a dry-run quote; no deposit address is created
func (c *OneClickClient) GetQuote(ctx context.Context, p QuoteParams) (*oneclick.QuoteResponse, error) {
	if p.Recipient == "" {
		return nil, fmt.Errorf("recipient address is required")
	}
	refundTo := p.RefundTo
	if refundTo == "" {
		refundTo = p.Recipient
	}

	quoteReq := oneclick.NewQuoteRequest(
		true,                      // dry
		"EXACT_INPUT",             // swapType
		100,                       // slippageTolerance (1%)
		p.Source.GetAssetId(),     // originAsset
		"ORIGIN_CHAIN",            // depositType
		p.Dest.GetAssetId(),       // destinationAsset
		p.Amount.String(),         // amount in smallest unit
		refundTo,                  // refundTo
		"ORIGIN_CHAIN",            // refundType
		p.Recipient,               // recipient
		"DESTINATION_CHAIN",       // recipientType
		time.Now().Add(time.Hour), // deadline
	)

	resp, httpResp, err := c.client.OneClickAPI.GetQuote(c.auth(ctx)).QuoteRequest(*quoteReq).Execute()
	if err != nil {
		if httpResp != nil {
			defer httpResp.Body.Close()
			return nil, decodeAPIError(httpResp.StatusCode, httpResp.Body, err)
		}
		return nil, fmt.Errorf("failed to get quote from API: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("API returned status code %d", httpResp.StatusCode)
	}
	if resp == nil {
		return nil, fmt.Errorf("empty quote response")
	}
	return resp, nil
}

// OneClickQuoter prices asset pairs from 1Click dry-run quotes. Assets are
// matched to 1Click tokens by symbol.
type OneClickQuoter struct {
	client    *OneClickClient
	chain     string
	recipient string
}

// NewOneClickQuoter creates a quoter. Tokens are looked up on chain when it
// is not empty; recipient is any address the API accepts for a dry quote.
func NewOneClickQuoter(client *OneClickClient, chain, recipient string) *OneClickQuoter {
	return &OneClickQuoter{client: client, chain: chain, recipient: recipient}
}

// Price implements exchange.Quoter: whole units of dst per whole unit of src
func (q *OneClickQuoter) Price(ctx context.Context, src, dst ledger.AssetInfo) (*big.Rat, error) {
	source, err := q.client.FindToken(ctx, src.Symbol, q.chain)
	if err != nil {
		return nil, fmt.Errorf("source token error: %w", err)
	}
	dest, err := q.client.FindToken(ctx, dst.Symbol, q.chain)
	if err != nil {
		return nil, fmt.Errorf("destination token error: %w", err)
	}

	// Quote one whole source unit
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(source.GetDecimals())), nil)
	quote, err := q.client.GetQuote(ctx, QuoteParams{
		Source:    source,
		Dest:      dest,
		Amount:    one,
		Recipient: q.recipient,
	})
	if err != nil {
		return nil, err
	}

	details := quote.GetQuote()
	in, ok := new(big.Rat).SetString(details.GetAmountInFormatted())
	if !ok || in.Sign() == 0 {
		return nil, fmt.Errorf("invalid amount in: %q", details.GetAmountInFormatted())
	}
	out, ok := new(big.Rat).SetString(details.GetAmountOutFormatted())
	if !ok {
		return nil, fmt.Errorf("invalid amount out: %q", details.GetAmountOutFormatted())
	}
	return out.Quo(out, in), nil
}

// PricedAsset is a registered asset and the 1Click token it is priced as
type PricedAsset struct {
	Asset ledger.AssetInfo
	Token *oneclick.TokenResponse // nil when 1Click lists no match
}

// Tokens matches assets to the 1Click tokens Price would quote them with
func (q *OneClickQuoter) Tokens(ctx context.Context, assets []ledger.AssetInfo) ([]PricedAsset, error) {
	tokens, err := q.client.GetSupportedTokens(ctx)
	if err != nil {
		return nil, err
	}
	return MatchAssets(tokens, assets, q.chain), nil
}

// MatchAssets pairs every asset with the token of the same symbol, on chain
// if chain is not empty
func MatchAssets(tokens []oneclick.TokenResponse, assets []ledger.AssetInfo, chain string) []PricedAsset {
	priced := make([]PricedAsset, len(assets))
	for i, a := range assets {
		priced[i].Asset = a
		if token, ok := matchToken(tokens, a.Symbol, chain); ok {
			priced[i].Token = token
		}
	}
	return priced
}

func matchToken(tokens []oneclick.TokenResponse, symbol, chain string) (*oneclick.TokenResponse, bool) {
	symbol = strings.ToUpper(symbol)
	chain = strings.ToLower(chain)

	for i := range tokens {
		if strings.ToUpper(tokens[i].GetSymbol()) != symbol {
			continue
		}
		if chain == "" || strings.ToLower(tokens[i].GetBlockchain()) == chain {
			return &tokens[i], true
		}
	}
	return nil, false
}

// decodeAPIError reads the message out of an error body
func decodeAPIError(status int, body io.Reader, cause error) error {
	bodyBytes, err := io.ReadAll(body)
	if err != nil || len(bodyBytes) == 0 {
		return fmt.Errorf("failed to get quote from API (status: %d): %w", status, cause)
	}

	var errorResp map[string]interface{}
	if jsonErr := json.Unmarshal(bodyBytes, &errorResp); jsonErr == nil {
		if message, ok := errorResp["message"].(string); ok {
			return fmt.Errorf("API error (status %d): %s", status, message)
		}
		if errors, ok := errorResp["errors"]; ok {
			return fmt.Errorf("API error (status %d): %v", status, errors)
		}
	}
	return fmt.Errorf("API error (status %d): %s", status, string(bodyBytes))
}
