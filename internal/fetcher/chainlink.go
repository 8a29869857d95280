package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	chainlinkProvider      = "chainlink"
	aggregatorV3ABIJSON    = `[{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}]`
	defaultChainlinkBTCUSD = "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"
)

var aggregatorV3ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorV3ABIJSON))
	if err != nil {
		panic("failed to parse AggregatorV3 ABI: " + err.Error())
	}
	aggregatorV3ABI = parsed
}

// ChainlinkOptions parameterise the on-chain price feed source.
type ChainlinkOptions struct {
	RPCURL      string
	FeedAddress string
	Timeout     time.Duration
}

// Chainlink reads the latest answer of a Chainlink AggregatorV3 price feed.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex

	decimals    int32
	hasDecimals bool
}

// NewChainlink builds a Chainlink feed source. An empty feed address selects BTC/USD on mainnet.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	if opts.FeedAddress == "" {
		opts.FeedAddress = defaultChainlinkBTCUSD
	}
	return &Chainlink{opts: opts, logger: logger.With().Str("component", "chainlink_fetcher").Logger()}
}

// FetchPrice returns the latest feed answer scaled by the feed decimals.
func (c *Chainlink) FetchPrice(ctx context.Context) (float64, error) {
	if c.opts.RPCURL == "" {
		return 0, c.fail("config", errors.New("ethereum rpc url not configured"))
	}
	if !common.IsHexAddress(c.opts.FeedAddress) {
		return 0, c.fail("config", fmt.Errorf("invalid feed address %q", c.opts.FeedAddress))
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return 0, c.fail("dial", err)
	}

	addr := common.HexToAddress(c.opts.FeedAddress)

	decimals, err := c.feedDecimals(ctx, client, addr)
	if err != nil {
		return 0, c.fail("decimals", err)
	}

	outputs, err := c.call(ctx, client, addr, "latestRoundData")
	if err != nil {
		return 0, c.fail("latestRoundData", err)
	}
	if len(outputs) != 5 {
		return 0, c.fail("latestRoundData", errors.New("unexpected latestRoundData response"))
	}

	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return 0, c.fail("latestRoundData", errors.New("failed to decode answer"))
	}
	if answer.Sign() <= 0 {
		return 0, c.fail("latestRoundData", fmt.Errorf("non-positive answer %s", answer.String()))
	}

	price := decimal.NewFromBigInt(answer, -decimals)
	if updatedAt, ok := outputs[3].(*big.Int); ok {
		c.logger.Debug().Str("price", price.String()).Int64("updated_at", updatedAt.Int64()).Msg("feed answer fetched")
	}
	return price.InexactFloat64(), nil
}

func (c *Chainlink) feedDecimals(ctx context.Context, client *ethclient.Client, addr common.Address) (int32, error) {
	c.clientMux.Lock()
	cached, ok := c.decimals, c.hasDecimals
	c.clientMux.Unlock()
	if ok {
		return cached, nil
	}

	outputs, err := c.call(ctx, client, addr, "decimals")
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	d, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}

	c.clientMux.Lock()
	c.decimals, c.hasDecimals = int32(d), true
	c.clientMux.Unlock()
	return int32(d), nil
}

func (c *Chainlink) call(ctx context.Context, client *ethclient.Client, addr common.Address, method string) ([]interface{}, error) {
	payload, err := aggregatorV3ABI.Pack(method)
	if err != nil {
		return nil, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, err
	}
	return aggregatorV3ABI.Unpack(method, res)
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

func (c *Chainlink) fail(op string, err error) error {
	return &ProviderError{Provider: chainlinkProvider, Op: op, Err: err}
}

var _ PriceSource = (*Chainlink)(nil)
