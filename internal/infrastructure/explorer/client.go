// Package explorer talks to Etherscan-compatible block explorer APIs for
// facts that plain JSON-RPC cannot answer cheaply: when a Safe was created,
// when it last transacted and what its owners do outside it.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
	"github.com/khanhnv2901/safe-audit/internal/infrastructure/httpjson"
	"github.com/khanhnv2901/safe-audit/internal/shared/constants"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

// DefaultRate is the free-tier Etherscan budget in requests per second.
const DefaultRate = 4

// Tx is one explorer transaction row.
type Tx struct {
	Hash        string
	From        common.Address
	To          common.Address
	BlockNumber uint64
	Timestamp   time.Time
	Failed      bool
}

// Options configures a Client.
type Options struct {
	APIKey      string
	Rate        float64
	Retries     uint64
	Timeout     time.Duration
	Concurrency int
	Logger      *zap.Logger
}

// Client queries the explorer configured on each chain descriptor.
type Client struct {
	apiKey      string
	http        *httpjson.Client
	concurrency int
	logger      *zap.Logger
}

// New creates an explorer client. Without an API key every method returns
// ErrExplorerDisabled.
func New(opts Options) *Client {
	if opts.Rate <= 0 {
		opts.Rate = DefaultRate
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		apiKey:      opts.APIKey,
		http:        httpjson.New(opts.Timeout, opts.Rate, opts.Retries, opts.Logger),
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type txRow struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
	IsError     string `json:"isError"`
}

// Transactions lists up to limit transactions touching address, using the
// given action (txlist or txlistinternal) and sort order (asc or desc).
func (c *Client) Transactions(ctx context.Context, desc chain.Descriptor, address common.Address, action, order string, limit int) ([]Tx, error) {
	if !c.Enabled() {
		return nil, domainerrors.ErrExplorerDisabled
	}
	if desc.ExplorerAPI == "" {
		return nil, fmt.Errorf("%w: no explorer API for %s", domainerrors.ErrExplorerDisabled, desc.Name)
	}

	q := url.Values{}
	q.Set("chainid", strconv.FormatUint(desc.ID, 10))
	q.Set("module", "account")
	q.Set("action", action)
	q.Set("address", address.Hex())
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("page", "1")
	q.Set("offset", strconv.Itoa(limit))
	q.Set("sort", order)
	q.Set("apikey", c.apiKey)
	endpoint := desc.ExplorerAPI + "?" + q.Encode()

	var env envelope
	err := c.http.Get(ctx, endpoint, nil, &env, func() error {
		if env.Status == "1" || isEmpty(env) {
			return nil
		}
		detail := resultText(env.Result)
		if strings.Contains(strings.ToLower(detail), "rate limit") {
			return retry.RetryableError(fmt.Errorf("explorer rate limited: %s", detail))
		}
		return fmt.Errorf("explorer error: %s: %s", env.Message, detail)
	})
	if err != nil {
		return nil, domainerrors.Wrap(desc.ID, action, fmt.Errorf("%w: %w", domainerrors.ErrMissingAuxiliaryData, err))
	}
	if isEmpty(env) {
		return []Tx{}, nil
	}

	var rows []txRow
	if err := json.Unmarshal(env.Result, &rows); err != nil {
		return nil, domainerrors.Wrap(desc.ID, action, fmt.Errorf("%w: decode result: %v", domainerrors.ErrMissingAuxiliaryData, err))
	}
	txs := make([]Tx, 0, len(rows))
	for _, row := range rows {
		tx, err := row.parse()
		if err != nil {
			return nil, domainerrors.Wrap(desc.ID, action, fmt.Errorf("%w: %v", domainerrors.ErrMissingAuxiliaryData, err))
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// CreationTime approximates the Safe's creation as the earliest of its first
// external and first internal transaction. Proxies deployed through a
// factory show up only in the internal list.
func (c *Client) CreationTime(ctx context.Context, desc chain.Descriptor, address common.Address) (*time.Time, error) {
	var earliest *time.Time
	var errs []error
	for _, action := range []string{"txlist", "txlistinternal"} {
		txs, err := c.Transactions(ctx, desc, address, action, "asc", 1)
		if err != nil {
			if errors.Is(err, domainerrors.ErrExplorerDisabled) {
				return nil, err
			}
			errs = append(errs, err)
			continue
		}
		if len(txs) > 0 && (earliest == nil || txs[0].Timestamp.Before(*earliest)) {
			ts := txs[0].Timestamp
			earliest = &ts
		}
	}
	if earliest == nil && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return earliest, nil
}

// LastTxTime returns the timestamp of the most recent transaction sent to
// the Safe, or nil when there is none.
func (c *Client) LastTxTime(ctx context.Context, desc chain.Descriptor, address common.Address) (*time.Time, error) {
	txs, err := c.Transactions(ctx, desc, address, "txlist", "desc", 1)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	ts := txs[0].Timestamp
	return &ts, nil
}

// OwnerActivity counts, for every owner, the recent transactions it sent to
// any address other than the Safe.
func (c *Client) OwnerActivity(ctx context.Context, desc chain.Descriptor, safeAddr common.Address, owners []common.Address) (map[common.Address]int, error) {
	if !c.Enabled() {
		return nil, domainerrors.ErrExplorerDisabled
	}

	activity := make(map[common.Address]int, len(owners))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, owner := range owners {
		g.Go(func() error {
			txs, err := c.Transactions(gctx, desc, owner, "txlist", "desc", constants.OwnerActivitySample)
			if err != nil {
				return err
			}
			count := 0
			for _, tx := range txs {
				if tx.From == owner && tx.To != safeAddr {
					count++
				}
			}
			mu.Lock()
			activity[owner] = count
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return activity, nil
}

func (r txRow) parse() (Tx, error) {
	ts, err := strconv.ParseInt(r.TimeStamp, 10, 64)
	if err != nil {
		return Tx{}, fmt.Errorf("timestamp %q: %w", r.TimeStamp, err)
	}
	block, err := strconv.ParseUint(r.BlockNumber, 10, 64)
	if err != nil {
		return Tx{}, fmt.Errorf("block number %q: %w", r.BlockNumber, err)
	}
	tx := Tx{
		Hash:        r.Hash,
		From:        common.HexToAddress(r.From),
		BlockNumber: block,
		Timestamp:   time.Unix(ts, 0).UTC(),
		Failed:      r.IsError == "1",
	}
	if r.To != "" {
		tx.To = common.HexToAddress(r.To)
	}
	return tx, nil
}

// isEmpty recognises the "No transactions found" reply, which Etherscan
// reports with status 0.
func isEmpty(env envelope) bool {
	if env.Status == "1" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(env.Message), "no transactions found") {
		return true
	}
	var rows []json.RawMessage
	return json.Unmarshal(env.Result, &rows) == nil && len(rows) == 0 && env.Message != "NOTOK"
}

func resultText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
