package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ledger-dashboard/internal/retry"
)

// PageSize is the number of records requested per explorer page.
const PageSize = 100

// DefaultRequestsPerSecond paces explorer calls below the free-tier limit.
const DefaultRequestsPerSecond = 5.0

// ErrRateLimited marks a response the explorer rejected for pacing; the same page is retried.
var ErrRateLimited = errors.New("explorer rate limit reached")

// EtherscanClient reads account history pages from an Etherscan-compatible explorer API.
type EtherscanClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	retry   *retry.RetryConfig
}

// EtherscanTransaction represents a normal transaction from the txlist action
type EtherscanTransaction struct {
	BlockNumber       string `json:"blockNumber"`
	TimeStamp         string `json:"timeStamp"`
	Hash              string `json:"hash"`
	Nonce             string `json:"nonce"`
	BlockHash         string `json:"blockHash"`
	TransactionIndex  string `json:"transactionIndex"`
	From              string `json:"from"`
	To                string `json:"to"`
	Value             string `json:"value"`
	Gas               string `json:"gas"`
	GasPrice          string `json:"gasPrice"`
	IsError           string `json:"isError"`
	TxReceiptStatus   string `json:"txreceipt_status"`
	Input             string `json:"input"`
	ContractAddress   string `json:"contractAddress"`
	CumulativeGasUsed string `json:"cumulativeGasUsed"`
	GasUsed           string `json:"gasUsed"`
	Confirmations     string `json:"confirmations"`
}

// Fields returns the record keyed by native artifact column.
func (t EtherscanTransaction) Fields() map[string]string {
	return map[string]string{
		"blockNumber":       t.BlockNumber,
		"timeStamp":         t.TimeStamp,
		"hash":              t.Hash,
		"nonce":             t.Nonce,
		"blockHash":         t.BlockHash,
		"transactionIndex":  t.TransactionIndex,
		"from":              t.From,
		"to":                t.To,
		"value":             t.Value,
		"gas":               t.Gas,
		"gasPrice":          t.GasPrice,
		"isError":           t.IsError,
		"txreceipt_status":  t.TxReceiptStatus,
		"input":             t.Input,
		"contractAddress":   t.ContractAddress,
		"cumulativeGasUsed": t.CumulativeGasUsed,
		"gasUsed":           t.GasUsed,
		"confirmations":     t.Confirmations,
	}
}

// EtherscanTokenTransfer represents an ERC20 token transfer from the tokentx action
type EtherscanTokenTransfer struct {
	BlockNumber       string `json:"blockNumber"`
	TimeStamp         string `json:"timeStamp"`
	Hash              string `json:"hash"`
	Nonce             string `json:"nonce"`
	BlockHash         string `json:"blockHash"`
	From              string `json:"from"`
	ContractAddress   string `json:"contractAddress"`
	To                string `json:"to"`
	Value             string `json:"value"`
	TokenName         string `json:"tokenName"`
	TokenSymbol       string `json:"tokenSymbol"`
	TokenDecimal      string `json:"tokenDecimal"`
	TransactionIndex  string `json:"transactionIndex"`
	Gas               string `json:"gas"`
	GasPrice          string `json:"gasPrice"`
	GasUsed           string `json:"gasUsed"`
	CumulativeGasUsed string `json:"cumulativeGasUsed"`
	Input             string `json:"input"`
	Confirmations     string `json:"confirmations"`
}

// Fields returns the record keyed by token artifact column.
func (t EtherscanTokenTransfer) Fields() map[string]string {
	return map[string]string{
		"blockNumber":       t.BlockNumber,
		"timeStamp":         t.TimeStamp,
		"hash":              t.Hash,
		"nonce":             t.Nonce,
		"blockHash":         t.BlockHash,
		"from":              t.From,
		"contractAddress":   t.ContractAddress,
		"to":                t.To,
		"value":             t.Value,
		"tokenName":         t.TokenName,
		"tokenSymbol":       t.TokenSymbol,
		"tokenDecimal":      t.TokenDecimal,
		"transactionIndex":  t.TransactionIndex,
		"gas":               t.Gas,
		"gasPrice":          t.GasPrice,
		"gasUsed":           t.GasUsed,
		"cumulativeGasUsed": t.CumulativeGasUsed,
		"input":             t.Input,
		"confirmations":     t.Confirmations,
	}
}

// PageQuery selects one page of an account action.
type PageQuery struct {
	Action     string // "txlist" or "tokentx"
	Address    string
	Contract   string // tokentx only
	StartBlock string
	EndBlock   string
	Page       int
}

// envelope is the common explorer response shape. Result is a list on success and a string otherwise.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// NewEtherscanClient creates a client paced at requestsPerSecond.
func NewEtherscanClient(apiKey, baseURL string, requestsPerSecond float64) *EtherscanClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}
	return &EtherscanClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		retry: &retry.RetryConfig{
			MaxAttempts:  6,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Retryable:    isTransient,
		},
	}
}

// WithRetryConfig replaces the page retry policy.
func (c *EtherscanClient) WithRetryConfig(cfg *retry.RetryConfig) *EtherscanClient {
	cfg.Retryable = isTransient
	c.retry = cfg
	return c
}

func isTransient(err error) bool {
	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		return httpErr.code == http.StatusTooManyRequests || httpErr.code >= 500
	}
	var netErr *transportError
	return errors.Is(err, ErrRateLimited) || errors.As(err, &netErr)
}

type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d - %s", e.code, e.body)
}

type transportError struct{ err error }

func (e *transportError) Error() string { return "failed to make request: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// FetchTransactions returns one page of native transactions. An empty slice means no more records.
func (c *EtherscanClient) FetchTransactions(ctx context.Context, q PageQuery) ([]EtherscanTransaction, error) {
	q.Action = "txlist"
	var out []EtherscanTransaction
	err := c.fetchPage(ctx, q, &out)
	return out, err
}

// FetchTokenTransfers returns one page of token transfers for q.Contract.
func (c *EtherscanClient) FetchTokenTransfers(ctx context.Context, q PageQuery) ([]EtherscanTokenTransfer, error) {
	q.Action = "tokentx"
	var out []EtherscanTokenTransfer
	err := c.fetchPage(ctx, q, &out)
	return out, err
}

func (c *EtherscanClient) fetchPage(ctx context.Context, q PageQuery, dest interface{}) error {
	if c.apiKey == "" {
		return fmt.Errorf("explorer API key not configured")
	}
	reqURL := c.pageURL(q)

	result := retry.WithExponentialBackoff(ctx, c.retry, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		body, err := c.doRequest(ctx, reqURL)
		if err != nil {
			return err
		}
		return decodePage(body, dest)
	})
	if !result.Success {
		return result.LastError
	}
	return nil
}

func (c *EtherscanClient) pageURL(q PageQuery) string {
	startBlock := q.StartBlock
	if startBlock == "" {
		startBlock = "0"
	}
	endBlock := q.EndBlock
	if endBlock == "" || endBlock == "latest" {
		endBlock = "99999999"
	}

	v := url.Values{}
	v.Set("module", "account")
	v.Set("action", q.Action)
	v.Set("address", q.Address)
	if q.Contract != "" {
		v.Set("contractaddress", q.Contract)
	}
	v.Set("startblock", startBlock)
	v.Set("endblock", endBlock)
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("offset", strconv.Itoa(PageSize))
	v.Set("sort", "asc")
	v.Set("apikey", c.apiKey)
	return c.baseURL + "?" + v.Encode()
}

// decodePage fills dest from a successful envelope. "No transactions found" yields an empty page.
func decodePage(body []byte, dest interface{}) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if env.Status == "1" {
		if err := json.Unmarshal(env.Result, dest); err != nil {
			return fmt.Errorf("failed to parse records: %w", err)
		}
		return nil
	}

	detail := env.Message
	var text string
	if json.Unmarshal(env.Result, &text) == nil && text != "" {
		detail = text
	}

	switch {
	case env.Message == "No transactions found" || env.Message == "No records found":
		return nil
	case strings.Contains(detail, "Max rate limit reached"):
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)
	default:
		return fmt.Errorf("explorer API error: %s", detail)
	}
}

// doRequest performs one GET. 429 and 5xx responses are returned as retryable errors.
func (c *EtherscanClient) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// url.Error repeats the request URL, which carries the API key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{code: resp.StatusCode, body: string(body)}
	}
	return body, nil
}
