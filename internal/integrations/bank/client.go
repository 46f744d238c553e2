package bank

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

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"

	"github.com/meridianpay/decision-service/internal/models"
)

// ErrorKind classifies a fetch failure for the orchestrator and metrics.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindConnection ErrorKind = "connection_error"
	KindHTTP       ErrorKind = "http_error"
	KindNotFound   ErrorKind = "not_found"
)

// FetchError is a typed failure from the transaction history provider,
// surfaced after the client's own retry budget is exhausted. Transient
// failures (timeouts, connection errors, provider 5xx) are retried; the
// provider's 404 is authoritative and 4xx responses will not change on retry.
type FetchError struct {
	Kind      ErrorKind
	Detail    string
	Transient bool
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("bank fetch failed (%s): %s", e.Kind, e.Detail)
}

// Client fetches transaction history from the banking data provider. It owns
// its retry policy: transient failures (timeouts, connection errors, 5xx)
// are retried with exponential backoff before a FetchError is surfaced.
type Client struct {
	baseURL string
	client  *http.Client
	log     *logrus.Logger

	maxAttempts int
	baseBackoff time.Duration
}

// NewClient initializes a provider client with a bounded request timeout.
func NewClient(baseURL string, log *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		log:         log,
		maxAttempts: 3,
		baseBackoff: 200 * time.Millisecond,
	}
}

// GetTransactions fetches the user's transaction events for the trailing
// window. The returned slice may be empty: an empty-but-successful fetch is
// a legitimate thin file, distinct from a fetch failure.
func (c *Client) GetTransactions(ctx context.Context, userID string, windowDays int) ([]models.TransactionEvent, error) {
	endpoint := fmt.Sprintf("%s/bank/transactions?user_id=%s&window_days=%d",
		c.baseURL, url.QueryEscape(userID), windowDays)

	var lastErr *FetchError
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		events, ferr := c.fetchOnce(ctx, endpoint)
		if ferr == nil {
			return events, nil
		}
		lastErr = ferr

		c.log.WithFields(logrus.Fields{
			"user_id": userID,
			"attempt": attempt,
			"kind":    ferr.Kind,
		}).Warnf("Bank fetch attempt failed: %s", ferr.Detail)

		if !ferr.Transient || attempt == c.maxAttempts {
			break
		}

		backoff := c.baseBackoff << (attempt - 1)
		select {
		case <-ctx.Done():
			return nil, &FetchError{Kind: KindConnection, Detail: ctx.Err().Error()}
		case <-time.After(backoff):
		}
	}

	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, endpoint string) ([]models.TransactionEvent, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindConnection, Detail: err.Error()}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, &FetchError{Kind: KindTimeout, Detail: err.Error(), Transient: true}
		}
		return nil, &FetchError{Kind: KindConnection, Detail: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &FetchError{Kind: KindNotFound, Detail: "user not found"}
	case resp.StatusCode >= 500:
		return nil, &FetchError{Kind: KindHTTP, Detail: fmt.Sprintf("provider returned %d", resp.StatusCode), Transient: true}
	case resp.StatusCode != http.StatusOK:
		return nil, &FetchError{Kind: KindHTTP, Detail: fmt.Sprintf("unexpected status code: %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: KindConnection, Detail: fmt.Sprintf("failed to read response: %v", err)}
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "xml") {
		events, perr := parseXMLStatement(body)
		if perr != nil {
			return nil, &FetchError{Kind: KindHTTP, Detail: perr.Error()}
		}
		return events, nil
	}

	events, perr := parseJSONStatement(body)
	if perr != nil {
		return nil, &FetchError{Kind: KindHTTP, Detail: perr.Error()}
	}
	return events, nil
}

type wireTransaction struct {
	Date              string `json:"date"`
	AmountCents       int64  `json:"amount_cents"`
	BalanceAfterCents *int64 `json:"balance_after_cents"`
	NSF               bool   `json:"nsf"`
}

type wireStatement struct {
	UserID       string            `json:"user_id"`
	Transactions []wireTransaction `json:"transactions"`
}

func parseJSONStatement(body []byte) ([]models.TransactionEvent, error) {
	var stmt wireStatement
	if err := json.Unmarshal(body, &stmt); err != nil {
		return nil, fmt.Errorf("failed to parse statement: %w", err)
	}

	events := make([]models.TransactionEvent, 0, len(stmt.Transactions))
	for _, t := range stmt.Transactions {
		ts, err := time.Parse("2006-01-02", t.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid transaction date %q: %w", t.Date, err)
		}
		events = append(events, models.TransactionEvent{
			Timestamp:         ts,
			AmountCents:       t.AmountCents,
			BalanceAfterCents: t.BalanceAfterCents,
			NSF:               t.NSF,
		})
	}
	return events, nil
}

// parseXMLStatement handles the provider's legacy XML statement format:
//
//	<statement user_id="...">
//	  <transactions>
//	    <transaction date="2026-05-01" amount_cents="-1250"
//	                 balance_after_cents="8750" nsf="false"/>
//	  </transactions>
//	</statement>
func parseXMLStatement(body []byte) ([]models.TransactionEvent, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("failed to parse XML statement: %w", err)
	}

	var events []models.TransactionEvent
	for _, el := range doc.FindElements("//transaction") {
		ts, err := time.Parse("2006-01-02", el.SelectAttrValue("date", ""))
		if err != nil {
			return nil, fmt.Errorf("invalid transaction date in XML: %w", err)
		}
		amount, err := strconv.ParseInt(el.SelectAttrValue("amount_cents", ""), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid amount_cents in XML: %w", err)
		}

		ev := models.TransactionEvent{
			Timestamp:   ts,
			AmountCents: amount,
			NSF:         el.SelectAttrValue("nsf", "false") == "true",
		}
		if raw := el.SelectAttrValue("balance_after_cents", ""); raw != "" {
			bal, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid balance_after_cents in XML: %w", err)
			}
			ev.BalanceAfterCents = &bal
		}
		events = append(events, ev)
	}
	return events, nil
}
