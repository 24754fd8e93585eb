package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"summit-webhook/internal/config"
	"summit-webhook/internal/model"
	"summit-webhook/internal/repository"
	"time"
)

var ErrMissingCredential = errors.New("backend service credential is not configured")

// backendClientImpl talks to the hosted data backend's REST interface with
// the privileged service key, bypassing row level security.
type backendClientImpl struct {
	httpClient        *http.Client
	baseURL           string
	serviceKey        string
	accountsTable     string
	transactionsTable string
}

func NewBackendClient(backendCfg *config.Backend) (repository.AccountStore, error) {
	if !backendCfg.HasCredential() {
		return nil, ErrMissingCredential
	}

	timeout := backendCfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &backendClientImpl{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:           strings.TrimRight(backendCfg.URL, "/"),
		serviceKey:        backendCfg.ServiceKey,
		accountsTable:     backendCfg.AccountsTable,
		transactionsTable: backendCfg.TransactionsTable,
	}, nil
}

func (c *backendClientImpl) FindAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := url.Values{}
	query.Set("email", emailFilter(email))
	query.Set("select", "id,email,plan")
	query.Set("limit", "1")

	var accounts []model.Account
	if err := c.do(ctx, http.MethodGet, c.tableURL(c.accountsTable, query), nil, nil, &accounts); err != nil {
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	if len(accounts) == 0 {
		return nil, repository.ErrAccountNotFound
	}

	return &accounts[0], nil
}

func (c *backendClientImpl) UpdateAccountPlan(ctx context.Context, accountID, plan string) error {
	query := url.Values{}
	query.Set("id", "eq."+accountID)

	var updated []model.Account
	err := c.do(ctx, http.MethodPatch, c.tableURL(c.accountsTable, query),
		map[string]string{"Prefer": "return=representation"},
		map[string]string{"plan": plan},
		&updated,
	)
	if err != nil {
		return fmt.Errorf("update account plan: %w", err)
	}
	if len(updated) == 0 {
		return repository.ErrAccountNotFound
	}

	return nil
}

func (c *backendClientImpl) InsertTransactionIfAbsent(ctx context.Context, txn *model.AccountTransaction) (bool, error) {
	query := url.Values{}
	query.Set("on_conflict", "provider_transaction_id")

	var inserted []json.RawMessage
	err := c.do(ctx, http.MethodPost, c.tableURL(c.transactionsTable, query),
		map[string]string{"Prefer": "resolution=ignore-duplicates,return=representation"},
		txn,
		&inserted,
	)
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}

	// ignored duplicates come back as an empty representation
	return len(inserted) > 0, nil
}

// RunInTx has no transaction to open over REST; the unique index on
// provider_transaction_id remains the idempotency gate.
func (c *backendClientImpl) RunInTx(ctx context.Context, fn func(store repository.AccountStore) error) error {
	return fn(c)
}

// emailFilter matches an address case-insensitively. LIKE wildcards are
// escaped; the backend treats '*' as a wildcard with no escape, so such
// addresses fall back to an exact match on the lower-cased value.
func emailFilter(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if strings.Contains(email, "*") {
		return "eq." + email
	}
	return "ilike." + likeEscaper.Replace(email)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (c *backendClientImpl) tableURL(table string, query url.Values) string {
	return fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, url.PathEscape(table), query.Encode())
}

func (c *backendClientImpl) do(ctx context.Context, method, endpoint string, headers map[string]string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal req payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend error %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode backend response: %w", err)
	}

	return nil
}
