package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/relayer"
	"github.com/ferrylabs/ferry/pkg/store"
)

// Client talks to the relayer API over HTTP. It is what the resolver uses
// when relayer and resolver run as separate processes.
type Client interface {
	Health() error
	SubmitOrder(chain model.Chain, payload json.RawMessage, proof string) (SubmitOrderResponse, error)
	Order(id string) (model.Order, error)
	Orders(filter store.OrderFilter) ([]model.Order, error)
	ResolveIntent(orderID, resolverID string) (IntentResponse, error)
	Verify(orderID, escrowSrc, escrowDst string) (VerifyResponse, error)
	SubmitSecret(orderID, secret string) (SecretResponse, error)
	Cancel(orderID string) (CancelResponse, error)
	Settle(orderID string, outcome relayer.Outcome) error
}

type client struct {
	url  string
	user string
	pass string
	http *http.Client
}

// NewClient returns a Client for the relayer at the given base url. The
// credentials are only needed for the resolver-facing routes.
func NewClient(baseURL, user, pass string) Client {
	return &client{
		url:  baseURL,
		user: user,
		pass: pass,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) Health() error {
	return c.get("/health", nil, nil)
}

func (c *client) SubmitOrder(chain model.Chain, payload json.RawMessage, proof string) (SubmitOrderResponse, error) {
	var resp SubmitOrderResponse
	err := c.post("/orders", SubmitOrderRequest{Chain: chain, Payload: payload, Proof: proof}, &resp)
	return resp, err
}

func (c *client) Order(id string) (model.Order, error) {
	var order model.Order
	err := c.get("/orders/"+id, nil, &order)
	return order, err
}

func (c *client) Orders(filter store.OrderFilter) ([]model.Order, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.Chain != "" {
		query.Set("chain", string(filter.Chain))
	}
	if filter.Resolver != "" {
		query.Set("resolver", filter.Resolver)
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		query.Set("offset", strconv.Itoa(filter.Offset))
	}
	var resp ListOrdersResponse
	if err := c.get("/orders", query, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

func (c *client) ResolveIntent(orderID, resolverID string) (IntentResponse, error) {
	query := url.Values{}
	query.Set("orderId", orderID)
	query.Set("resolverId", resolverID)
	var resp IntentResponse
	err := c.get("/resolve-intent", query, &resp)
	return resp, err
}

func (c *client) Verify(orderID, escrowSrc, escrowDst string) (VerifyResponse, error) {
	var resp VerifyResponse
	err := c.post("/verify", VerifyRequest{OrderID: orderID, EscrowSrc: escrowSrc, EscrowDst: escrowDst}, &resp)
	return resp, err
}

func (c *client) SubmitSecret(orderID, secret string) (SecretResponse, error) {
	var resp SecretResponse
	err := c.post("/secret", SecretRequest{OrderID: orderID, Secret: secret}, &resp)
	return resp, err
}

func (c *client) Cancel(orderID string) (CancelResponse, error) {
	var resp CancelResponse
	err := c.post("/orders/"+orderID+"/cancel", struct{}{}, &resp)
	return resp, err
}

func (c *client) Settle(orderID string, outcome relayer.Outcome) error {
	req := SettleRequest{
		Success:   outcome.Success,
		Error:     outcome.Error,
		SrcTxHash: outcome.SrcTxHash,
		DstTxHash: outcome.DstTxHash,
	}
	return c.post("/orders/"+orderID+"/settle", req, nil)
}

func (c *client) get(path string, query url.Values, result interface{}) error {
	endpoint := c.url + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, result)
}

func (c *client) post(path string, body interface{}, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request, %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.url+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *client) do(req *http.Request, result interface{}) error {
	if c.user != "" || c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp ErrorResponse
		if err := json.Unmarshal(data, &errResp); err != nil || errResp.Error == "" {
			errResp.Error = string(data)
		}
		return RequestError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(data, result)
}
