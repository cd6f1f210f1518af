package rpcclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	jsonrpc "github.com/hashbridge/relay/rpc"
	"github.com/hashbridge/relay/rpc/methods"
)

type client struct {
	User      string
	Pass      string
	Protocol  string
	RPCServer string
}

type Client interface {
	GetAccounts() (json.RawMessage, error)
	CreateOrder(data methods.RequestCreate) (json.RawMessage, error)
	Deploy(data methods.RequestDeploy) (json.RawMessage, error)
	Withdraw(data methods.RequestWithdraw) (json.RawMessage, error)
	Cancel(data methods.RequestOrder) (json.RawMessage, error)
	RetryOrder(data methods.RequestOrder) (json.RawMessage, error)
	GetOrder(data methods.RequestOrder) (json.RawMessage, error)
	ListOrders() (json.RawMessage, error)
	Timelocks(data methods.RequestOrder) (json.RawMessage, error)
	SetAutoWithdraw(data methods.RequestAutoWithdraw) (json.RawMessage, error)
}

func NewClient(userName string, password string, protocol string, rpcServer string) Client {
	return &client{
		User:      userName,
		Pass:      password,
		Protocol:  protocol,
		RPCServer: rpcServer,
	}
}

// SendPostRequest sends the marshalled JSON-RPC command using HTTP-POST mode
// to the configured server and returns either the result field or the error
// field of the response.
func (c *client) SendPostRequest(method string, jsonData []byte) (json.RawMessage, error) {
	payload := jsonrpc.Request{
		Version: "2.0",
		Method:  method,
		Params:  json.RawMessage(jsonData),
	}
	marshalledJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := c.Protocol + "://" + c.RPCServer
	bodyReader := bytes.NewReader(marshalledJSON)
	httpRequest, err := http.NewRequest("POST", url, bodyReader)
	if err != nil {
		return nil, err
	}
	httpRequest.Close = true
	httpRequest.Header.Set("Content-Type", "application/json")

	// Configure basic access authorization.
	httpRequest.SetBasicAuth(c.User, c.Pass)

	httpResponse, err := http.DefaultClient.Do(httpRequest)
	if err != nil {
		return nil, err
	}

	// Read the raw bytes and close the response.
	respBytes, err := io.ReadAll(httpResponse.Body)
	httpResponse.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("error reading json reply: %v", err)
	}

	// Handle unsuccessful HTTP responses
	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		if len(respBytes) == 0 {
			return nil, fmt.Errorf("%d %s", httpResponse.StatusCode,
				http.StatusText(httpResponse.StatusCode))
		}
		return nil, fmt.Errorf("%s", respBytes)
	}

	// Unmarshal the response.
	var resp jsonrpc.Response
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("error occurred: %s with data: %s", resp.Error.Message, resp.Error.Data)
	}
	return resp.Result, nil
}

func (c *client) GetAccounts() (json.RawMessage, error) {
	return c.send("getAccountInfo", struct{}{})
}

func (c *client) CreateOrder(data methods.RequestCreate) (json.RawMessage, error) {
	return c.send("createOrder", data)
}

func (c *client) Deploy(data methods.RequestDeploy) (json.RawMessage, error) {
	return c.send("deploy", data)
}

func (c *client) Withdraw(data methods.RequestWithdraw) (json.RawMessage, error) {
	return c.send("withdraw", data)
}

func (c *client) Cancel(data methods.RequestOrder) (json.RawMessage, error) {
	return c.send("cancel", data)
}

func (c *client) RetryOrder(data methods.RequestOrder) (json.RawMessage, error) {
	return c.send("retry", data)
}

func (c *client) GetOrder(data methods.RequestOrder) (json.RawMessage, error) {
	return c.send("getOrder", data)
}

func (c *client) ListOrders() (json.RawMessage, error) {
	return c.send("listOrders", struct{}{})
}

func (c *client) Timelocks(data methods.RequestOrder) (json.RawMessage, error) {
	return c.send("timelocks", data)
}

func (c *client) SetAutoWithdraw(data methods.RequestAutoWithdraw) (json.RawMessage, error) {
	return c.send("setAutoWithdraw", data)
}

func (c *client) send(method string, data interface{}) (json.RawMessage, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	resp, err := c.SendPostRequest(method, jsonData)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}
