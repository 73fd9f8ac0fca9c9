package schedcli

import (
	"encoding/json"

	"github.com/tollgate/tollgate/common"
)

func invoke[T any](c *Client, method common.Method, message any) (*T, error) {
	resp, err := c.invoke(method, message)
	if err != nil {
		return nil, err
	}
	var d T
	return &d, json.Unmarshal(resp, &d)
}

// Register asks the daemon for permission to run a transfer. The returned
// id identifies the entry in every other call. The entry lives until
// Unregister or until this client's connection closes.
func (c *Client) Register(spec *common.EntrySpec) (*common.EntryID, error) {
	if spec == nil {
		spec = &common.EntrySpec{}
	}
	return invoke[common.EntryID](c, common.MethodRegister, spec)
}

// Unregister removes an entry.
func (c *Client) Unregister(id string) error {
	_, err := c.invoke(common.MethodUnregister, &common.EntryID{ID: id})
	return err
}

// Hold pauses an entry manually.
func (c *Client) Hold(id string) error {
	_, err := c.invoke(common.MethodHold, &common.EntryID{ID: id})
	return err
}

// Release lifts a manual hold.
func (c *Client) Release(id string) error {
	_, err := c.invoke(common.MethodRelease, &common.EntryID{ID: id})
	return err
}

// State returns the entry's current decision.
func (c *Client) State(id string) (*common.EntryState, error) {
	return invoke[common.EntryState](c, common.MethodState, &common.EntryID{ID: id})
}

// List returns every registered entry.
func (c *Client) List() (*common.ListResponse, error) {
	return invoke[common.ListResponse](c, common.MethodList, nil)
}

// Watch subscribes this connection to pushed decision updates and registers
// the handler for them. Call Listen afterwards to receive the pushes.
func (c *Client) Watch(h Handler) error {
	c.mu.Lock()
	if c.d.Handlers == nil {
		c.d.Handlers = make(map[common.Method]Handler)
	}
	c.d.Handlers[common.UpdateDecision] = h
	c.mu.Unlock()
	_, err := c.invoke(common.MethodWatch, nil)
	return err
}

// History queries the daemon's decision-history log.
func (c *Client) History(req *common.HistoryRequest) (*common.HistoryResponse, error) {
	if req == nil {
		req = &common.HistoryRequest{}
	}
	return invoke[common.HistoryResponse](c, common.MethodHistory, req)
}

// TariffStatus returns the currently loaded tariff summary.
func (c *Client) TariffStatus() (*common.TariffStatus, error) {
	return invoke[common.TariffStatus](c, common.MethodTariffGet, nil)
}

// TariffReload asks the daemon to re-read its tariff file. A file that
// fails validation leaves the previous tariff active and returns an error.
func (c *Client) TariffReload() (*common.TariffStatus, error) {
	return invoke[common.TariffStatus](c, common.MethodTariffReload, nil)
}
