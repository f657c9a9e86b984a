package driver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zofgo/zof/pkg/rpc"
)

// Description is the reply to OFP.DESCRIPTION.
type Description struct {
	APIVersion string `json:"api_version"`
	SwDesc     string `json:"sw_desc"`
	Versions   []int  `json:"versions"`
}

// ListenOptions configures OFP.LISTEN and OFP.CONNECT.
type ListenOptions struct {
	// Versions restricts the OpenFlow versions offered. Empty means all.
	Versions []int

	// Options are oftr connection options (e.g. "FEATURES_REQ").
	Options []string

	// TLSID selects a TLS identity added with AddIdentity. Zero means plain TCP.
	TLSID uint64
}

// ConnectOptions configures OFP.CONNECT.
type ConnectOptions = ListenOptions

type endpointParams struct {
	Endpoint string   `json:"endpoint"`
	Options  []string `json:"options"`
	Versions []int    `json:"versions"`
	TLSID    uint64   `json:"tls_id"`
}

func newEndpointParams(endpoint string, opts ListenOptions) *endpointParams {
	p := &endpointParams{
		Endpoint: endpoint,
		Options:  opts.Options,
		Versions: opts.Versions,
		TLSID:    opts.TLSID,
	}
	if p.Options == nil {
		p.Options = []string{}
	}
	if p.Versions == nil {
		p.Versions = []int{}
	}
	return p
}

type connParams struct {
	ConnID uint64 `json:"conn_id"`
}

type identityParams struct {
	Cert    string `json:"cert"`
	CACert  string `json:"cacert"`
	PrivKey string `json:"privkey"`
}

// Description asks oftr for its version information.
func (d *Driver) Description(ctx context.Context) (*Description, error) {
	var desc Description
	if err := d.callInto(ctx, rpc.MethodDescription, nil, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

// Listen makes oftr accept OpenFlow connections on endpoint and returns the
// listener's connection id.
func (d *Driver) Listen(ctx context.Context, endpoint string, opts ListenOptions) (uint64, error) {
	var res struct {
		ConnID uint64 `json:"conn_id"`
	}
	if err := d.callInto(ctx, rpc.MethodListen, newEndpointParams(endpoint, opts), &res); err != nil {
		return 0, err
	}
	return res.ConnID, nil
}

// Connect makes an outgoing OpenFlow connection and returns its connection id.
func (d *Driver) Connect(ctx context.Context, endpoint string, opts ConnectOptions) (uint64, error) {
	var res struct {
		ConnID uint64 `json:"conn_id"`
	}
	if err := d.callInto(ctx, rpc.MethodConnect, newEndpointParams(endpoint, opts), &res); err != nil {
		return 0, err
	}
	return res.ConnID, nil
}

// CloseConn closes an OpenFlow connection or listener and returns the number
// of connections closed.
func (d *Driver) CloseConn(ctx context.Context, connID uint64) (int, error) {
	var res struct {
		Count int `json:"count"`
	}
	if err := d.callInto(ctx, rpc.MethodClose, &connParams{ConnID: connID}, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// CloseNowait closes an OpenFlow connection without waiting for the reply.
func (d *Driver) CloseNowait(connID uint64) error {
	return d.Notify(&rpc.Request{Method: rpc.MethodClose, Params: &connParams{ConnID: connID}})
}

// AddIdentity registers PEM-encoded TLS material with oftr and returns the
// TLS id to pass in ListenOptions.
func (d *Driver) AddIdentity(ctx context.Context, cert, cacert, privkey string) (uint64, error) {
	var res struct {
		TLSID uint64 `json:"tls_id"`
	}
	params := &identityParams{Cert: cert, CACert: cacert, PrivKey: privkey}
	if err := d.callInto(ctx, rpc.MethodAddIdentity, params, &res); err != nil {
		return 0, err
	}
	return res.TLSID, nil
}

func (d *Driver) callInto(ctx context.Context, method string, params any, out any) error {
	result, err := d.Call(ctx, &rpc.Request{Method: method, Params: params})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("driver: %s reply: %w", method, err)
	}
	return nil
}
