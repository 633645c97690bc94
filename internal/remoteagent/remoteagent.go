// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

// Package remoteagent implements the send_pages RPC contract (D1, §6) the
// backup driver uses when the source database lives on a remote host: a
// net/rpc call dispatched through a hashicorp/go-plugin subprocess, the
// same transport shape the teacher uses for its hook plugin.
package remoteagent

import (
	"net/rpc"
	"os"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
	"github.com/pkg/errors"
)

// Result is the outcome of one send_pages call (§4.6, §6).
type Result int

const (
	ResultOK Result = iota
	ResultRemoteError
	ResultPageCorruption
	ResultWriteFailed
)

// SendPagesRequest is the argument bundle for send_pages.
type SendPagesRequest struct {
	SourcePath      string
	DestPath        string
	LSNCutoff       uint64
	CompressAlg     int
	CompressLevel   int
	ChecksumVersion int
	Pagemap         []byte // nil/empty means "no pagemap, scan sequentially"
}

// SendPagesResponse is send_pages' return value: either a block count or a
// failure classification with the offending block and a message.
type SendPagesResponse struct {
	Result      Result
	BlocksRead  int64
	ErrBlockNum uint32
	ErrMessage  string
}

// RemotePageSource is the interface the backup driver calls, whether the
// implementation is local (for tests) or a dispensed RPC client.
type RemotePageSource interface {
	SendPages(req SendPagesRequest) (SendPagesResponse, error)
}

var handshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PAGEBACKUP_AGENT_PLUGIN",
	MagicCookieValue: "pagebackup-agent-plugin",
}

var pluginMap = map[string]plugin.Plugin{
	"agent": &AgentPlugin{},
}

// RPC is the net/rpc client side of RemotePageSource.
type RPC struct{ client *rpc.Client }

func (r *RPC) SendPages(req SendPagesRequest) (SendPagesResponse, error) {
	var resp SendPagesResponse
	if err := r.client.Call("Plugin.SendPages", req, &resp); err != nil {
		return SendPagesResponse{}, errors.Wrap(err, "call SendPages")
	}
	return resp, nil
}

// RPCServer is the net/rpc server side, wrapping a real implementation.
type RPCServer struct {
	Impl RemotePageSource
}

func (s *RPCServer) SendPages(req SendPagesRequest, resp *SendPagesResponse) error {
	r, err := s.Impl.SendPages(req)
	if err != nil {
		return err
	}
	*resp = r
	return nil
}

// AgentPlugin implements plugin.Plugin for the net/rpc transport.
type AgentPlugin struct {
	Impl RemotePageSource
}

func (p *AgentPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

func (AgentPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPC{client: c}, nil
}

// Serve runs impl as the plugin subprocess's server side. Called from the
// standalone remote-agent binary (plugin/pgpb-agent).
func Serve(impl RemotePageSource) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: handshakeConfig,
		Plugins: map[string]plugin.Plugin{
			"agent": &AgentPlugin{Impl: impl},
		},
	})
}

// Client dials agentPath as a subprocess plugin and returns a
// RemotePageSource that forwards calls to it over net/rpc.
type Client struct {
	client *plugin.Client
	source RemotePageSource
}

// Dial launches agentPath as a subprocess and completes the plugin
// handshake, mirroring the teacher's hook.Init.
func Dial(agentPath string) (*Client, error) {
	if _, err := os.Stat(agentPath); err != nil {
		return nil, errors.Wrapf(err, "stat remote agent binary %s", agentPath)
	}

	c := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: handshakeConfig,
		Plugins:         pluginMap,
		Cmd:             exec.Command(agentPath),
		Logger: hclog.New(&hclog.LoggerOptions{
			Output: hclog.DefaultOutput,
			Level:  hclog.Error,
			Name:   "pgpb-agent",
		}),
	})

	rpcClient, err := c.Client()
	if err != nil {
		c.Kill()
		return nil, errors.Wrap(err, "create rpc client")
	}

	raw, err := rpcClient.Dispense("agent")
	if err != nil {
		c.Kill()
		return nil, errors.Wrap(err, "dispense agent")
	}

	source, ok := raw.(RemotePageSource)
	if !ok {
		c.Kill()
		return nil, errors.New("dispensed agent does not implement RemotePageSource")
	}

	return &Client{client: c, source: source}, nil
}

// SendPages forwards to the dialed remote agent.
func (c *Client) SendPages(req SendPagesRequest) (SendPagesResponse, error) {
	return c.source.SendPages(req)
}

// Close terminates the agent subprocess.
func (c *Client) Close() {
	c.client.Kill()
}
