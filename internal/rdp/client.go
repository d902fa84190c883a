package rdp

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rcarmo/rdp-core/internal/connector"
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/credssp"
	"github.com/rcarmo/rdp-core/internal/logging"
	"github.com/rcarmo/rdp-core/internal/svc"
)

const (
	tcpConnectionTimeout = 5 * time.Second
	readBufferSize       = 64 * 1024
)

// Client is a blocking RDP client driving the sans-I/O connector over a TCP
// connection.
type Client struct {
	conn       net.Conn
	buffReader *bufio.Reader

	connector *connector.ClientConnector
	result    *connector.ConnectionResult

	outBuf *core.WriteBuf
	frame  []byte

	// TLS configuration
	skipTLSValidation bool
	tlsServerName     string

	// serverPublicKey is the TLS-exported SubjectPublicKeyInfo BIT STRING
	// fed to the CredSSP engine.
	serverPublicKey []byte

	// engineFactory builds the security engine once the public key is
	// known; nil disables CredSSP.
	engineFactory func(serverPublicKey []byte) credssp.Engine

	networkClient NetworkClient
}

// NewClient dials the server and prepares a driver around the given
// connector.
func NewClient(hostname string, conn *connector.ClientConnector) (*Client, error) {
	if !strings.Contains(hostname, ":") {
		hostname += ":3389"
	}

	tcpConn, err := net.DialTimeout("tcp", hostname, tcpConnectionTimeout)
	if err != nil {
		return nil, fmt.Errorf("tcp connect: %w", err)
	}

	conn.WithServerAddr(hostname)

	return &Client{
		conn:          tcpConn,
		buffReader:    bufio.NewReaderSize(tcpConn, readBufferSize),
		connector:     conn,
		outBuf:        core.NewWriteBuf(),
		networkClient: &defaultNetworkClient{},
	}, nil
}

// SetTLSConfig adjusts certificate validation for the security upgrade.
func (c *Client) SetTLSConfig(skipValidation bool, serverName string) {
	c.skipTLSValidation = skipValidation
	c.tlsServerName = serverName
}

// SetEngineFactory installs the CredSSP security engine constructor.
func (c *Client) SetEngineFactory(factory func(serverPublicKey []byte) credssp.Engine) {
	c.engineFactory = factory
}

// SetNetworkClient replaces the resolver for CredSSP network requests.
func (c *Client) SetNetworkClient(nc NetworkClient) {
	c.networkClient = nc
}

// Result returns the connection result after Connect succeeded.
func (c *Client) Result() *connector.ConnectionResult {
	return c.result
}

// Close tears the transport down.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Connect runs the connection sequence to completion: the single-step loop
// over the connector, with the TLS upgrade and the CredSSP exchange
// interleaved where the connector requests them.
func (c *Client) Connect() error {
	seq := c.connector

	for !seq.State().IsTerminal() {
		if err := c.singleStep(seq); err != nil {
			return err
		}

		if seq.ShouldPerformSecurityUpgrade() {
			if err := c.performSecurityUpgrade(); err != nil {
				return fmt.Errorf("security upgrade: %w", err)
			}

			seq.MarkSecurityUpgradeAsDone()
		}

		if seq.ShouldPerformCredssp() {
			if err := c.performCredssp(); err != nil {
				return fmt.Errorf("credssp: %w", err)
			}

			seq.MarkCredsspAsDone()
		}
	}

	c.result = seq.Result()

	return nil
}

// singleStep performs one hint → step → flush round against a sequence.
func (c *Client) singleStep(seq connector.Sequence) error {
	c.outBuf.Clear()

	var (
		written connector.Written
		err     error
	)

	if hint := seq.NextPduHint(); hint != nil {
		c.frame, err = readFrame(c.buffReader, hint, c.frame)
		if err != nil {
			return err
		}

		written, err = seq.Step(c.frame, c.outBuf)
	} else {
		written, err = seq.StepNoInput(c.outBuf)
	}

	if err != nil {
		return err
	}

	return c.flush(written)
}

func (c *Client) flush(written connector.Written) error {
	n, ok := written.Size()
	if !ok {
		return nil
	}

	if _, err := c.conn.Write(c.outBuf.Filled()[:n]); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

// performCredssp pumps the CredSSP sub-sequence: engine steps yield network
// requests resolved by the network client; outgoing TsRequests go straight
// to the TLS transport.
func (c *Client) performCredssp() error {
	if c.engineFactory == nil {
		return fmt.Errorf("no security engine configured")
	}

	seq := connector.NewCredsspSequence(c.engineFactory(c.serverPublicKey))

	var req *credssp.TsRequest // nil: the client speaks first

	for !seq.State().IsTerminal() {
		generator := seq.ProcessTsRequest(req)

		state, err := c.resolveGenerator(generator)
		if err != nil {
			return err
		}

		c.outBuf.Clear()

		written, err := seq.HandleProcessResult(state, c.outBuf)
		if err != nil {
			return err
		}

		if err := c.flush(written); err != nil {
			return err
		}

		if seq.State().IsTerminal() {
			break
		}

		hint := seq.NextPduHint()
		if hint == nil {
			break
		}

		c.frame, err = readFrame(c.buffReader, hint, c.frame)
		if err != nil {
			return err
		}

		req, err = seq.DecodeServerMessage(c.frame)
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Client) resolveGenerator(generator credssp.Generator) (*credssp.ClientState, error) {
	yield, err := generator.Start()

	for {
		if err != nil {
			return nil, err
		}

		if yield.State != nil {
			return yield.State, nil
		}

		logging.Debug("credssp: resolving %s network request", yield.NetworkRequest.URL)

		response, resolveErr := c.networkClient.Resolve(yield.NetworkRequest)
		if resolveErr != nil {
			return nil, resolveErr
		}

		yield, err = generator.Resume(response)
	}
}

// ProcessChannelPayload feeds one inbound static-channel payload to the
// registry and writes the responses back as MCS send-data requests.
func (c *Client) ProcessChannelPayload(channelID uint16, payload []byte) error {
	messages, err := c.connector.StaticChannels().ProcessPayload(channelID, payload)
	if err != nil {
		return err
	}

	if len(messages) == 0 {
		return nil
	}

	c.outBuf.Clear()

	n, err := svc.EncodeMessages(c.outBuf, c.result.UserChannelID, channelID, messages)
	if err != nil {
		return err
	}

	if n == 0 {
		return nil
	}

	if _, err := c.conn.Write(c.outBuf.Filled()[:n]); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}
