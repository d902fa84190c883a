package credssp

// NetworkRequestProtocol names the transport an engine network request uses.
type NetworkRequestProtocol int

const (
	ProtocolTCP NetworkRequestProtocol = iota
	ProtocolUDP
	ProtocolHTTP
	ProtocolHTTPS
)

// NetworkRequest is an out-of-band request the security engine needs resolved
// before it can continue, typically a KDC or KDC-proxy exchange. The driver
// performs the I/O and resumes the generator with the raw response bytes.
type NetworkRequest struct {
	Protocol NetworkRequestProtocol
	URL      string
	Data     []byte
}

// ClientState is the outcome of one completed engine step.
type ClientState struct {
	// ReplyNeeded carries the TsRequest to send to the peer; the exchange
	// continues.
	ReplyNeeded *TsRequest

	// Finished is set when the exchange completed on this step. A final
	// outgoing TsRequest may still be present in ReplyNeeded.
	Finished bool
}

// Yield is one suspension point of a generator: either a network request to
// resolve or the completed step state. Exactly one field is set.
type Yield struct {
	NetworkRequest *NetworkRequest
	State          *ClientState
}

// Generator is one resumable engine step, coroutine-shaped: Start begins the
// step, and each yielded network request is answered through Resume. The
// generator may be dropped at any suspension point.
type Generator interface {
	Start() (Yield, error)
	Resume(response []byte) (Yield, error)
}

// Engine is the external security provider (NTLM or Kerberos) driven by the
// connection sequence. One ProcessTsRequest call handles one inbound
// TsRequest; for the first step of the exchange req is nil.
type Engine interface {
	ProcessTsRequest(req *TsRequest) Generator
}

// Credentials are the identity handed to the engine.
type Credentials struct {
	Username string
	Password string
	Domain   string
}

// KerberosConfig carries the optional KDC settings forwarded to the engine.
type KerberosConfig struct {
	// KdcProxyURL is the normalized https://<host>/KdcProxy endpoint, empty
	// when no proxy is configured.
	KdcProxyURL string

	// Hostname is the client computer name used for the Kerberos exchange.
	Hostname string
}
