package rdp

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rcarmo/rdp-core/internal/credssp"
)

// NetworkClient resolves the security engine's out-of-band requests, such as
// KDC lookups and KdcProxy exchanges.
type NetworkClient interface {
	Resolve(req *credssp.NetworkRequest) ([]byte, error)
}

const networkRequestTimeout = 10 * time.Second

// defaultNetworkClient resolves TCP requests with a dial and HTTP(S)
// requests with a POST, the shape a KdcProxy endpoint expects.
type defaultNetworkClient struct{}

func (defaultNetworkClient) Resolve(req *credssp.NetworkRequest) ([]byte, error) {
	switch req.Protocol {
	case credssp.ProtocolTCP:
		return resolveTCP(req)
	case credssp.ProtocolHTTP, credssp.ProtocolHTTPS:
		return resolveHTTP(req)
	default:
		return nil, fmt.Errorf("network client: unsupported protocol for %s", req.URL)
	}
}

func resolveTCP(req *credssp.NetworkRequest) ([]byte, error) {
	addr := strings.TrimPrefix(req.URL, "tcp://")

	conn, err := net.DialTimeout("tcp", addr, networkRequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("network client: dial %s: %w", addr, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(networkRequestTimeout))

	if _, err = conn.Write(req.Data); err != nil {
		return nil, fmt.Errorf("network client: write %s: %w", addr, err)
	}

	// KDC responses are length-prefixed with a 4-byte big-endian header
	header := make([]byte, 4)
	if _, err = io.ReadFull(conn, header); err != nil {
		return nil, fmt.Errorf("network client: read %s: %w", addr, err)
	}

	length := int(header[0])<<24 | int(header[1])<<16 | int(header[2])<<8 | int(header[3])

	body := make([]byte, length)
	if _, err = io.ReadFull(conn, body); err != nil {
		return nil, fmt.Errorf("network client: read %s: %w", addr, err)
	}

	return append(header, body...), nil
}

func resolveHTTP(req *credssp.NetworkRequest) ([]byte, error) {
	client := &http.Client{Timeout: networkRequestTimeout}

	resp, err := client.Post(req.URL, "application/octet-stream", bytes.NewReader(req.Data))
	if err != nil {
		return nil, fmt.Errorf("network client: post %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("network client: %s answered %s", req.URL, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("network client: read %s: %w", req.URL, err)
	}

	return body, nil
}
