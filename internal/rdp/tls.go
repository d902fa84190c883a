package rdp

import (
	"bufio"
	"crypto/tls"
	"encoding/asn1"
	"fmt"
	"net"
	"strings"

	"github.com/rcarmo/rdp-core/internal/logging"
)

// performSecurityUpgrade wraps the TCP connection in TLS and exports the
// server certificate's public key for the CredSSP binding.
func (c *Client) performSecurityUpgrade() error {
	serverName := c.tlsServerName
	if serverName == "" {
		host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
		if err == nil {
			serverName = host
		}
	}

	config := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
		// RDP servers routinely present self-signed certificates; the
		// CredSSP channel binding covers the exported public key.
		InsecureSkipVerify: c.skipTLSValidation, // #nosec G402
	}

	tlsConn := tls.Client(c.conn, config)

	if err := tlsConn.Handshake(); err != nil {
		if !c.skipTLSValidation && strings.Contains(err.Error(), "certificate") {
			return fmt.Errorf("tls handshake: %w (self-signed server certificates need tls-skip-verify)", err)
		}

		return fmt.Errorf("tls handshake: %w", err)
	}

	publicKey, err := exportedPublicKey(tlsConn)
	if err != nil {
		return err
	}

	c.serverPublicKey = publicKey
	c.conn = tlsConn
	c.buffReader = bufio.NewReaderSize(tlsConn, readBufferSize)

	logging.Debug("tls: upgraded, exported %d public key bytes", len(publicKey))

	return nil
}

// exportedPublicKey returns the leaf certificate's SubjectPublicKeyInfo
// subjectPublicKey BIT STRING contents, verbatim.
func exportedPublicKey(tlsConn *tls.Conn) ([]byte, error) {
	state := tlsConn.ConnectionState()

	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("tls: server presented no certificate")
	}

	var spki struct {
		Algorithm asn1.RawValue
		PublicKey asn1.BitString
	}

	if _, err := asn1.Unmarshal(state.PeerCertificates[0].RawSubjectPublicKeyInfo, &spki); err != nil {
		return nil, fmt.Errorf("tls: parse subject public key info: %w", err)
	}

	return spki.PublicKey.Bytes, nil
}
