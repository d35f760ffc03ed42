package tls

import (
	tls "crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// certificate checks, named like OpenLDAP's tls_reqcert
const (
	ReqCertNever  = "never"
	ReqCertAllow  = "allow"
	ReqCertTry    = "try"
	ReqCertDemand = "demand"
	ReqCertHard   = "hard"
)

var secureCipherSuites = []uint16{
	// TLS 1.3 cipher suites (automatically used when TLS 1.3 is negotiated)
	tls.TLS_AES_128_GCM_SHA256,
	tls.TLS_AES_256_GCM_SHA384,
	tls.TLS_CHACHA20_POLY1305_SHA256,

	// TLS 1.2 ECDHE cipher suites (Forward Secrecy)
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
}

// ValidReqCert reports whether v is a known tls_reqcert level
func ValidReqCert(v string) bool {
	switch strings.ToLower(v) {
	case ReqCertNever, ReqCertAllow, ReqCertTry, ReqCertDemand, ReqCertHard:
		return true
	}
	return false
}

// MakeClientTLS builds the tls.Config used towards the directory servers.
// caFile adds trust anchors to the system pool, certFile and keyFile set a
// client certificate, reqcert decides whether the server certificate is
// verified. A TLS server always presents a certificate so "try" behaves like
// "demand", and "allow" like "never".
func MakeClientTLS(reqcert, caFile, certFile, keyFile string, logger *zerolog.Logger) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS13,
		CipherSuites: secureCipherSuites,
	}

	switch strings.ToLower(reqcert) {
	case ReqCertNever, ReqCertAllow:
		logger.Warn().Str("tlsreqcert", reqcert).Msg("directory server certificates are not verified")
		cfg.InsecureSkipVerify = true
	case "", ReqCertTry, ReqCertDemand, ReqCertHard:
	default:
		return nil, fmt.Errorf("invalid tlsreqcert value %q", reqcert)
	}

	if caFile != "" {
		data, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read CA certificate file: %w", err)
		}

		// Get the SystemCertPool, continue with an empty pool on error
		rootCAs, err := x509.SystemCertPool()
		if rootCAs == nil {
			rootCAs = x509.NewCertPool()
			logger.Warn().Err(err).Msg("Using empty cert-pool")
		}

		anchors := DecodePEM(data).Certificate
		if len(anchors) == 0 {
			return nil, fmt.Errorf("no certificate found in %s", caFile)
		}
		for _, der := range anchors {
			x509Cert, err := x509.ParseCertificate(der)
			if err != nil {
				return nil, fmt.Errorf("issue parsing cert PEM in %s: %w", caFile, err)
			}
			rootCAs.AddCert(x509Cert)
		}
		cfg.RootCAs = rootCAs
	}

	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("unable to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	logger.Debug().Strs("ciphers", CipherSuiteNames(cfg.CipherSuites)).Bool("verify", !cfg.InsecureSkipVerify).Msg("directory TLS configured")

	return cfg, nil
}

// DecodePEM builds a PEM certificate object
func DecodePEM(certPEM []byte) tls.Certificate {
	var cert tls.Certificate
	var certDER *pem.Block
	for {
		certDER, certPEM = pem.Decode(certPEM)
		if certDER == nil {
			break
		}
		if certDER.Type == "CERTIFICATE" {
			cert.Certificate = append(cert.Certificate, certDER.Bytes)
		}
	}

	return cert
}

func CipherSuiteNames(suites []uint16) []string {
	var names []string
	for _, suite := range suites {
		names = append(names, tls.CipherSuiteName(suite))
	}
	return names
}
