package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	// webhookCertValidity is how long a generated certificate stays valid.
	webhookCertValidity = 365 * 24 * time.Hour

	// webhookKeySize is the RSA key size for generated certificates.
	webhookKeySize = 2048

	// rotationThreshold triggers a renewal warning this long before expiry.
	rotationThreshold = 30 * 24 * time.Hour
)

// GenerateSelfSignedPair creates a self-signed server certificate for the
// given webhook host and returns the certificate and key as PEM blocks.
// The host becomes the subject common name and the single SAN entry,
// recorded as an IP address when it parses as one and as a DNS name
// otherwise.
func GenerateSelfSignedPair(host string) (certPEM, keyPEM []byte, err error) {
	if host == "" {
		return nil, nil, fmt.Errorf("webhook host is required for certificate generation")
	}

	key, err := rsa.GenerateKey(rand.Reader, webhookKeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"tmbot"},
			CommonName:   host,
		},
		NotBefore:             now,
		NotAfter:              now.Add(webhookCertValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	if ip := net.ParseIP(host); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{host}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: der,
	})
	keyPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	return certPEM, keyPEM, nil
}

// WriteKeyPair writes PEM material to disk. Parent directories are created
// as needed; the key file is restricted to the owner.
func WriteKeyPair(certPath, keyPath string, certPEM, keyPEM []byte) error {
	for _, p := range []string{certPath, keyPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return fmt.Errorf("failed to create certificate directory: %w", err)
			}
		}
	}

	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	return nil
}

// LoadServerCert loads a certificate pair from disk and parses the leaf so
// callers can inspect the subject and validity window.
func LoadServerCert(certPath, keyPath string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load certificate pair: %w", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to parse certificate: %w", err)
	}
	cert.Leaf = leaf

	return cert, nil
}

// PairExists reports whether both the certificate and key file are present.
func PairExists(certPath, keyPath string) bool {
	if _, err := os.Stat(certPath); err != nil {
		return false
	}
	if _, err := os.Stat(keyPath); err != nil {
		return false
	}
	return true
}

// EnsureWebhookCert loads the certificate pair at the given paths, generating
// a self-signed pair for host first when either file is missing. The returned
// flag reports whether new material was generated.
func EnsureWebhookCert(certPath, keyPath, host string) (tls.Certificate, bool, error) {
	if PairExists(certPath, keyPath) {
		cert, err := LoadServerCert(certPath, keyPath)
		if err != nil {
			return tls.Certificate{}, false, err
		}
		return cert, false, nil
	}

	certPEM, keyPEM, err := GenerateSelfSignedPair(host)
	if err != nil {
		return tls.Certificate{}, false, err
	}
	if err := WriteKeyPair(certPath, keyPath, certPEM, keyPEM); err != nil {
		return tls.Certificate{}, false, err
	}

	cert, err := LoadServerCert(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, false, err
	}
	return cert, true, nil
}

// CertNeedsRotation reports whether the certificate expires within the
// rotation threshold.
func CertNeedsRotation(cert *x509.Certificate) bool {
	return time.Until(cert.NotAfter) < rotationThreshold
}

// CertTimeRemaining returns how long until the certificate expires. The
// result is negative for an expired certificate.
func CertTimeRemaining(cert *x509.Certificate) time.Duration {
	return time.Until(cert.NotAfter)
}
