/*
Package security provides the TLS material for webhook ingress.

Telegram only delivers webhook updates over HTTPS, and it accepts
self-signed certificates as long as the public certificate is uploaded
during webhook registration. This package covers both halves of that
deal: it generates a self-signed server certificate when the operator
has not supplied one, and it loads whatever pair ends up on disk into a
tls.Certificate ready for the ingress listener.

# Certificate lifecycle

	┌─────────────────┐   missing    ┌──────────────────────┐
	│ cert/key files  │─────────────▶│ GenerateSelfSignedPair│
	│ on disk?        │              │ RSA-2048, 1y, SAN=host│
	└───────┬─────────┘              └──────────┬───────────┘
	        │ present                           │ WriteKeyPair
	        ▼                                   ▼
	┌─────────────────┐              ┌──────────────────────┐
	│ LoadServerCert  │◀─────────────│ PEM files (key 0600) │
	│ leaf parsed     │              └──────────────────────┘
	└─────────────────┘

EnsureWebhookCert strings these steps together and is the only call the
bot runtime needs at startup:

	cert, generated, err := security.EnsureWebhookCert(certPath, keyPath, host)
	if err != nil {
		return err
	}
	if generated {
		log.Warn().Msg("generated self-signed webhook certificate")
	}
	if security.CertNeedsRotation(cert.Leaf) {
		log.Warn().Time("not_after", cert.Leaf.NotAfter).Msg("webhook certificate expires soon")
	}

The webhook host becomes the certificate subject and its single SAN,
stored as an IP address when the host parses as one. A pair is treated
as present only when both files exist; losing either one regenerates
both, since a certificate without its key is useless.

Generated certificates are valid for one year. CertNeedsRotation flags
a pair expiring within 30 days so the operator gets a log warning well
before Telegram starts rejecting the endpoint.
*/
package security
