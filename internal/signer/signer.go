// Package signer loads the issuer's certificate material and applies
// the enveloped XML signature the authority validates. The signed
// string it returns is final: any re-serialization afterwards breaks
// the signature.
package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"

	"fiscal-note-service/internal/document"
	"fiscal-note-service/internal/models"
)

const (
	dsigNamespace      = "http://www.w3.org/2000/09/xmldsig#"
	c14nAlgorithm      = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	envelopedAlgorithm = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	sha1Algorithm      = "http://www.w3.org/2000/09/xmldsig#sha1"
	rsaSHA1Algorithm   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
)

// Signer holds the validated key material for the lifetime of the
// emitter. It is built once at initialization, never re-read per call.
type Signer struct {
	key        *rsa.PrivateKey
	cert       *x509.Certificate
	certBase64 string
}

// LoadCertificate reads and validates a PKCS#12 bundle. A missing or
// corrupt file maps to CertificateUnreadable, a wrong passphrase to
// CertificateDecryptionFailed.
func LoadCertificate(path, passphrase string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCertificateUnreadable, err)
	}

	priv, cert, err := pkcs12.Decode(data, passphrase)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, fmt.Errorf("%w: %s", models.ErrCertificateDecryptionFailed, path)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrCertificateUnreadable, err)
	}

	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is %T, expected RSA", models.ErrCertificateUnreadable, priv)
	}

	return NewFromKeyPair(key, cert), nil
}

// NewFromKeyPair wraps already-loaded material. Used by tests and by
// the ephemeral standalone-mode identity.
func NewFromKeyPair(key *rsa.PrivateKey, cert *x509.Certificate) *Signer {
	return &Signer{
		key:  key,
		cert: cert,
		// base64 DER with no PEM envelope markers, as embedded in KeyInfo.
		certBase64: base64.StdEncoding.EncodeToString(cert.Raw),
	}
}

// GenerateEphemeral creates a throwaway self-signed identity for
// standalone mode, where no government-issued certificate exists.
func GenerateEphemeral() (*Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "standalone fiscal emitter"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to self-sign ephemeral certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ephemeral certificate: %w", err)
	}

	return NewFromKeyPair(key, cert), nil
}

// TLSCertificate exposes the material as the client identity for the
// mutually authenticated authorization transport.
func (s *Signer) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{s.cert.Raw},
		PrivateKey:  s.key,
	}
}

// Sign computes the enveloped signature over the element carrying the
// given reference id and returns the final document string with the
// Signature block inserted as the element's next sibling.
func (s *Signer) Sign(canonicalXML, referenceID string) (string, error) {
	elem, end, err := elementByID(canonicalXML, referenceID)
	if err != nil {
		return "", err
	}

	// The referenced element inherits the document's default namespace;
	// canonicalization makes it explicit before digesting.
	digest := sha1.Sum([]byte(injectNamespace(elem, document.Namespace)))

	signedInfo := fmt.Sprintf(
		`<SignedInfo>`+
			`<CanonicalizationMethod Algorithm="%s"></CanonicalizationMethod>`+
			`<SignatureMethod Algorithm="%s"></SignatureMethod>`+
			`<Reference URI="#%s">`+
			`<Transforms>`+
			`<Transform Algorithm="%s"></Transform>`+
			`<Transform Algorithm="%s"></Transform>`+
			`</Transforms>`+
			`<DigestMethod Algorithm="%s"></DigestMethod>`+
			`<DigestValue>%s</DigestValue>`+
			`</Reference>`+
			`</SignedInfo>`,
		c14nAlgorithm, rsaSHA1Algorithm, referenceID,
		envelopedAlgorithm, c14nAlgorithm, sha1Algorithm,
		base64.StdEncoding.EncodeToString(digest[:]),
	)

	siDigest := sha1.Sum([]byte(injectNamespace(signedInfo, dsigNamespace)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA1, siDigest[:])
	if err != nil {
		return "", fmt.Errorf("failed to compute signature value: %w", err)
	}

	signature := fmt.Sprintf(
		`<Signature xmlns="%s">%s<SignatureValue>%s</SignatureValue>`+
			`<KeyInfo><X509Data><X509Certificate>%s</X509Certificate></X509Data></KeyInfo>`+
			`</Signature>`,
		dsigNamespace, signedInfo,
		base64.StdEncoding.EncodeToString(sig),
		s.certBase64,
	)

	return canonicalXML[:end] + signature + canonicalXML[end:], nil
}
