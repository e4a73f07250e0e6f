package signer

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"

	"fiscal-note-service/internal/document"
	"fiscal-note-service/internal/models"
)

// VerifySignedDocument checks a signed document end to end: the RSA
// signature over SignedInfo with the embedded certificate, and the
// digest of the referenced element after applying the enveloped
// transform. Any byte changed inside the referenced element fails.
func VerifySignedDocument(signedXML string) error {
	sigElem, _, err := elementByName(signedXML, "Signature")
	if err != nil {
		return fmt.Errorf("signature block missing: %w", err)
	}

	signedInfo, _, err := elementByName(sigElem, "SignedInfo")
	if err != nil {
		return fmt.Errorf("SignedInfo missing: %w", err)
	}
	sigValueB64, err := elementText(sigElem, "SignatureValue")
	if err != nil {
		return err
	}
	certB64, err := elementText(sigElem, "X509Certificate")
	if err != nil {
		return err
	}
	digestB64, err := elementText(signedInfo, "DigestValue")
	if err != nil {
		return err
	}
	refID, err := attributeValue(signedInfo, "Reference", "URI")
	if err != nil {
		return err
	}
	refID = strings.TrimPrefix(refID, "#")

	der, err := base64.StdEncoding.DecodeString(certB64)
	if err != nil {
		return fmt.Errorf("malformed embedded certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("malformed embedded certificate: %w", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("embedded certificate key is %T, expected RSA", cert.PublicKey)
	}

	sigValue, err := base64.StdEncoding.DecodeString(sigValueB64)
	if err != nil {
		return fmt.Errorf("malformed signature value: %w", err)
	}
	siDigest := sha1.Sum([]byte(injectNamespace(signedInfo, dsigNamespace)))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, siDigest[:], sigValue); err != nil {
		return fmt.Errorf("signature value does not verify: %w", err)
	}

	// Enveloped transform: the signature itself is excluded from the
	// digested content.
	withoutSig := strings.Replace(signedXML, sigElem, "", 1)
	elem, _, err := elementByID(withoutSig, refID)
	if err != nil {
		return err
	}
	digest := sha1.Sum([]byte(injectNamespace(elem, document.Namespace)))
	expected, err := base64.StdEncoding.DecodeString(digestB64)
	if err != nil {
		return fmt.Errorf("malformed digest value: %w", err)
	}
	if subtle.ConstantTimeCompare(digest[:], expected) != 1 {
		return fmt.Errorf("digest mismatch over referenced element %s", refID)
	}
	return nil
}

// elementByID finds the element carrying Id="<id>" and returns its full
// text plus the index just past its end tag.
func elementByID(doc, id string) (string, int, error) {
	marker := ` Id="` + id + `"`
	idx := strings.Index(doc, marker)
	if idx < 0 {
		return "", 0, fmt.Errorf("%w: %s", models.ErrReferenceNotFound, id)
	}
	start := strings.LastIndex(doc[:idx], "<")
	if start < 0 {
		return "", 0, fmt.Errorf("%w: %s", models.ErrReferenceNotFound, id)
	}
	return element(doc, start)
}

// elementByName finds the first element with the given local name.
func elementByName(doc, name string) (string, int, error) {
	for _, prefix := range []string{"<" + name + " ", "<" + name + ">"} {
		if start := strings.Index(doc, prefix); start >= 0 {
			return element(doc, start)
		}
	}
	return "", 0, fmt.Errorf("element %s not found", name)
}

// element extracts the element whose start tag begins at start. Assumes
// the element has no nested element of its own name, which holds for
// every signed and signature element in this document family.
func element(doc string, start int) (string, int, error) {
	nameEnd := start + 1
	for nameEnd < len(doc) && doc[nameEnd] != ' ' && doc[nameEnd] != '>' && doc[nameEnd] != '/' {
		nameEnd++
	}
	name := doc[start+1 : nameEnd]

	closeTag := "</" + name + ">"
	rel := strings.Index(doc[start:], closeTag)
	if rel < 0 {
		return "", 0, fmt.Errorf("element %s is not closed", name)
	}
	end := start + rel + len(closeTag)
	return doc[start:end], end, nil
}

func elementText(doc, name string) (string, error) {
	elem, _, err := elementByName(doc, name)
	if err != nil {
		return "", err
	}
	open := strings.Index(elem, ">")
	close := strings.LastIndex(elem, "</")
	if open < 0 || close < open {
		return "", fmt.Errorf("element %s has no text content", name)
	}
	return elem[open+1 : close], nil
}

func attributeValue(doc, elemName, attr string) (string, error) {
	elem, _, err := elementByName(doc, elemName)
	if err != nil {
		return "", err
	}
	marker := " " + attr + `="`
	idx := strings.Index(elem, marker)
	if idx < 0 {
		return "", fmt.Errorf("attribute %s missing on %s", attr, elemName)
	}
	rest := elem[idx+len(marker):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return "", fmt.Errorf("attribute %s malformed on %s", attr, elemName)
	}
	return rest[:end], nil
}

// injectNamespace makes an inherited default namespace explicit on an
// element's start tag, which is what canonicalization of a document
// subset produces. Elements already declaring xmlns pass through.
func injectNamespace(elem, ns string) string {
	tagEnd := strings.Index(elem, ">")
	if tagEnd < 0 {
		return elem
	}
	if strings.Contains(elem[:tagEnd], `xmlns="`) {
		return elem
	}
	nameEnd := 1
	for nameEnd < tagEnd && elem[nameEnd] != ' ' && elem[nameEnd] != '/' {
		nameEnd++
	}
	return elem[:nameEnd] + ` xmlns="` + ns + `"` + elem[nameEnd:]
}
