package activitypub

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"code.superseriousbusiness.org/httpsig"
)

var (
	postSignedHeaders = []string{"(request-target)", "host", "date", "digest"}
	getSignedHeaders  = []string{"(request-target)", "host", "date"}

	keyIDPattern   = regexp.MustCompile(`keyId="([^"]+)"`)
	headersPattern = regexp.MustCompile(`headers="([^"]*)"`)

	ErrDigestMismatch = errors.New("digest does not match body")
)

// SignRequest signs an outgoing POST with the given private key, adding a
// SHA-256 Digest of body.
// keyId format: "https://example.com/users/alice#main-key"
func SignRequest(req *http.Request, privateKey *rsa.PrivateKey, keyId string, body []byte) error {
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		postSignedHeaders,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	return signer.SignRequest(privateKey, keyId, req, body)
}

// SignGetRequest signs a bodyless fetch
func SignGetRequest(req *http.Request, privateKey *rsa.PrivateKey, keyId string) error {
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		getSignedHeaders,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	return signer.SignRequest(privateKey, keyId, req, nil)
}

// SignatureKeyID extracts the keyId parameter of the Signature header
func SignatureKeyID(req *http.Request) string {
	header := req.Header.Get("Signature")
	if header == "" {
		header = strings.TrimPrefix(req.Header.Get("Authorization"), "Signature ")
	}
	m := keyIDPattern.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

// SignedHeaders lists the lowercased header names covered by the Signature
// header. A signature without a headers parameter covers only date.
func SignedHeaders(req *http.Request) []string {
	header := req.Header.Get("Signature")
	if header == "" {
		header = strings.TrimPrefix(req.Header.Get("Authorization"), "Signature ")
	}
	m := headersPattern.FindStringSubmatch(header)
	if m == nil {
		return []string{"date"}
	}
	return strings.Fields(strings.ToLower(m[1]))
}

// VerifyRequest verifies the HTTP signature on an incoming request.
// Returns the actor URI if valid, error otherwise
func VerifyRequest(req *http.Request, publicKeyPem string) (string, error) {
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("failed to create verifier: %w", err)
	}

	pubKey, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return "", err
	}

	if err := verifier.Verify(pubKey, httpsig.RSA_SHA256); err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}

	// "https://example.com/users/alice#main-key" -> "https://example.com/users/alice"
	return stripFragment(verifier.KeyId()), nil
}

// VerifyDigest checks the Digest header of a request against its body
func VerifyDigest(req *http.Request, body []byte) error {
	header := req.Header.Get("Digest")
	if header == "" {
		return fmt.Errorf("missing digest")
	}
	sum := sha256.Sum256(body)
	want := base64.StdEncoding.EncodeToString(sum[:])
	for _, part := range strings.Split(header, ",") {
		algo, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.EqualFold(algo, "SHA-256") && value == want {
			return nil
		}
	}
	return ErrDigestMismatch
}

// ParsePrivateKey converts a PKCS#8 or PKCS#1 PEM string to *rsa.PrivateKey
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA private key")
		}
		return rsaKey, nil
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return privateKey, nil
}

// ParsePublicKey converts a PKIX or PKCS#1 PEM string to *rsa.PublicKey
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	if block.Type == "RSA PUBLIC KEY" {
		pubKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		return pubKey, nil
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPubKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPubKey, nil
}
