package activitypub

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/piprate/json-gold/ld"
)

const ldSignatureType = "RsaSignature2017"

// LinkedDataSignature verifies and creates RsaSignature2017 signatures
// embedded in JSON-LD documents.
type LinkedDataSignature struct {
	loader ld.DocumentLoader
	tags   *TagManager
	actors *ActorFetcher
	log    *slog.Logger
}

func NewLinkedDataSignature(loader ld.DocumentLoader, tags *TagManager, actors *ActorFetcher) *LinkedDataSignature {
	return &LinkedDataSignature{
		loader: loader,
		tags:   tags,
		actors: actors,
		log:    slog.Default().With("component", "ldsig"),
	}
}

// Verify returns the creator of the document's signature, or nil when the
// document is unsigned, uses another suite, or does not verify. Errors are
// reserved for failures to reach the creator's server.
func (s *LinkedDataSignature) Verify(ctx context.Context, doc map[string]any) (*domain.Account, error) {
	sig := asObject(doc["signature"])
	if sig == nil || stringField(sig, "type") != ldSignatureType {
		return nil, nil
	}
	creatorURI := stringField(sig, "creator")
	value := stringField(sig, "signatureValue")
	if creatorURI == "" || value == "" {
		return nil, nil
	}

	creator, err := s.resolveCreator(ctx, creatorURI)
	if err != nil || creator == nil {
		return nil, err
	}
	if creator.PublicKeyPem == "" {
		return nil, nil
	}
	pubKey, err := ParsePublicKey(creator.PublicKeyPem)
	if err != nil {
		s.log.Info("unusable public key", "creator", creatorURI, "err", err)
		return nil, nil
	}

	signature, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, nil
	}

	toBeSigned, err := s.toBeSigned(sig, doc)
	if err != nil {
		s.log.Info("canonicalization failed", "creator", creatorURI, "err", err)
		return nil, nil
	}
	digest := sha256.Sum256([]byte(toBeSigned))
	if err := rsa.VerifyPKCS1v15(pubKey, crypto.SHA256, digest[:], signature); err != nil {
		return nil, nil
	}
	return creator, nil
}

func (s *LinkedDataSignature) resolveCreator(ctx context.Context, creatorURI string) (*domain.Account, error) {
	creator, err := s.tags.AccountFromURI(ctx, stripFragment(creatorURI))
	if err != nil {
		return nil, err
	}
	if creator != nil {
		return creator, nil
	}
	if s.actors == nil {
		return nil, nil
	}
	return s.actors.FetchKey(ctx, creatorURI)
}

// Sign adds a signature by signer to doc and returns the signed copy. The
// security context is appended so the signature terms are defined.
func (s *LinkedDataSignature) Sign(doc map[string]any, signer *domain.Account) (map[string]any, error) {
	key, err := ParsePrivateKey(signer.PrivateKeyPem)
	if err != nil {
		return nil, err
	}

	signed := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		if k != "signature" {
			signed[k] = v
		}
	}
	signed["@context"] = append(asArray(signed["@context"]), SecurityContext)

	options := map[string]any{
		"type":    ldSignatureType,
		"creator": s.tags.KeyID(signer),
		"created": time.Now().UTC().Format(time.RFC3339),
	}
	toBeSigned, err := s.toBeSigned(options, signed)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256([]byte(toBeSigned))
	value, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, err
	}

	options["signatureValue"] = base64.StdEncoding.EncodeToString(value)
	signed["signature"] = options
	return signed, nil
}

// toBeSigned is the options hash followed by the document hash
func (s *LinkedDataSignature) toBeSigned(sig, doc map[string]any) (string, error) {
	options := map[string]any{"@context": IdentityContext}
	for k, v := range sig {
		switch k {
		case "type", "id", "signatureValue":
		default:
			options[k] = v
		}
	}
	document := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != "signature" {
			document[k] = v
		}
	}

	optionsHash, err := s.hash(options)
	if err != nil {
		return "", fmt.Errorf("options: %w", err)
	}
	documentHash, err := s.hash(document)
	if err != nil {
		return "", fmt.Errorf("document: %w", err)
	}
	return optionsHash + documentHash, nil
}

func (s *LinkedDataSignature) hash(v map[string]any) (string, error) {
	canonical, err := s.canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize produces URDNA2015 N-Quads
func (s *LinkedDataSignature) canonicalize(v map[string]any) (string, error) {
	proc := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions("")
	opts.Format = "application/n-quads"
	opts.Algorithm = ld.AlgorithmURDNA2015
	opts.DocumentLoader = s.loader

	normalized, err := proc.Normalize(v, opts)
	if err != nil {
		return "", err
	}
	out, ok := normalized.(string)
	if !ok {
		return "", fmt.Errorf("unexpected normalization result %T", normalized)
	}
	return out, nil
}
