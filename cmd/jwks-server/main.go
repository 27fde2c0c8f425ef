package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwks-server is the development key authority: it generates (or loads) the
// RSA key pair backing API auth, serves the public half as JWKS and as PEM
// (the PEM is what AUTH_PUBLIC_KEY_PEM expects), and mints bearer tokens for
// local testing. Not for production key management.

type jwksResponse struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type keyServer struct {
	key      *rsa.PrivateKey
	keyID    string
	issuer   string
	audience string
}

func newKeyServer() (*keyServer, error) {
	s := &keyServer{
		keyID:    getenv("JWKS_KEY_ID", "hookline-key-1"),
		issuer:   getenv("AUTH_ISSUER", "hookline"),
		audience: getenv("AUTH_AUDIENCE", "hookline-api"),
	}

	if pemStr := os.Getenv("JWT_PRIVATE_KEY"); pemStr != "" {
		block, _ := pem.Decode([]byte(pemStr))
		if block == nil {
			log.Fatal("JWT_PRIVATE_KEY is not valid PEM")
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		s.key = key
		return s, nil
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	s.key = key
	log.Printf("generated ephemeral RSA key pair (set JWT_PRIVATE_KEY to persist one)")
	return s, nil
}

func (s *keyServer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	pub := &s.key.PublicKey
	resp := jwksResponse{Keys: []jwk{{
		Kty: "RSA",
		Use: "sig",
		Kid: s.keyID,
		Alg: "RS256",
		N:   b64url(pub.N.Bytes()),
		E:   b64url(exponentBytes(pub.E)),
	}}}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_ = json.NewEncoder(w).Encode(resp)
}

// handlePublicPEM serves the public key in the PEM form the api binary's
// AUTH_PUBLIC_KEY_PEM consumes.
func (s *keyServer) handlePublicPEM(w http.ResponseWriter, r *http.Request) {
	der, err := x509.MarshalPKIXPublicKey(&s.key.PublicKey)
	if err != nil {
		http.Error(w, "failed to encode public key", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	_ = pem.Encode(w, &pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func (s *keyServer) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
		TTL     int    `json:"ttl_seconds,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Subject == "" {
		http.Error(w, "subject is required", http.StatusBadRequest)
		return
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = 3600
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": s.issuer,
		"aud": s.audience,
		"sub": req.Subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Duration(ttl) * time.Second).Unix(),
	})
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		http.Error(w, "failed to sign token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token":      signed,
		"expires_in": ttl,
		"token_type": "Bearer",
	})
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func main() {
	s, err := newKeyServer()
	if err != nil {
		log.Fatalf("key setup failed: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", s.handleJWKS)
	mux.HandleFunc("/public.pem", s.handlePublicPEM)
	mux.HandleFunc("POST /token", s.handleToken)
	mux.HandleFunc("/healthz", handleHealthz)

	port := getenv("PORT", "8085")
	log.Printf("jwks-server listening on :%s", port)
	log.Printf("JWKS: http://localhost:%s/.well-known/jwks.json", port)
	log.Printf("PEM for AUTH_PUBLIC_KEY_PEM: http://localhost:%s/public.pem", port)

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// b64url encodes bytes as unpadded base64url, the JWK wire form.
func b64url(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// exponentBytes renders the RSA public exponent big-endian with no leading
// zeros.
func exponentBytes(e int) []byte {
	if e == 0 {
		return []byte{0}
	}
	var out []byte
	for e > 0 {
		out = append([]byte{byte(e & 0xff)}, out...)
		e >>= 8
	}
	return out
}
