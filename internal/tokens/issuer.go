// Package tokens mints the short-lived RS256 access tokens handed out on
// login and on each successful refresh.
package tokens

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/rs/zerolog/log"

	"github.com/finnvold/refreshguard/internal/models"
)

var (
	logger = log.With().Str("component", "tokens").Logger()
)

type IssuerConfig struct {
	// PrivateKeyPEM is RSA 256 private key in PEM format
	PrivateKeyPEM string `yaml:"private_key_pem"`

	// Issuer is the url of this service, used as the iss claim.
	Issuer string `yaml:"issuer"`

	// Access token lifetime in seconds.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

func (c *IssuerConfig) Validate() {
	if c.PrivateKeyPEM == "" {
		logger.Fatal().Msg("IssuerConfig: PrivateKeyPEM is missing")
	}
	if c.Issuer == "" {
		logger.Fatal().Msg("IssuerConfig: Issuer is missing")
	}
	if c.AccessTokenTTL <= 0 {
		// 15 minutes.
		c.AccessTokenTTL = 15 * 60
	}
}

func (c *IssuerConfig) AccessTokenTTLDuration() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Second
}

// Issuer signs access tokens. It holds no state beyond the key pair, so a
// single instance serves every request.
type Issuer struct {
	config *IssuerConfig

	privateKey jwk.Key
	publicKey  jwk.Key
}

func NewIssuer(config *IssuerConfig) *Issuer {
	priv, err := jwk.ParseKey([]byte(config.PrivateKeyPEM), jwk.WithPEM(true))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to parse private key")
	}

	pub, err := priv.PublicKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to generate public key")
	}

	return &Issuer{
		config:     config,
		privateKey: priv,
		publicKey:  pub,
	}
}

// Issue builds a signed access token for the user. The subject is the
// username, roles ride along as a claim.
func (i *Issuer) Issue(user *models.User) (string, error) {
	token, err := jwt.NewBuilder().
		Issuer(i.config.Issuer).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(i.config.AccessTokenTTLDuration())).
		Subject(user.Username).
		Claim("uid", user.ID).
		Claim("roles", user.Roles).
		Build()

	if err != nil {
		return "", fmt.Errorf("failed to build access token claims: %v", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), i.privateKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %v", err)
	}

	return string(signed), nil
}

// PublicKey exposes the verification key for the JWKS endpoint.
func (i *Issuer) PublicKey() jwk.Key {
	return i.publicKey
}
