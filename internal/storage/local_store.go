package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidUploadGrant = errors.New("upload grant does not match request")

// UploadClaims is the payload of a local upload token. One token grants
// exactly one object path at exactly one size.
type UploadClaims struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	jwt.RegisteredClaims
}

const uploadAudience = "paintroom-upload"

// LocalStore keeps objects on disk and signs upload URLs with HS256 tokens
// that the API verifies on PUT /storage/upload/<path>.
type LocalStore struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

func NewLocalStore(root, baseURL, secret string) *LocalStore {
	return &LocalStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}
}

func (s *LocalStore) Root() string {
	return s.root
}

func cleanObjectPath(objectPath string) (string, error) {
	p := path.Clean("/" + objectPath)[1:]
	if p == "" || p == "." || strings.HasPrefix(p, "..") {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return p, nil
}

func (s *LocalStore) SignedUploadURL(_ context.Context, objectPath, contentType string, size int64, ttl time.Duration) (*SignedUpload, error) {
	p, err := cleanObjectPath(objectPath)
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, UploadClaims{
		Path:        p,
		Size:        size,
		ContentType: contentType,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{uploadAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	return &SignedUpload{
		URL:       fmt.Sprintf("%s/upload/%s?token=%s", s.baseURL, p, url.QueryEscape(signed)),
		Method:    "PUT",
		Headers:   map[string]string{"Content-Type": contentType},
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyUpload checks the signature and expiry of token and that it was
// issued for this object path and body size.
func (s *LocalStore) VerifyUpload(token, objectPath string, size int64) (*UploadClaims, error) {
	p, err := cleanObjectPath(objectPath)
	if err != nil {
		return nil, err
	}

	claims := &UploadClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(uploadAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUploadGrant, err)
	}
	if claims.Path != p || claims.Size != size {
		return nil, ErrInvalidUploadGrant
	}
	return claims, nil
}

func (s *LocalStore) PublicURL(objectPath string) string {
	p, err := cleanObjectPath(objectPath)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/files/%s", s.baseURL, p)
}

func (s *LocalStore) Put(_ context.Context, objectPath, _ string, data []byte) error {
	p, err := cleanObjectPath(objectPath)
	if err != nil {
		return err
	}

	full := filepath.Join(s.root, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}

	// write then rename so readers never see a partial file
	tmp := full + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, full)
}

func (s *LocalStore) Exists(_ context.Context, objectPath string) (bool, error) {
	p, err := cleanObjectPath(objectPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(s.root, filepath.FromSlash(p)))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *LocalStore) Delete(_ context.Context, objectPath string) error {
	p, err := cleanObjectPath(objectPath)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.root, filepath.FromSlash(p)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
