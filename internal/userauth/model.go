package userauth

import (
	crand "crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/alex65536/syllabus/internal/util/idgen"
	"github.com/alex65536/syllabus/internal/util/timeutil"
	"golang.org/x/crypto/argon2"
)

type PasswordOptions struct {
	Time    uint32 `toml:"time"`
	Memory  uint32 `toml:"memory"`
	Threads uint8  `toml:"threads"`
	KeyLen  uint32 `toml:"key-len"`
	SaltLen uint32 `toml:"salt-len"`
}

var defaultPasswordOptions = &PasswordOptions{
	Time:    3,
	Memory:  16384,
	Threads: 1,
	KeyLen:  32,
	SaltLen: 32,
}

type User struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex"`
	PasswordHash []byte
	PasswordSalt []byte
	Epoch        int
	CreatedAt    timeutil.UTCTime
	Tokens       []Token `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (u *User) doHash(password []byte, o *PasswordOptions) []byte {
	return argon2.IDKey(password, u.PasswordSalt, o.Time, o.Memory, o.Threads, o.KeyLen)
}

func (u *User) SetPassword(password []byte, o *PasswordOptions) error {
	if o == nil {
		o = defaultPasswordOptions
	}

	salt := make([]byte, o.SaltLen)
	_, err := io.ReadFull(crand.Reader, salt)
	if err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	u.PasswordSalt = salt
	u.PasswordHash = u.doHash(password, o)
	u.Epoch++
	return nil
}

func (u *User) VerifyPassword(password []byte, o *PasswordOptions) bool {
	if o == nil {
		o = defaultPasswordOptions
	}
	hash := u.doHash(password, o)
	return subtle.ConstantTimeCompare(hash, u.PasswordHash) == 1
}

type TokenKind int

const (
	TokenAccess TokenKind = iota
	TokenRefresh
)

func (k TokenKind) String() string {
	switch k {
	case TokenAccess:
		return "access"
	case TokenRefresh:
		return "refresh"
	default:
		panic("bad token kind")
	}
}

func (k TokenKind) prefix() string {
	switch k {
	case TokenAccess:
		return "sya_"
	case TokenRefresh:
		return "syr_"
	default:
		panic("bad token kind")
	}
}

// Token is an issued access or refresh token. Only the hash of the token value is
// stored. All the tokens issued by one sign-in share the same SessionID.
type Token struct {
	Hash      string `gorm:"primaryKey"`
	Kind      TokenKind
	UserID    string `gorm:"index"`
	SessionID string `gorm:"index"`
	Epoch     int
	ExpiresAt timeutil.UTCTime `gorm:"index"`
}

func HashToken(tok string) string {
	hash := sha256.Sum256([]byte(tok))
	return base64.StdEncoding.EncodeToString(hash[:])
}

func (t *Token) GenerateNew() (string, error) {
	tok, err := idgen.SecureToken(t.Kind.prefix(), 40)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	t.Hash = HashToken(tok)
	return tok, nil
}
