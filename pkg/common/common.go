package common

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
	NA       = "N/A"
)

var (
	snowflakeNode *snowflake.Node
	snowflakeOnce sync.Once
)

func idNode() *snowflake.Node {
	snowflakeOnce.Do(func() {
		r := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
		node, err := snowflake.NewNode(r.Int63n(1023))
		if err != nil {
			panic(err)
		}
		snowflakeNode = node
	})
	return snowflakeNode
}

// UUIDint64 returns a time ordered snowflake id
func UUIDint64() int64 {
	return idNode().Generate().Int64()
}

// UUID returns a random RFC 4122 string, used for idempotency keys
func UUID() string {
	return uuid.NewString()
}

// ShortID returns the first n hex chars of a random uuid
func ShortID(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n <= 0 || n > len(s) {
		return s
	}
	return s[:n]
}

func IsEmptyOrNA(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == NA
}

func IfEmptyStr(s, defval string) string {
	if strings.TrimSpace(s) == "" {
		return defval
	}
	return s
}

// HashPassword bcrypt hash for operator passwords
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func CheckPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

// StartOfDay truncates t to local midnight
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
