// Package initdata checks the launch parameters Telegram passes to a web app.
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHash = errors.New("init data has no hash")
	ErrInvalidHash = errors.New("init data hash mismatch")
	ErrExpired     = errors.New("init data expired")
	ErrNoUser      = errors.New("init data has no user")
)

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Data struct {
	User       User
	StartParam string
	AuthDate   time.Time
}

// Validate checks initData against the bot token and returns the signed user.
// Data older than maxAge is rejected; a zero maxAge disables the check.
func Validate(initData, botToken string, maxAge time.Duration, now time.Time) (Data, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return Data{}, fmt.Errorf("cannot parse init data: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return Data{}, ErrMissingHash
	}

	if !hmac.Equal([]byte(hash), []byte(Sign(values, botToken))) {
		return Data{}, ErrInvalidHash
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return Data{}, fmt.Errorf("invalid auth_date: %w", err)
	}

	data := Data{
		StartParam: values.Get("start_param"),
		AuthDate:   time.Unix(authDate, 0),
	}

	if maxAge > 0 && now.Sub(data.AuthDate) > maxAge {
		return Data{}, ErrExpired
	}

	if err := json.Unmarshal([]byte(values.Get("user")), &data.User); err != nil || data.User.ID == 0 {
		return Data{}, ErrNoUser
	}

	return data, nil
}

// Sign computes the hash Telegram puts into init data for values.
func Sign(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if key != "hash" {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+values.Get(key))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))

	return hex.EncodeToString(mac.Sum(nil))
}
