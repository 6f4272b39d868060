package models

import (
	"errors"
	"net/url"
	"path"
	"regexp"

	"github.com/google/uuid"
)

var (
	errURLScheme = errors.New("URL必须是HTTP或HTTPS协议")
	errURLHost   = errors.New("URL必须包含主机名")
)

// ValidateURL 起始URL和详情页URL都必须是带主机名的绝对 http(s) 地址
func ValidateURL(raw string) error {
	parsed, err := url.Parse(raw)
	switch {
	case err != nil:
		return errors.Join(errors.New("无效的URL"), err)
	case parsed.Scheme != "http" && parsed.Scheme != "https":
		return errURLScheme
	case parsed.Host == "":
		return errURLHost
	}
	return nil
}

var listingIDPattern = regexp.MustCompile(`(\d{4,})$`)

// ListingIDFromURL 取详情页路径最后一段末尾的数字
// /los-angeles-ca/mip/joes-diner-12345678 → 12345678
func ListingIDFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if m := listingIDPattern.FindStringSubmatch(path.Base(parsed.Path)); m != nil {
		return m[1]
	}
	return ""
}

func newTaskID() string {
	return uuid.NewString()
}
