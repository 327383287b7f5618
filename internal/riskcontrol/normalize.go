package riskcontrol

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/crypto/blake2b"
)

// DeviceID 设备指纹的稳定 ID（blake2b-256 十六进制）
func DeviceID(rawFingerprint string) string {
	sum := blake2b.Sum256([]byte(rawFingerprint))
	return hex.EncodeToString(sum[:])
}

func isDeviceID(v string) bool {
	if len(v) != blake2b.Size256*2 {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}

// NormalizeEmail 邮箱统一小写去空白
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone 解析为 E.164，region 为无国家码时的默认地区
func NormalizePhone(phone, region string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(phone), region)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBlacklistValue, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: invalid phone number", ErrInvalidBlacklistValue)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// NormalizeIP 规范化 IP，IPv4-mapped 地址还原为 IPv4
func NormalizeIP(ip string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBlacklistValue, err)
	}
	return addr.Unmap().String(), nil
}

// NormalizeBlacklistValue 按类型规范化黑名单值，写入与查找使用同一规则
func NormalizeBlacklistValue(blType BlacklistType, value, region string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrInvalidBlacklistValue
	}

	switch blType {
	case BlacklistEmail:
		email := NormalizeEmail(value)
		if !strings.Contains(email, "@") {
			return "", fmt.Errorf("%w: malformed email", ErrInvalidBlacklistValue)
		}
		return email, nil
	case BlacklistIP:
		return NormalizeIP(value)
	case BlacklistPhone:
		return NormalizePhone(value, region)
	case BlacklistDevice:
		lower := strings.ToLower(value)
		if isDeviceID(lower) {
			return lower, nil
		}
		return DeviceID(value), nil
	case BlacklistCard:
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			if r == ' ' || r == '-' {
				return -1
			}
			return 'x'
		}, value)
		if digits == "" || strings.ContainsRune(digits, 'x') {
			return "", fmt.Errorf("%w: card value must be digits", ErrInvalidBlacklistValue)
		}
		return digits, nil
	default:
		return "", ErrInvalidBlacklistType
	}
}
